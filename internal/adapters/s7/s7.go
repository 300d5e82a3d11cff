/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package s7 implements the S7comm adapter (spec.md §4.8.1): a COTP
// Connection Request, S7 Setup Communication, and sequential SZL reads
// (one request in flight at a time; reads are not pipelined).
// Rack/slot discovery tries (0,2), (0,0), (0,1) in order and stops at the
// first accepting connection.
package s7

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 3 * time.Second

// rackSlot is one (rack, slot) combination tried in priority order.
type rackSlot struct{ rack, slot int }

var rackSlotOrder = []rackSlot{{0, 2}, {0, 0}, {0, 1}}

// szlIDs is the set of SZL (System Status List) identifiers probed until a
// CPU model and order number are obtained, spec.md §4.8.1.
var szlIDs = []struct {
	id      uint16
	indices []uint16
}{
	{0x0011, []uint16{0x0000}},
	{0x001C, []uint16{0x0000, 0x0001, 0x0006}},
	{0x0131, []uint16{0x0000}},
}

// Adapter implements adapters.Adapter for S7comm discovery.
type Adapter struct{}

func (Adapter) Name() string { return "s7" }

func (Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	for attempt, rs := range rackSlotOrder {
		conn, ok := connectRackSlot(ctx, host, port, rs, timeout)
		if !ok {
			continue
		}

		fields := map[string]interface{}{
			"rack":          rs.rack,
			"slot":          rs.slot,
			"attempt_count": attempt + 1,
		}

		szl := readSZLs(conn, timeout)
		for k, v := range szl {
			fields[k] = v
		}

		conn.Close()

		return []adapters.Metric{{
			Name:      "s7_device",
			Fields:    fields,
			Tags:      map[string]string{"host": host},
			Timestamp: time.Now(),
		}}, nil
	}

	return nil, nil
}

func connectRackSlot(ctx context.Context, host string, port int, rs rackSlot, timeout time.Duration) (net.Conn, bool) {
	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, false
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, false
	}

	if _, err := conn.Write(buildCOTPConnectionRequest(rs)); err != nil {
		conn.Close()
		return nil, false
	}

	if !readCOTPConnectionConfirm(conn) {
		conn.Close()
		return nil, false
	}

	if _, err := conn.Write(buildSetupCommunication()); err != nil {
		conn.Close()
		return nil, false
	}

	if !readSetupCommunicationAck(conn) {
		conn.Close()
		return nil, false
	}

	return conn, true
}

// buildCOTPConnectionRequest builds a TPKT+COTP Connection Request (CR)
// addressed to the given rack/slot via the TSAP calling/called addresses.
func buildCOTPConnectionRequest(rs rackSlot) []byte {
	calledTSAP := []byte{0x01, 0x00}
	callingTSAP := []byte{0x01, byte((rs.rack << 5) | rs.slot)}

	cotp := []byte{
		0x11,       // length (filled after)
		0xE0,       // CR
		0x00, 0x00, // dest ref
		0x00, 0x00, // src ref
		0x00, // flags
		0xC1, 0x02, callingTSAP[0], callingTSAP[1],
		0xC2, 0x02, calledTSAP[0], calledTSAP[1],
		0xC0, 0x01, 0x0A, // TPDU size
	}
	cotp[0] = byte(len(cotp) - 1)

	return wrapTPKT(cotp)
}

func wrapTPKT(payload []byte) []byte {
	tpkt := make([]byte, 4)
	tpkt[0] = 0x03
	tpkt[1] = 0x00
	binary.BigEndian.PutUint16(tpkt[2:4], uint16(4+len(payload)))

	return append(tpkt, payload...)
}

func readCOTPConnectionConfirm(conn net.Conn) bool {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return false
	}

	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < 4 {
		return false
	}

	rest := make([]byte, length-4)
	if _, err := readFull(conn, rest); err != nil {
		return false
	}

	return len(rest) >= 2 && rest[1] == 0xD0 // CC
}

// buildSetupCommunication builds the S7 "Setup Communication" job request
// over a COTP DT (data) frame.
func buildSetupCommunication() []byte {
	cotpDT := []byte{0x02, 0xF0, 0x80}

	s7Header := []byte{
		0x32,       // protocol id
		0x01,       // rosctr: job
		0x00, 0x00, // redundancy id
		0x00, 0x00, // pdu ref
		0x00, 0x08, // param length
		0x00, 0x00, // data length
	}

	param := []byte{
		0xF0,       // function: setup communication
		0x00,       // reserved
		0x00, 0x01, // max amq calling
		0x00, 0x01, // max amq called
		0x01, 0xE0, // pdu length
	}

	return wrapTPKT(append(cotpDT, append(s7Header, param...)...))
}

func readSetupCommunicationAck(conn net.Conn) bool {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return false
	}

	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < 4 {
		return false
	}

	rest := make([]byte, length-4)
	if _, err := readFull(conn, rest); err != nil {
		return false
	}

	// rest: [cotp DT header (3 bytes)][S7 header][param][data]
	return len(rest) > 3 && rest[3] == 0x32
}

// readSZLs reads each SZL ID/index pair in turn, sending the next request
// only after the previous reply (or its timeout), until a CPU model and
// order number have been found. Reads are not pipelined.
func readSZLs(conn net.Conn, timeout time.Duration) map[string]interface{} {
	fields := map[string]interface{}{}

	for _, szl := range szlIDs {
		for _, index := range szl.indices {
			if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
				return fields
			}

			if _, err := conn.Write(buildReadSZLRequest(szl.id, index)); err != nil {
				return fields
			}

			data, ok := readSZLResponse(conn)
			if !ok {
				continue
			}

			parseSZLInto(szl.id, data, fields)

			if fields["cpu_model"] != nil && fields["order_number"] != nil {
				return fields
			}
		}
	}

	return fields
}

func buildReadSZLRequest(szlID, index uint16) []byte {
	cotpDT := []byte{0x02, 0xF0, 0x80}

	s7Header := []byte{
		0x32,
		0x07,       // rosctr: userdata
		0x00, 0x00,
		0x00, 0x01, // pdu ref
		0x00, 0x08, // param length
		0x00, 0x0C, // data length
	}

	param := []byte{0x00, 0x01, 0x12, 0x04, 0x11, 0x44, 0x01, 0x00}

	data := make([]byte, 12)
	data[0] = 0xFF
	data[1] = 0x09
	binary.BigEndian.PutUint16(data[2:4], 4)
	binary.BigEndian.PutUint16(data[4:6], szlID)
	binary.BigEndian.PutUint16(data[6:8], index)

	return wrapTPKT(append(cotpDT, append(s7Header, append(param, data...)...)...))
}

func readSZLResponse(conn net.Conn) ([]byte, bool) {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return nil, false
	}

	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < 4 {
		return nil, false
	}

	rest := make([]byte, length-4)
	if _, err := readFull(conn, rest); err != nil {
		return nil, false
	}

	if len(rest) < 3 {
		return nil, false
	}

	return rest[3:], true
}

// parseSZLInto extracts a CPU model / order number string from an SZL
// response, using fingerprint heuristics that are best-effort per spec.md
// §9: missing/incorrect enrichment here never affects the adapter's
// primary fields.
func parseSZLInto(szlID uint16, s7 []byte, fields map[string]interface{}) {
	switch szlID {
	case 0x001C:
		if name := firstPrintableRun(s7, 20); name != "" {
			fields["order_number"] = name
		}
	case 0x0011:
		if name := firstPrintableRun(s7, 24); name != "" {
			fields["cpu_model"] = name
		}
	}
}

// firstPrintableRun scans payload for the first run of at least minLen
// printable ASCII bytes, a tolerant stand-in for the real fixed-offset SZL
// record layouts (which vary by CPU family).
func firstPrintableRun(payload []byte, minLen int) string {
	start := -1

	for i := 0; i <= len(payload); i++ {
		printable := i < len(payload) && payload[i] >= 0x20 && payload[i] < 0x7F

		if printable && start < 0 {
			start = i
		}

		if !printable && start >= 0 {
			if i-start >= minLen {
				return string(payload[start:i])
			}

			start = -1
		}
	}

	return ""
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}
