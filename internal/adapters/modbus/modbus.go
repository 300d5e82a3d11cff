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

// Package modbus implements the Modbus/TCP adapter (spec.md §4.8.1): open
// TCP 502, send Encapsulated Interface Transport FC=43 (Read Device
// Identification) at a sequence of candidate unit IDs, and parse the
// vendor/product/version/URL/productName/modelName object values.
package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 3 * time.Second

// unitIDs is the fallback sequence of Modbus unit identifiers tried in
// order, spec.md §4.8.1.
var unitIDs = []byte{1, 0, 255, 2, 3}

const (
	fcReadDeviceID        = 0x2B
	mei43ReadDeviceID     = 0x0E
	readDevIDCodeBasic    = 0x01
	objVendorName         = 0x00
	objProductCode        = 0x01
	objMajorMinorRevision = 0x02
	objVendorURL          = 0x03
	objProductName        = 0x04
	objModelName          = 0x05
)

// Adapter implements adapters.Adapter for Modbus/TCP discovery.
type Adapter struct{}

func (Adapter) Name() string { return "modbus" }

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

	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	for _, unit := range unitIDs {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil
		}

		fields, ok := readDeviceIdentification(conn, unit)
		if !ok {
			continue
		}

		fields["unit_id"] = int(unit)

		return []adapters.Metric{{
			Name:      "modbus_device",
			Fields:    fields,
			Tags:      map[string]string{"host": host},
			Timestamp: time.Now(),
		}}, nil
	}

	return nil, nil
}

// readDeviceIdentification sends one MEI Type 14 "Read Device
// Identification" request (basic category) to unit, parsing the returned
// object list.
func readDeviceIdentification(conn net.Conn, unit byte) (map[string]interface{}, bool) {
	req := buildReadDeviceIDRequest(unit)
	if _, err := conn.Write(req); err != nil {
		return nil, false
	}

	header := make([]byte, 7)
	if _, err := readFull(conn, header); err != nil {
		return nil, false
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 1 || length > 260 {
		return nil, false
	}

	body := make([]byte, length-1)
	if _, err := readFull(conn, body); err != nil {
		return nil, false
	}

	return parseReadDeviceIDResponse(body)
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

// buildReadDeviceIDRequest builds the MBAP header + PDU for FC=43/MEI=14,
// read-device-id-code basic, starting at object 0.
func buildReadDeviceIDRequest(unit byte) []byte {
	pdu := []byte{fcReadDeviceID, mei43ReadDeviceID, readDevIDCodeBasic, 0x00}

	mbap := make([]byte, 7)
	binary.BigEndian.PutUint16(mbap[0:2], 0x0001) // transaction id
	binary.BigEndian.PutUint16(mbap[2:4], 0x0000) // protocol id
	binary.BigEndian.PutUint16(mbap[4:6], uint16(len(pdu)+1))
	mbap[6] = unit

	return append(mbap, pdu...)
}

// parseReadDeviceIDResponse parses the FC=43 MEI=14 response PDU body
// (function code byte onward) into named fields.
func parseReadDeviceIDResponse(body []byte) (map[string]interface{}, bool) {
	if len(body) < 6 || body[0] != fcReadDeviceID || body[1] != mei43ReadDeviceID {
		return nil, false
	}

	// body[2]=read device id code, body[3]=conformity level,
	// body[4]=more follows, body[5]=next object id, body[6]=number of objects
	if len(body) < 7 {
		return nil, false
	}

	numObjects := int(body[6])
	idx := 7

	names := map[byte]string{
		objVendorName:         "vendor_name",
		objProductCode:        "product_code",
		objMajorMinorRevision: "major_minor_revision",
		objVendorURL:          "vendor_url",
		objProductName:        "product_name",
		objModelName:          "model_name",
	}

	fields := map[string]interface{}{}

	for i := 0; i < numObjects && idx+2 <= len(body); i++ {
		objID := body[idx]
		objLen := int(body[idx+1])
		idx += 2

		if idx+objLen > len(body) {
			break
		}

		val := string(body[idx : idx+objLen])
		idx += objLen

		if name, ok := names[objID]; ok {
			fields[name] = val
		}
	}

	if len(fields) == 0 {
		return nil, false
	}

	return fields, true
}
