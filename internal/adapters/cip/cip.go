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

// Package cip implements the CIP/EtherNet-IP adapter (spec.md §4.8.1): a TCP
// RegisterSession + GetAttributesAll on the Identity Object (class 0x01,
// instance 1), falling back to a UDP List-Identity broadcast-style unicast
// when the TCP session cannot be established.
package cip

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 3 * time.Second

const (
	cmdRegisterSession   = 0x0065
	cmdUnregisterSession = 0x0066
	cmdSendRRData        = 0x006F
	cmdListIdentity      = 0x0063

	eipHeaderLen = 24
)

// backplaneSlots is the fallback sequence of backplane slot numbers tried
// when addressing the connection path to the controller, spec.md §4.8.1.
var backplaneSlots = []byte{0, 1, 2, 3}

// Adapter implements adapters.Adapter for CIP/EtherNet-IP discovery.
type Adapter struct{}

func (Adapter) Name() string { return "cip" }

func (a Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	if fields, ok := a.discoverTCP(ctx, host, port, timeout); ok {
		return []adapters.Metric{{
			Name:      "cip_device",
			Fields:    fields,
			Tags:      map[string]string{"host": host},
			Timestamp: time.Now(),
		}}, nil
	}

	if fields, ok := discoverUDP(host, timeout); ok {
		return []adapters.Metric{{
			Name:      "cip_device",
			Fields:    fields,
			Tags:      map[string]string{"host": host},
			Timestamp: time.Now(),
		}}, nil
	}

	return nil, nil
}

// discoverTCP opens an EtherNet/IP session and reads the Identity Object's
// Vendor-ID, Device-Type, and Product-Code attributes (1, 2, 3) via a
// Get_Attributes_All CIP service, retrying across backplaneSlots.
func (Adapter) discoverTCP(ctx context.Context, host string, port int, timeout time.Duration) (map[string]interface{}, bool) {
	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false
	}

	sessionHandle, ok := registerSession(conn)
	if !ok {
		return nil, false
	}
	defer unregisterSession(conn, sessionHandle)

	for _, slot := range backplaneSlots {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, false
		}

		if fields, ok := getIdentityAttributes(conn, sessionHandle, slot); ok {
			fields["slot"] = int(slot)
			return fields, true
		}
	}

	return nil, false
}

func registerSession(conn net.Conn) (uint32, bool) {
	cmdData := []byte{0x01, 0x00, 0x00, 0x00} // protocol version 1, option flags 0

	req := buildEIPHeader(cmdRegisterSession, 0, cmdData)
	if _, err := conn.Write(req); err != nil {
		return 0, false
	}

	cmd, sessionHandle, _, ok := readEIPResponse(conn)
	if !ok || cmd != cmdRegisterSession {
		return 0, false
	}

	return sessionHandle, true
}

func unregisterSession(conn net.Conn, sessionHandle uint32) {
	req := buildEIPHeader(cmdUnregisterSession, sessionHandle, nil)
	_, _ = conn.Write(req)
}

// getIdentityAttributes issues an Unconnected Send wrapping a
// Get_Attributes_All (service 0x01) request to the Identity Object
// (class 0x01, instance 1), routed over the given backplane slot.
func getIdentityAttributes(conn net.Conn, sessionHandle uint32, slot byte) (map[string]interface{}, bool) {
	cmdData := buildSendRRData(slot)

	req := buildEIPHeader(cmdSendRRData, sessionHandle, cmdData)
	if _, err := conn.Write(req); err != nil {
		return nil, false
	}

	cmd, _, data, ok := readEIPResponse(conn)
	if !ok || cmd != cmdSendRRData {
		return nil, false
	}

	return parseGetAttributesAllResponse(data)
}

// buildSendRRData wraps a Get_Attributes_All CIP request for the Identity
// Object in an Unconnected Send (service 0x52) message router request,
// itself wrapped in the CPF (Common Packet Format) item list SendRRData
// expects: a null address item followed by an unconnected data item.
func buildSendRRData(slot byte) []byte {
	// CIP request: Get_Attributes_All on Identity Object class 0x01 inst 1.
	cipRequest := []byte{
		0x01,       // service: Get_Attributes_All
		0x02,       // request path size (words)
		0x20, 0x01, // class segment, class 0x01 (Identity)
		0x24, 0x01, // instance segment, instance 1
	}

	// Unconnected Send (service 0x52) wrapping cipRequest, routed over one
	// backplane hop to the given slot.
	path := []byte{0x01, slot} // port 1 (backplane), slot
	unconnSend := []byte{
		0x52,                    // service: Unconnected Send
		0x02,                    // path size (words)
		0x20, 0x06,              // class 0x06 (Connection Manager)
		0x24, 0x01,              // instance 1
		0x0A,                    // priority/tick time
		0x0E,                    // timeout ticks
		byte(len(cipRequest)), 0, // message request size (LE u16 as two bytes; hi=0 for <256)
	}
	unconnSend = append(unconnSend, cipRequest...)

	if len(cipRequest)%2 != 0 {
		unconnSend = append(unconnSend, 0x00) // pad to even
	}

	unconnSend = append(unconnSend, byte(len(path)))
	unconnSend = append(unconnSend, path...)

	if len(path)%2 != 0 {
		unconnSend = append(unconnSend, 0x00)
	}

	// Interface handle (4 bytes, 0) + timeout (2 bytes) + item count (2) +
	// null address item (type 0, length 0) + unconnected data item.
	out := make([]byte, 0, 64)
	out = append(out, 0, 0, 0, 0) // interface handle
	out = append(out, 0x0A, 0x00) // timeout

	out = append(out, 0x02, 0x00) // item count = 2

	out = append(out, 0x00, 0x00) // address type id: null
	out = append(out, 0x00, 0x00) // address length: 0

	out = append(out, 0xB2, 0x00) // data type id: unconnected message
	dataLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(dataLen, uint16(len(unconnSend)))
	out = append(out, dataLen...)
	out = append(out, unconnSend...)

	return out
}

// parseGetAttributesAllResponse parses the CPF-wrapped Get_Attributes_All
// reply, extracting vendor ID, device type, and product code from the
// Identity Object instance attribute list.
func parseGetAttributesAllResponse(data []byte) (map[string]interface{}, bool) {
	// data: interface handle(4) + timeout(2) + item count(2) + items...
	if len(data) < 8 {
		return nil, false
	}

	itemCount := binary.LittleEndian.Uint16(data[6:8])
	offset := 8

	var unconnData []byte

	for i := uint16(0); i < itemCount && offset+4 <= len(data); i++ {
		itemType := binary.LittleEndian.Uint16(data[offset : offset+2])
		itemLen := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+itemLen > len(data) {
			return nil, false
		}

		if itemType == 0x00B2 {
			unconnData = data[offset : offset+itemLen]
		}

		offset += itemLen
	}

	if len(unconnData) < 4 {
		return nil, false
	}

	// unconnData: service reply (0x81=Get_Attributes_All reply), reserved,
	// general status, additional status size, then attribute data.
	if unconnData[0] != 0x81 || unconnData[2] != 0x00 {
		return nil, false // general status != success
	}

	addlStatusSize := int(unconnData[3])
	body := unconnData[4+addlStatusSize*2:]

	if len(body) < 10 {
		return nil, false
	}

	fields := map[string]interface{}{
		"vendor_id":   int(binary.LittleEndian.Uint16(body[0:2])),
		"device_type": int(binary.LittleEndian.Uint16(body[2:4])),
		"product_code": int(binary.LittleEndian.Uint16(body[4:6])),
	}

	return fields, true
}

// buildEIPHeader frames cmdData in the 24-byte EtherNet/IP encapsulation
// header.
func buildEIPHeader(command uint16, sessionHandle uint32, cmdData []byte) []byte {
	header := make([]byte, eipHeaderLen)
	binary.LittleEndian.PutUint16(header[0:2], command)
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(cmdData)))
	binary.LittleEndian.PutUint32(header[4:8], sessionHandle)
	// status(4)=0, sender context(8)=0, options(4)=0 all left zero.

	return append(header, cmdData...)
}

func readEIPResponse(conn net.Conn) (command uint16, sessionHandle uint32, data []byte, ok bool) {
	header := make([]byte, eipHeaderLen)
	if _, err := readFull(conn, header); err != nil {
		return 0, 0, nil, false
	}

	command = binary.LittleEndian.Uint16(header[0:2])
	length := binary.LittleEndian.Uint16(header[2:4])
	sessionHandle = binary.LittleEndian.Uint32(header[4:8])
	status := binary.LittleEndian.Uint32(header[8:12])

	if status != 0 {
		return command, sessionHandle, nil, false
	}

	if length == 0 {
		return command, sessionHandle, nil, true
	}

	data = make([]byte, length)
	if _, err := readFull(conn, data); err != nil {
		return 0, 0, nil, false
	}

	return command, sessionHandle, data, true
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

// discoverUDP sends a List-Identity command (0x0063) to UDP 44818 and parses
// the 28-byte (minimum) identity item from the reply.
func discoverUDP(host string, timeout time.Duration) (map[string]interface{}, bool) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:44818", host))
	if err != nil {
		return nil, false
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false
	}

	req := buildEIPHeader(cmdListIdentity, 0, nil)
	if _, err := conn.Write(req); err != nil {
		return nil, false
	}

	buf := make([]byte, 1024)

	n, err := conn.Read(buf)
	if err != nil {
		return nil, false
	}

	return parseListIdentityResponse(buf[:n])
}

// parseListIdentityResponse parses the CPF item list following the EtherNet/IP
// header, extracting the first identity item's vendor ID, device type,
// product code, and device/product name string.
func parseListIdentityResponse(resp []byte) (map[string]interface{}, bool) {
	if len(resp) < eipHeaderLen {
		return nil, false
	}

	length := binary.LittleEndian.Uint16(resp[2:4])
	if int(eipHeaderLen)+int(length) > len(resp) {
		return nil, false
	}

	data := resp[eipHeaderLen : eipHeaderLen+int(length)]
	if len(data) < 4 {
		return nil, false
	}

	itemCount := binary.LittleEndian.Uint16(data[0:2])
	offset := 2

	for i := uint16(0); i < itemCount && offset+4 <= len(data); i++ {
		itemType := binary.LittleEndian.Uint16(data[offset : offset+2])
		itemLen := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+itemLen > len(data) {
			return nil, false
		}

		item := data[offset : offset+itemLen]
		offset += itemLen

		if itemType != 0x000C { // identity item
			continue
		}

		return parseIdentityItem(item)
	}

	return nil, false
}

// parseIdentityItem decodes the fixed-layout identity item body: protocol
// version(2), sockaddr(16), vendor ID(2), device type(2), product code(2),
// revision(2), status(2), serial number(4), product name length(1) +
// product name, state(1).
func parseIdentityItem(item []byte) (map[string]interface{}, bool) {
	if len(item) < 28 {
		return nil, false
	}

	vendorID := binary.LittleEndian.Uint16(item[18:20])
	deviceType := binary.LittleEndian.Uint16(item[20:22])
	productCode := binary.LittleEndian.Uint16(item[22:24])

	fields := map[string]interface{}{
		"vendor_id":    int(vendorID),
		"device_type":  int(deviceType),
		"product_code": int(productCode),
	}

	const nameLenOffset = 32
	if len(item) > nameLenOffset {
		nameLen := int(item[nameLenOffset])
		nameStart := nameLenOffset + 1

		if nameStart+nameLen <= len(item) {
			fields["product_name"] = string(item[nameStart : nameStart+nameLen])
		}
	}

	return fields, true
}
