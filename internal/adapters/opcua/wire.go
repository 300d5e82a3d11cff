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

package opcua

import (
	"encoding/binary"
	"math"
	"net"
)

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

// buildChunk frames body in an OPC-UA TCP message: 3-byte ASCII message
// type, 1-byte chunk type ('F' — final, the only kind this adapter sends),
// and a little-endian UInt32 total length.
func buildChunk(msgType string, body []byte) []byte {
	total := 8 + len(body)
	out := make([]byte, 8, total)
	copy(out[0:3], msgType)
	out[3] = 'F'
	binary.LittleEndian.PutUint32(out[4:8], uint32(total))

	return append(out, body...)
}

// buildSecureMessage wraps requestBody in an OPC-UA MSG chunk addressed to
// an established secure channel: channel id, security token id, then a
// sequence header (sequence number, request id).
func buildSecureMessage(channelID, tokenID uint32, requestID uint32, requestBody []byte) []byte {
	var body []byte
	body = appendUint32(body, channelID)
	body = appendUint32(body, tokenID)
	body = appendUint32(body, requestID) // sequence number
	body = appendUint32(body, requestID) // request id
	body = append(body, requestBody...)

	return buildChunk("MSG", body)
}

// readChunk reads one OPC-UA TCP message: the 8-byte header, then exactly
// MessageSize-8 bytes of body.
func readChunk(conn net.Conn) (msgType string, payload []byte, ok bool) {
	header := make([]byte, 8)
	if _, err := readFull(conn, header); err != nil {
		return "", nil, false
	}

	size := binary.LittleEndian.Uint32(header[4:8])
	if size < 8 || size > 1<<20 {
		return "", nil, false
	}

	payload = make([]byte, size-8)
	if len(payload) > 0 {
		if _, err := readFull(conn, payload); err != nil {
			return "", nil, false
		}
	}

	return string(header[0:3]), payload, true
}

// parseSecurityToken extracts the channel id and security token id from an
// OpenSecureChannelResponse. Offsets follow the asymmetric header shape
// this adapter's OpenSecureChannelRequest provokes (SecurityPolicy#None,
// empty certificates): secure channel id, policy URI string, two empty
// byte strings, sequence header, response type node id, response header,
// server protocol version, then the security token fields.
func parseSecurityToken(payload []byte) (channelID, tokenID uint32, ok bool) {
	off := 0

	secureChannelID, off, ok := readUint32At(payload, off)
	if !ok {
		return 0, 0, false
	}

	_, off, ok = readUAString(payload, off)
	if !ok {
		return 0, 0, false
	}

	_, off, ok = readByteString(payload, off)
	if !ok {
		return 0, 0, false
	}

	_, off, ok = readByteString(payload, off)
	if !ok {
		return 0, 0, false
	}

	off += 8 // sequence header: sequence number + request id

	_, off, ok = readNodeID(payload, off)
	if !ok {
		return 0, 0, false
	}

	off, ok = skipResponseHeader(payload, off)
	if !ok {
		return 0, 0, false
	}

	off += 4 // server protocol version

	newChannelID, off, ok := readUint32At(payload, off)
	if !ok {
		return 0, 0, false
	}

	newTokenID, _, ok := readUint32At(payload, off)
	if !ok {
		return 0, 0, false
	}

	if newChannelID == 0 {
		newChannelID = secureChannelID
	}

	return newChannelID, newTokenID, true
}

// skipResponseHeader advances past a ResponseHeader: timestamp(8),
// requestHandle(4), serviceResult(4), serviceDiagnostics (DiagnosticInfo,
// encoding byte + conditional fields), stringTable (array of String), and
// additionalHeader (ExtensionObject: NodeId + encoding byte + conditional
// body). Only the no-diagnostics, empty-string-table, null-extension shape
// this adapter's own requests provoke is handled; anything else aborts.
func skipResponseHeader(payload []byte, off int) (int, bool) {
	if off+16 > len(payload) {
		return 0, false
	}

	off += 16 // timestamp + requestHandle + serviceResult

	if off >= len(payload) {
		return 0, false
	}

	diagMask := payload[off]
	off++

	if diagMask != 0 {
		return 0, false // diagnostics present: shape this adapter doesn't model
	}

	count, off2, ok := readInt32At(payload, off)
	if !ok {
		return 0, false
	}

	off = off2
	if count > 0 {
		return 0, false // string table present: not modeled
	}

	_, off, ok = readNodeID(payload, off)
	if !ok {
		return 0, false
	}

	if off >= len(payload) {
		return 0, false
	}

	encoding := payload[off]
	off++

	if encoding != 0 {
		return 0, false // extension object body present: not modeled
	}

	return off, true
}

func appendUint32(b []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)

	return append(b, buf...)
}

func appendDouble(b []byte, v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))

	return append(b, buf...)
}

// appendUAString appends a length-prefixed UTF-8 string. The empty string
// encodes with length 0 rather than the null-string sentinel (-1); servers
// accept either for optional fields this adapter leaves blank.
func appendUAString(b []byte, s string) []byte {
	b = appendUint32(b, uint32(len(s)))

	return append(b, s...)
}

// appendByteString appends a length-prefixed byte string; nil encodes as
// the null sentinel (length -1), per the UA binary encoding for absent
// optional byte strings (certificates, nonces, signatures).
func appendByteString(b []byte, data []byte) []byte {
	if data == nil {
		return appendUint32(b, math.MaxUint32) // -1 as int32
	}

	b = appendUint32(b, uint32(len(data)))

	return append(b, data...)
}

// appendNodeID appends a numeric NodeId in namespace 0 using the four-byte
// encoding form (identifier fits in UInt16), the form every identifier this
// adapter needs (request type ids, well-known variable ids) satisfies.
func appendNodeID(b []byte, identifier uint16) []byte {
	b = append(b, 0x01, 0x00) // encoding byte: four-byte numeric, namespace 0
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, identifier)

	return append(b, buf...)
}

// appendRequestHeader appends a RequestHeader with a null authentication
// token (or authToken if provided), zero timestamp, and no diagnostics,
// audit entry, or additional header.
func appendRequestHeader(b []byte, authToken []byte) []byte {
	if authToken == nil {
		b = append(b, 0x00, 0x00) // null NodeId, two-byte form, namespace 0 id 0
	} else {
		b = appendByteString(b, authToken)
	}

	b = appendUint32(b, 0) // timestamp low
	b = appendUint32(b, 0) // timestamp high (UtcTime is Int64)
	b = appendUint32(b, 1) // request handle
	b = appendUint32(b, 0) // return diagnostics
	b = appendUAString(b, "")
	b = appendUint32(b, 0) // timeout hint
	b = append(b, 0x00, 0x00, 0x00)

	return b
}

// appendApplicationDescription appends a minimal ApplicationDescription for
// CreateSessionRequest's clientDescription field.
func appendApplicationDescription(b []byte, endpointURL string) []byte {
	b = appendUAString(b, "urn:subnetradar:discovery")
	b = appendUAString(b, "urn:subnetradar")
	b = appendUAString(b, "subnetradar discovery client")
	b = appendUint32(b, 1) // application type: Client
	b = appendUAString(b, "")
	b = appendUAString(b, "")
	b = appendUint32(b, 0) // no discovery URLs

	return b
}

func readUint32At(b []byte, off int) (uint32, int, bool) {
	if off+4 > len(b) {
		return 0, off, false
	}

	return binary.LittleEndian.Uint32(b[off : off+4]), off + 4, true
}

func readInt32At(b []byte, off int) (int32, int, bool) {
	v, off, ok := readUint32At(b, off)

	return int32(v), off, ok
}

func readUAString(b []byte, off int) (string, int, bool) {
	n, off, ok := readInt32At(b, off)
	if !ok {
		return "", off, false
	}

	if n < 0 {
		return "", off, true
	}

	if off+int(n) > len(b) {
		return "", off, false
	}

	return string(b[off : off+int(n)]), off + int(n), true
}

func readByteString(b []byte, off int) ([]byte, int, bool) {
	n, off, ok := readInt32At(b, off)
	if !ok {
		return nil, off, false
	}

	if n < 0 {
		return nil, off, true
	}

	if off+int(n) > len(b) {
		return nil, off, false
	}

	return b[off : off+int(n)], off + int(n), true
}

// readNodeID reads a NodeId in any of the three numeric encoding forms
// (two-byte, four-byte, numeric) this adapter may receive from a server.
// String/GUID/opaque identifier forms are not modeled and abort parsing.
func readNodeID(b []byte, off int) (uint32, int, bool) {
	if off >= len(b) {
		return 0, off, false
	}

	switch b[off] {
	case 0x00: // two-byte: namespace 0 implied, 1-byte identifier
		if off+2 > len(b) {
			return 0, off, false
		}

		return uint32(b[off+1]), off + 2, true
	case 0x01: // four-byte: namespace byte + uint16 identifier
		if off+4 > len(b) {
			return 0, off, false
		}

		return uint32(binary.LittleEndian.Uint16(b[off+2 : off+4])), off + 4, true
	case 0x02: // numeric: namespace uint16 + uint32 identifier
		if off+7 > len(b) {
			return 0, off, false
		}

		return binary.LittleEndian.Uint32(b[off+3 : off+7]), off + 7, true
	default:
		return 0, off, false
	}
}
