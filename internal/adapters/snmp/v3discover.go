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

package snmp

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"
)

// v3DiscoverMsgID is the fixed msgID spec.md §4.8.1 requires for the SNMPv3
// discovery probe: 0x4A69 ("Ji", arbitrary but stable so replies can be
// correlated without per-probe state).
const v3DiscoverMsgID = 0x4A69

// probeV3 sends a minimal SNMPv3 discovery request (RFC 3414 §4: an empty
// USM security parameters block with the reportable flag set) and decodes
// the responding engine ID, boots and time from the report PDU, per
// RFC 3411's discovery procedure. gosnmp has no public API for an
// authentication-free discovery round trip, so this probe is BER-encoded
// by hand (justified in DESIGN.md).
func probeV3(host string, port int, timeout time.Duration) (map[string]interface{}, bool) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false
	}

	req := buildV3Discovery()
	if _, err := conn.Write(req); err != nil {
		return nil, false
	}

	buf := make([]byte, 4096)

	n, err := conn.Read(buf)
	if err != nil {
		return nil, false
	}

	engineID, boots, t, ok := parseV3Report(buf[:n])
	if !ok {
		return nil, false
	}

	fields := map[string]interface{}{
		"snmp_version": "3",
		"engine_id":    fmt.Sprintf("%x", engineID),
		"engine_boots": boots,
		"engine_time":  t,
	}

	for k, v := range decodeEngineID(engineID) {
		fields[k] = v
	}

	return fields, true
}

// RFC 3411 §5 SnmpEngineID format codes, valid only when the enterprise
// octet's high bit marks an IANA-assigned enterprise number.
const (
	engineIDFormatIPv4   = 1
	engineIDFormatIPv6   = 2
	engineIDFormatMAC    = 3
	engineIDFormatText   = 4
	engineIDFormatOctets = 5
)

// decodeEngineID decodes an RFC 3411 SnmpEngineID: a 4-byte enterprise
// number whose high bit marks an IANA-assigned enterprise (followed by a
// 1-byte format code and format-specific content) versus a legacy,
// pre-3411 engine ID whose entire content is implementation-defined.
func decodeEngineID(b []byte) map[string]interface{} {
	out := map[string]interface{}{}

	if len(b) < 5 || b[0]&0x80 == 0 {
		out["engine_id_format"] = "legacy"
		return out
	}

	enterprise := binary.BigEndian.Uint32(b[0:4]) &^ 0x80000000
	out["engine_id_enterprise"] = enterprise

	format := b[4]
	rest := b[5:]

	switch format {
	case engineIDFormatIPv4:
		if len(rest) != 4 {
			out["engine_id_format"] = "ipv4"
			break
		}

		out["engine_id_format"] = "ipv4"
		out["engine_id_address"] = net.IP(rest).String()
	case engineIDFormatIPv6:
		if len(rest) != 16 {
			out["engine_id_format"] = "ipv6"
			break
		}

		out["engine_id_format"] = "ipv6"
		out["engine_id_address"] = net.IP(rest).String()
	case engineIDFormatMAC:
		if len(rest) != 6 {
			out["engine_id_format"] = "mac"
			break
		}

		out["engine_id_format"] = "mac"
		out["engine_id_address"] = net.HardwareAddr(rest).String()
	case engineIDFormatText:
		out["engine_id_format"] = "text"
		out["engine_id_text"] = string(rest)
	case engineIDFormatOctets:
		out["engine_id_format"] = "octets"
		out["engine_id_octets"] = fmt.Sprintf("%x", rest)
	default:
		out["engine_id_format"] = "enterprise_specific"
		out["engine_id_format_code"] = format
	}

	return out
}

// encodeEngineID is the inverse of decodeEngineID: it builds an
// IANA-assigned-form SnmpEngineID from an enterprise number, format code,
// and format-specific content, used to verify the decode/encode round
// trip spec.md §8 requires.
func encodeEngineID(enterprise uint32, format byte, content []byte) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, enterprise|0x80000000)
	b = append(b, format)

	return append(b, content...)
}

// --- minimal BER encoding helpers ---

func berLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}

	var b []byte
	for n > 0 {
		b = append([]byte{byte(n & 0xff)}, b...)
		n >>= 8
	}

	return append([]byte{byte(0x80 | len(b))}, b...)
}

func berTLV(tag byte, content []byte) []byte {
	out := []byte{tag}
	out = append(out, berLength(len(content))...)
	out = append(out, content...)

	return out
}

func berInt(tag byte, v int) []byte {
	if v == 0 {
		return berTLV(tag, []byte{0})
	}

	var b []byte

	n := v
	for n > 0 {
		b = append([]byte{byte(n & 0xff)}, b...)
		n >>= 8
	}

	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}

	return berTLV(tag, b)
}

const (
	tagInteger    = 0x02
	tagOctetStr   = 0x04
	tagSequence   = 0x30
	tagSNMPv3Msg  = 0x30
)

// buildV3Discovery builds the minimal SNMPv3 "discover the remote engine"
// request: an SNMPv3 message wrapping an empty-security-params
// USM header and a GetRequest with the reportable flag, per RFC 3414 §4.
func buildV3Discovery() []byte {
	msgVersion := berInt(tagInteger, 3)
	msgID := berInt(tagInteger, v3DiscoverMsgID)
	msgMaxSize := berInt(tagInteger, 65507)
	// flags: reportable=1, auth=0, priv=0 -> 0x04
	msgFlags := berTLV(tagOctetStr, []byte{0x04})
	msgSecurityModel := berInt(tagInteger, 3) // USM

	globalData := berTLV(tagSequence, concat(msgID, msgMaxSize, msgFlags, msgSecurityModel))

	// USM security parameters: all empty for discovery.
	usm := berTLV(tagSequence, concat(
		berTLV(tagOctetStr, nil),  // msgAuthoritativeEngineID
		berInt(tagInteger, 0),     // msgAuthoritativeEngineBoots
		berInt(tagInteger, 0),     // msgAuthoritativeEngineTime
		berTLV(tagOctetStr, nil),  // msgUserName
		berTLV(tagOctetStr, nil),  // msgAuthenticationParameters
		berTLV(tagOctetStr, nil),  // msgPrivacyParameters
	))
	msgSecurityParams := berTLV(tagOctetStr, usm)

	// ScopedPDU: empty contextEngineID/contextName, GetRequest with no varbinds.
	getRequest := berTLV(0xA0, concat(
		berInt(tagInteger, v3DiscoverMsgID), // request-id
		berInt(tagInteger, 0),               // error-status
		berInt(tagInteger, 0),               // error-index
		berTLV(tagSequence, nil),            // varbind list
	))
	scopedPDU := berTLV(tagSequence, concat(
		berTLV(tagOctetStr, nil), // contextEngineID
		berTLV(tagOctetStr, nil), // contextName
		getRequest,
	))

	msg := concat(msgVersion, globalData, msgSecurityParams, scopedPDU)

	return berTLV(tagSNMPv3Msg, msg)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

// parseV3Report extracts msgAuthoritativeEngineID/Boots/Time from a report
// PDU by locating the USM security-parameters OCTET STRING and decoding its
// inner SEQUENCE, tolerating any content around it rather than implementing
// a full ASN.1 walker.
func parseV3Report(data []byte) (engineID []byte, boots, engineTime int, ok bool) {
	// Find the outer SEQUENCE (SNMPv3Message) and walk its direct children
	// far enough to reach msgSecurityParameters (the 3rd top-level element).
	idx := 0

	tag, length, headerLen, ok2 := readTLVHeader(data, idx)
	if !ok2 || tag != tagSNMPv3Msg {
		return nil, 0, 0, false
	}

	body := data[idx+headerLen : idx+headerLen+length]
	pos := 0

	// msgVersion (INTEGER)
	_, l, h, ok3 := readTLVHeader(body, pos)
	if !ok3 {
		return nil, 0, 0, false
	}

	pos += h + l

	// msgGlobalData (SEQUENCE)
	_, l, h, ok3 = readTLVHeader(body, pos)
	if !ok3 {
		return nil, 0, 0, false
	}

	pos += h + l

	// msgSecurityParameters (OCTET STRING wrapping a SEQUENCE)
	secTag, secLen, secHeaderLen, ok3 := readTLVHeader(body, pos)
	if !ok3 || secTag != tagOctetStr {
		return nil, 0, 0, false
	}

	usm := body[pos+secHeaderLen : pos+secHeaderLen+secLen]

	_, seqLen, seqHeaderLen, ok4 := readTLVHeader(usm, 0)
	if !ok4 {
		return nil, 0, 0, false
	}

	inner := usm[seqHeaderLen : seqHeaderLen+seqLen]
	ip := 0

	engTag, engLen, engHeaderLen, ok5 := readTLVHeader(inner, ip)
	if !ok5 || engTag != tagOctetStr {
		return nil, 0, 0, false
	}

	engineID = inner[ip+engHeaderLen : ip+engHeaderLen+engLen]
	ip += engHeaderLen + engLen

	_, bLen, bHeaderLen, ok6 := readTLVHeader(inner, ip)
	if !ok6 {
		return nil, 0, 0, false
	}

	boots = beInt(inner[ip+bHeaderLen : ip+bHeaderLen+bLen])
	ip += bHeaderLen + bLen

	_, tLen, tHeaderLen, ok7 := readTLVHeader(inner, ip)
	if !ok7 {
		return nil, 0, 0, false
	}

	engineTime = beInt(inner[ip+tHeaderLen : ip+tHeaderLen+tLen])

	if len(engineID) == 0 {
		return nil, 0, 0, false
	}

	return engineID, boots, engineTime, true
}

func readTLVHeader(data []byte, offset int) (tag byte, length, headerLen int, ok bool) {
	if offset >= len(data) {
		return 0, 0, 0, false
	}

	tag = data[offset]
	if offset+1 >= len(data) {
		return 0, 0, 0, false
	}

	first := data[offset+1]
	if first&0x80 == 0 {
		return tag, int(first), 2, true
	}

	n := int(first & 0x7f)
	if offset+2+n > len(data) {
		return 0, 0, 0, false
	}

	length = beInt(data[offset+2 : offset+2+n])

	return tag, length, 2 + n, true
}

func beInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}

	return n
}
