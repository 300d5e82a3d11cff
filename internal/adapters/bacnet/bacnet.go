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

// Package bacnet implements the BACnet/IP adapter (spec.md §4.8.1): a
// Who-Is sent to the target host only (unicast, not a broadcast) and
// collected for 1.5s, falling back to a fixed list of
// common device instances read directly; essential properties are fetched
// via ReadPropertyMultiple, falling back to sequential single reads.
// Globally serialized through internal/bacnetlimiter, since the contention
// is on UDP socket/broadcast resources shared across the whole run.
package bacnet

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/bacnetlimiter"
)

const (
	defaultTimeout = 3 * time.Second
	whoIsWindow    = 1500 * time.Millisecond
)

// BVLC function codes, ANSI/ASHRAE 135 Annex J.
const (
	bvlcTypeBACnetIP    = 0x81
	bvlcOriginalUnicast = 0x0A
)

// APDU PDU types.
const (
	pduUnconfirmedReq = 0x10
	pduComplexAck     = 0x30
)

// Service choices used.
const (
	svcWhoIs               = 8
	svcIAm                 = 0
	svcReadProperty        = 12
	svcReadPropertyMulti   = 14
	svcReadPropertyAckMult = 14
)

// Property identifiers, object types used in essential-property reads.
const (
	propObjectName     = 77
	propVendorID       = 120
	propModelName      = 70
	propFirmwareRev    = 44
	propAppSoftwareVer = 12
	propVendorName     = 121
	objTypeDevice      = 8
)

// fallbackInstances is the fixed list of common device instance numbers
// tried when Who-Is yields no I-Am within the collection window.
var fallbackInstances = []int{4194303, 1, 0, 10, 100, 1000}

// vendorTable is a small static BACnet vendor-ID table (spec.md §3's
// "BACnet vendor-ID table").
var vendorTable = map[int]string{
	0:   "ASHRAE",
	8:   "Johnson Controls",
	10:  "Reliance Electric",
	15:  "Trane",
	24:  "Siemens",
	36:  "Schneider Electric",
	42:  "Honeywell",
	70:  "Kentec",
	73:  "Yokogawa",
	122: "KMC Controls",
}

// Adapter implements adapters.Adapter for BACnet/IP discovery.
type Adapter struct{}

func (Adapter) Name() string { return "bacnet" }

func (a Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	limiter := bacnetlimiter.FromContext(ctx)
	if limiter == nil {
		limiter = bacnetlimiter.New(bacnetlimiter.DefaultCapacity)
	}

	if err := limiter.Acquire(ctx); err != nil {
		return nil, nil
	}
	defer limiter.Release()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	instance, iAmFields, ok := whoIs(conn, timeout)
	if !ok {
		instance, iAmFields, ok = readByFallback(conn, timeout)
		if !ok {
			return nil, nil
		}
	}

	fields := map[string]interface{}{"device_instance": instance}

	for k, v := range iAmFields {
		fields[k] = v
	}

	props := readEssentialProperties(conn, timeout, instance)
	for k, v := range props {
		fields[k] = v
	}

	return []adapters.Metric{{
		Name:      "bacnet_device",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

// whoIs sends a Who-Is unconfirmed request to the target host only (BVLC
// Original-Unicast, not a broadcast) and collects an I-Am for up to
// whoIsWindow.
func whoIs(conn net.Conn, timeout time.Duration) (instance int, fields map[string]interface{}, ok bool) {
	req := buildWhoIs()
	if _, err := conn.Write(req); err != nil {
		return 0, nil, false
	}

	window := whoIsWindow
	if timeout < window {
		window = timeout
	}

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return 0, nil, false
	}

	buf := make([]byte, 1500)

	n, err := conn.Read(buf)
	if err != nil {
		return 0, nil, false
	}

	return parseIAm(buf[:n])
}

// readByFallback reads Object-Name on each candidate instance in
// fallbackInstances until one responds.
func readByFallback(conn net.Conn, timeout time.Duration) (instance int, fields map[string]interface{}, ok bool) {
	for _, inst := range fallbackInstances {
		req := buildReadProperty(inst, propObjectName)
		if _, err := conn.Write(req); err != nil {
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, nil, false
		}

		buf := make([]byte, 1500)

		n, err := conn.Read(buf)
		if err != nil {
			continue
		}

		if name, ok := parseReadPropertyCharString(buf[:n]); ok {
			return inst, map[string]interface{}{"object_name": name}, true
		}
	}

	return 0, nil, false
}

// readEssentialProperties reads Object-Name, Vendor-ID, Model-Name,
// Application-Software-Version, Firmware-Revision and Vendor-Name via
// ReadPropertyMultiple, falling back to sequential single reads if that
// fails.
func readEssentialProperties(conn net.Conn, timeout time.Duration, instance int) map[string]interface{} {
	props := []int{propObjectName, propVendorID, propModelName, propAppSoftwareVer, propFirmwareRev, propVendorName}

	req := buildReadPropertyMultiple(instance, props)
	if _, err := conn.Write(req); err == nil {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err == nil {
			buf := make([]byte, 1500)
			if n, err := conn.Read(buf); err == nil {
				if fields, ok := parseReadPropertyMultiAck(buf[:n]); ok {
					resolveVendor(fields)
					return fields
				}
			}
		}
	}

	fields := map[string]interface{}{}

	for _, p := range props {
		req := buildReadProperty(instance, p)
		if _, err := conn.Write(req); err != nil {
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			continue
		}

		buf := make([]byte, 1500)

		n, err := conn.Read(buf)
		if err != nil {
			continue
		}

		if val, ok := parseReadPropertyCharString(buf[:n]); ok {
			fields[rpmPropertyNames[p]] = val
		}
	}

	resolveVendor(fields)

	return fields
}

func resolveVendor(fields map[string]interface{}) {
	id, ok := fields["vendor_id"].(int)
	if !ok {
		return
	}

	if name, ok := vendorTable[id]; ok {
		fields["vendor"] = name
	}
}

// buildWhoIs constructs an unconfirmed Who-Is request with no instance
// range (discover every device), ANSI/ASHRAE 135 clause 16.10.
func buildWhoIs() []byte {
	apdu := []byte{pduUnconfirmedReq, svcWhoIs}

	return wrapBVLC(apdu)
}

func wrapBVLC(apdu []byte) []byte {
	total := 4 + len(apdu)
	header := []byte{bvlcTypeBACnetIP, bvlcOriginalUnicast, byte(total >> 8), byte(total)}

	return append(header, apdu...)
}

func parseIAm(data []byte) (instance int, fields map[string]interface{}, ok bool) {
	apdu, ok := stripBVLC(data)
	if !ok || len(apdu) < 2 || apdu[0] != pduUnconfirmedReq || apdu[1] != svcIAm {
		return 0, nil, false
	}

	body := apdu[2:]

	objID, n, ok := decodeObjectIdentifier(body)
	if !ok {
		return 0, nil, false
	}

	instance = objID & 0x3FFFFF
	body = body[n:]

	fields = map[string]interface{}{}

	if val, consumed, ok := decodeUnsignedTag(body); ok {
		fields["max_apdu_length"] = val
		body = body[consumed:]
	}

	if val, consumed, ok := decodeEnumeratedTag(body); ok {
		fields["segmentation_supported"] = val
		body = body[consumed:]
	}

	if val, _, ok := decodeUnsignedTag(body); ok {
		fields["vendor_id"] = val
	}

	return instance, fields, true
}

func stripBVLC(data []byte) ([]byte, bool) {
	if len(data) < 4 || data[0] != bvlcTypeBACnetIP {
		return nil, false
	}

	return data[4:], true
}

// decodeObjectIdentifier decodes a BACnet application-tagged
// OBJECT_IDENTIFIER (tag number 12, length 4).
func decodeObjectIdentifier(b []byte) (value, consumed int, ok bool) {
	if len(b) < 5 {
		return 0, 0, false
	}

	if b[0]>>4 != 12 {
		return 0, 0, false
	}

	value = int(binary.BigEndian.Uint32(b[1:5]))

	return value, 5, true
}

func decodeUnsignedTag(b []byte) (value, consumed int, ok bool) {
	if len(b) < 2 {
		return 0, 0, false
	}

	length := int(b[0] & 0x07)
	if length == 0 || len(b) < 1+length {
		return 0, 0, false
	}

	value = beUint(b[1 : 1+length])

	return value, 1 + length, true
}

func decodeEnumeratedTag(b []byte) (value, consumed int, ok bool) {
	return decodeUnsignedTag(b)
}

func beUint(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}

	return v
}

// buildReadProperty constructs a confirmed ReadProperty request for
// object Device,instance / propertyIdentifier.
func buildReadProperty(instance, property int) []byte {
	apdu := []byte{0x00, 0x05, 0x01, svcReadProperty}

	objID := (objTypeDevice << 22) | (instance & 0x3FFFFF)
	apdu = append(apdu, encodeObjectIdentifier(0x0C, objID)...)
	apdu = append(apdu, encodeUnsignedContext(0x19, property)...)

	return wrapBVLC(apdu)
}

// buildReadPropertyMultiple constructs a confirmed ReadPropertyMultiple
// request listing every property in props for the Device object.
func buildReadPropertyMultiple(instance int, props []int) []byte {
	apdu := []byte{0x00, 0x05, 0x01, svcReadPropertyMulti}

	objID := (objTypeDevice << 22) | (instance & 0x3FFFFF)
	apdu = append(apdu, encodeObjectIdentifier(0x0C, objID)...)

	// opening tag 1 (list of property references)
	apdu = append(apdu, 0x1E)

	for _, p := range props {
		apdu = append(apdu, encodeUnsignedContext(0x09, p)...)
	}

	// closing tag 1
	apdu = append(apdu, 0x1F)

	return wrapBVLC(apdu)
}

// encodeObjectIdentifier encodes an application-tagged OBJECT_IDENTIFIER.
// tagNumber is the BACnet tag number (12 for OBJECT_IDENTIFIER), shifted
// into the tag byte's upper nibble; the low 3 bits carry the length
// (always 4) directly, with no separate length byte.
func encodeObjectIdentifier(tagNumber byte, value int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(value))

	return append([]byte{(tagNumber << 4) | 0x04}, b...)
}

func encodeUnsignedContext(contextTag byte, value int) []byte {
	b := minimalBytes(value)

	return append([]byte{(contextTag &^ 0x07) | byte(len(b))}, b...)
}

func minimalBytes(v int) []byte {
	if v == 0 {
		return []byte{0}
	}

	var b []byte

	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}

	return b
}

// parseReadPropertyCharString extracts a single CharacterString property
// value from a ComplexACK ReadProperty reply, tolerating the property's
// trailing NUL/encoding byte and any extension bytes BACnet devices pad
// their strings with.
func parseReadPropertyCharString(data []byte) (string, bool) {
	apdu, ok := stripBVLC(data)
	if !ok || len(apdu) < 3 || apdu[0]&0xF0 != pduComplexAck {
		return "", false
	}

	// Skip to the property-value opening tag (context tag 3, constructed).
	idx := indexOfContextOpeningTag(apdu, 3)
	if idx < 0 || idx+2 >= len(apdu) {
		return "", false
	}

	body := apdu[idx+1:]
	if len(body) < 2 || body[0]>>4 != 7 {
		return "", false
	}

	length := int(body[0] & 0x07)
	if length == 0 || len(body) < 2+length {
		return "", false
	}

	// First byte after the tag/length is the character-set code.
	str := body[2 : 1+length]

	return trimNulls(string(str)), true
}

func indexOfContextOpeningTag(data []byte, tagNum byte) int {
	for i, b := range data {
		if b>>4 == tagNum && b&0x0F == 0x0E {
			return i
		}
	}

	return -1
}

func trimNulls(s string) string {
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}

	return s
}

// rpmPropertyNames maps the property identifiers requested by
// buildReadPropertyMultiple to their output field names.
var rpmPropertyNames = map[int]string{
	propObjectName:     "object_name",
	propVendorID:       "vendor_id",
	propModelName:      "model_name",
	propAppSoftwareVer: "application_software_version",
	propFirmwareRev:    "firmware_revision",
	propVendorName:     "vendor_name",
}

// parseReadPropertyMultiAck walks a ReadPropertyMultiple ComplexACK's
// ReadAccessResult (ANSI/ASHRAE 135 clause 14.? "list of results"): object
// identifier (context tag 0), opening tag 1, then one propertyIdentifier
// (context tag 2) plus either a propertyValue (opening/closing tag 4) or a
// propertyAccessError (opening/closing tag 5) per requested property. A miss
// anywhere degrades to the sequential-read fallback rather than
// propagating wrong data (spec.md §9).
func parseReadPropertyMultiAck(data []byte) (map[string]interface{}, bool) {
	apdu, ok := stripBVLC(data)
	if !ok || len(apdu) < 3 || apdu[0]&0xF0 != pduComplexAck {
		return nil, false
	}

	// ComplexACK header: PDU type+flags, invoke ID, service choice.
	if apdu[2] != svcReadPropertyAckMult {
		return nil, false
	}

	body := apdu[3:]

	// objectIdentifier: context tag 0, primitive, length 4.
	if len(body) < 5 || body[0] != 0x04 {
		return nil, false
	}

	body = body[5:]

	// opening tag 1: list of results.
	if len(body) < 1 || body[0] != 0x1E {
		return nil, false
	}

	body = body[1:]

	fields := map[string]interface{}{}

	for len(body) > 0 && body[0] != 0x1F {
		// propertyIdentifier: context tag 2, primitive.
		if body[0]&0xF8 != 0x20 {
			return nil, false
		}

		propLen := int(body[0] & 0x07)
		if propLen == 0 || len(body) < 1+propLen {
			return nil, false
		}

		propID := beUint(body[1 : 1+propLen])
		body = body[1+propLen:]

		// optional propertyArrayIndex: context tag 3, primitive; skip.
		if len(body) > 0 && body[0]&0xF8 == 0x30 {
			idxLen := int(body[0] & 0x07)
			if idxLen == 0 || len(body) < 1+idxLen {
				return nil, false
			}

			body = body[1+idxLen:]
		}

		if len(body) == 0 {
			return nil, false
		}

		switch body[0] {
		case 0x4E: // opening tag 4: propertyValue
			body = body[1:]

			val, consumed, ok := decodeApplicationValue(body)
			if !ok {
				return nil, false
			}

			body = body[consumed:]

			if len(body) == 0 || body[0] != 0x4F { // closing tag 4
				return nil, false
			}

			body = body[1:]

			if name, known := rpmPropertyNames[propID]; known {
				fields[name] = val
			}
		case 0x5E: // opening tag 5: propertyAccessError, skip to closing tag 5
			body = body[1:]

			for len(body) > 0 && body[0] != 0x5F {
				body = body[1:]
			}

			if len(body) == 0 {
				return nil, false
			}

			body = body[1:]
		default:
			return nil, false
		}
	}

	if len(fields) == 0 {
		return nil, false
	}

	return fields, true
}

// decodeApplicationValue decodes one application-tagged primitive value
// (CharacterString tag 7, Unsigned tag 2, or Enumerated tag 9 — the only
// types the six essential properties this adapter reads can take) from a
// propertyValue payload.
func decodeApplicationValue(b []byte) (value interface{}, consumed int, ok bool) {
	if len(b) < 1 {
		return nil, 0, false
	}

	tagNum := b[0] >> 4
	length := int(b[0] & 0x07)
	header := 1

	if length == 5 {
		if len(b) < 2 {
			return nil, 0, false
		}

		length = int(b[1])
		header = 2
	}

	if len(b) < header+length {
		return nil, 0, false
	}

	payload := b[header : header+length]
	total := header + length

	switch tagNum {
	case 7: // CharacterString: leading character-set byte, then text
		if len(payload) < 1 {
			return nil, 0, false
		}

		return trimNulls(string(payload[1:])), total, true
	case 2, 9: // Unsigned / Enumerated
		return beUint(payload), total, true
	default:
		return nil, 0, false
	}
}
