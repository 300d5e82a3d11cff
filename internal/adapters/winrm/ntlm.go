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

package winrm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrNoChallenge is returned when a WWW-Authenticate header carries no
// NTLM challenge blob.
var ErrNoChallenge = errors.New("winrm: no NTLM challenge in response")

// negotiateMessage is the NTLM Type 1 message, spec.md §4.8.1's "empty
// Negotiate" probe: minimal flags, no domain/workstation.
func negotiateMessage() []byte {
	msg := make([]byte, 32)
	copy(msg[0:8], []byte("NTLMSSP\x00"))
	binary.LittleEndian.PutUint32(msg[8:12], 1) // type 1
	binary.LittleEndian.PutUint32(msg[12:16], 0x00008207)

	return msg
}

// Challenge holds the fields extracted from an NTLM Type 2 message.
type Challenge struct {
	TargetName   string
	NetBIOSName  string
	NetBIOSDom   string
	DNSName      string
	DNSDomain    string
	OSMajor      byte
	OSMinor      byte
	OSBuild      uint16
}

// extractChallenge pulls the base64 NTLM blob out of a WWW-Authenticate
// header value such as "Negotiate <base64>" or "NTLM <base64>".
func extractChallenge(headerValues []string) ([]byte, error) {
	for _, v := range headerValues {
		for _, scheme := range []string{"Negotiate ", "NTLM "} {
			if strings.HasPrefix(v, scheme) {
				blob := strings.TrimPrefix(v, scheme)

				decoded, err := base64.StdEncoding.DecodeString(blob)
				if err != nil {
					continue
				}

				if len(decoded) >= 12 && string(decoded[0:7]) == "NTLMSSP" {
					return decoded, nil
				}
			}
		}
	}

	return nil, ErrNoChallenge
}

// parseChallenge decodes an NTLM Type 2 message's target-info AV_PAIR list
// (MS-NLMP §2.2.2.1) for NetBIOS/DNS computer and domain names, and the
// trailing OS version block when present.
func parseChallenge(msg []byte) (Challenge, bool) {
	if len(msg) < 32 || string(msg[0:7]) != "NTLMSSP" {
		return Challenge{}, false
	}

	msgType := binary.LittleEndian.Uint32(msg[8:12])
	if msgType != 2 {
		return Challenge{}, false
	}

	var c Challenge

	targetLen := binary.LittleEndian.Uint16(msg[12:14])
	targetOff := binary.LittleEndian.Uint32(msg[16:20])

	if int(targetOff+uint32(targetLen)) <= len(msg) {
		c.TargetName = decodeUTF16LE(msg[targetOff : targetOff+uint32(targetLen)])
	}

	flags := binary.LittleEndian.Uint32(msg[20:24])
	const negTargetInfo = 0x00800000

	if flags&negTargetInfo != 0 && len(msg) >= 48 {
		infoLen := binary.LittleEndian.Uint16(msg[40:42])
		infoOff := binary.LittleEndian.Uint32(msg[44:48])

		if int(infoOff+uint32(infoLen)) <= len(msg) {
			parseAVPairs(msg[infoOff:infoOff+uint32(infoLen)], &c)
		}
	}

	if flags&0x00000002 != 0 && len(msg) >= 56 {
		// NTLMSSP_NEGOTIATE_OEM, skip: callers only care about target-info.
		_ = msg
	}

	const negVersion = 0x02000000
	if flags&negVersion != 0 && len(msg) >= 56 {
		ver := msg[48:56]
		if ver[0] != 0 || ver[1] != 0 {
			c.OSMajor = ver[0]
			c.OSMinor = ver[1]
			c.OSBuild = binary.LittleEndian.Uint16(ver[2:4])
		}
	}

	return c, true
}

// AV_PAIR IDs from MS-NLMP §2.2.2.1.
const (
	avEOL = iota
	avNetBIOSCompName
	avNetBIOSDomName
	avDNSCompName
	avDNSDomName
)

func parseAVPairs(data []byte, c *Challenge) {
	i := 0
	for i+4 <= len(data) {
		id := binary.LittleEndian.Uint16(data[i : i+2])
		length := binary.LittleEndian.Uint16(data[i+2 : i+4])
		i += 4

		if id == avEOL {
			break
		}

		if i+int(length) > len(data) {
			break
		}

		val := decodeUTF16LE(data[i : i+int(length)])

		switch id {
		case avNetBIOSCompName:
			c.NetBIOSName = val
		case avNetBIOSDomName:
			c.NetBIOSDom = val
		case avDNSCompName:
			c.DNSName = val
		case avDNSDomName:
			c.DNSDomain = val
		}

		i += int(length)
	}
}

func decodeUTF16LE(b []byte) string {
	var sb strings.Builder

	for i := 0; i+1 < len(b); i += 2 {
		r := rune(binary.LittleEndian.Uint16(b[i : i+2]))
		sb.WriteRune(r)
	}

	return sb.String()
}
