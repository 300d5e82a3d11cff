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
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVendorForLongestPrefixMatch(t *testing.T) {
	require.Equal(t, "Cisco", vendorFor("1.3.6.1.4.1.9.1.1208"))
	require.Equal(t, "", vendorFor("1.3.6.1.4.1.99999.1"))
}

func TestBuildV3DiscoveryStartsWithMessageTag(t *testing.T) {
	req := buildV3Discovery()
	require.NotEmpty(t, req)
	require.Equal(t, byte(tagSNMPv3Msg), req[0])
}

func TestBERIntEncoding(t *testing.T) {
	enc := berInt(tagInteger, 0x4A69)
	require.Equal(t, []byte{tagInteger, 2, 0x4A, 0x69}, enc)
}

func TestParseV3ReportRoundTrip(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x04, 'h', 'o', 's', 't'}

	usmInner := concat(
		berTLV(tagOctetStr, engineID),
		berInt(tagInteger, 3),
		berInt(tagInteger, 12345),
	)
	usm := berTLV(tagSequence, usmInner)
	secParams := berTLV(tagOctetStr, usm)

	globalData := berTLV(tagSequence, concat(
		berInt(tagInteger, v3DiscoverMsgID),
		berInt(tagInteger, 65507),
		berTLV(tagOctetStr, []byte{0x04}),
		berInt(tagInteger, 3),
	))

	msg := berTLV(tagSNMPv3Msg, concat(berInt(tagInteger, 3), globalData, secParams))

	gotEngine, boots, engTime, ok := parseV3Report(msg)
	require.True(t, ok)
	require.Equal(t, engineID, gotEngine)
	require.Equal(t, 3, boots)
	require.Equal(t, 12345, engTime)
}

func TestEngineIDDecodeEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		format  byte
		content []byte
		check   func(t *testing.T, fields map[string]interface{})
	}{
		{
			name:    "ipv4",
			format:  engineIDFormatIPv4,
			content: net.ParseIP("10.0.0.1").To4(),
			check: func(t *testing.T, fields map[string]interface{}) {
				require.Equal(t, "ipv4", fields["engine_id_format"])
				require.Equal(t, "10.0.0.1", fields["engine_id_address"])
			},
		},
		{
			name:    "ipv6",
			format:  engineIDFormatIPv6,
			content: net.ParseIP("2001:db8::1").To16(),
			check: func(t *testing.T, fields map[string]interface{}) {
				require.Equal(t, "ipv6", fields["engine_id_format"])
				require.Equal(t, "2001:db8::1", fields["engine_id_address"])
			},
		},
		{
			name:    "mac address",
			format:  engineIDFormatMAC,
			content: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e},
			check: func(t *testing.T, fields map[string]interface{}) {
				require.Equal(t, "mac", fields["engine_id_format"])
				require.Equal(t, "00:1a:2b:3c:4d:5e", fields["engine_id_address"])
			},
		},
		{
			name:    "text",
			format:  engineIDFormatText,
			content: []byte("plant-floor-switch"),
			check: func(t *testing.T, fields map[string]interface{}) {
				require.Equal(t, "text", fields["engine_id_format"])
				require.Equal(t, "plant-floor-switch", fields["engine_id_text"])
			},
		},
		{
			name:    "octets",
			format:  engineIDFormatOctets,
			content: []byte{0xde, 0xad, 0xbe, 0xef},
			check: func(t *testing.T, fields map[string]interface{}) {
				require.Equal(t, "octets", fields["engine_id_format"])
				require.Equal(t, "deadbeef", fields["engine_id_octets"])
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := encodeEngineID(0x00001F88, tc.format, tc.content)
			fields := decodeEngineID(encoded)
			require.Equal(t, uint32(0x00001F88), fields["engine_id_enterprise"])
			tc.check(t, fields)
		})
	}
}

func TestEngineIDDecodeLegacyFormat(t *testing.T) {
	legacy := []byte{0x00, 0x00, 0x1f, 0x88, 0x01, 0x02, 0x03}
	fields := decodeEngineID(legacy)
	require.Equal(t, "legacy", fields["engine_id_format"])
	require.Nil(t, fields["engine_id_enterprise"])
}
