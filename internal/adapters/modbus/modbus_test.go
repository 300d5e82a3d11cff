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

package modbus

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

func TestBuildReadDeviceIDRequestFrame(t *testing.T) {
	req := buildReadDeviceIDRequest(1)
	require.Equal(t, byte(1), req[6])
	require.Equal(t, byte(fcReadDeviceID), req[7])
	require.Equal(t, byte(mei43ReadDeviceID), req[8])
}

func TestParseReadDeviceIDResponseExtractsFields(t *testing.T) {
	body := []byte{fcReadDeviceID, mei43ReadDeviceID, readDevIDCodeBasic, 0x00, 0x00, 0x00, 0x02}
	body = append(body, objVendorName, 4)
	body = append(body, []byte("Acme")...)
	body = append(body, objProductName, 3)
	body = append(body, []byte("PLC")...)

	fields, ok := parseReadDeviceIDResponse(body)
	require.True(t, ok)
	require.Equal(t, "Acme", fields["vendor_name"])
	require.Equal(t, "PLC", fields["product_name"])
}

func serveModbus(t *testing.T, unitThatReplies byte) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()

		for {
			header := make([]byte, 7)
			if _, err := readFull(conn, header); err != nil {
				return
			}

			length := int(binary.BigEndian.Uint16(header[4:6]))
			pdu := make([]byte, length-1)

			if _, err := readFull(conn, pdu); err != nil {
				return
			}

			unit := header[6]
			if unit != unitThatReplies {
				continue
			}

			respBody := []byte{fcReadDeviceID, mei43ReadDeviceID, readDevIDCodeBasic, 0x00, 0x00, 0x00, 0x01}
			respBody = append(respBody, objVendorName, 5)
			respBody = append(respBody, []byte("Vendr")...)

			resp := make([]byte, 7)
			binary.BigEndian.PutUint16(resp[0:2], binary.BigEndian.Uint16(header[0:2]))
			binary.BigEndian.PutUint16(resp[4:6], uint16(len(respBody)+1))
			resp[6] = unit
			resp = append(resp, respBody...)

			_, _ = conn.Write(resp)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestDiscoverFallsThroughUnitIDs(t *testing.T) {
	port := serveModbus(t, 255)

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", port, adapters.Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, "Vendr", metrics[0].Fields["vendor_name"])
	require.Equal(t, 255, metrics[0].Fields["unit_id"])
}

func TestDiscoverNoServerReturnsEmpty(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", 1, adapters.Options{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
