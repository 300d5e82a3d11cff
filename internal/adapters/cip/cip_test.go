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

package cip

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

func TestBuildEIPHeaderRoundTrip(t *testing.T) {
	req := buildEIPHeader(cmdRegisterSession, 0x1234, []byte{0x01, 0x00, 0x00, 0x00})
	require.Equal(t, uint16(cmdRegisterSession), binary.LittleEndian.Uint16(req[0:2]))
	require.Equal(t, uint16(4), binary.LittleEndian.Uint16(req[2:4]))
	require.Equal(t, uint32(0x1234), binary.LittleEndian.Uint32(req[4:8]))
}

func TestParseIdentityItemExtractsFields(t *testing.T) {
	item := make([]byte, 33)
	binary.LittleEndian.PutUint16(item[18:20], 0x0001) // vendor
	binary.LittleEndian.PutUint16(item[20:22], 0x000E) // device type
	binary.LittleEndian.PutUint16(item[22:24], 0x0065) // product code
	item[32] = 0

	fields, ok := parseIdentityItem(item)
	require.True(t, ok)
	require.Equal(t, 1, fields["vendor_id"])
	require.Equal(t, 0x65, fields["product_code"])
}

func TestParseIdentityItemWithProductName(t *testing.T) {
	item := make([]byte, 24)
	binary.LittleEndian.PutUint16(item[18:20], 1)
	binary.LittleEndian.PutUint16(item[20:22], 14)
	binary.LittleEndian.PutUint16(item[22:24], 101)
	item = append(item, make([]byte, 4)...) // revision(2) + status(2)
	item = append(item, 0, 0, 0, 0)          // serial number
	item = append(item, 5)                   // name length
	item = append(item, []byte("PLC-1")...)

	fields, ok := parseIdentityItem(item)
	require.True(t, ok)
	require.Equal(t, "PLC-1", fields["product_name"])
}

// serveEIPSession accepts one TCP connection and answers RegisterSession,
// then a SendRRData request with a canned Get_Attributes_All reply.
func serveEIPSession(t *testing.T) int {
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

		header := make([]byte, eipHeaderLen)
		if _, err := readFull(conn, header); err != nil {
			return
		}

		length := binary.LittleEndian.Uint16(header[2:4])
		_ = make([]byte, length) // RegisterSession has a 4-byte body, discard

		if length > 0 {
			body := make([]byte, length)
			if _, err := readFull(conn, body); err != nil {
				return
			}
		}

		resp := buildEIPHeader(cmdRegisterSession, 0xAAAA, []byte{0x01, 0x00, 0x00, 0x00})
		if _, err := conn.Write(resp); err != nil {
			return
		}

		// SendRRData request.
		header2 := make([]byte, eipHeaderLen)
		if _, err := readFull(conn, header2); err != nil {
			return
		}

		length2 := binary.LittleEndian.Uint16(header2[2:4])
		body2 := make([]byte, length2)
		if _, err := readFull(conn, body2); err != nil {
			return
		}

		cipReply := []byte{0x81, 0x00, 0x00, 0x00}
		idBody := make([]byte, 10)
		binary.LittleEndian.PutUint16(idBody[0:2], 0x0001)
		binary.LittleEndian.PutUint16(idBody[2:4], 0x000E)
		binary.LittleEndian.PutUint16(idBody[4:6], 0x0065)
		cipReply = append(cipReply, idBody...)

		cpf := make([]byte, 0, 32)
		cpf = append(cpf, 0, 0, 0, 0) // interface handle
		cpf = append(cpf, 0, 0)       // timeout
		cpf = append(cpf, 0x02, 0x00) // item count
		cpf = append(cpf, 0x00, 0x00, 0x00, 0x00) // null address item
		cpf = append(cpf, 0xB2, 0x00)
		dataLen := make([]byte, 2)
		binary.LittleEndian.PutUint16(dataLen, uint16(len(cipReply)))
		cpf = append(cpf, dataLen...)
		cpf = append(cpf, cipReply...)

		resp2 := buildEIPHeader(cmdSendRRData, 0xAAAA, cpf)
		_, _ = conn.Write(resp2)
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestDiscoverTCPParsesIdentity(t *testing.T) {
	port := serveEIPSession(t)

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", port, adapters.Options{Timeout: 1 * time.Second})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, 1, metrics[0].Fields["vendor_id"])
	require.Equal(t, 0x65, metrics[0].Fields["product_code"])
}

func TestDiscoverNoServerReturnsEmpty(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", 1, adapters.Options{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
