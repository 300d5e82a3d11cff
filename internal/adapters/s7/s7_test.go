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

package s7

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

func TestFirstPrintableRunFindsLongRun(t *testing.T) {
	payload := append(bytes.Repeat([]byte{0x00}, 5), []byte("CPU 1215C DC/DC/DC-MODULE-XY")...)
	payload = append(payload, 0x00, 0x00)

	got := firstPrintableRun(payload, 20)
	require.Contains(t, got, "CPU 1215C")
}

func readTPKT(conn net.Conn) ([]byte, bool) {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return nil, false
	}

	length := int(binary.BigEndian.Uint16(header[2:4]))
	rest := make([]byte, length-4)

	if _, err := readFull(conn, rest); err != nil {
		return nil, false
	}

	return rest, true
}

// serveS7 accepts a COTP CR only when the calling TSAP's second byte equals
// acceptRack<<5|acceptSlot (any other rack/slot attempt has its connection
// closed), answers the CR/setup handshake, then replies to SZL reads with a
// payload containing a long printable run.
func serveS7(t *testing.T, acceptRack, acceptSlot int) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handle := func(conn net.Conn) {
		defer conn.Close()

		for {
			cotp, ok := readTPKT(conn)
			if !ok {
				return
			}

			if len(cotp) < 2 {
				return
			}

			switch cotp[1] {
			case 0xE0: // CR
				wantCalling := byte((acceptRack << 5) | acceptSlot)
				if len(cotp) < 11 || cotp[10] != wantCalling {
					return
				}

				cc := []byte{0x05, 0xD0, 0x00, 0x00, 0x00, 0x00, 0x00}
				_, _ = conn.Write(wrapTPKT(cc))
			case 0xF0: // DT
				if len(cotp) < 4 {
					return
				}

				if cotp[4] == 0x01 { // setup communication job
					resp := append([]byte{0x02, 0xF0, 0x80}, []byte{0x32, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x08, 0x00, 0x00}...)
					resp = append(resp, []byte{0xF0, 0x00, 0x00, 0x01, 0x00, 0x01, 0x01, 0xE0}...)
					_, _ = conn.Write(wrapTPKT(resp))

					continue
				}

				// SZL read: respond with a payload holding a long printable run.
				payload := make([]byte, 20)
				payload = append(payload, bytes.Repeat([]byte("Z"), 24)...)

				resp := append([]byte{0x02, 0xF0, 0x80}, []byte{0x32, 0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0x08}...)
				dataLen := make([]byte, 2)
				binary.BigEndian.PutUint16(dataLen, uint16(len(payload)))
				resp = append(resp, dataLen...)
				resp = append(resp, []byte{0x00, 0x01, 0x12, 0x04, 0x11, 0x44, 0x01, 0x00}...)
				resp = append(resp, payload...)

				_, _ = conn.Write(wrapTPKT(resp))
			}
		}
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go handle(conn)
		}
	}()

	t.Cleanup(func() { ln.Close() })

	return ln.Addr().(*net.TCPAddr).Port
}

func TestDiscoverTriesRackSlotOrderAndParsesSZL(t *testing.T) {
	port := serveS7(t, 0, 0)

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", port, adapters.Options{Timeout: 1 * time.Second})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, 0, metrics[0].Fields["rack"])
	require.Equal(t, 0, metrics[0].Fields["slot"])
	require.Equal(t, 2, metrics[0].Fields["attempt_count"])
}

func TestDiscoverNoServerReturnsEmpty(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", 1, adapters.Options{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
