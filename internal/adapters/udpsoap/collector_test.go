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

package udpsoap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCollectDebounceResolvesEarly reproduces spec.md §8's boundary case:
// responses at t=0,200,400ms with no further traffic resolve at ~900ms
// (400+500), not at the 8s max timeout.
func TestCollectDebounceResolvesEarly(t *testing.T) {
	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer server.Close()

	start := time.Now()

	go func() {
		buf := make([]byte, 1024)

		_, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}

		for _, at := range []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond} {
			wait := at - time.Since(start)
			if wait > 0 {
				time.Sleep(wait)
			}

			_, _ = server.WriteToUDP([]byte("pong"), addr)
		}
	}()

	responses, err := Collect(context.Background(), "127.0.0.1", server.LocalAddr().(*net.UDPAddr).Port, 8*time.Second, func(conn *net.UDPConn) error {
		_, err := conn.WriteToUDP([]byte("ping"), server.LocalAddr().(*net.UDPAddr))
		return err
	})

	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, responses, 3)
	require.Less(t, elapsed, 2*time.Second, "should resolve via debounce, not the 8s max timeout")
}

func TestSameHostIgnoresOtherAddresses(t *testing.T) {
	target := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 1900}
	stranger := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 99), Port: 1900}

	require.True(t, sameHost(target, "192.0.2.10"))
	require.False(t, sameHost(stranger, "192.0.2.10"))
	require.False(t, sameHost(nil, "192.0.2.10"))
}

func TestCollectResolvesAtMaxTimeoutWithNoReplies(t *testing.T) {
	target, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer target.Close()

	start := time.Now()

	responses, err := Collect(context.Background(), "127.0.0.1", 0, 150*time.Millisecond, func(conn *net.UDPConn) error {
		_, sendErr := conn.WriteToUDP([]byte("ping"), target.LocalAddr().(*net.UDPAddr))
		return sendErr
	})

	require.NoError(t, err)
	require.Empty(t, responses)
	require.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}
