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

// Package udpsoap implements the shared UDP SOAP discovery primitive used by
// both the SSDP/WS-Discovery protocol adapters and the UDP-extra sweep
// prober (spec.md §4.4b, §4.8.1, §4.9): bind an ephemeral socket, send a
// unicast request, collect responses until either a max timeout or a
// debounce silence window elapses.
package udpsoap

import (
	"context"
	"net"
	"time"
)

// DebounceWindow is the "finish early after 500ms of silence" window from
// spec.md §4.8.1.
const DebounceWindow = 500 * time.Millisecond

// Response is one datagram received from the target during collection.
type Response struct {
	Data []byte
	From net.Addr
	At   time.Time
}

// Collect implements the collector state machine from spec.md §4.9:
// bound -> sending -> receiving (reset debounce on each message) ->
// closing (after maxTimeout OR debounce-silence). Messages from addresses
// other than targetIP are ignored.
//
// send is invoked once, immediately after the socket is bound, with the
// opened connection.
func Collect(ctx context.Context, targetIP string, targetPort int, maxTimeout time.Duration, send func(conn *net.UDPConn) error) ([]Response, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := send(conn); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(maxTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var responses []Response

	buf := make([]byte, 8192)
	debounceUntil := time.Now().Add(maxTimeout) // no messages yet: only maxTimeout governs

	for {
		now := time.Now()

		readDeadline := deadline
		if debounceUntil.Before(readDeadline) {
			readDeadline = debounceUntil
		}

		if !readDeadline.After(now) {
			return responses, nil
		}

		if err := conn.SetReadDeadline(readDeadline); err != nil {
			return responses, nil
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Timeout (debounce or max) ends collection; any other error
			// also ends collection per spec.md §7 (per-host I/O errors are
			// silent).
			return responses, nil
		}

		if !sameHost(addr, targetIP) {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		responses = append(responses, Response{Data: data, From: addr, At: time.Now()})
		debounceUntil = time.Now().Add(DebounceWindow)
	}
}

func sameHost(addr *net.UDPAddr, targetIP string) bool {
	if addr == nil {
		return false
	}

	return addr.IP.String() == targetIP || addr.IP.Equal(net.ParseIP(targetIP))
}
