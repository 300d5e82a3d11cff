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

package mdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

func TestSvcKeyStripsLeadingUnderscoreAndProtocol(t *testing.T) {
	require.Equal(t, "airplay", svcKey("_airplay._tcp.local."))
}

func TestDiscoverParsesPTRReplies(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	port := conn.LocalAddr().(*net.UDPAddr).Port

	go func() {
		defer conn.Close()

		buf := make([]byte, 2048)

		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			req := new(dns.Msg)
			if req.Unpack(buf[:n]) != nil || len(req.Question) == 0 {
				continue
			}

			reply := new(dns.Msg)
			reply.SetReply(req)
			reply.Answer = append(reply.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypePTR, Class: dns.ClassINET},
				Ptr: "device._ipp._tcp.local.",
			})

			packed, err := reply.Pack()
			if err != nil {
				continue
			}

			_, _ = conn.WriteToUDP(packed, raddr)
		}
	}()

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", port, adapters.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.NotEmpty(t, metrics[0].Fields["services"])
}

func TestDiscoverNoReplyReturnsEmpty(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", 1, adapters.Options{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
