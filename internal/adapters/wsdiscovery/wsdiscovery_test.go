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

package wsdiscovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

const sampleProbeMatch = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <wsd:ProbeMatches xmlns:wsd="http://schemas.xmlsoap.org/ws/2005/04/discovery">
      <wsd:ProbeMatch>
        <wsa:EndpointReference xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing">
          <wsa:Address>urn:uuid:1234</wsa:Address>
        </wsa:EndpointReference>
        <wsd:Types>dn:NetworkVideoTransmitter</wsd:Types>
        <wsd:XAddrs>http://192.0.2.9/onvif/device_service</wsd:XAddrs>
      </wsd:ProbeMatch>
    </wsd:ProbeMatches>
  </soap:Body>
</soap:Envelope>`

func TestClassifyDetectsONVIFCamera(t *testing.T) {
	require.Equal(t, "onvif_camera", classify("dn:NetworkVideoTransmitter"))
	require.Equal(t, "printer", classify("wsdp:Printer"))
	require.Equal(t, "", classify("wsdp:Device"))
}

func TestDiscoverParsesProbeMatch(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	port := conn.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buf := make([]byte, 8192)

		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil || n == 0 {
			return
		}

		defer conn.Close()
		_, _ = conn.WriteToUDP([]byte(sampleProbeMatch), raddr)
	}()

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", port, adapters.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, "onvif_camera", metrics[0].Fields["device_class"])
}

func TestDiscoverNoReplyReturnsEmpty(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "127.0.0.1", 1, adapters.Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
