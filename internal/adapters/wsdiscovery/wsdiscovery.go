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

// Package wsdiscovery implements the WS-Discovery adapter (spec.md
// §4.8.1): a unicast SOAP Probe over internal/adapters/udpsoap, parsing the
// ProbeMatch envelope's Types token to distinguish ONVIF cameras, printers
// and scanners.
package wsdiscovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/adapters/udpsoap"
)

const defaultTimeout = 3 * time.Second

// DefaultPort is the well-known WS-Discovery multicast/unicast port.
const DefaultPort = 3702

// Adapter implements adapters.Adapter for WS-Discovery.
type Adapter struct{}

func (Adapter) Name() string { return "wsdiscovery" }

func (Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	msgID := "urn:uuid:" + randomUUID()

	responses, err := udpsoap.Collect(ctx, host, port, timeout, func(conn *net.UDPConn) error {
		req := buildProbe(msgID)
		_, err := conn.WriteToUDP(req, &net.UDPAddr{IP: net.ParseIP(host), Port: port})

		return err
	})
	if err != nil || len(responses) == 0 {
		return nil, nil
	}

	metrics := make([]adapters.Metric, 0, len(responses))
	now := time.Now()

	for _, r := range responses {
		match, ok := parseProbeMatch(r.Data)
		if !ok {
			continue
		}

		fields := map[string]interface{}{
			"endpoint_address": match.EndpointAddress,
			"types":            match.Types,
			"xaddrs":           match.XAddrs,
		}

		if kind := classify(match.Types); kind != "" {
			fields["device_class"] = kind
		}

		metrics = append(metrics, adapters.Metric{
			Name:      "wsdiscovery_device",
			Fields:    fields,
			Tags:      map[string]string{"host": host},
			Timestamp: now,
		})
	}

	if len(metrics) == 0 {
		return nil, nil
	}

	return metrics, nil
}

// Probe is the unicast primitive internal/scan's UDP-extra sweep reuses
// (spec.md §4.4b).
func Probe(ctx context.Context, host string) (bool, map[string]interface{}) {
	metrics, err := (Adapter{}).Discover(ctx, host, DefaultPort, adapters.Options{})
	if err != nil || len(metrics) == 0 {
		return false, nil
	}

	return true, adapters.FlattenMetrics(metrics)
}

func randomUUID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80

	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex.EncodeToString(b[0:4]), hex.EncodeToString(b[4:6]),
		hex.EncodeToString(b[6:8]), hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]))
}

// buildProbe constructs a WS-Discovery SOAP Probe envelope addressed to the
// ad-hoc discovery proxy, per spec.md §4.8.1.
func buildProbe(msgID string) []byte {
	envelope := `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"
  xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:wsd="http://schemas.xmlsoap.org/ws/2005/04/discovery">
  <soap:Header>
    <wsa:To>urn:schemas-xmlsoap-org:ws:2005:04:discovery</wsa:To>
    <wsa:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</wsa:Action>
    <wsa:MessageID>` + msgID + `</wsa:MessageID>
  </soap:Header>
  <soap:Body>
    <wsd:Probe>
      <wsd:Types>dn:NetworkVideoTransmitter</wsd:Types>
    </wsd:Probe>
  </soap:Body>
</soap:Envelope>`

	return []byte(envelope)
}

// probeMatchEnvelope mirrors the subset of a WS-Discovery ProbeMatch SOAP
// body fields the adapter extracts.
type probeMatchEnvelope struct {
	Body struct {
		ProbeMatches struct {
			ProbeMatch struct {
				EndpointReference struct {
					Address string `xml:"Address"`
				} `xml:"EndpointReference"`
				Types  string `xml:"Types"`
				XAddrs string `xml:"XAddrs"`
			} `xml:"ProbeMatch"`
		} `xml:"ProbeMatches"`
	} `xml:"Body"`
}

type probeMatch struct {
	EndpointAddress string
	Types           string
	XAddrs          string
}

func parseProbeMatch(data []byte) (probeMatch, bool) {
	var env probeMatchEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return probeMatch{}, false
	}

	pm := env.Body.ProbeMatches.ProbeMatch
	if pm.Types == "" && pm.XAddrs == "" {
		return probeMatch{}, false
	}

	return probeMatch{
		EndpointAddress: pm.EndpointReference.Address,
		Types:           pm.Types,
		XAddrs:          pm.XAddrs,
	}, true
}

// classify maps a WS-Discovery Types token to a coarse device class, per
// spec.md §4.8.1's "ONVIF/printer/scanner Types token" distinction.
func classify(types string) string {
	lower := strings.ToLower(types)

	switch {
	case strings.Contains(lower, "networkvideotransmitter"):
		return "onvif_camera"
	case strings.Contains(lower, "printer"):
		return "printer"
	case strings.Contains(lower, "scanner"):
		return "scanner"
	default:
		return ""
	}
}
