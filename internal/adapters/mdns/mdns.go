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

// Package mdns implements the mDNS adapter (spec.md §4.8.1): staggered PTR
// queries over unicast UDP 5353 built with miekg/dns, plus
// Chromecast/AirPlay enrichment via HTTP probes on their well-known ports.
// Only PTR questions are sent; SRV/TXT/A records are taken from whatever the
// replies carry in their answer and additional sections.
package mdns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const (
	defaultTimeout = 3 * time.Second
	mdnsPort       = 5353
)

// services is the staggered query list from spec.md §4.8.1: well-known
// service-discovery PTR names, queried one at a time with small gaps so a
// single UDP burst does not drown in retransmits.
var services = []string{
	"_services._dns-sd._udp.local.",
	"_airplay._tcp.local.",
	"_googlecast._tcp.local.",
	"_ipp._tcp.local.",
	"_http._tcp.local.",
	"_printer._tcp.local.",
	"_ssh._tcp.local.",
}

const staggerDelay = 50 * time.Millisecond

// Adapter implements adapters.Adapter for mDNS discovery.
type Adapter struct{}

func (Adapter) Name() string { return "mdns" }

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

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil
	}

	records := map[string][]dns.RR{}

	for i, svc := range services {
		if i > 0 {
			time.Sleep(staggerDelay)
		}

		m := new(dns.Msg)
		m.SetQuestion(svc, dns.TypePTR)
		m.RecursionDesired = false

		packed, err := m.Pack()
		if err != nil {
			continue
		}

		if _, err := conn.Write(packed); err != nil {
			continue
		}

		buf := make([]byte, 8192)

		n, err := conn.Read(buf)
		if err != nil {
			continue
		}

		reply := new(dns.Msg)
		if err := reply.Unpack(buf[:n]); err != nil {
			continue
		}

		records[svc] = append(records[svc], reply.Answer...)
		records[svc] = append(records[svc], reply.Extra...)
	}

	if len(records) == 0 {
		return nil, nil
	}

	fields := map[string]interface{}{}
	discovered := []string{}

	for svc, rrs := range records {
		for _, rr := range rrs {
			switch v := rr.(type) {
			case *dns.PTR:
				discovered = append(discovered, strings.TrimSuffix(v.Ptr, "."))
			case *dns.SRV:
				fields["srv_target_"+svcKey(svc)] = v.Target
				fields["srv_port_"+svcKey(svc)] = v.Port
			case *dns.TXT:
				fields["txt_"+svcKey(svc)] = strings.Join(v.Txt, ";")
			case *dns.A:
				fields["a_"+svcKey(svc)] = v.A.String()
			}
		}
	}

	if len(discovered) > 0 {
		fields["services"] = discovered
	}

	enrichChromecastAirplay(ctx, host, timeout, fields)

	return []adapters.Metric{{
		Name:      "mdns_device",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

func svcKey(svc string) string {
	return strings.Trim(strings.SplitN(svc, ".", 2)[0], "_")
}

// enrichChromecastAirplay sends a small unauthenticated HTTP GET to the
// Chromecast and AirPlay status endpoints on their well-known ports. It runs
// for every host that answered an mDNS query, whether or not a
// Chromecast/AirPlay service was advertised.
func enrichChromecastAirplay(ctx context.Context, host string, timeout time.Duration, fields map[string]interface{}) {
	probes := []struct {
		port int
		path string
		key  string
	}{
		{8008, "/setup/eureka_info", "chromecast_info"},
		{8443, "/setup/eureka_info", "chromecast_info"},
		{7000, "/server-info", "airplay_info"},
		{5000, "/server-info", "airplay_info"},
	}

	client := &http.Client{Timeout: timeout}

	for _, p := range probes {
		if _, ok := fields[p.key]; ok {
			continue
		}

		dialCtx, cancel := context.WithTimeout(ctx, timeout)

		req, err := http.NewRequestWithContext(dialCtx, http.MethodGet,
			fmt.Sprintf("http://%s:%d%s", host, p.port, p.path), nil)
		if err != nil {
			cancel()
			continue
		}

		resp, err := client.Do(req)
		cancel()

		if err != nil {
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		resp.Body.Close()

		var payload map[string]interface{}
		if json.Unmarshal(body, &payload) == nil && len(payload) > 0 {
			fields[p.key] = payload
		}
	}
}
