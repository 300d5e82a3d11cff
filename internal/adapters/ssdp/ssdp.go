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

// Package ssdp implements the SSDP/UPnP adapter (spec.md §4.8.1): a unicast
// M-SEARCH over internal/adapters/udpsoap, followed by a LOCATION fetch and
// device-description XML traversal for friendlyName/manufacturer/modelName.
package ssdp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/adapters/udpsoap"
)

const (
	defaultTimeout  = 3 * time.Second
	descriptionCap  = 32 * 1024
	searchTargetAll = "ssdp:all"
)

// Adapter implements adapters.Adapter for SSDP/UPnP discovery.
type Adapter struct{}

func (Adapter) Name() string { return "ssdp" }

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

	responses, err := udpsoap.Collect(ctx, host, port, timeout, func(conn *net.UDPConn) error {
		req := buildSearch(host, port, timeout)
		_, err := conn.WriteToUDP(req, &net.UDPAddr{IP: net.ParseIP(host), Port: port})

		return err
	})
	if err != nil || len(responses) == 0 {
		return nil, nil
	}

	metrics := make([]adapters.Metric, 0, len(responses))
	now := time.Now()

	for _, r := range responses {
		headers := parseSSDPHeaders(r.Data)
		if len(headers) == 0 {
			continue
		}

		fields := map[string]interface{}{}
		for k, v := range headers {
			fields[strings.ToLower(k)] = v
		}

		if loc, ok := headers["LOCATION"]; ok {
			if desc, err := fetchDescription(ctx, loc, timeout); err == nil {
				for k, v := range desc {
					fields[k] = v
				}
			}
		}

		metrics = append(metrics, adapters.Metric{
			Name:      "ssdp_device",
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
// (spec.md §4.4b): send one M-SEARCH to host:1900 and report whether any
// reply arrived.
func Probe(ctx context.Context, host string) (bool, map[string]interface{}) {
	metrics, err := (Adapter{}).Discover(ctx, host, DefaultPort, adapters.Options{})
	if err != nil || len(metrics) == 0 {
		return false, nil
	}

	return true, adapters.FlattenMetrics(metrics)
}

// DefaultPort is the well-known SSDP multicast/unicast port.
const DefaultPort = 1900

// buildSearch constructs the HTTP-over-UDP M-SEARCH request from spec.md
// §4.8.1. go-ssdp's Search() only performs multicast-wide queries and
// cannot target one host, so the request is hand-built here per the
// targeted-unicast primitive the adapter contract and the UDP-extra sweep
// both require; the wire format follows the M-SEARCH construction used by
// other retrieved SSDP scanners.
func buildSearch(host string, port int, timeout time.Duration) []byte {
	mx := int(timeout.Seconds())
	if mx < 1 {
		mx = 1
	}

	req := fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s:%d\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n\r\n", host, port, mx, searchTargetAll)

	return []byte(req)
}

func parseSSDPHeaders(data []byte) map[string]string {
	lines := strings.Split(string(data), "\r\n")
	headers := make(map[string]string)

	for i, line := range lines {
		if i == 0 {
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		headers[key] = val
	}

	return headers
}

// deviceDescription mirrors the subset of a UPnP device-description document
// (urn:schemas-upnp-org:device-1-0) the adapter extracts.
type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		ModelNumber  string `xml:"modelNumber"`
		SerialNumber string `xml:"serialNumber"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

func fetchDescription(ctx context.Context, location string, timeout time.Duration) (map[string]interface{}, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dialCtx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var desc deviceDescription
	if err := xml.NewDecoder(io.LimitReader(resp.Body, descriptionCap)).Decode(&desc); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}

	if desc.Device.FriendlyName != "" {
		fields["friendly_name"] = desc.Device.FriendlyName
	}

	if desc.Device.Manufacturer != "" {
		fields["manufacturer"] = desc.Device.Manufacturer
	}

	if desc.Device.ModelName != "" {
		fields["model_name"] = desc.Device.ModelName
	}

	if desc.Device.ModelNumber != "" {
		fields["model_number"] = desc.Device.ModelNumber
	}

	if desc.Device.SerialNumber != "" {
		fields["serial_number"] = desc.Device.SerialNumber
	}

	if desc.Device.DeviceType != "" {
		fields["device_type"] = desc.Device.DeviceType
	}

	return fields, nil
}
