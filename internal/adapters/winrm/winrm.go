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

// Package winrm implements the WinRM/NTLM probe adapter (spec.md §4.8.1):
// POST an empty NTLM Negotiate to /wsman, parse the WWW-Authenticate
// challenge, and decode the Type 2 message for host and OS identity.
package winrm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 5 * time.Second

// Adapter implements adapters.Adapter for WinRM NTLM-probe discovery.
type Adapter struct{}

func (Adapter) Name() string { return "winrm" }

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

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{}).DialContext,
		},
	}

	negotiate := base64.StdEncoding.EncodeToString(negotiateMessage())

	req, err := http.NewRequestWithContext(dialCtx, http.MethodPost,
		fmt.Sprintf("http://%s:%d/wsman", host, port), bytes.NewReader(nil))
	if err != nil {
		return nil, nil
	}

	req.Header.Set("Authorization", "Negotiate "+negotiate)
	req.Header.Set("Content-Type", "application/soap+xml;charset=UTF-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return nil, nil
	}

	challengeRaw, err := extractChallenge(resp.Header.Values("WWW-Authenticate"))
	if err != nil {
		return nil, nil
	}

	c, ok := parseChallenge(challengeRaw)
	if !ok {
		return nil, nil
	}

	fields := map[string]interface{}{}

	if c.NetBIOSName != "" {
		fields["netbios_name"] = c.NetBIOSName
	}

	if c.NetBIOSDom != "" {
		fields["netbios_domain"] = c.NetBIOSDom
	}

	if c.DNSName != "" {
		fields["dns_name"] = c.DNSName
	}

	if c.DNSDomain != "" {
		fields["dns_domain"] = c.DNSDomain
	}

	if c.OSBuild != 0 {
		fields["os_version"] = fmt.Sprintf("%d.%d", c.OSMajor, c.OSMinor)
		fields["os_build"] = c.OSBuild
	}

	if len(fields) == 0 {
		return nil, nil
	}

	return []adapters.Metric{{
		Name:      "winrm_identity",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}
