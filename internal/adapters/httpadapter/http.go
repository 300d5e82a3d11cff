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

// Package httpadapter implements the HTTP text-banner adapter (spec.md
// §4.8.1): connect, write a minimal request, read up to a 10KiB body cap,
// parse headers, and capture TLS peer-certificate fields on 443/8443.
package httpadapter

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const (
	defaultTimeout = 5 * time.Second
	bodyCap        = 10 * 1024
)

// Adapter implements adapters.Adapter for plain and TLS HTTP banners.
type Adapter struct{}

func (Adapter) Name() string { return "http" }

func (a Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	if opts.Registry != nil && port == 9100 && opts.Registry.ShouldSkipPort9100(host) {
		return nil, nil
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	addr := fmt.Sprintf("%s:%d", host, port)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	fields := map[string]interface{}{}

	if port == 443 || port == 8443 {
		tlsConn := tls.Client(conn, &tls.Config{InsecureSkipVerify: true}) //nolint:gosec // discovery only, never trusts the payload
		_ = tlsConn.SetDeadline(time.Now().Add(timeout))

		if err := tlsConn.Handshake(); err == nil {
			addCertFields(fields, tlsConn.ConnectionState())
			conn = net.Conn(tlsConn)
		}
	}

	_ = conn.SetDeadline(time.Now().Add(timeout))

	req := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\nUser-Agent: subnetradar\r\nConnection: close\r\n\r\n", host)
	if _, err := conn.Write([]byte(req)); err != nil {
		return nil, nil
	}

	limited := &capReader{r: conn, max: bodyCap}
	resp, err := http.ReadResponse(bufio.NewReader(limited), nil)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	fields["status_code"] = resp.StatusCode
	fields["server"] = resp.Header.Get("Server")

	for k, v := range resp.Header {
		if len(v) > 0 {
			fields["header_"+k] = v[0]
		}
	}

	return []adapters.Metric{{
		Name:      "http_banner",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

func addCertFields(fields map[string]interface{}, state tls.ConnectionState) {
	if len(state.PeerCertificates) == 0 {
		return
	}

	cert := state.PeerCertificates[0]
	fields["tls_subject"] = cert.Subject.String()
	fields["tls_issuer"] = cert.Issuer.String()
	fields["tls_not_after"] = cert.NotAfter.Format(time.RFC3339)
	fields["tls_dns_names"] = cert.DNSNames
}

// capReader enforces a hard read cap on the underlying connection, matching
// spec.md §4.8.1's "10 KiB body cap" for HTTP.
type capReader struct {
	r   net.Conn
	max int
	n   int
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.n >= c.max {
		return 0, fmt.Errorf("http response exceeded %d byte cap", c.max)
	}

	if len(p) > c.max-c.n {
		p = p[:c.max-c.n]
	}

	n, err := c.r.Read(p)
	c.n += n

	return n, err
}
