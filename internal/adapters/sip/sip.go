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

// Package sip implements the SIP OPTIONS probe adapter (spec.md §4.8.1):
// send a SIP OPTIONS request over UDP with randomized Via branch/From
// tag/Call-ID, then parse the status line and header block of the reply.
package sip

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 3 * time.Second

// Adapter implements adapters.Adapter for SIP OPTIONS discovery.
type Adapter struct{}

func (Adapter) Name() string { return "sip" }

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

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "udp", addr)
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	localAddr, _ := conn.LocalAddr().(*net.UDPAddr)
	localIP, localPort := host, 5060

	if localAddr != nil {
		localIP = localAddr.IP.String()
		localPort = localAddr.Port
	}

	req := buildOptions(host, port, localIP, localPort)

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil
	}

	if _, err := conn.Write(req); err != nil {
		return nil, nil
	}

	buf := make([]byte, 4096)

	n, err := conn.Read(buf)
	if err != nil {
		return nil, nil
	}

	fields, ok := parseResponse(buf[:n])
	if !ok {
		return nil, nil
	}

	return []adapters.Metric{{
		Name:      "sip_options",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

func randomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return hex.EncodeToString(b)
}

// buildOptions builds a SIP OPTIONS request as described in spec.md §4.8.1:
// a randomized Via branch (magic cookie z9hG4bK prefix), From tag and
// Call-ID so the probe cannot be mistaken for a replay.
func buildOptions(host string, port int, localIP string, localPort int) []byte {
	branch := "z9hG4bK" + randomToken(8)
	callID := randomToken(16) + "@" + localIP
	fromTag := randomToken(6)

	var b bytes.Buffer

	fmt.Fprintf(&b, "OPTIONS sip:%s:%d SIP/2.0\r\n", host, port)
	fmt.Fprintf(&b, "Via: SIP/2.0/UDP %s:%d;branch=%s;rport\r\n", localIP, localPort, branch)
	fmt.Fprintf(&b, "Max-Forwards: 70\r\n")
	fmt.Fprintf(&b, "From: <sip:probe@%s>;tag=%s\r\n", localIP, fromTag)
	fmt.Fprintf(&b, "To: <sip:%s:%d>\r\n", host, port)
	fmt.Fprintf(&b, "Call-ID: %s\r\n", callID)
	fmt.Fprintf(&b, "CSeq: 1 OPTIONS\r\n")
	fmt.Fprintf(&b, "Contact: <sip:probe@%s:%d>\r\n", localIP, localPort)
	fmt.Fprintf(&b, "Accept: application/sdp\r\n")
	fmt.Fprintf(&b, "Content-Length: 0\r\n\r\n")

	return b.Bytes()
}

func parseResponse(raw []byte) (map[string]interface{}, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	if !scanner.Scan() {
		return nil, false
	}

	statusLine := scanner.Text()
	if !strings.HasPrefix(statusLine, "SIP/2.0") {
		return nil, false
	}

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 3 {
		return nil, false
	}

	fields := map[string]interface{}{
		"status_code":   parts[1],
		"status_reason": parts[2],
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line == "\r" {
			break
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}

		key := strings.TrimSpace(line[:colon])
		val := strings.TrimSpace(line[colon+1:])

		switch strings.ToLower(key) {
		case "server":
			fields["server"] = val
		case "user-agent":
			fields["user_agent"] = val
		case "allow":
			fields["allow"] = val
		}
	}

	return fields, true
}
