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

// Package ssh implements the SSH banner adapter (spec.md §4.8.1,
// "Text-banner over TCP"): connect, read the banner up to the first CRLF,
// and extract protocol version, software name/version and an OS
// distribution token when present.
package ssh

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 5 * time.Second

// Adapter implements adapters.Adapter for SSH banners.
type Adapter struct{}

func (Adapter) Name() string { return "ssh" }

var bannerRE = regexp.MustCompile(`^SSH-(\d\.\d)-(\S+)`)

// debianCodenames maps debN substrings to codenames, spec.md §4.8.1
// ("9->Stretch ... 13->Trixie").
var debianCodenames = map[string]string{
	"9":  "Stretch",
	"10": "Buster",
	"11": "Bullseye",
	"12": "Bookworm",
	"13": "Trixie",
}

var osTokens = []string{"Ubuntu", "Debian", "CentOS", "RHEL", "Fedora", "SUSE", "Raspbian", "Alpine", "Arch"}

var debianVerRE = regexp.MustCompile(`deb(\d+)u?\d*`)

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

	var d net.Dialer

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	reader := bufio.NewReader(conn)

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, nil
	}

	banner := strings.TrimRight(line, "\r\n")
	if banner == "" {
		return nil, nil
	}

	fields := map[string]interface{}{"banner": banner}

	if m := bannerRE.FindStringSubmatch(banner); m != nil {
		fields["protocol_version"] = m[1]

		software := m[2]
		fields["software"] = software

		if name, ver := splitSoftware(software); name != "" {
			fields["software_name"] = name
			fields["software_version"] = ver
		}
	}

	if distro := detectDistro(banner); distro != "" {
		fields["os_distribution"] = distro
	}

	return []adapters.Metric{{
		Name:      "ssh_banner",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

func splitSoftware(s string) (name, version string) {
	idx := strings.IndexAny(s, "_-")
	if idx < 0 {
		return s, ""
	}

	return s[:idx], s[idx+1:]
}

func detectDistro(banner string) string {
	if m := debianVerRE.FindStringSubmatch(banner); m != nil {
		if codename, ok := debianCodenames[m[1]]; ok {
			return "Debian " + codename
		}
	}

	for _, tok := range osTokens {
		if strings.Contains(banner, tok) {
			return tok
		}
	}

	return ""
}
