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

// Package rdns resolves hostnames via PTR lookup, gated against hosts the
// DNS adapter will itself handle (spec.md §4.6).
package rdns

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// privateBlocks are the RFC 1918 / loopback / link-local ranges spec.md
// §4.6 names explicitly.
var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))

	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}

		nets = append(nets, n)
	}

	return nets
}

// IsPrivate reports whether ip falls in any RFC 1918 / loopback / link-local
// block.
func IsPrivate(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	for _, n := range privateBlocks {
		if n.Contains(addr) {
			return true
		}
	}

	return false
}

// Resolver performs PTR lookups, skipping hosts the DNS adapter owns.
type Resolver struct {
	Timeout  time.Duration
	DNSAddr  string // "host:port" of a recursive resolver; empty uses the system resolver
}

// NewResolver returns a Resolver with spec.md defaults.
func NewResolver() *Resolver {
	return &Resolver{Timeout: 2 * time.Second}
}

// Lookup returns the first PTR name for ip, or "" if none/gated/skipped.
// hasTCP53 is true when the host has TCP port 53 open (the DNS adapter gate
// condition from spec.md §4.6).
func (r *Resolver) Lookup(ctx context.Context, ip string, hasTCP53 bool) string {
	if IsPrivate(ip) && hasTCP53 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if r.DNSAddr != "" {
		if name := r.lookupViaServer(ctx, ip); name != "" {
			return name
		}
	}

	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}

	return strings.TrimSuffix(names[0], ".")
}

// lookupViaServer issues a PTR query against r.DNSAddr directly, using
// miekg/dns for explicit control over the query the way the protocol
// adapters build their own requests.
func (r *Resolver) lookupViaServer(ctx context.Context, ip string) string {
	reverse, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	m := new(dns.Msg)
	m.SetQuestion(reverse, dns.TypePTR)
	m.RecursionDesired = true

	c := new(dns.Client)
	c.Timeout = r.Timeout

	deadline, ok := ctx.Deadline()
	if ok {
		c.Timeout = time.Until(deadline)
	}

	resp, _, err := c.Exchange(m, r.DNSAddr)
	if err != nil || resp == nil {
		return ""
	}

	for _, ans := range resp.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}

	return ""
}
