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

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"sort"
)

// ipToUint32 converts a dotted-quad IPv4 string to its numeric form for
// ordering. Malformed addresses sort last.
func ipToUint32(ip string) uint32 {
	addr := net.ParseIP(ip)
	if addr == nil {
		return ^uint32(0)
	}

	v4 := addr.To4()
	if v4 == nil {
		return ^uint32(0)
	}

	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// sortedIPs returns the keys of hosts in ascending numeric IPv4 order. This
// is purely a serialization-time concern (spec §3): the in-memory map has no
// ordering guarantee.
func sortedIPs(hosts map[string]*Host) []string {
	ips := make([]string, 0, len(hosts))
	for ip := range hosts {
		ips = append(ips, ip)
	}

	sort.Slice(ips, func(i, j int) bool {
		return ipToUint32(ips[i]) < ipToUint32(ips[j])
	})

	return ips
}

// MarshalJSON renders Ports with TCP/UDP ports in ascending numeric order,
// since Go's map encoding would otherwise sort the lexicographic string form
// of the port keys.
func (p Ports) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	buf.WriteString(`"tcp":`)

	if err := writeOrderedPortMap(&buf, p.TCP); err != nil {
		return nil, err
	}

	buf.WriteString(`,"udp":`)

	if err := writeOrderedPortMap(&buf, p.UDP); err != nil {
		return nil, err
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeOrderedPortMap(buf *bytes.Buffer, m map[int]*string) error {
	ports := make([]int, 0, len(m))
	for p := range m {
		ports = append(ports, p)
	}

	sort.Ints(ports)

	buf.WriteByte('{')

	for i, p := range ports {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteString(fmt.Sprintf(`"%d":`, p))

		label, err := json.Marshal(m[p])
		if err != nil {
			return err
		}

		buf.Write(label)
	}

	buf.WriteByte('}')

	return nil
}

// hostsJSON is a wrapper type whose MarshalJSON writes the hosts map in
// ascending numeric IPv4 key order, preserved as object key order in the
// output (spec §3: a serialization invariant only).
type hostsJSON map[string]*Host

func (h hostsJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, ip := range sortedIPs(h) {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(ip)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(h[ip])
		if err != nil {
			return nil, err
		}

		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// MarshalJSON renders Result with hosts sorted by ascending numeric IPv4
// order (spec §3).
func (r Result) MarshalJSON() ([]byte, error) {
	type alias struct {
		Subnet      string           `json:"subnet"`
		Duration    string           `json:"duration"`
		Summary     Summary          `json:"summary"`
		Latency     *Latency         `json:"latency"`
		Performance PerformanceBlock `json:"performance"`
		Hosts       hostsJSON        `json:"hosts"`
		Traverser   TraverserSummary `json:"traverser"`
	}

	return json.Marshal(alias{
		Subnet:      r.Subnet,
		Duration:    r.Duration,
		Summary:     r.Summary,
		Latency:     r.Latency,
		Performance: r.Performance,
		Hosts:       hostsJSON(r.Hosts),
		Traverser:   r.Traverser,
	})
}
