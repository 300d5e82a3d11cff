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

// Package model holds the data structures shared across the discovery
// pipeline: per-host records, per-stage performance counters and the final
// serialized result document.
package model

import "time"

// Ping holds ICMP liveness for a single host.
type Ping struct {
	Alive     bool     `json:"alive"`
	LatencyMs *float64 `json:"latency_ms,omitempty"`
}

// Ports holds the TCP and UDP port maps for a single host. Keys are L4 port
// numbers (1-65535); values are service labels, nil meaning "open, unlabeled".
type Ports struct {
	TCP map[int]*string `json:"tcp"`
	UDP map[int]*string `json:"udp"`
}

// NewPorts returns an initialized, empty Ports.
func NewPorts() Ports {
	return Ports{
		TCP: make(map[int]*string),
		UDP: make(map[int]*string),
	}
}

// Host is the per-address record assembled by the aggregator across all
// pipeline stages.
type Host struct {
	Ping     Ping                   `json:"ping"`
	Ports    Ports                  `json:"ports"`
	Hostname *string                `json:"hostname,omitempty"`
	Adapters map[string]interface{} `json:"adapters,omitempty"`
}

// NewHost returns an initialized, empty Host.
func NewHost() *Host {
	return &Host{
		Ports:    NewPorts(),
		Adapters: make(map[string]interface{}),
	}
}

// Performance is a per-stage timing/counter record. Once Stop is called the
// fields are treated as write-once by the aggregator.
type Performance struct {
	Start          time.Time `json:"-"`
	End            time.Time `json:"-"`
	DurationS      float64   `json:"duration"`
	HostsFound     int       `json:"hostsFound"`
	PortsFound     int       `json:"portsFound"`
	HostsWithPorts int       `json:"hostsWithPorts"`
	RatePerSec     float64   `json:"rate"`
}

// Stop finalizes the duration/rate fields from Start/End. Safe to call once.
func (p *Performance) Stop() {
	if p.End.IsZero() {
		p.End = time.Now()
	}

	p.DurationS = p.End.Sub(p.Start).Seconds()
	if p.DurationS > 0 {
		p.RatePerSec = float64(p.HostsFound) / p.DurationS
	}
}

// Summary is the top-level counters block of the final result.
type Summary struct {
	TotalHosts        int `json:"totalHosts"`
	AliveHosts        int `json:"aliveHosts"`
	HostsWithTCPPorts int `json:"hostsWithTCPPorts"`
	HostsWithUDPPorts int `json:"hostsWithUDPPorts"`
	TotalTCPPorts     int `json:"totalTCPPorts"`
	TotalUDPPorts     int `json:"totalUDPPorts"`
}

// Latency is the min/max/avg ping latency across all alive hosts, nil when
// no host replied to ICMP.
type Latency struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// PerformanceBlock groups the per-stage Performance records of the ping, TCP
// and UDP sweeps. The traverser's own duration/count pair is kept separately
// in Result.Traverser.
type PerformanceBlock struct {
	Ping Performance `json:"ping"`
	TCP  Performance `json:"tcp"`
	UDP  Performance `json:"udp"`
}

// TraverserSummary is the dispatcher's own timing record.
type TraverserSummary struct {
	DurationS      float64 `json:"duration"`
	HostsProcessed int     `json:"hostsProcessed"`
}

// Result is the final, serializable document emitted on stdout.
type Result struct {
	Subnet      string            `json:"subnet"`
	Duration    string            `json:"duration"`
	Summary     Summary           `json:"summary"`
	Latency     *Latency          `json:"latency"`
	Performance PerformanceBlock  `json:"performance"`
	Hosts       map[string]*Host  `json:"hosts"`
	Traverser   TraverserSummary  `json:"traverser"`
}
