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

// Package pipeline orchestrates one end-to-end discovery run: scan-range
// expansion, the three-stage sweep, post-processing, reverse DNS, and the
// adapter traversal (spec.md §1, §4.1-§4.8).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters/ssdp"
	"github.com/mfreeman451/subnetradar/internal/adapters/wsdiscovery"
	"github.com/mfreeman451/subnetradar/internal/aggregator"
	"github.com/mfreeman451/subnetradar/internal/bacnetlimiter"
	"github.com/mfreeman451/subnetradar/internal/config"
	"github.com/mfreeman451/subnetradar/internal/extscan"
	"github.com/mfreeman451/subnetradar/internal/model"
	"github.com/mfreeman451/subnetradar/internal/portlookup"
	"github.com/mfreeman451/subnetradar/internal/postprocess"
	"github.com/mfreeman451/subnetradar/internal/rangeiter"
	"github.com/mfreeman451/subnetradar/internal/rdns"
	"github.com/mfreeman451/subnetradar/internal/registry"
	"github.com/mfreeman451/subnetradar/internal/scan"
	"github.com/mfreeman451/subnetradar/internal/traverser"
)

// Run executes one discovery pass over cfg's subnet and returns the
// serializable result document. The only error this returns is a
// configuration error (spec.md §7 kind 1); every per-host or per-adapter
// failure is absorbed into the result itself.
func Run(ctx context.Context, cfg config.Config) (*model.Result, error) {
	start := time.Now()

	rng, err := rangeiter.Parse(cfg.SubnetPrefix, cfg.HostStart, cfg.HostEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet range: %w", err)
	}

	hosts := rng.Expand()
	agg := aggregator.New()

	pingPerf, tcpPerf, udpPerf := runSweeps(ctx, cfg, hosts, agg)

	// Hosts never touched by any sweep stay absent from hostMap entirely
	// (spec.md §8): agg.Snapshot() only returns records Mutate created.
	hostMap := agg.Snapshot()

	postprocess.Apply(hostMap)

	resolveHostnames(ctx, cfg, hostMap)

	reg := registry.New()
	limiter := bacnetlimiter.New(cfg.BACnetConcurrency)

	trav := traverser.New(traverser.Config{
		HostConcurrency:    cfg.HostConcurrency,
		AdapterConcurrency: cfg.AdapterConcurrency,
		PerAdapterTimeout:  time.Duration(cfg.PerAdapterTimeout),
		Verbose:            cfg.Verbose,
	}, reg, limiter)

	travSummary := trav.Run(ctx, hostMap)

	result := &model.Result{
		Subnet:      rng.String(),
		Duration:    fmt.Sprintf("%.2f", time.Since(start).Seconds()),
		Summary:     computeSummary(hostMap),
		Latency:     computeLatency(hostMap),
		Performance: model.PerformanceBlock{Ping: pingPerf, TCP: tcpPerf, UDP: udpPerf},
		Hosts:       hostMap,
		Traverser:   travSummary,
	}

	return result, nil
}

// runSweeps fans out the ICMP, TCP, generic-UDP, and UDP-extra sub-sweeps
// concurrently (spec.md §4.1 "run_all_scans"), each mutating agg through
// its own on_found callback.
func runSweeps(ctx context.Context, cfg config.Config, hosts []string, agg *aggregator.Aggregator) (ping, tcp, udp model.Performance) {
	ping.Start = time.Now()
	tcp.Start = time.Now()
	udp.Start = time.Now()

	var wg sync.WaitGroup

	wg.Add(4)

	go func() {
		defer wg.Done()
		runICMPSweep(ctx, cfg, hosts, agg, &ping)
	}()

	go func() {
		defer wg.Done()
		runTCPSweep(ctx, cfg, hosts, agg, &tcp)
	}()

	go func() {
		defer wg.Done()
		runUDPSweep(ctx, cfg, hosts, agg, &udp)
	}()

	go func() {
		defer wg.Done()
		runUDPExtraProbes(ctx, cfg, hosts, agg)
	}()

	wg.Wait()

	ping.Stop()
	tcp.Stop()
	udp.Stop()

	return ping, tcp, udp
}

func runICMPSweep(ctx context.Context, cfg config.Config, hosts []string, agg *aggregator.Aggregator, perf *model.Performance) {
	sweeper, err := scan.NewICMPSweeper(time.Duration(cfg.PingTimeout), cfg.PingConcurrency, cfg.PingRetries, 0)
	if err != nil {
		// Configuration-class failure (no CAP_NET_RAW, etc.): spec.md §4.1
		// only surfaces a sub-sweep error when its tool fails to start.
		// The pipeline itself stays best-effort and simply skips ICMP.
		return
	}
	defer sweeper.Close()

	_ = sweeper.Sweep(ctx, hosts, func(r scan.PingResult) {
		agg.Mutate(r.Host, func(h *model.Host) {
			h.Ping.Alive = r.Alive

			if r.Alive {
				latency := r.LatencyMs
				h.Ping.LatencyMs = &latency
			}
		})

		if r.Alive {
			perf.HostsFound++
		}
	})
}

func runTCPSweep(ctx context.Context, cfg config.Config, hosts []string, agg *aggregator.Aggregator, perf *model.Performance) {
	tool := extscan.NewTCPTool(cfg.TCPScannerPath, portlookup.TCPPorts())

	_ = tool.Run(ctx, hosts, func(f extscan.Found) {
		label := portlookup.Resolve("tcp", f.Port, f.ServiceSlug)

		agg.Mutate(f.IP, func(h *model.Host) {
			l := label
			h.Ports.TCP[f.Port] = &l
		})

		perf.PortsFound++
	})
}

func runUDPSweep(ctx context.Context, cfg config.Config, hosts []string, agg *aggregator.Aggregator, perf *model.Performance) {
	opts := extscan.DefaultUDPToolOptions()
	tool := extscan.NewUDPTool(cfg.UDPScannerPath, portlookup.UDPPorts(), opts)

	_ = tool.Run(ctx, hosts, func(f extscan.Found) {
		label := portlookup.Resolve("udp", f.Port, f.ServiceSlug)

		agg.Mutate(f.IP, func(h *model.Host) {
			l := label
			h.Ports.UDP[f.Port] = &l
		})

		perf.PortsFound++
	})
}

// runUDPExtraProbes runs the native SSDP and WS-Discovery probers (spec.md
// §4.4b), entering only found=true results into the aggregator.
func runUDPExtraProbes(ctx context.Context, cfg config.Config, hosts []string, agg *aggregator.Aggregator) {
	probes := []scan.ExtraProbe{
		{Name: "ssdp", Port: ssdp.DefaultPort, Probe: ssdp.Probe},
		{Name: "wsdiscovery", Port: wsdiscovery.DefaultPort, Probe: wsdiscovery.Probe},
	}

	portLabel := map[string]string{
		"ssdp":        "ssdp",
		"wsdiscovery": "wsd",
	}

	scan.RunExtraProbes(ctx, hosts, probes, cfg.UDPExtraConcurrency, func(host string, probe scan.ExtraProbe, details map[string]interface{}) {
		label := portLabel[probe.Name]

		agg.Mutate(host, func(h *model.Host) {
			l := label
			h.Ports.UDP[probe.Port] = &l
		})
	})
}

// resolveHostnames runs reverse DNS for every host in hostMap, gated per
// spec.md §4.6.
func resolveHostnames(ctx context.Context, cfg config.Config, hostMap map[string]*model.Host) {
	resolver := rdns.NewResolver()
	resolver.DNSAddr = cfg.DNSServerAddr

	if cfg.DNSTimeout > 0 {
		resolver.Timeout = time.Duration(cfg.DNSTimeout)
	}

	const resolveConcurrency = 20

	sem := make(chan struct{}, resolveConcurrency)

	var wg sync.WaitGroup

	for ip, h := range hostMap {
		wg.Add(1)
		sem <- struct{}{}

		go func(ip string, h *model.Host) {
			defer wg.Done()
			defer func() { <-sem }()

			hasTCP53 := h.Ports.TCP[53] != nil

			if name := resolver.Lookup(ctx, ip, hasTCP53); name != "" {
				h.Hostname = &name
			}
		}(ip, h)
	}

	wg.Wait()
}

func computeSummary(hosts map[string]*model.Host) model.Summary {
	var s model.Summary

	s.TotalHosts = len(hosts)

	for _, h := range hosts {
		if h.Ping.Alive {
			s.AliveHosts++
		}

		if len(h.Ports.TCP) > 0 {
			s.HostsWithTCPPorts++
		}

		if len(h.Ports.UDP) > 0 {
			s.HostsWithUDPPorts++
		}

		s.TotalTCPPorts += len(h.Ports.TCP)
		s.TotalUDPPorts += len(h.Ports.UDP)
	}

	return s
}

func computeLatency(hosts map[string]*model.Host) *model.Latency {
	var (
		min, max, sum float64
		count         int
	)

	for _, h := range hosts {
		if h.Ping.LatencyMs == nil {
			continue
		}

		v := *h.Ping.LatencyMs

		if count == 0 || v < min {
			min = v
		}

		if v > max {
			max = v
		}

		sum += v
		count++
	}

	if count == 0 {
		return nil
	}

	return &model.Latency{Min: min, Max: max, Avg: sum / float64(count)}
}
