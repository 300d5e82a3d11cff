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

// Package traverser implements the dispatcher (spec.md §4.8.2, §4.8.3, §5):
// for each host, resolve the (port, adapter) pairs its port map selects,
// dedupe by adapter name, run each adapter under a bounded timeout, and
// aggregate non-empty results into the host record.
package traverser

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/bacnetlimiter"
	"github.com/mfreeman451/subnetradar/internal/model"
	"github.com/mfreeman451/subnetradar/internal/registry"
)

// Config carries the dispatcher's concurrency and timeout knobs (spec.md
// §5): up to HostConcurrency hosts in parallel, up to AdapterConcurrency
// adapter invocations per host, each bounded by PerAdapterTimeout.
type Config struct {
	HostConcurrency    int
	AdapterConcurrency int
	PerAdapterTimeout  time.Duration
	Verbose            bool
}

// DefaultConfig matches spec.md §5's stated defaults (3 hosts x 5
// per-host adapters).
func DefaultConfig() Config {
	return Config{
		HostConcurrency:    3,
		AdapterConcurrency: 5,
		PerAdapterTimeout:  5 * time.Second,
	}
}

// Traverser runs the protocol adapters over an aggregated host map.
type Traverser struct {
	cfg      Config
	registry *registry.Registry
	bacnet   *bacnetlimiter.Limiter
	adapters map[string]adapters.Adapter
}

// New constructs a Traverser wired to the process-wide registry and BACnet
// limiter singletons (spec.md §9).
func New(cfg Config, reg *registry.Registry, limiter *bacnetlimiter.Limiter) *Traverser {
	if cfg.HostConcurrency <= 0 {
		cfg.HostConcurrency = DefaultConfig().HostConcurrency
	}

	if cfg.AdapterConcurrency <= 0 {
		cfg.AdapterConcurrency = DefaultConfig().AdapterConcurrency
	}

	if cfg.PerAdapterTimeout <= 0 {
		cfg.PerAdapterTimeout = DefaultConfig().PerAdapterTimeout
	}

	return &Traverser{cfg: cfg, registry: reg, bacnet: limiter, adapters: AllAdapters}
}

// pair is one (port, adapter) selection for a host.
type pair struct {
	port        int
	adapterName string
}

// Run dispatches every host in hosts concurrently (bounded by
// HostConcurrency), mutating each host's Adapters map in place.
func (t *Traverser) Run(ctx context.Context, hosts map[string]*model.Host) model.TraverserSummary {
	start := time.Now()

	sem := make(chan struct{}, t.cfg.HostConcurrency)

	var wg sync.WaitGroup

	var mu sync.Mutex

	processed := 0

	for ip, host := range hosts {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(ip string, host *model.Host) {
			defer wg.Done()
			defer func() { <-sem }()

			t.runHost(ctx, ip, host)

			mu.Lock()
			processed++
			mu.Unlock()
		}(ip, host)
	}

	wg.Wait()

	return model.TraverserSummary{
		DurationS:      time.Since(start).Seconds(),
		HostsProcessed: processed,
	}
}

// runHost resolves pair selection for one host and runs each selected
// adapter under AdapterConcurrency.
func (t *Traverser) runHost(ctx context.Context, ip string, host *model.Host) {
	pairs := buildPairs(host)
	if len(pairs) == 0 {
		return
	}

	sem := make(chan struct{}, t.cfg.AdapterConcurrency)

	var wg sync.WaitGroup

	var mu sync.Mutex

	for _, p := range pairs {
		select {
		case <-ctx.Done():
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(p pair) {
			defer wg.Done()
			defer func() { <-sem }()

			metrics := t.invoke(ctx, ip, p)
			if len(metrics) == 0 {
				return
			}

			payload := adapters.FlattenMetrics(metrics)

			mu.Lock()
			host.Adapters[p.adapterName] = payload
			mu.Unlock()
		}(p)
	}

	wg.Wait()
}

// buildPairs resolves every open TCP/UDP port's service label to an adapter
// name via the static descriptor table, deduplicating by adapter name: the
// first-discovered port wins (spec.md §9 Open Question (c)). TCP ports are
// considered in ascending order before UDP ports, each itself ascending, so
// the "first" pick is deterministic run to run.
func buildPairs(host *model.Host) []pair {
	seen := make(map[string]bool)

	var pairs []pair

	for _, port := range sortedKeys(host.Ports.TCP) {
		label := host.Ports.TCP[port]
		if label == nil {
			continue
		}

		name := adapters.AdapterForLabel(*label)
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		pairs = append(pairs, pair{port: port, adapterName: name})
	}

	for _, port := range sortedKeys(host.Ports.UDP) {
		label := host.Ports.UDP[port]
		if label == nil {
			continue
		}

		name := adapters.AdapterForLabel(*label)
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		pairs = append(pairs, pair{port: port, adapterName: name})
	}

	return pairs
}

func sortedKeys(m map[int]*string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Ints(keys)

	return keys
}

// invoke runs one adapter under a wall-clock bound of PerAdapterTimeout,
// passing the adapter an internal deadline at 90% of that bound so it can
// finish cleanly before the external timeout fires (spec.md §4.8.2 step 2).
// The BACnet adapter additionally serializes through the global limiter
// regardless of AdapterConcurrency (spec.md §5).
func (t *Traverser) invoke(ctx context.Context, host string, p pair) []adapters.Metric {
	adapter, ok := t.adapters[p.adapterName]
	if !ok {
		return nil
	}

	internalTimeout := time.Duration(float64(t.cfg.PerAdapterTimeout) * 0.9)

	adapterCtx, cancel := context.WithTimeout(ctx, internalTimeout)
	defer cancel()

	if p.adapterName == "bacnet" && t.bacnet != nil {
		if err := t.bacnet.Acquire(ctx); err != nil {
			return nil
		}
		defer t.bacnet.Release()

		adapterCtx = bacnetlimiter.WithContext(adapterCtx, t.bacnet)
	}

	opts := adapters.Options{
		Timeout:  internalTimeout,
		Verbose:  t.cfg.Verbose,
		Registry: t.registry,
	}

	type result struct{ metrics []adapters.Metric }

	done := make(chan result, 1)

	go func() {
		defer func() {
			if recover() != nil {
				done <- result{}
			}
		}()

		metrics, _ := adapter.Discover(adapterCtx, host, p.port, opts)
		done <- result{metrics}
	}()

	select {
	case r := <-done:
		return r.metrics
	case <-time.After(t.cfg.PerAdapterTimeout):
		return nil
	}
}
