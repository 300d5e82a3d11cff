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

// Package aggregator merges sweep events, adapter payloads and hostnames
// into the final per-host structure (spec.md §2, §4.1, §5). Writes are
// sharded by IP so concurrent sub-sweeps never contend on one global lock.
package aggregator

import (
	"hash/fnv"
	"sync"

	"github.com/mfreeman451/subnetradar/internal/model"
)

const shardCount = 64

type shard struct {
	mu    sync.Mutex
	hosts map[string]*model.Host
}

// Aggregator is the single-writer-per-key host map described in spec.md §5:
// "(ip, port) insertions are atomic; the final state after stage drain is a
// deterministic set union."
type Aggregator struct {
	shards [shardCount]*shard
}

// New creates an empty Aggregator.
func New() *Aggregator {
	a := &Aggregator{}
	for i := range a.shards {
		a.shards[i] = &shard{hosts: make(map[string]*model.Host)}
	}

	return a
}

func (a *Aggregator) shardFor(ip string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))

	return a.shards[h.Sum32()%shardCount]
}

// Mutate applies fn to the Host record for ip under that IP's shard lock,
// creating the record lazily on first touch. This is the single entry point
// every sweep stage and the dispatcher use to update a host (the "on_found"
// callback of spec.md §4.1).
func (a *Aggregator) Mutate(ip string, fn func(*model.Host)) {
	s := a.shardFor(ip)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[ip]
	if !ok {
		h = model.NewHost()
		s.hosts[ip] = h
	}

	fn(h)
}

// Get returns the host record for ip, or nil if never touched.
func (a *Aggregator) Get(ip string) *model.Host {
	s := a.shardFor(ip)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hosts[ip]
}

// Snapshot returns a shallow copy of the full host map. Intended to be
// called only after a stage's completion barrier (spec.md §5: "stage N
// begins only after stage N-1's completion barrier").
func (a *Aggregator) Snapshot() map[string]*model.Host {
	out := make(map[string]*model.Host)

	for _, s := range a.shards {
		s.mu.Lock()

		for ip, h := range s.hosts {
			out[ip] = h
		}

		s.mu.Unlock()
	}

	return out
}

// Len returns the number of distinct hosts touched so far.
func (a *Aggregator) Len() int {
	n := 0

	for _, s := range a.shards {
		s.mu.Lock()
		n += len(s.hosts)
		s.mu.Unlock()
	}

	return n
}
