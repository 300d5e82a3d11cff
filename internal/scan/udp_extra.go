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

package scan

import (
	"context"
	"sync"
)

// DefaultUDPExtraConcurrency is normative per spec.md §9 Open Question (b):
// "UDP-extra's default concurrency is set to 100 while the comment claims
// 50; the value 100 is normative."
const DefaultUDPExtraConcurrency = 100

// ExtraProbe is a native UDP protocol probe run in addition to the generic
// UDP port-sweep tool (spec.md §4.4b). Port is the protocol's well-known
// UDP port (1900 for SSDP, 3702 for WS-Discovery).
type ExtraProbe struct {
	Name string
	Port int
	// Probe sends one unicast request to host and collects responses until
	// its own collection window or ctx ends, returning found=true with
	// details on any reply.
	Probe func(ctx context.Context, host string) (found bool, details map[string]interface{})
}

// RunExtraProbes runs every registered probe against every target host,
// invoking onFound only for found=true results (spec.md §4.4b). concurrency
// bounds the number of (host, probe) invocations in flight at once, as a
// sliding window: a new invocation starts as soon as any earlier one ends,
// not in fixed batches, and each host counts once per probe.
func RunExtraProbes(ctx context.Context, hosts []string, probes []ExtraProbe, concurrency int, onFound func(host string, probe ExtraProbe, details map[string]interface{})) {
	if concurrency <= 0 {
		concurrency = DefaultUDPExtraConcurrency
	}

	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup

	for _, host := range hosts {
		for _, probe := range probes {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case sem <- struct{}{}:
			}

			wg.Add(1)

			go func(host string, probe ExtraProbe) {
				defer wg.Done()
				defer func() { <-sem }()

				found, details := probe.Probe(ctx, host)
				if found {
					onFound(host, probe, details)
				}
			}(host, probe)
		}
	}

	wg.Wait()
}
