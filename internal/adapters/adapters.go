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

// Package adapters defines the uniform protocol-adapter contract (spec.md
// §4.8) and the static service-label -> adapter-name table the dispatcher
// resolves once at start.
//
//go:generate mockgen -destination=mock_adapter.go -package=adapters github.com/mfreeman451/subnetradar/internal/adapters Adapter
package adapters

import (
	"context"
	"time"
)

// Metric is one record an adapter returns. An empty sequence means "no
// device of this protocol here" and is not an error (spec.md §4.8).
type Metric struct {
	Name      string
	Fields    map[string]interface{}
	Tags      map[string]string
	Timestamp time.Time
}

// Options carries per-invocation adapter configuration.
type Options struct {
	Timeout time.Duration
	Verbose bool
	// Registry is threaded explicitly rather than via context, so adapter
	// unit tests can construct it directly. The BACnet limiter is not an
	// Options field; it travels in the context (bacnetlimiter.FromContext).
	Registry interface {
		IsPrinter(ip string) bool
		MarkPrinter(ip, source string, details map[string]interface{})
		ShouldSkipPort9100(ip string) bool
	}
}

// Adapter is the uniform discover(host, port, options) contract from
// spec.md §4.8. Implementations must not panic or return an error for
// ordinary I/O/parse/timeout failures — those collapse into an empty
// result, per the spec's error-handling policy (§7).
type Adapter interface {
	Name() string
	Discover(ctx context.Context, host string, port int, opts Options) ([]Metric, error)
}

// Descriptor is a static registration table entry (spec.md §3 "Adapter
// descriptor"): which service label selects this adapter, and its default
// port when probing speculatively.
type Descriptor struct {
	ServiceLabel string
	AdapterName  string
	DefaultPort  int
}

// FlattenMetrics merges every metric's Fields and Tags into one object, the
// aggregation rule the dispatcher applies per spec.md §4.8.2 step 3. Later
// metrics win on key collision.
func FlattenMetrics(metrics []Metric) map[string]interface{} {
	if len(metrics) == 0 {
		return nil
	}

	out := make(map[string]interface{})

	for _, m := range metrics {
		for k, v := range m.Fields {
			out[k] = v
		}

		for k, v := range m.Tags {
			out[k] = v
		}
	}

	return out
}
