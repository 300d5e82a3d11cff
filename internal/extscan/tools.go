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

package extscan

import (
	"strconv"
	"strings"
)

// DefaultTCPScannerPath and DefaultUDPScannerPath are the known relative
// paths spec.md §6 describes for the two external child processes.
const (
	DefaultTCPScannerPath = "./bin/tcp-sweep"
	DefaultUDPScannerPath = "./bin/udp-sweep"
)

// NewTCPTool builds the external TCP port-sweep wrapper (spec.md §4.3): a
// comma-separated address list plus a comma-separated port list loaded from
// a static resource.
func NewTCPTool(binPath string, ports []int) *Tool {
	return &Tool{
		Path: binPath,
		BuildArgs: func(hosts []string) []string {
			return []string{
				"--hosts", strings.Join(hosts, ","),
				"--ports", joinInts(ports),
			}
		},
	}
}

// UDPToolOptions configures the generic UDP sweep tool's concurrency knobs
// (spec.md §4.4a).
type UDPToolOptions struct {
	HostConcurrency int
	PortConcurrency int
	TimeoutMS       int
	Retries         int
}

// DefaultUDPToolOptions matches spec.md §5's defaults: 10 hosts x 100
// port-tasks.
func DefaultUDPToolOptions() UDPToolOptions {
	return UDPToolOptions{HostConcurrency: 10, PortConcurrency: 100, TimeoutMS: 1000, Retries: 1}
}

// NewUDPTool builds the generic external UDP port-sweep wrapper.
func NewUDPTool(binPath string, ports []int, opts UDPToolOptions) *Tool {
	return &Tool{
		Path: binPath,
		BuildArgs: func(hosts []string) []string {
			return []string{
				"--hosts", strings.Join(hosts, ","),
				"--ports", joinInts(ports),
				"--host-concurrency", itoa(opts.HostConcurrency),
				"--port-concurrency", itoa(opts.PortConcurrency),
				"--timeout-ms", itoa(opts.TimeoutMS),
				"--retries", itoa(opts.Retries),
			}
		},
	}
}

func joinInts(ints []int) string {
	parts := make([]string, len(ints))
	for i, n := range ints {
		parts[i] = strconv.Itoa(n)
	}

	return strings.Join(parts, ",")
}

func itoa(n int) string { return strconv.Itoa(n) }
