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

// Package prometheus implements the "Scrape over HTTP" adapter (spec.md
// §4.8.1): GET /metrics with a 100KiB body cap, parsing the Prometheus text
// exposition format.
package prometheus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const (
	defaultTimeout = 5 * time.Second
	bodyCap        = 100 * 1024
)

// Adapter implements adapters.Adapter for the Prometheus text exposition
// format.
type Adapter struct{}

func (Adapter) Name() string { return "prometheus" }

// Sample is one parsed exposition-format line.
type Sample struct {
	Name      string
	Labels    map[string]string
	Value     float64
	Timestamp *int64
}

func (a Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	if opts.Registry != nil && port == 9100 && opts.Registry.ShouldSkipPort9100(host) {
		return nil, nil
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{}).DialContext,
		},
	}

	req, err := http.NewRequestWithContext(dialCtx, http.MethodGet, fmt.Sprintf("http://%s:%d/metrics", host, port), nil)
	if err != nil {
		return nil, nil
	}

	req.Header.Set("Accept", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	samples, families := parseExposition(io.LimitReader(resp.Body, bodyCap))
	if len(samples) == 0 {
		return nil, nil
	}

	metrics := make([]adapters.Metric, 0, len(samples))
	now := time.Now()

	for _, s := range samples {
		fields := map[string]interface{}{"value": s.Value}
		if help, ok := families[s.Name]; ok {
			fields["help"] = help
		}

		metrics = append(metrics, adapters.Metric{
			Name:      s.Name,
			Fields:    fields,
			Tags:      s.Labels,
			Timestamp: now,
		})
	}

	return metrics, nil
}

// parseExposition parses the Prometheus text exposition format described in
// spec.md §4.8.1: "# HELP <family> <text>", "# TYPE <family> <type>",
// "<name>{<labels>} <value> [<timestamp>]".
func parseExposition(r io.Reader) ([]Sample, map[string]string) {
	help := make(map[string]string)

	var samples []Sample

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), bodyCap)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "# HELP ") {
			rest := strings.TrimPrefix(line, "# HELP ")
			if parts := strings.SplitN(rest, " ", 2); len(parts) == 2 {
				help[parts[0]] = parts[1]
			}

			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if s, ok := parseSampleLine(line); ok {
			samples = append(samples, s)
		}
	}

	return samples, help
}

func parseSampleLine(line string) (Sample, bool) {
	name := line
	labels := map[string]string{}
	rest := line

	if idx := strings.IndexByte(line, '{'); idx >= 0 {
		end := strings.IndexByte(line[idx:], '}')
		if end < 0 {
			return Sample{}, false
		}

		end += idx
		name = strings.TrimSpace(line[:idx])
		labels = parseLabels(line[idx+1 : end])
		rest = strings.TrimSpace(line[end+1:])
	} else {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return Sample{}, false
		}

		name = parts[0]
		rest = strings.Join(parts[1:], " ")
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Sample{}, false
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Sample{}, false
	}

	s := Sample{Name: name, Labels: labels, Value: value}

	if len(fields) > 1 {
		if ts, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			s.Timestamp = &ts
		}
	}

	return s, true
}

func parseLabels(raw string) map[string]string {
	labels := make(map[string]string)

	for _, pair := range splitLabelPairs(raw) {
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}

		key := strings.TrimSpace(pair[:eq])
		val := strings.TrimSpace(pair[eq+1:])
		val = strings.Trim(val, `"`)
		labels[key] = val
	}

	return labels
}

// splitLabelPairs splits a label-list by commas that are outside quotes, so
// values containing literal commas are handled correctly.
func splitLabelPairs(raw string) []string {
	var (
		pairs   []string
		inQuote bool
		start   int
	)

	for i, c := range raw {
		switch c {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				pairs = append(pairs, raw[start:i])
				start = i + 1
			}
		}
	}

	if start < len(raw) {
		pairs = append(pairs, raw[start:])
	}

	return pairs
}
