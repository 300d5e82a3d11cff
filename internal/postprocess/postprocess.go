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

// Package postprocess applies cross-signal reclassification heuristics to
// the aggregated host map (spec.md §4.5). Each rule is a pure, idempotent,
// commuting function of one host's ports; ordering among rules is
// irrelevant by construction.
package postprocess

import "github.com/mfreeman451/subnetradar/internal/model"

// Rule mutates a single host's Ports in place.
type Rule func(ports *model.Ports)

func label(s string) *string { return &s }

func portLabel(m map[int]*string, port int) (string, bool) {
	v, ok := m[port]
	if !ok || v == nil {
		return "", ok
	}

	return *v, true
}

// reclassifyPDL implements spec.md §4.5: a TCP 9100 labelled "prometheus" is
// relabelled "pdl" when TCP 515 (lpd), TCP 631 (ipp) or UDP 3702 (wsd) is
// also present on the host.
func reclassifyPDL(ports *model.Ports) {
	v, ok := portLabel(ports.TCP, 9100)
	if !ok || v != "prometheus" {
		return
	}

	if l, ok := portLabel(ports.TCP, 515); ok && l == "lpd" {
		ports.TCP[9100] = label("pdl")
		return
	}

	if l, ok := portLabel(ports.TCP, 631); ok && l == "ipp" {
		ports.TCP[9100] = label("pdl")
		return
	}

	if l, ok := portLabel(ports.UDP, 3702); ok && l == "wsd" {
		ports.TCP[9100] = label("pdl")
	}
}

// defaultRules is the ordered (but order-irrelevant) list of active rules.
var defaultRules = []Rule{reclassifyPDL}

// Apply runs every rule over every host in the map. Safe to call more than
// once: every rule is idempotent (spec.md §8).
func Apply(hosts map[string]*model.Host) {
	ApplyRules(hosts, defaultRules)
}

// ApplyRules runs an explicit rule set, for tests and future extension.
func ApplyRules(hosts map[string]*model.Host, rules []Rule) {
	for _, h := range hosts {
		for _, r := range rules {
			r(&h.Ports)
		}
	}
}
