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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func label(s string) *string { return &s }

func TestResultMarshalHostOrdering(t *testing.T) {
	hosts := map[string]*Host{
		"192.0.2.20": NewHost(),
		"192.0.2.2":  NewHost(),
		"192.0.2.100": NewHost(),
	}

	r := Result{Subnet: "192.0.2.1-254", Hosts: hosts}

	out, err := json.Marshal(r)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &parsed))

	// Search the raw bytes to confirm key order.
	idx2 := indexOf(t, string(out), `"192.0.2.2"`)
	idx20 := indexOf(t, string(out), `"192.0.2.20"`)
	idx100 := indexOf(t, string(out), `"192.0.2.100"`)

	require.Less(t, idx2, idx20)
	require.Less(t, idx20, idx100)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()

	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}

	t.Fatalf("substring %q not found in %q", needle, haystack)

	return -1
}

func TestPortsMarshalAscending(t *testing.T) {
	p := NewPorts()
	p.TCP[9100] = label("pdl")
	p.TCP[22] = label("ssh")
	p.TCP[631] = nil

	out, err := json.Marshal(p)
	require.NoError(t, err)

	idx22 := indexOf(t, string(out), `"22"`)
	idx631 := indexOf(t, string(out), `"631"`)
	idx9100 := indexOf(t, string(out), `"9100"`)

	require.Less(t, idx22, idx631)
	require.Less(t, idx631, idx9100)
}
