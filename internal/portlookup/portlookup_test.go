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

package portlookup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFallbackChain(t *testing.T) {
	require.Equal(t, "custom-svc", Resolve("tcp", 9999, "custom-svc"))
	require.Equal(t, "ssh", Resolve("tcp", 22, ""))
	require.Equal(t, "ssh", Resolve("tcp", 22, UnknownLabel))
	require.Equal(t, UnknownLabel, Resolve("tcp", 9999, ""))
	require.Equal(t, UnknownLabel, Resolve("tcp", 9999, UnknownLabel))
}

func TestLookupKnownPorts(t *testing.T) {
	label, ok := Lookup("tcp", 9100)
	require.True(t, ok)
	require.Equal(t, "prometheus", label)

	_, ok = Lookup("udp", 99999)
	require.False(t, ok)

	_, ok = Lookup("sctp", 80)
	require.False(t, ok)
}
