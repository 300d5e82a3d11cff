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

package rdns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPrivate(t *testing.T) {
	require.True(t, IsPrivate("10.1.2.3"))
	require.True(t, IsPrivate("172.16.0.1"))
	require.True(t, IsPrivate("172.31.255.255"))
	require.True(t, IsPrivate("192.168.1.1"))
	require.True(t, IsPrivate("127.0.0.1"))
	require.True(t, IsPrivate("169.254.1.1"))
	require.False(t, IsPrivate("8.8.8.8"))
	require.False(t, IsPrivate("172.32.0.1"))
}

func TestLookupSkipsWhenDNSAdapterOwnsHost(t *testing.T) {
	r := NewResolver()
	name := r.Lookup(context.Background(), "192.168.1.1", true)
	require.Equal(t, "", name)
}
