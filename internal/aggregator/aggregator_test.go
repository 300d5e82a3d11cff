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

package aggregator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mfreeman451/subnetradar/internal/model"
	"github.com/stretchr/testify/require"
)

func TestMutateLazilyCreatesHost(t *testing.T) {
	a := New()
	require.Nil(t, a.Get("192.0.2.1"))

	a.Mutate("192.0.2.1", func(h *model.Host) {
		h.Ping.Alive = true
	})

	h := a.Get("192.0.2.1")
	require.NotNil(t, h)
	require.True(t, h.Ping.Alive)
}

func TestConcurrentMutateIsDeterministicUnion(t *testing.T) {
	a := New()

	var wg sync.WaitGroup

	for i := 0; i < 254; i++ {
		ip := fmt.Sprintf("192.0.2.%d", i+1)

		wg.Add(1)

		go func(ip string) {
			defer wg.Done()

			a.Mutate(ip, func(h *model.Host) {
				h.Ping.Alive = true
			})
		}(ip)
	}

	wg.Wait()
	require.Equal(t, 254, a.Len())
}
