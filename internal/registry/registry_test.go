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

package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkPrinterMonotonic(t *testing.T) {
	r := New()
	require.False(t, r.IsPrinter("192.0.2.5"))

	r.MarkPrinter("192.0.2.5", "mdns", map[string]interface{}{"model": "LaserJet"})
	require.True(t, r.IsPrinter("192.0.2.5"))
	require.True(t, r.ShouldSkipPort9100("192.0.2.5"))

	// A later, unrelated write must not clear the classification.
	r.Register("192.0.2.5", func(e *Entry) {
		e.Details["extra"] = "x"
	})
	require.True(t, r.IsPrinter("192.0.2.5"))
}

func TestUnknownIsNotNegative(t *testing.T) {
	r := New()
	require.False(t, r.IsPrinter("192.0.2.9"))
	require.Nil(t, r.Get("192.0.2.9"))
}

func TestContextRoundTrip(t *testing.T) {
	r := New()
	ctx := WithContext(context.Background(), r)
	require.Same(t, r, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}

func TestConcurrentWrites(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			r.MarkPrinter("192.0.2.1", "snmp", map[string]interface{}{"i": i})
		}(i)
	}

	wg.Wait()

	total, printers := r.Stats()
	require.Equal(t, 1, total)
	require.Equal(t, 1, printers)
}
