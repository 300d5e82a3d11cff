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

package httpadapter

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct{ printer map[string]bool }

func (f fakeRegistry) IsPrinter(ip string) bool         { return f.printer[ip] }
func (f fakeRegistry) MarkPrinter(string, string, map[string]interface{}) {}
func (f fakeRegistry) ShouldSkipPort9100(ip string) bool { return f.printer[ip] }

func TestDiscoverParsesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx/1.25")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	a := Adapter{}
	metrics, err := a.Discover(context.Background(), host, port, adapters.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, "nginx/1.25", metrics[0].Fields["server"])
	require.Equal(t, 200, metrics[0].Fields["status_code"])
}

func TestDiscoverSkipsPort9100WhenPrinter(t *testing.T) {
	a := Adapter{}
	metrics, err := a.Discover(context.Background(), "192.0.2.1", 9100, adapters.Options{
		Timeout:  time.Second,
		Registry: fakeRegistry{printer: map[string]bool{"192.0.2.1": true}},
	})
	require.NoError(t, err)
	require.Empty(t, metrics)
}
