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

package traverser

import (
	"context"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRunHostInvokesSelectedAdapterOnce(t *testing.T) {
	ctrl := gomock.NewController(t)

	mock := adapters.NewMockAdapter(ctrl)
	mock.EXPECT().
		Discover(gomock.Any(), "10.0.0.5", 22, gomock.Any()).
		Return([]adapters.Metric{{Name: "ssh", Fields: map[string]interface{}{"banner": "OpenSSH_9.6"}}}, nil).
		Times(1)

	trav := &Traverser{
		cfg:      Config{HostConcurrency: 1, AdapterConcurrency: 1, PerAdapterTimeout: time.Second},
		adapters: map[string]adapters.Adapter{"ssh": mock},
	}

	label := "ssh"
	host := model.NewHost()
	host.Ports.TCP[22] = &label

	trav.runHost(context.Background(), "10.0.0.5", host)

	require.Equal(t, "OpenSSH_9.6", host.Adapters["ssh"].(map[string]interface{})["banner"])
}

func TestRunHostSkipsUnregisteredAdapter(t *testing.T) {
	trav := &Traverser{
		cfg:      Config{HostConcurrency: 1, AdapterConcurrency: 1, PerAdapterTimeout: time.Second},
		adapters: map[string]adapters.Adapter{},
	}

	label := "ssh"
	host := model.NewHost()
	host.Ports.TCP[22] = &label

	trav.runHost(context.Background(), "10.0.0.5", host)

	require.Empty(t, host.Adapters)
}
