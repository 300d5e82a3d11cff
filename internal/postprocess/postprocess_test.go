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

package postprocess

import (
	"testing"

	"github.com/mfreeman451/subnetradar/internal/model"
	"github.com/stretchr/testify/require"
)

func hostWithPorts(tcp map[int]string, udp map[int]string) *model.Host {
	h := model.NewHost()

	for p, l := range tcp {
		l := l
		h.Ports.TCP[p] = &l
	}

	for p, l := range udp {
		l := l
		h.Ports.UDP[p] = &l
	}

	return h
}

func TestReclassifyPDLViaLPD(t *testing.T) {
	h := hostWithPorts(map[int]string{515: "lpd", 9100: "prometheus"}, nil)
	hosts := map[string]*model.Host{"192.0.2.1": h}

	Apply(hosts)

	require.Equal(t, "pdl", *h.Ports.TCP[9100])
}

func TestReclassifyPDLViaIPP(t *testing.T) {
	h := hostWithPorts(map[int]string{631: "ipp", 9100: "prometheus"}, nil)
	Apply(map[string]*model.Host{"192.0.2.1": h})
	require.Equal(t, "pdl", *h.Ports.TCP[9100])
}

func TestReclassifyPDLViaWSD(t *testing.T) {
	h := hostWithPorts(map[int]string{9100: "prometheus"}, map[int]string{3702: "wsd"})
	Apply(map[string]*model.Host{"192.0.2.1": h})
	require.Equal(t, "pdl", *h.Ports.TCP[9100])
}

func TestNoReclassifyWithoutSignal(t *testing.T) {
	h := hostWithPorts(map[int]string{9100: "prometheus"}, nil)
	Apply(map[string]*model.Host{"192.0.2.1": h})
	require.Equal(t, "prometheus", *h.Ports.TCP[9100])
}

func TestIdempotence(t *testing.T) {
	h := hostWithPorts(map[int]string{515: "lpd", 9100: "prometheus"}, nil)
	hosts := map[string]*model.Host{"192.0.2.1": h}

	Apply(hosts)
	first := *h.Ports.TCP[9100]

	Apply(hosts)
	require.Equal(t, first, *h.Ports.TCP[9100])
}
