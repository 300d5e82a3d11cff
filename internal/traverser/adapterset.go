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
	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/adapters/bacnet"
	"github.com/mfreeman451/subnetradar/internal/adapters/cip"
	"github.com/mfreeman451/subnetradar/internal/adapters/httpadapter"
	"github.com/mfreeman451/subnetradar/internal/adapters/mdns"
	"github.com/mfreeman451/subnetradar/internal/adapters/modbus"
	"github.com/mfreeman451/subnetradar/internal/adapters/opcua"
	"github.com/mfreeman451/subnetradar/internal/adapters/prometheus"
	"github.com/mfreeman451/subnetradar/internal/adapters/s7"
	"github.com/mfreeman451/subnetradar/internal/adapters/sip"
	"github.com/mfreeman451/subnetradar/internal/adapters/snmp"
	"github.com/mfreeman451/subnetradar/internal/adapters/ssdp"
	"github.com/mfreeman451/subnetradar/internal/adapters/ssh"
	"github.com/mfreeman451/subnetradar/internal/adapters/winrm"
	"github.com/mfreeman451/subnetradar/internal/adapters/wsdiscovery"
)

// AllAdapters is the process-wide adapter-name -> implementation table
// (spec.md §4.8), the only place every protocol package is imported
// together. Kept out of internal/adapters itself to avoid an import cycle
// (each protocol package imports internal/adapters for the Adapter
// contract).
var AllAdapters = map[string]adapters.Adapter{
	"ssh":         ssh.Adapter{},
	"http":        httpadapter.Adapter{},
	"prometheus":  prometheus.Adapter{},
	"winrm":       winrm.Adapter{},
	"sip":         sip.Adapter{},
	"snmp":        snmp.Adapter{},
	"ssdp":        ssdp.Adapter{},
	"wsdiscovery": wsdiscovery.Adapter{},
	"mdns":        mdns.Adapter{},
	"bacnet":      bacnet.Adapter{},
	"modbus":      modbus.Adapter{},
	"s7":          s7.Adapter{},
	"cip":         cip.Adapter{},
	"opcua":       opcua.Adapter{},
}
