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

package adapters

// descriptors is the static service-label -> adapter-name table (spec.md
// §3, §4.8.2 step 1), resolved once at process start and never mutated.
var descriptors = []Descriptor{
	{ServiceLabel: "ssh", AdapterName: "ssh", DefaultPort: 22},
	{ServiceLabel: "http", AdapterName: "http", DefaultPort: 80},
	{ServiceLabel: "https", AdapterName: "http", DefaultPort: 443},
	{ServiceLabel: "http-alt", AdapterName: "http", DefaultPort: 8000},
	{ServiceLabel: "http-proxy", AdapterName: "http", DefaultPort: 8080},
	{ServiceLabel: "https-alt", AdapterName: "http", DefaultPort: 8443},
	{ServiceLabel: "prometheus", AdapterName: "prometheus", DefaultPort: 9100},
	{ServiceLabel: "pdl", AdapterName: "prometheus", DefaultPort: 9100},
	{ServiceLabel: "winrm", AdapterName: "winrm", DefaultPort: 5985},
	{ServiceLabel: "winrm-ssl", AdapterName: "winrm", DefaultPort: 5986},
	{ServiceLabel: "sip", AdapterName: "sip", DefaultPort: 5060},
	{ServiceLabel: "sips", AdapterName: "sip", DefaultPort: 5061},
	{ServiceLabel: "snmp", AdapterName: "snmp", DefaultPort: 161},
	{ServiceLabel: "ssdp", AdapterName: "ssdp", DefaultPort: 1900},
	{ServiceLabel: "wsd", AdapterName: "wsdiscovery", DefaultPort: 3702},
	{ServiceLabel: "mdns", AdapterName: "mdns", DefaultPort: 5353},
	{ServiceLabel: "bacnet", AdapterName: "bacnet", DefaultPort: 47808},
	{ServiceLabel: "modbus", AdapterName: "modbus", DefaultPort: 502},
	{ServiceLabel: "s7comm", AdapterName: "s7", DefaultPort: 102},
	{ServiceLabel: "ethernet-ip", AdapterName: "cip", DefaultPort: 44818},
	{ServiceLabel: "opcua", AdapterName: "opcua", DefaultPort: 4840},
}

// Descriptors returns the static table.
func Descriptors() []Descriptor {
	return descriptors
}

// AdapterForLabel returns the adapter name registered for a service label,
// or "" if none.
func AdapterForLabel(label string) string {
	for _, d := range descriptors {
		if d.ServiceLabel == label {
			return d.AdapterName
		}
	}

	return ""
}
