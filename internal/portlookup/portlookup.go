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

// Package portlookup maps well-known TCP/UDP port numbers to canonical
// service labels. The table is a static, build-time resource (spec.md
// Non-goals: no runtime plugin/config loading).
package portlookup

// UnknownLabel is returned by the fallback chain in §4.4a when neither a
// tool-supplied label nor a table entry exists.
const UnknownLabel = "unknown"

var tcpTable = map[int]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	102:  "s7comm",
	110:  "pop3",
	135:  "msrpc",
	139:  "netbios-ssn",
	143:  "imap",
	389:  "ldap",
	443:  "https",
	445:  "microsoft-ds",
	502:  "modbus",
	515:  "lpd",
	548:  "afp",
	554:  "rtsp",
	587:  "smtp",
	631:  "ipp",
	993:  "imaps",
	995:  "pop3s",
	1433: "mssql",
	1883: "mqtt",
	2049: "nfs",
	2404: "iec104",
	3306: "mysql",
	3389: "rdp",
	44818: "ethernet-ip",
	44820: "ethernet-ip",
	4840: "opcua",
	47808: "bacnet",
	5432: "postgresql",
	5060: "sip",
	5061: "sips",
	5353: "mdns",
	5900: "vnc",
	5985: "winrm",
	5986: "winrm-ssl",
	6379: "redis",
	8000: "http-alt",
	8080: "http-proxy",
	8443: "https-alt",
	9092: "kafka",
	9100: "prometheus",
	9200: "elasticsearch",
}

var udpTable = map[int]string{
	53:   "dns",
	67:   "dhcp",
	68:   "dhcp",
	69:   "tftp",
	123:  "ntp",
	137:  "netbios-ns",
	138:  "netbios-dgm",
	161:  "snmp",
	162:  "snmptrap",
	500:  "isakmp",
	502:  "modbus",
	520:  "rip",
	1900: "ssdp",
	3702: "wsd",
	4840: "opcua",
	47808: "bacnet",
	5060: "sip",
	5353: "mdns",
	5683: "coap",
}

// TCPPorts returns every port number in the static TCP table, the
// candidate list passed to the external TCP port-sweep tool (spec.md
// §4.3).
func TCPPorts() []int {
	return tablePorts(tcpTable)
}

// UDPPorts returns every port number in the static UDP table, the
// candidate list passed to the external UDP port-sweep tool (spec.md
// §4.4a).
func UDPPorts() []int {
	return tablePorts(udpTable)
}

func tablePorts(table map[int]string) []int {
	ports := make([]int, 0, len(table))
	for p := range table {
		ports = append(ports, p)
	}

	return ports
}

// Lookup resolves a port to its canonical label for the given transport
// ("tcp" or "udp"). ok is false when no table entry exists.
func Lookup(proto string, port int) (label string, ok bool) {
	var table map[int]string

	switch proto {
	case "tcp":
		table = tcpTable
	case "udp":
		table = udpTable
	default:
		return "", false
	}

	label, ok = table[port]

	return label, ok
}

// Resolve implements the fallback chain from spec.md §4.4a / §8: a
// non-empty, non-"unknown" tool label wins; otherwise the table label is
// used; otherwise "unknown".
func Resolve(proto string, port int, toolLabel string) string {
	if toolLabel != "" && toolLabel != UnknownLabel {
		return toolLabel
	}

	if label, ok := Lookup(proto, port); ok {
		return label
	}

	return UnknownLabel
}
