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

// Package snmp implements the SNMP adapter (spec.md §4.8.1): a gosnmp-based
// v2c GET of the system-group OIDs, tried with each community in turn,
// falling back to a hand-rolled v3 discovery packet (empty USM, reportable
// flag) when v2c yields nothing, plus vendor-OID classification and printer
// detection via the Printer-MIB. SNMPv1 is not attempted, the v2c and v3
// attempts run one after the other rather than in parallel, and no subtree
// walk is performed.
package snmp

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const (
	defaultTimeout = 3 * time.Second
	defaultRetries = 1
)

// System-group OIDs, RFC 1213.
const (
	oidSysDescr    = "1.3.6.1.2.1.1.1.0"
	oidSysObjectID = "1.3.6.1.2.1.1.2.0"
	oidSysName     = "1.3.6.1.2.1.1.5.0"
	oidSysLocation = "1.3.6.1.2.1.1.6.0"
	// printerMIBPrefix is the Printer-MIB (RFC 3805) subtree; any reply under
	// it marks the device as a printer, spec.md §4.8.1.
	printerMIBPrefix = "1.3.6.1.2.1.43"
)

// communities is the set of read-only community strings tried in order,
// spec.md §4.8.1's "public, then a short fixed list".
var communities = []string{"public", "private"}

// vendorOIDs is a longest-prefix-match table mapping sysObjectID enterprise
// prefixes to vendor names (spec.md §4.8.1).
var vendorOIDs = map[string]string{
	"1.3.6.1.4.1.9":     "Cisco",
	"1.3.6.1.4.1.11":    "HP",
	"1.3.6.1.4.1.2636":  "Juniper",
	"1.3.6.1.4.1.6027":  "Foundry/Brocade",
	"1.3.6.1.4.1.4526":  "Netgear",
	"1.3.6.1.4.1.14988": "MikroTik",
	"1.3.6.1.4.1.8072":  "Net-SNMP",
	"1.3.6.1.4.1.674":   "Dell",
	"1.3.6.1.4.1.43":    "3Com",
}

// Adapter implements adapters.Adapter for SNMP discovery.
type Adapter struct{}

func (Adapter) Name() string { return "snmp" }

func (a Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	for _, community := range communities {
		fields, ok := a.getV2c(host, port, community, timeout)
		if ok {
			return a.finish(host, fields, opts), nil
		}
	}

	if fields, ok := probeV3(host, port, timeout); ok {
		return a.finish(host, fields, opts), nil
	}

	return nil, nil
}

func (Adapter) getV2c(host string, port int, community string, timeout time.Duration) (map[string]interface{}, bool) {
	client := &gosnmp.GoSNMP{
		Target:             host,
		Port:               uint16(port),
		Community:          community,
		Version:            gosnmp.Version2c,
		Timeout:            timeout,
		Retries:            defaultRetries,
		ExponentialTimeout: true,
	}

	if err := client.Connect(); err != nil {
		return nil, false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysDescr, oidSysObjectID, oidSysName, oidSysLocation})
	if err != nil || len(result.Variables) == 0 {
		return nil, false
	}

	fields := map[string]interface{}{"snmp_version": "2c", "community": community}

	for _, v := range result.Variables {
		val := pduString(v)
		if val == "" {
			continue
		}

		switch v.Name {
		case "." + oidSysDescr, oidSysDescr:
			fields["sys_descr"] = val
		case "." + oidSysObjectID, oidSysObjectID:
			fields["sys_object_id"] = val
			if vendor := vendorFor(val); vendor != "" {
				fields["vendor"] = vendor
			}
		case "." + oidSysName, oidSysName:
			fields["sys_name"] = val
		case "." + oidSysLocation, oidSysLocation:
			fields["sys_location"] = val
		}
	}

	if fields["sys_descr"] == nil && fields["sys_name"] == nil {
		return nil, false
	}

	if isPrinter(client, oidSysDescr) {
		fields["is_printer"] = true
	}

	return fields, true
}

// isPrinter walks the Printer-MIB subtree with a single bounded GetNext;
// any reply under printerMIBPrefix marks the device a printer.
func isPrinter(client *gosnmp.GoSNMP, _ string) bool {
	result, err := client.GetNext([]string{printerMIBPrefix})
	if err != nil || len(result.Variables) == 0 {
		return false
	}

	name := strings.TrimPrefix(result.Variables[0].Name, ".")

	return strings.HasPrefix(name, printerMIBPrefix)
}

func pduString(v gosnmp.SnmpPDU) string {
	switch val := v.Value.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return ""
	}
}

// vendorFor resolves the longest matching enterprise-OID prefix from
// vendorOIDs.
func vendorFor(sysObjectID string) string {
	oid := strings.TrimPrefix(sysObjectID, ".")

	best := ""
	bestLen := 0

	for prefix, vendor := range vendorOIDs {
		if strings.HasPrefix(oid, prefix) && len(prefix) > bestLen {
			best = vendor
			bestLen = len(prefix)
		}
	}

	return best
}

func (Adapter) finish(host string, fields map[string]interface{}, opts adapters.Options) []adapters.Metric {
	if isPrinter, ok := fields["is_printer"].(bool); ok && isPrinter && opts.Registry != nil {
		opts.Registry.MarkPrinter(host, "snmp", fields)
	}

	return []adapters.Metric{{
		Name:      "snmp_system",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}
}
