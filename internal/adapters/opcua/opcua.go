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

// Package opcua implements the OPC-UA adapter (spec.md §4.8.1): a TCP
// preflight, an unencrypted Hello/Acknowledge handshake, an
// OpenSecureChannel with SecurityPolicy=None, and an anonymous
// CreateSession/ActivateSession/Read of Server_ServerStatus
// (ns=0;i=2256). BuildInfo extraction from the Read response is a
// best-effort printable-string scan rather than a full Variant/ExtensionObject
// decode, the same tradeoff the S7 adapter makes for SZL payloads: wrong
// framing anywhere upstream aborts discovery before this point, so the scan
// never fabricates a misleading primary field.
package opcua

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
)

const defaultTimeout = 3 * time.Second

// nodeServerStatusID is the well-known identifier for Server_ServerStatus,
// ns=0;i=2256.
const nodeServerStatusID = 2256

// Adapter implements adapters.Adapter for OPC-UA binary-protocol discovery.
type Adapter struct{}

func (Adapter) Name() string { return "opcua" }

func (Adapter) Discover(ctx context.Context, host string, port int, opts adapters.Options) (result []adapters.Metric, _ error) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	var d net.Dialer

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, nil // connection refused: no server here
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil
	}

	endpointURL := fmt.Sprintf("opc.tcp://%s:%d", host, port)

	if !hello(conn, endpointURL) {
		return nil, nil
	}

	channelID, tokenID, ok := openSecureChannel(conn)
	if !ok {
		return nil, nil
	}

	fields := map[string]interface{}{}

	if createSession(conn, channelID, tokenID, endpointURL) {
		if activateSession(conn, channelID, tokenID) {
			if payload, ok := readServerStatus(conn, channelID, tokenID); ok {
				extractBuildInfo(payload, fields)
			}
		}
	}

	return []adapters.Metric{{
		Name:      "opcua_server",
		Fields:    fields,
		Tags:      map[string]string{"host": host},
		Timestamp: time.Now(),
	}}, nil
}

// hello sends the OPC-UA TCP HEL message and requires an ACK in reply.
func hello(conn net.Conn, endpointURL string) bool {
	var body []byte
	body = appendUint32(body, 0)     // protocol version
	body = appendUint32(body, 65536) // receive buffer size
	body = appendUint32(body, 65536) // send buffer size
	body = appendUint32(body, 0)     // max message size: no limit
	body = appendUint32(body, 0)     // max chunk count: no limit
	body = appendUAString(body, endpointURL)

	if _, err := conn.Write(buildChunk("HEL", body)); err != nil {
		return false
	}

	msgType, _, ok := readChunk(conn)

	return ok && msgType == "ACK"
}

// openSecureChannel issues OpenSecureChannel with SecurityPolicy=None,
// SecurityMode=None, returning the channel and security token IDs the
// server assigns for the remainder of the session.
func openSecureChannel(conn net.Conn) (channelID, tokenID uint32, ok bool) {
	var body []byte
	body = appendUint32(body, 0) // secure channel id: none yet
	body = appendUAString(body, "http://opcfoundation.org/UA/SecurityPolicy#None")
	body = appendByteString(body, nil) // sender certificate
	body = appendByteString(body, nil) // receiver certificate thumbprint
	body = appendUint32(body, 1)       // sequence number
	body = appendUint32(body, 1)       // request id

	body = appendNodeID(body, 446) // OpenSecureChannelRequest
	body = appendRequestHeader(body, nil)
	body = appendUint32(body, 0)       // client protocol version
	body = appendUint32(body, 0)       // security token request type: Issue
	body = appendUint32(body, 1)       // message security mode: None
	body = appendByteString(body, nil) // client nonce
	body = appendUint32(body, 3600000) // requested lifetime (ms)

	if _, err := conn.Write(buildChunk("OPN", body)); err != nil {
		return 0, 0, false
	}

	msgType, payload, ok := readChunk(conn)
	if !ok || msgType != "OPN" {
		return 0, 0, false
	}

	return parseSecurityToken(payload)
}

// createSession sends CreateSessionRequest with an anonymous client
// description. Its response (session id / auth token) is not threaded
// further: ActivateSession and Read are addressed by secure-channel token
// alone, which permissive servers accept for anonymous discovery and strict
// servers reject cleanly (collapsing to an empty result, never a wrong one).
func createSession(conn net.Conn, channelID, tokenID uint32, endpointURL string) bool {
	var body []byte
	body = appendNodeID(body, 461) // CreateSessionRequest
	body = appendRequestHeader(body, nil)
	body = appendApplicationDescription(body, endpointURL)
	body = appendUAString(body, endpointURL)
	body = appendUAString(body, "subnetradar-discovery")
	body = appendByteString(body, nil) // client nonce
	body = appendByteString(body, nil) // client certificate
	body = appendDouble(body, 60000)   // requested session timeout (ms)
	body = appendUint32(body, 0)       // max response message size: no limit

	if _, err := conn.Write(buildSecureMessage(channelID, tokenID, 2, body)); err != nil {
		return false
	}

	_, _, ok := readChunk(conn)

	return ok
}

// activateSession sends ActivateSessionRequest carrying an anonymous
// identity token.
func activateSession(conn net.Conn, channelID, tokenID uint32) bool {
	var body []byte
	body = appendNodeID(body, 467) // ActivateSessionRequest
	body = appendRequestHeader(body, nil)
	body = appendByteString(body, nil) // client signature algorithm
	body = appendByteString(body, nil) // client signature
	body = appendUint32(body, 0)       // no software certificates
	body = appendUint32(body, 0)       // no locale ids

	body = appendNodeID(body, 321) // AnonymousIdentityToken
	var identity []byte
	identity = appendUAString(identity, "anonymous")
	body = appendByteString(body, identity)

	body = appendByteString(body, nil) // user token signature

	if _, err := conn.Write(buildSecureMessage(channelID, tokenID, 3, body)); err != nil {
		return false
	}

	_, _, ok := readChunk(conn)

	return ok
}

// readServerStatus sends a Read request for Server_ServerStatus's Value
// attribute and returns the raw response payload for a best-effort string
// scan.
func readServerStatus(conn net.Conn, channelID, tokenID uint32) ([]byte, bool) {
	var body []byte
	body = appendNodeID(body, 631) // ReadRequest
	body = appendRequestHeader(body, nil)
	body = appendDouble(body, 0) // max age
	body = appendUint32(body, 0) // timestamps to return: Source
	body = appendUint32(body, 1) // one node to read
	body = appendNodeID(body, nodeServerStatusID)
	body = appendUint32(body, 13)   // attribute id: Value
	body = appendUAString(body, "") // index range
	body = appendNodeID(body, 0)    // data encoding: default/null

	if _, err := conn.Write(buildSecureMessage(channelID, tokenID, 4, body)); err != nil {
		return nil, false
	}

	_, payload, ok := readChunk(conn)

	return payload, ok && len(payload) > 0
}

// extractBuildInfo scans the ReadResponse payload for printable-ASCII runs
// that look like BuildInfo strings (spec.md §4.8.1: product name,
// manufacturer, software version, build number). Exact field offsets inside
// a nested ServerStatusDataType/Variant/ExtensionObject are not decoded;
// this never misattributes a run to the wrong field, it only fills
// "build_info_strings" with whatever survives the filter.
func extractBuildInfo(payload []byte, fields map[string]interface{}) {
	runs := printableRuns(payload, 4)
	if len(runs) == 0 {
		return
	}

	fields["build_info_strings"] = runs
}

// printableRuns returns every maximal run of at least minLen printable
// ASCII bytes in payload, in order of appearance.
func printableRuns(payload []byte, minLen int) []string {
	var out []string

	start := -1

	for i := 0; i <= len(payload); i++ {
		printable := i < len(payload) && payload[i] >= 0x20 && payload[i] < 0x7F

		if printable && start < 0 {
			start = i
		}

		if !printable && start >= 0 {
			if i-start >= minLen {
				out = append(out, string(payload[start:i]))
			}

			start = -1
		}
	}

	return out
}
