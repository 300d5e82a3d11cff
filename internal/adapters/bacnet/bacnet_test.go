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

package bacnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mfreeman451/subnetradar/internal/adapters"
	"github.com/mfreeman451/subnetradar/internal/bacnetlimiter"
	"github.com/stretchr/testify/require"
)

func TestBuildWhoIsWrapsBVLCHeader(t *testing.T) {
	req := buildWhoIs()
	require.Equal(t, byte(bvlcTypeBACnetIP), req[0])
	require.Equal(t, byte(bvlcOriginalUnicast), req[1])
	require.Equal(t, pduUnconfirmedReq, int(req[4]))
	require.Equal(t, svcWhoIs, int(req[5]))
}

func TestParseIAmExtractsInstanceAndVendor(t *testing.T) {
	apdu := []byte{pduUnconfirmedReq, svcIAm}
	apdu = append(apdu, encodeObjectIdentifier(0x0C, (objTypeDevice<<22)|77)...)
	apdu = append(apdu, encodeUnsignedContext(0x22, 1476)...) // application-tagged unsigned (tag 2)
	apdu = append(apdu, encodeUnsignedContext(0x92, 0)...)    // enumerated
	apdu = append(apdu, encodeUnsignedContext(0x22, 24)...)   // vendor id

	pkt := wrapBVLC(apdu)

	instance, fields, ok := parseIAm(pkt)
	require.True(t, ok)
	require.Equal(t, 77, instance)
	require.Equal(t, 24, fields["vendor_id"])
}

func TestResolveVendorKnownID(t *testing.T) {
	fields := map[string]interface{}{"vendor_id": 24}
	resolveVendor(fields)
	require.Equal(t, "Siemens", fields["vendor"])
}

func TestDiscoverNoReplyReturnsEmpty(t *testing.T) {
	a := Adapter{}
	ctx := bacnetlimiter.WithContext(context.Background(), bacnetlimiter.New(2))

	metrics, err := a.Discover(ctx, "127.0.0.1", 1, adapters.Options{Timeout: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Empty(t, metrics)
}

func TestParseReadPropertyMultiAckDecodesValues(t *testing.T) {
	apdu := []byte{pduComplexAck, 0x05, svcReadPropertyAckMult}
	apdu = append(apdu, encodeObjectIdentifier(0x00, (objTypeDevice<<22)|42)...)
	apdu = append(apdu, 0x1E) // opening tag 1: list of results

	apdu = append(apdu, encodeUnsignedContext(0x20, propObjectName)...)
	apdu = append(apdu, 0x4E, 0x74, 0x00, 'A', 'H', 'U', 0x4F) // CharacterString "AHU"

	apdu = append(apdu, encodeUnsignedContext(0x20, propVendorID)...)
	apdu = append(apdu, 0x4E, 0x21, 24, 0x4F) // Unsigned 24

	apdu = append(apdu, 0x1F) // closing tag 1

	pkt := wrapBVLC(apdu)

	fields, ok := parseReadPropertyMultiAck(pkt)
	require.True(t, ok)
	require.Equal(t, "AHU", fields["object_name"])
	require.Equal(t, 24, fields["vendor_id"])
}

func TestParseReadPropertyMultiAckRejectsWrongServiceChoice(t *testing.T) {
	apdu := []byte{pduComplexAck, 0x05, svcReadProperty}
	apdu = append(apdu, encodeObjectIdentifier(0x00, (objTypeDevice<<22)|42)...)
	apdu = append(apdu, 0x1E, 0x1F)

	pkt := wrapBVLC(apdu)

	_, ok := parseReadPropertyMultiAck(pkt)
	require.False(t, ok)
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	limiter := bacnetlimiter.New(1)
	ctx := bacnetlimiter.WithContext(context.Background(), limiter)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port

	a := Adapter{}

	done := make(chan struct{})

	go func() {
		_, _ = a.Discover(ctx, "127.0.0.1", port, adapters.Options{Timeout: 300 * time.Millisecond})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, limiter.InUse())

	<-done
}
