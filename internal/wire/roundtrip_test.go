// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/model"
)

func TestLPMKeyRoundTrip(t *testing.T) {
	k := LPMKey{PrefixLen: 24, IP: model.MustIPAddr("10.0.0.0")}
	got, err := DecodeLPMKey(k.Encode())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(k, got))
}

func TestListenKeyRoundTrip(t *testing.T) {
	k := ListenKey{Ifindex: 7, Port: 8443, AFTag: AFInet6}
	got, err := DecodeListenKey(k.Encode())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(k, got))
}

func TestConntrackKeyRoundTrip(t *testing.T) {
	k := ConntrackKey{
		SrcIP:    model.MustIPAddr("192.168.1.5"),
		DstIP:    model.MustIPAddr("10.0.0.1"),
		SrcPort:  54321,
		DstPort:  8080,
		Protocol: 6,
	}
	got, err := DecodeConntrackKey(k.Encode())
	require.NoError(t, err)
	require.Equal(t, k.SrcIP, got.SrcIP)
	require.Equal(t, k.DstIP, got.DstIP)
	require.Equal(t, k.SrcPort, got.SrcPort)
	require.Equal(t, k.DstPort, got.DstPort)
	require.Equal(t, k.Protocol, got.Protocol)
}

func TestConntrackValueRoundTrip(t *testing.T) {
	v := ConntrackValue{
		OrigDstIP:      model.MustIPAddr("10.0.0.1"),
		NATDstIP:       model.MustIPAddr("10.0.0.2"),
		OrigDstPort:    8080,
		NATDstPort:     8081,
		LastSeenNs:     123456789,
		PacketsFwd:     10,
		PacketsRev:     20,
		BytesFwd:       1000,
		BytesRev:       2000,
		ConnState:      2,
		ProxyFlags:     3,
		SeqOffset:      28,
		OrigClientIP:   model.MustIPAddr("203.0.113.9"),
		OrigClientPort: 443,
	}
	got, err := DecodeConntrackValue(v.Encode())
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(v, got, cmp.AllowUnexported(ConntrackValue{})))
}

func TestWeightedRouteRoundTrip(t *testing.T) {
	r := WeightedRoute{
		Flags: RouteFlagSessionPersistence | RouteFlagProxyProtocolV2,
		Records: []RouteRecord{
			{IP: model.MustIPAddr("10.0.0.1"), Port: 8080, CumulativeWeight: 50},
			{IP: model.MustIPAddr("10.0.0.2"), Port: 8080, CumulativeWeight: 100},
		},
	}
	buf, err := r.Encode()
	require.NoError(t, err)
	got, err := DecodeWeightedRoute(buf)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(r, got))
}

// TestWeightedRoutePreservesUnknownFlagBits asserts §4.1's round-trip
// invariant for bits the encoder doesn't interpret: reserved bit 1 and any
// high bits must survive encode/decode unchanged.
func TestWeightedRoutePreservesUnknownFlagBits(t *testing.T) {
	r := WeightedRoute{
		Flags:   RouteFlag(0xBEEF),
		Records: []RouteRecord{{IP: model.MustIPAddr("10.0.0.1"), Port: 80, CumulativeWeight: 100}},
	}
	buf, err := r.Encode()
	require.NoError(t, err)
	got, err := DecodeWeightedRoute(buf)
	require.NoError(t, err)
	require.Equal(t, r.Flags, got.Flags)
}

func TestSNIKeyRoundTrip(t *testing.T) {
	k := SNIKeyForHostname("Example.COM")
	got, err := DecodeSNIKey(k.Encode())
	require.NoError(t, err)
	require.Equal(t, k, got)
}

// TestHostnameHashCaseInsensitive asserts §8's hash(upper(h)) == hash(lower(h)).
func TestHostnameHashCaseInsensitive(t *testing.T) {
	require.Equal(t, HostnameHash("EXAMPLE.com"), HostnameHash("example.COM"))
}

func TestProxyV2HeaderRoundTripV4(t *testing.T) {
	h := ProxyV2Header{
		SrcIP:   model.MustIPAddr("203.0.113.9"),
		DstIP:   model.MustIPAddr("10.0.0.1"),
		SrcPort: 54321,
		DstPort: 8080,
	}
	got, err := DecodeProxyV2Header(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestProxyV2HeaderRoundTripV6(t *testing.T) {
	h := ProxyV2Header{
		IsIPv6:  true,
		SrcIP:   model.MustIPAddr("2001:db8::1"),
		DstIP:   model.MustIPAddr("2001:db8::2"),
		SrcPort: 54321,
		DstPort: 8080,
	}
	got, err := DecodeProxyV2Header(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestProxyV2HeaderRejectsBadSignature(t *testing.T) {
	h := ProxyV2Header{SrcIP: model.MustIPAddr("10.0.0.1"), DstIP: model.MustIPAddr("10.0.0.2")}
	buf := h.Encode()
	buf[0] ^= 0xFF
	_, err := DecodeProxyV2Header(buf)
	require.Error(t, err)
}

func TestRateLimitValueRoundTrip(t *testing.T) {
	v := RateLimitValue{RatePerSec: 5000, Burst: 200}
	got, err := DecodeRateLimitValue(v.Encode())
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestBackendKeyRoundTrip(t *testing.T) {
	k := BackendKey{IP: model.MustIPAddr("10.0.0.1"), Port: 8080}
	got, err := DecodeBackendKey(k.Encode())
	require.NoError(t, err)
	require.Equal(t, k, got)
}
