// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// TestWireLayoutSizes pins each wire size constant to the byte count of the
// packed C struct in the kernel-map schema. It is our stand-in for cilium's
// alignchecker, which compares against BTF extracted from a compiled object
// file — this repo has no BPF object to load, so the "known good" layout is
// the spec's byte count instead.
func TestWireLayoutSizes(t *testing.T) {
	require.Equal(t, 20, LPMKeySize)
	require.Equal(t, 8, ListenKeySize)
	require.Equal(t, 40, ConntrackKeySize)
	require.Equal(t, 128, ConntrackValueSize)
	require.Equal(t, 8, RouteHeaderSize)
	require.Equal(t, 20, RouteRecordSize)
	require.Equal(t, 168, RouteValueMaxSize)
	require.Equal(t, 8, SNIKeySize)
	require.Equal(t, 28, ProxyV2HeaderSizeV4)
	require.Equal(t, 52, ProxyV2HeaderSizeV6)
}

// TestEncodedLengthsMatchSpec asserts that Encode() actually produces
// buffers of the documented length; the constants checked above say
// nothing about what Encode writes.
func TestEncodedLengthsMatchSpec(t *testing.T) {
	require.Equal(t, LPMKeySize, len(LPMKey{}.Encode()))
	require.Equal(t, ListenKeySize, len(ListenKey{}.Encode()))
	require.Equal(t, ConntrackKeySize, len(ConntrackKey{}.Encode()))
	require.Equal(t, ConntrackValueSize, len(ConntrackValue{}.Encode()))

	route := WeightedRoute{Records: make([]RouteRecord, MaxRouteTargets)}
	buf, err := route.Encode()
	require.NoError(t, err)
	require.Equal(t, RouteValueMaxSize, len(buf))

	require.Equal(t, SNIKeySize, len(SNIKey{}.Encode()))

	require.Equal(t, ProxyV2HeaderSizeV4, len(ProxyV2Header{}.Encode()))
	require.Equal(t, ProxyV2HeaderSizeV6, len(ProxyV2Header{IsIPv6: true}.Encode()))

	// sanity: unsafe.Sizeof on the records slice element matches the wire
	// record size once padding is accounted for (IP[16]+port u16+weight u8
	// rounds up to 20 with 1 byte of trailing Go padding, same as the wire
	// form's explicit pad byte).
	require.True(t, unsafe.Sizeof(RouteRecord{}) <= RouteRecordSize)
}
