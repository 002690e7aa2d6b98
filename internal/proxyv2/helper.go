// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package proxyv2 provides the user-space encode/decode helper and
// conntrack bookkeeping for PROXY protocol v2 header injection described in
// spec §4.12. The injection itself — splicing the header into the first
// data segment and adjusting TCP sequence numbers — is performed by the
// kernel datapath; this package only builds the header bytes from a
// captured conntrack entry and records the bookkeeping fields the kernel
// needs to avoid re-injecting on every subsequent packet.
package proxyv2

import (
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/wire"
)

// BuildHeader constructs the PROXY v2 header for a connection's original
// client endpoint, choosing the v4/v6 form from whether the client address
// is IPv4-mapped.
func BuildHeader(conn model.Connection) wire.ProxyV2Header {
	return wire.ProxyV2Header{
		IsIPv6:  !conn.OrigClientIP.Is4(),
		SrcIP:   conn.OrigClientIP,
		DstIP:   conn.NATDst,
		SrcPort: conn.OrigClientPort,
		DstPort: conn.NATDstPort,
	}
}

// InjectionUpdate computes the conntrack bookkeeping fields that must be
// written back after a header has been synthesized for a connection:
// seq_offset equal to the injected byte count, and proxy_flags with
// HeaderInjected set (Enabled is preserved from the existing value).
func InjectionUpdate(conn model.Connection) (seqOffset uint16, flags model.ProxyFlag) {
	hdr := BuildHeader(conn)
	n := len(hdr.Encode())
	return uint16(n), conn.ProxyFlags | model.ProxyFlagHeaderInjected
}
