// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package model

// ConnState mirrors the kernel conntrack entry's connection state.
type ConnState uint8

const (
	ConnNew ConnState = iota
	ConnSynSent
	ConnSynRecv
	ConnEstablished
)

// ProxyFlag bits recorded in a conntrack entry for PROXY v2 bookkeeping.
type ProxyFlag uint8

const (
	ProxyFlagEnabled        ProxyFlag = 1 << 0
	ProxyFlagHeaderInjected ProxyFlag = 1 << 1
)

// ConnectionKey identifies one observed connection by client/backend
// 5-tuple, as read from the kernel conntrack map.
type ConnectionKey struct {
	SrcIP    IPAddr
	DstIP    IPAddr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Connection is a read-only snapshot of one kernel conntrack entry.
type Connection struct {
	Key               ConnectionKey
	OrigDst           IPAddr
	OrigDstPort       uint16
	NATDst            IPAddr
	NATDstPort        uint16
	CreatedAtNs       int64
	LastSeenNs        int64
	PacketsFwd        uint32
	PacketsRev        uint32
	BytesFwd          uint64
	BytesRev          uint64
	State             ConnState
	ProxyFlags        ProxyFlag
	SeqOffset         uint16
	OrigClientIP      IPAddr
	OrigClientPort    uint16
}
