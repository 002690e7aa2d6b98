// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/l4lb/internal/model"
)

// ConntrackKeySize and ConntrackValueSize are the fixed wire sizes of the
// conntrack map's key and value, matching the kernel-side struct layout
// byte for byte.
const (
	ConntrackKeySize   = 40
	ConntrackValueSize = 128
)

// ConntrackKey is the client/backend 5-tuple the kernel keys conntrack
// entries by.
type ConntrackKey struct {
	SrcIP    model.IPAddr
	DstIP    model.IPAddr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	// pad:u8, reserved:u16 are preserved but unused.
	pad      uint8
	reserved uint16
}

// Encode writes the 40-byte wire form of k.
func (k ConntrackKey) Encode() []byte {
	buf := make([]byte, ConntrackKeySize)
	copy(buf[0:16], k.SrcIP[:])
	copy(buf[16:32], k.DstIP[:])
	binary.LittleEndian.PutUint16(buf[32:34], k.SrcPort)
	binary.LittleEndian.PutUint16(buf[34:36], k.DstPort)
	buf[36] = k.Protocol
	buf[37] = k.pad
	binary.LittleEndian.PutUint16(buf[38:40], k.reserved)
	return buf
}

// DecodeConntrackKey parses the 40-byte wire form produced by Encode.
func DecodeConntrackKey(buf []byte) (ConntrackKey, error) {
	if len(buf) != ConntrackKeySize {
		return ConntrackKey{}, fmt.Errorf("wire: ConntrackKey wants %d bytes, got %d", ConntrackKeySize, len(buf))
	}
	var k ConntrackKey
	copy(k.SrcIP[:], buf[0:16])
	copy(k.DstIP[:], buf[16:32])
	k.SrcPort = binary.LittleEndian.Uint16(buf[32:34])
	k.DstPort = binary.LittleEndian.Uint16(buf[34:36])
	k.Protocol = buf[36]
	k.pad = buf[37]
	k.reserved = binary.LittleEndian.Uint16(buf[38:40])
	return k, nil
}

// ConnState and ProxyFlags mirror model.ConnState / model.ProxyFlag on the
// wire; kept as distinct uint8 fields here so Encode/Decode need no
// knowledge of the model package's semantics beyond pass-through storage.
type ConntrackValue struct {
	OrigDstIP      model.IPAddr
	NATDstIP       model.IPAddr
	OrigDstPort    uint16
	NATDstPort     uint16
	LastSeenNs     uint64
	PacketsFwd     uint32
	PacketsRev     uint32
	BytesFwd       uint64
	BytesRev       uint64
	ConnState      uint8
	ProxyFlags     uint8
	SeqOffset      uint16
	OrigClientIP   model.IPAddr
	OrigClientPort uint16
	// pad fills out the remaining bytes to ConntrackValueSize and is
	// preserved verbatim across Encode/Decode.
	pad [38]byte
}

// Encode writes the 128-byte wire form of v.
func (v ConntrackValue) Encode() []byte {
	buf := make([]byte, ConntrackValueSize)
	copy(buf[0:16], v.OrigDstIP[:])
	copy(buf[16:32], v.NATDstIP[:])
	binary.LittleEndian.PutUint16(buf[32:34], v.OrigDstPort)
	binary.LittleEndian.PutUint16(buf[34:36], v.NATDstPort)
	binary.LittleEndian.PutUint64(buf[36:44], v.LastSeenNs)
	binary.LittleEndian.PutUint32(buf[44:48], v.PacketsFwd)
	binary.LittleEndian.PutUint32(buf[48:52], v.PacketsRev)
	binary.LittleEndian.PutUint64(buf[52:60], v.BytesFwd)
	binary.LittleEndian.PutUint64(buf[60:68], v.BytesRev)
	buf[68] = v.ConnState
	buf[69] = v.ProxyFlags
	binary.LittleEndian.PutUint16(buf[70:72], v.SeqOffset)
	copy(buf[72:88], v.OrigClientIP[:])
	binary.LittleEndian.PutUint16(buf[88:90], v.OrigClientPort)
	copy(buf[90:128], v.pad[:])
	return buf
}

// DecodeConntrackValue parses the 128-byte wire form produced by Encode.
func DecodeConntrackValue(buf []byte) (ConntrackValue, error) {
	if len(buf) != ConntrackValueSize {
		return ConntrackValue{}, fmt.Errorf("wire: ConntrackValue wants %d bytes, got %d", ConntrackValueSize, len(buf))
	}
	var v ConntrackValue
	copy(v.OrigDstIP[:], buf[0:16])
	copy(v.NATDstIP[:], buf[16:32])
	v.OrigDstPort = binary.LittleEndian.Uint16(buf[32:34])
	v.NATDstPort = binary.LittleEndian.Uint16(buf[34:36])
	v.LastSeenNs = binary.LittleEndian.Uint64(buf[36:44])
	v.PacketsFwd = binary.LittleEndian.Uint32(buf[44:48])
	v.PacketsRev = binary.LittleEndian.Uint32(buf[48:52])
	v.BytesFwd = binary.LittleEndian.Uint64(buf[52:60])
	v.BytesRev = binary.LittleEndian.Uint64(buf[60:68])
	v.ConnState = buf[68]
	v.ProxyFlags = buf[69]
	v.SeqOffset = binary.LittleEndian.Uint16(buf[70:72])
	copy(v.OrigClientIP[:], buf[72:88])
	v.OrigClientPort = binary.LittleEndian.Uint16(buf[88:90])
	copy(v.pad[:], buf[90:128])
	return v, nil
}
