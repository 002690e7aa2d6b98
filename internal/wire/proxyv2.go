// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/l4lb/internal/model"
)

// ProxyV2Signature is the fixed 12-byte PROXY protocol v2 signature.
var ProxyV2Signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	proxyV2VersionCommand = 0x21 // version 2, PROXY command
	proxyV2FamilyV4       = 0x11 // AF_INET, SOCK_STREAM
	proxyV2FamilyV6       = 0x21 // AF_INET6, SOCK_STREAM

	// ProxyV2HeaderSizeV4 and ProxyV2HeaderSizeV6 are the full header
	// sizes (signature + fixed fields + address block) for each family.
	ProxyV2HeaderSizeV4 = 28
	ProxyV2HeaderSizeV6 = 52
)

// ProxyV2Header is the decoded form of a PROXY protocol v2 header, all
// fields big-endian on the wire.
type ProxyV2Header struct {
	IsIPv6  bool
	SrcIP   model.IPAddr
	DstIP   model.IPAddr
	SrcPort uint16
	DstPort uint16
}

// Encode writes the big-endian PROXY v2 header for h: 28 bytes for IPv4,
// 52 bytes for IPv6.
func (h ProxyV2Header) Encode() []byte {
	addrLen := 12
	family := byte(proxyV2FamilyV4)
	if h.IsIPv6 {
		addrLen = 36
		family = proxyV2FamilyV6
	}
	buf := make([]byte, 16+addrLen)
	copy(buf[0:12], ProxyV2Signature[:])
	buf[12] = proxyV2VersionCommand
	buf[13] = family
	binary.BigEndian.PutUint16(buf[14:16], uint16(addrLen))

	off := 16
	if h.IsIPv6 {
		copy(buf[off:off+16], h.SrcIP[:])
		copy(buf[off+16:off+32], h.DstIP[:])
		binary.BigEndian.PutUint16(buf[off+32:off+34], h.SrcPort)
		binary.BigEndian.PutUint16(buf[off+34:off+36], h.DstPort)
	} else {
		copy(buf[off:off+4], h.SrcIP[12:16])
		copy(buf[off+4:off+8], h.DstIP[12:16])
		binary.BigEndian.PutUint16(buf[off+8:off+10], h.SrcPort)
		binary.BigEndian.PutUint16(buf[off+10:off+12], h.DstPort)
	}
	return buf
}

// DecodeProxyV2Header parses a PROXY v2 header produced by Encode.
func DecodeProxyV2Header(buf []byte) (ProxyV2Header, error) {
	if len(buf) < 16 {
		return ProxyV2Header{}, fmt.Errorf("wire: ProxyV2Header too short: %d bytes", len(buf))
	}
	var sig [12]byte
	copy(sig[:], buf[0:12])
	if sig != ProxyV2Signature {
		return ProxyV2Header{}, fmt.Errorf("wire: bad PROXY v2 signature")
	}
	if buf[12] != proxyV2VersionCommand {
		return ProxyV2Header{}, fmt.Errorf("wire: unsupported PROXY v2 version/command byte 0x%02x", buf[12])
	}
	family := buf[13]
	addrLen := int(binary.BigEndian.Uint16(buf[14:16]))
	if len(buf) != 16+addrLen {
		return ProxyV2Header{}, fmt.Errorf("wire: ProxyV2Header wants %d bytes, got %d", 16+addrLen, len(buf))
	}

	var h ProxyV2Header
	off := 16
	switch family {
	case proxyV2FamilyV4:
		if addrLen != 12 {
			return ProxyV2Header{}, fmt.Errorf("wire: v4 PROXY v2 header wants address length 12, got %d", addrLen)
		}
		var src, dst [4]byte
		copy(src[:], buf[off:off+4])
		copy(dst[:], buf[off+4:off+8])
		h.SrcIP, _ = model.IPAddrFromNetIP(src[:])
		h.DstIP, _ = model.IPAddrFromNetIP(dst[:])
		h.SrcPort = binary.BigEndian.Uint16(buf[off+8 : off+10])
		h.DstPort = binary.BigEndian.Uint16(buf[off+10 : off+12])
	case proxyV2FamilyV6:
		if addrLen != 36 {
			return ProxyV2Header{}, fmt.Errorf("wire: v6 PROXY v2 header wants address length 36, got %d", addrLen)
		}
		h.IsIPv6 = true
		copy(h.SrcIP[:], buf[off:off+16])
		copy(h.DstIP[:], buf[off+16:off+32])
		h.SrcPort = binary.BigEndian.Uint16(buf[off+32 : off+34])
		h.DstPort = binary.BigEndian.Uint16(buf[off+34 : off+36])
	default:
		return ProxyV2Header{}, fmt.Errorf("wire: unsupported PROXY v2 family/proto byte 0x%02x", family)
	}
	return h, nil
}
