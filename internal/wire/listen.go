// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"
)

// ListenKeySize is the fixed size of a ListenKey on the wire.
const ListenKeySize = 8

// AddressFamily tags whether a listen key is for IPv4 or IPv6.
type AddressFamily uint16

const (
	AFInet  AddressFamily = 0
	AFInet6 AddressFamily = 1
)

// ListenKey identifies a listening ifindex/port/address-family tuple.
type ListenKey struct {
	Ifindex uint32
	Port    uint16
	AFTag   AddressFamily
}

// Encode writes the 8-byte wire form of k.
func (k ListenKey) Encode() []byte {
	buf := make([]byte, ListenKeySize)
	binary.LittleEndian.PutUint32(buf[0:4], k.Ifindex)
	binary.LittleEndian.PutUint16(buf[4:6], k.Port)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(k.AFTag))
	return buf
}

// DecodeListenKey parses the 8-byte wire form produced by Encode.
func DecodeListenKey(buf []byte) (ListenKey, error) {
	if len(buf) != ListenKeySize {
		return ListenKey{}, fmt.Errorf("wire: ListenKey wants %d bytes, got %d", ListenKeySize, len(buf))
	}
	var k ListenKey
	k.Ifindex = binary.LittleEndian.Uint32(buf[0:4])
	k.Port = binary.LittleEndian.Uint16(buf[4:6])
	k.AFTag = AddressFamily(binary.LittleEndian.Uint16(buf[6:8]))
	return k, nil
}
