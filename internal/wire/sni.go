// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"
)

// SNIKeySize is the fixed size of an SNIKey on the wire.
const SNIKeySize = 8

// SNIKey is the map key for SNI-routed targets: the FNV-1a hash of the
// lower-cased hostname.
type SNIKey struct {
	HostnameHash uint64
}

// Encode writes the 8-byte wire form of k.
func (k SNIKey) Encode() []byte {
	buf := make([]byte, SNIKeySize)
	binary.LittleEndian.PutUint64(buf, k.HostnameHash)
	return buf
}

// DecodeSNIKey parses the 8-byte wire form produced by Encode.
func DecodeSNIKey(buf []byte) (SNIKey, error) {
	if len(buf) != SNIKeySize {
		return SNIKey{}, fmt.Errorf("wire: SNIKey wants %d bytes, got %d", SNIKeySize, len(buf))
	}
	return SNIKey{HostnameHash: binary.LittleEndian.Uint64(buf)}, nil
}

// SNIKeyForHostname builds the map key for a (lower-cased) hostname.
func SNIKeyForHostname(hostname string) SNIKey {
	return SNIKey{HostnameHash: HostnameHash(hostname)}
}
