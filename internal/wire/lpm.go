// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/l4lb/internal/model"
)

// LPMKeySize is the fixed, no-padding size of an LPMKey on the wire.
const LPMKeySize = 20

// LPMKey is the unified longest-prefix-match key used for source-route
// entries: prefix_len:u32 followed by a 16-byte unified IP.
type LPMKey struct {
	PrefixLen uint32
	IP        model.IPAddr
}

// Encode writes the 20-byte wire form of k.
func (k LPMKey) Encode() []byte {
	buf := make([]byte, LPMKeySize)
	binary.LittleEndian.PutUint32(buf[0:4], k.PrefixLen)
	copy(buf[4:20], k.IP[:])
	return buf
}

// DecodeLPMKey parses the 20-byte wire form produced by Encode.
func DecodeLPMKey(buf []byte) (LPMKey, error) {
	if len(buf) != LPMKeySize {
		return LPMKey{}, fmt.Errorf("wire: LPMKey wants %d bytes, got %d", LPMKeySize, len(buf))
	}
	var k LPMKey
	k.PrefixLen = binary.LittleEndian.Uint32(buf[0:4])
	copy(k.IP[:], buf[4:20])
	return k, nil
}
