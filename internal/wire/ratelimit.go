// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/l4lb/internal/model"
)

// RateLimitValueSize and BackendKeySize are the fixed wire sizes of the
// rate-limit map's value and the per-backend map's key.
const (
	RateLimitValueSize = 8
	BackendKeySize     = 18
)

// RateLimitValue is a {rate,burst} pair, keyed by CIDR (per-source, reusing
// LPMKey) or by backend (per-backend, BackendKey).
type RateLimitValue struct {
	RatePerSec uint32
	Burst      uint32
}

// Encode writes the 8-byte wire form of v.
func (v RateLimitValue) Encode() []byte {
	buf := make([]byte, RateLimitValueSize)
	binary.LittleEndian.PutUint32(buf[0:4], v.RatePerSec)
	binary.LittleEndian.PutUint32(buf[4:8], v.Burst)
	return buf
}

// DecodeRateLimitValue parses the 8-byte wire form produced by Encode.
func DecodeRateLimitValue(buf []byte) (RateLimitValue, error) {
	if len(buf) != RateLimitValueSize {
		return RateLimitValue{}, fmt.Errorf("wire: RateLimitValue wants %d bytes, got %d", RateLimitValueSize, len(buf))
	}
	return RateLimitValue{
		RatePerSec: binary.LittleEndian.Uint32(buf[0:4]),
		Burst:      binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// BackendKey identifies a per-backend rate-limit bucket.
type BackendKey struct {
	IP   model.IPAddr
	Port uint16
}

// Encode writes the 18-byte wire form of k.
func (k BackendKey) Encode() []byte {
	buf := make([]byte, BackendKeySize)
	copy(buf[0:16], k.IP[:])
	binary.LittleEndian.PutUint16(buf[16:18], k.Port)
	return buf
}

// DecodeBackendKey parses the 18-byte wire form produced by Encode.
func DecodeBackendKey(buf []byte) (BackendKey, error) {
	if len(buf) != BackendKeySize {
		return BackendKey{}, fmt.Errorf("wire: BackendKey wants %d bytes, got %d", BackendKeySize, len(buf))
	}
	var k BackendKey
	copy(k.IP[:], buf[0:16])
	k.Port = binary.LittleEndian.Uint16(buf[16:18])
	return k, nil
}
