// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package wire

import "strings"

const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// HostnameHash computes the FNV-1a hash of the lower-cased ASCII bytes of
// hostname, used as the SNI map key. Matches the offset basis and prime
// from the kernel-side hashing so a Go-computed hash and a kernel lookup
// agree bit for bit.
func HostnameHash(hostname string) uint64 {
	lower := strings.ToLower(hostname)
	h := fnvOffsetBasis
	for i := 0; i < len(lower); i++ {
		h ^= uint64(lower[i])
		h *= fnvPrime
	}
	return h
}
