// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package model holds the core data entities shared by every subsystem:
// targets, target groups, proxies, routes, and the observed connection and
// state records that flow between them.
package model

import (
	"fmt"
	"net"
)

// IPAddr is the unified 16-byte wire form for IPv4 and IPv6 addresses. IPv4
// addresses are stored as [0;12] ++ ipv4_bytes, matching the kernel map key
// layout byte for byte so callers never need a second representation.
type IPAddr [16]byte

// IPAddrFromNetIP converts a net.IP (4- or 16-byte form) to the unified
// representation.
func IPAddrFromNetIP(ip net.IP) (IPAddr, error) {
	var a IPAddr
	if v4 := ip.To4(); v4 != nil {
		copy(a[12:], v4)
		return a, nil
	}
	if v6 := ip.To16(); v6 != nil {
		copy(a[:], v6)
		return a, nil
	}
	return a, fmt.Errorf("model: invalid IP address %q", ip.String())
}

// MustIPAddr panics on a malformed address; used for literals in tests and
// static configuration.
func MustIPAddr(s string) IPAddr {
	ip := net.ParseIP(s)
	if ip == nil {
		panic(fmt.Sprintf("model: invalid IP literal %q", s))
	}
	a, err := IPAddrFromNetIP(ip)
	if err != nil {
		panic(err)
	}
	return a
}

// Is4 reports whether a holds an IPv4-mapped address (the first 12 bytes
// are zero).
func (a IPAddr) Is4() bool {
	for _, b := range a[:12] {
		if b != 0 {
			return false
		}
	}
	return true
}

// NetIP converts back to a net.IP, returning the 4-byte form for IPv4
// addresses.
func (a IPAddr) NetIP() net.IP {
	if a.Is4() {
		ip := make(net.IP, 4)
		copy(ip, a[12:])
		return ip
	}
	ip := make(net.IP, 16)
	copy(ip, a[:])
	return ip
}

func (a IPAddr) String() string {
	return a.NetIP().String()
}
