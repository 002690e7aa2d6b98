// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfmap

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Ifindex resolves an interface name to its kernel ifindex, as needed to
// build a ListenKey. mapprog.Programmer calls it unless its Ifindex field
// is set, which lets tests avoid touching netlink.
func Ifindex(name string) (uint32, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, fmt.Errorf("bpfmap: resolve ifindex for %q: %w", name, err)
	}
	return uint32(link.Attrs().Index), nil
}
