// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import "github.com/cilium/l4lb/internal/lock"

// LamportClock implements spec §4.10's versioning rule: every local
// mutation calls NextVersion, which returns clock+1. Observing a remote
// version v advances the clock to max(clock, v) before any subsequent
// NextVersion call, so local versions always postdate any version seen
// from a peer.
type LamportClock struct {
	mu    lock.Mutex
	value uint64
}

// NextVersion advances and returns the clock.
func (c *LamportClock) NextVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Observe folds a remote version into the clock without producing a new
// local version.
func (c *LamportClock) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.value {
		c.value = remote
	}
}

// Value returns the current clock value.
func (c *LamportClock) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
