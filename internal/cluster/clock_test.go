// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLamportClockMonotonic(t *testing.T) {
	var c LamportClock
	require.Equal(t, uint64(1), c.NextVersion())
	require.Equal(t, uint64(2), c.NextVersion())
}

func TestLamportClockObserveAdvancesPastRemote(t *testing.T) {
	var c LamportClock
	c.NextVersion() // 1
	c.Observe(50)
	require.Equal(t, uint64(51), c.NextVersion())
}

func TestLamportClockObserveIgnoresOlderRemote(t *testing.T) {
	var c LamportClock
	c.Observe(50)
	c.Observe(10)
	require.Equal(t, uint64(51), c.NextVersion())
}
