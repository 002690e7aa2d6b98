// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeMapInsertLookupDelete(t *testing.T) {
	m := NewFakeMap[string, int]()

	_, ok, err := m.Lookup("a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Insert("a", 1))
	v, ok, err := m.Lookup("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.NoError(t, m.Delete("a"))
	_, ok, err = m.Lookup("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFakeMapIterate(t *testing.T) {
	m := NewFakeMap[int, int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Insert(i, i*i))
	}
	seen := map[int]int{}
	require.NoError(t, m.Iterate(func(k, v int) bool {
		seen[k] = v
		return true
	}))
	require.Len(t, seen, 5)
	require.Equal(t, 16, seen[4])
}
