// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package target

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/model"
)

func specs(weights ...uint8) []Spec {
	out := make([]Spec, len(weights))
	for i, w := range weights {
		out[i] = Spec{Address: model.MustIPAddr("10.0.0.1"), Port: uint16(8080 + i), Weight: w}
	}
	return out
}

func TestMakeTargetGroupValid(t *testing.T) {
	g, err := MakeTargetGroup(specs(50, 50))
	require.NoError(t, err)
	require.Equal(t, []uint16{50, 100}, g.CumulativeWeights)
}

func TestMakeTargetGroupWeightSumMismatch(t *testing.T) {
	_, err := MakeTargetGroup(specs(50, 40))
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.WeightSumMismatch, e.Kind)
}

func TestMakeTargetGroupTargetCountExceeded(t *testing.T) {
	_, err := MakeTargetGroup(specs(13, 13, 13, 13, 13, 13, 13, 9, 9))
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.TargetCountExceed, e.Kind)
}

func TestMakeTargetGroupDuplicateTarget(t *testing.T) {
	dup := []Spec{
		{Address: model.MustIPAddr("10.0.0.1"), Port: 80, Weight: 50},
		{Address: model.MustIPAddr("10.0.0.1"), Port: 80, Weight: 50},
	}
	_, err := MakeTargetGroup(dup)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.DuplicateTarget, e.Kind)
}

func TestMakeTargetGroupSingleTargetSkipsSumRule(t *testing.T) {
	g, err := MakeTargetGroup(specs(1))
	require.NoError(t, err)
	require.Equal(t, []uint16{100}, g.CumulativeWeights)
}

func TestPick(t *testing.T) {
	g, err := MakeTargetGroup(specs(30, 70))
	require.NoError(t, err)
	require.Equal(t, 0, Pick(g, 0))
	require.Equal(t, 0, Pick(g, 29))
	require.Equal(t, 1, Pick(g, 30))
	require.Equal(t, 1, Pick(g, 99))
}
