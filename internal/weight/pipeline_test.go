// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package weight

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/model"
)

func sum(ws []uint8) int {
	var s int
	for _, w := range ws {
		s += int(w)
	}
	return s
}

func id(n byte) model.TargetID {
	return model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: uint16(n)}
}

func TestComputeAllHealthySumsTo100(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 70, Healthy: true, CircuitState: model.CircuitClosed},
		{ID: id(2), OriginalWeight: 30, Healthy: true, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, 100, sum(out))
	require.Equal(t, uint8(70), out[0])
	require.Equal(t, uint8(30), out[1])
}

func TestComputeUnhealthyTargetRedistributes(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 50, Healthy: false, CircuitState: model.CircuitClosed},
		{ID: id(2), OriginalWeight: 50, Healthy: true, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, 100, sum(out))
	require.Equal(t, uint8(0), out[0])
	require.Equal(t, uint8(100), out[1])
}

func TestComputeAllUnhealthyGracefullyDegrades(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 60, Healthy: false, CircuitState: model.CircuitClosed},
		{ID: id(2), OriginalWeight: 40, Healthy: false, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, 100, sum(out))
	require.Equal(t, uint8(60), out[0])
	require.Equal(t, uint8(40), out[1])
}

func TestComputeDrainingTargetZeroed(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 50, Healthy: true, Draining: true, CircuitState: model.CircuitClosed},
		{ID: id(2), OriginalWeight: 50, Healthy: true, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, uint8(0), out[0])
	require.Equal(t, uint8(100), out[1])
}

func TestComputeCircuitOpenZeroedHalfOpenReduced(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 50, Healthy: true, CircuitState: model.CircuitOpen},
		{ID: id(2), OriginalWeight: 30, Healthy: true, CircuitState: model.CircuitHalfOpen},
		{ID: id(3), OriginalWeight: 20, Healthy: true, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, 100, sum(out))
	require.Equal(t, uint8(0), out[0])
	require.Greater(t, out[1], uint8(0))
	require.Less(t, out[1], uint8(30))
}

func TestComputeLeastConnectionsWeighted(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 50, Healthy: true, CircuitState: model.CircuitClosed, ConnectionCount: 0},
		{ID: id(2), OriginalWeight: 50, Healthy: true, CircuitState: model.CircuitClosed, ConnectionCount: 9},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmLeastConnections, Weighted: true})
	require.Equal(t, 100, sum(out))
	require.Greater(t, out[0], out[1], "target with fewer connections should get more weight")
}

func TestComputeLeastConnectionsPureMode(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 10, Healthy: true, CircuitState: model.CircuitClosed, ConnectionCount: 0},
		{ID: id(2), OriginalWeight: 90, Healthy: true, CircuitState: model.CircuitClosed, ConnectionCount: 99},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmLeastConnections, Weighted: false})
	require.Equal(t, 100, sum(out))
	require.Greater(t, out[0], out[1])
}

func TestNormalizeSumsTo100WithManyTargets(t *testing.T) {
	weights := []float64{33.33, 33.33, 33.34}
	out := normalize(weights)
	require.Equal(t, 100, sum(out))
}

func TestComputeEmptyInputReturnsNil(t *testing.T) {
	require.Nil(t, Compute(nil, Config{}))
}

// TestComputeDrainKeepsMaskFromEarlierStage reproduces a group where the
// health stage already zeroed everything except a draining target: the
// drain stage's kept set then has zero mass, and must not un-mask the
// unhealthy target by splitting weight evenly across survivors.
func TestComputeDrainKeepsMaskFromEarlierStage(t *testing.T) {
	inputs := []TargetInput{
		{ID: id(1), OriginalWeight: 50, Healthy: true, Draining: true, CircuitState: model.CircuitClosed},
		{ID: id(2), OriginalWeight: 50, Healthy: false, Draining: false, CircuitState: model.CircuitClosed},
	}
	out := Compute(inputs, Config{Algorithm: AlgorithmWeightedRandom})
	require.Equal(t, uint8(0), out[0])
	require.Equal(t, uint8(0), out[1])
	require.Equal(t, 0, sum(out))
}
