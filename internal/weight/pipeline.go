// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package weight implements the six-stage effective-weight computation
// from spec §4.8: base weights are progressively masked by the
// least-connections algorithm, health, drain, and circuit breaker state,
// then normalized to u8 values summing to 100.
package weight

import (
	"sort"

	"github.com/cilium/l4lb/internal/model"
)

// Algorithm selects the load-balancing strategy applied at stage 2.
type Algorithm string

const (
	AlgorithmWeightedRandom  Algorithm = "weighted_random"
	AlgorithmLeastConnections Algorithm = "least_connections"
)

// TargetInput is one target's contribution to the pipeline.
type TargetInput struct {
	ID               model.TargetID
	OriginalWeight   uint8
	Healthy          bool
	Draining         bool
	CircuitState     model.CircuitStateKind
	ConnectionCount  uint64
}

// Config selects the least-connections variant.
type Config struct {
	Algorithm Algorithm
	// Weighted, when true and Algorithm is least_connections, scores by
	// weight_i/(conn_i+1) instead of plain 1/(conn_i+1).
	Weighted bool
}

// Compute runs the six stages over inputs in order and returns the
// effective weight for each target, same order as inputs, summing to 100.
// It returns all zeros when no weight survives: every input weight is zero,
// or a mask stage keeps only targets an earlier stage already zeroed (e.g.
// the only healthy target is draining). The caller is expected to stop
// routing to this group entirely rather than divide zero traffic.
func Compute(inputs []TargetInput, cfg Config) []uint8 {
	n := len(inputs)
	if n == 0 {
		return nil
	}

	weights := make([]float64, n)
	for i, t := range inputs {
		weights[i] = float64(t.OriginalWeight)
	}

	if cfg.Algorithm == AlgorithmLeastConnections {
		weights = leastConnections(inputs, cfg.Weighted)
	}

	weights = maskAndRedistribute(weights, func(i int) bool { return inputs[i].Healthy })
	weights = maskAndRedistribute(weights, func(i int) bool { return !inputs[i].Draining })
	weights = circuitMask(weights, inputs)

	return normalize(weights)
}

// leastConnections implements stage 2: scores are normalized to sum 100.
func leastConnections(inputs []TargetInput, weighted bool) []float64 {
	n := len(inputs)
	scores := make([]float64, n)
	var total float64
	for i, t := range inputs {
		denom := float64(t.ConnectionCount) + 1
		if weighted {
			scores[i] = float64(t.OriginalWeight) / denom
		} else {
			scores[i] = 1 / denom
		}
		total += scores[i]
	}
	if total == 0 {
		return scores
	}
	for i := range scores {
		scores[i] = scores[i] / total * 100
	}
	return scores
}

// maskAndRedistribute zeros every weight where keep(i) is false and
// proportionally redistributes the removed mass across the kept entries.
// If keep is false for everyone, the pre-stage weights are returned
// unchanged (graceful degradation).
func maskAndRedistribute(weights []float64, keep func(i int) bool) []float64 {
	n := len(weights)
	var keptTotal float64
	anyKept := false
	for i := 0; i < n; i++ {
		if keep(i) {
			keptTotal += weights[i]
			anyKept = true
		}
	}
	if !anyKept {
		return weights
	}

	out := make([]float64, n)
	if keptTotal == 0 {
		// Every kept target already has zero mass from an earlier stage
		// (e.g. masked unhealthy). Inventing an even split here would
		// un-mask a target a previous stage deliberately zeroed, so the
		// kept set stays at zero: graceful degradation, not resurrection.
		return out
	}

	var total float64
	for i := 0; i < n; i++ {
		total += weights[i]
	}
	for i := 0; i < n; i++ {
		if !keep(i) {
			continue
		}
		out[i] = weights[i] / keptTotal * total
	}
	return out
}

// circuitMask implements stage 5: OPEN -> 0, HALF_OPEN -> 10% of current
// weight (minimum 1), CLOSED unchanged; removed mass is redistributed.
func circuitMask(weights []float64, inputs []TargetInput) []float64 {
	n := len(weights)
	staged := make([]float64, n)
	anyNonZero := false
	for i, t := range inputs {
		switch t.CircuitState {
		case model.CircuitOpen:
			staged[i] = 0
		case model.CircuitHalfOpen:
			v := weights[i] * 0.10
			if v < 1 {
				v = 1
			}
			staged[i] = v
		default:
			staged[i] = weights[i]
		}
		if staged[i] > 0 {
			anyNonZero = true
		}
	}
	if !anyNonZero {
		return weights
	}

	var stagedTotal, preTotal float64
	for i := 0; i < n; i++ {
		stagedTotal += staged[i]
		preTotal += weights[i]
	}
	if stagedTotal == preTotal || stagedTotal == 0 {
		return staged
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if staged[i] == 0 {
			continue
		}
		out[i] = staged[i] / stagedTotal * preTotal
	}
	return out
}

// normalize converts floating-point weights into u8 values summing to 100
// using largest-remainder rounding. If every input is zero, the output is
// all zeros (the caller must handle "no viable target" separately).
func normalize(weights []float64) []uint8 {
	n := len(weights)
	var total float64
	for _, w := range weights {
		total += w
	}
	out := make([]uint8, n)
	if total == 0 {
		return out
	}

	type rem struct {
		idx    int
		floor  uint8
		frac   float64
	}
	rems := make([]rem, n)
	var assigned int
	for i, w := range weights {
		scaled := w / total * 100
		floor := uint8(scaled)
		rems[i] = rem{idx: i, floor: floor, frac: scaled - float64(floor)}
		out[i] = floor
		assigned += int(floor)
	}

	remaining := 100 - assigned
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; i < remaining && i < n; i++ {
		out[rems[i].idx]++
	}
	return out
}
