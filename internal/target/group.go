// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package target builds and validates weighted target groups, and answers
// the cross-validation question of which target a given random draw would
// select — the real selection happens in the kernel, so Pick exists purely
// to let tests assert the kernel and the control plane agree on the
// distribution.
package target

import (
	"github.com/asaskevich/govalidator"

	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/model"
)

// Spec is the input to MakeTargetGroup: an address/port/weight triple
// without the precomputed cumulative-weight bookkeeping.
type Spec struct {
	Address model.IPAddr
	Port    uint16
	Weight  uint8
}

// MakeTargetGroup validates specs and computes the cumulative-weight
// array. When len(specs) > 1 the weights must sum to exactly 100; a single
// target's weight is not checked against the sum rule (it always gets the
// whole of the kernel's random draw).
func MakeTargetGroup(specs []Spec) (model.TargetGroup, error) {
	if len(specs) == 0 {
		return model.TargetGroup{}, errs.New(errs.InvalidParam, "target group must have at least one target")
	}
	if len(specs) > 8 {
		return model.TargetGroup{}, errs.New(errs.TargetCountExceed, "target group has %d targets, max is 8", len(specs))
	}

	seen := make(map[model.TargetID]struct{}, len(specs))
	sum := 0
	targets := make([]model.Target, len(specs))
	for i, s := range specs {
		if s.Weight < 1 || s.Weight > 100 {
			return model.TargetGroup{}, errs.New(errs.InvalidParam, "target %d weight %d out of range [1,100]", i, s.Weight)
		}
		id := model.TargetID{Address: s.Address, Port: s.Port}
		if _, dup := seen[id]; dup {
			return model.TargetGroup{}, errs.New(errs.DuplicateTarget, "duplicate target %s", id)
		}
		seen[id] = struct{}{}
		sum += int(s.Weight)
		targets[i] = model.Target{Address: s.Address, Port: s.Port, Weight: s.Weight}
	}

	if len(specs) > 1 && sum != 100 {
		return model.TargetGroup{}, errs.New(errs.WeightSumMismatch, "target weights sum to %d, want 100", sum)
	}

	cumulative := make([]uint16, len(targets))
	running := uint16(0)
	for i, t := range targets {
		if len(targets) == 1 {
			running = 100
		} else {
			running += uint16(t.Weight)
		}
		cumulative[i] = running
	}
	// A single-target group always gets the full [0,100) range regardless
	// of its nominal weight field.
	if len(targets) == 1 {
		cumulative[0] = 100
	}

	return model.TargetGroup{Targets: targets, CumulativeWeights: cumulative}, nil
}

// Pick returns the index i such that cumulative_weights[i-1] <= r <
// cumulative_weights[i], with an implicit 0 sentinel before the first
// element. r must be in [0,99].
func Pick(group model.TargetGroup, r uint8) int {
	for i, cw := range group.CumulativeWeights {
		if uint16(r) < cw {
			return i
		}
	}
	// Defensive: a well-formed group's last cumulative weight is 100, so
	// r in [0,99] always matches above. Fall back to the last target.
	return len(group.CumulativeWeights) - 1
}

// ValidateCIDR reports whether s is a syntactically valid IPv4 or IPv6
// CIDR, using the same validator config.Validate uses for source routes.
func ValidateCIDR(s string) bool {
	return govalidator.IsCIDR(s)
}

// ValidateIP reports whether s is a syntactically valid IPv4 or IPv6
// address.
func ValidateIP(s string) bool {
	return govalidator.IsIP(s)
}
