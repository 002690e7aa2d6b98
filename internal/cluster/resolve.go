// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import "github.com/cilium/l4lb/internal/model"

// Candidate is one side of a conflict-resolution comparison: the Lamport
// version and origin node of a SyncableState, plus type-specific fields
// decoded from its payload.
type Candidate struct {
	Version    uint64
	SourceNode string
}

// HealthCandidate carries the fields resolve needs for spec §4.10's health
// rule: newest last_check_time wins, Lamport version then source_node as
// tie-breakers.
type HealthCandidate struct {
	Candidate
	LastCheckNs int64
}

// RemoteWinsHealth reports whether remote should replace local.
func RemoteWinsHealth(local, remote HealthCandidate) bool {
	if remote.LastCheckNs != local.LastCheckNs {
		return remote.LastCheckNs > local.LastCheckNs
	}
	if remote.Version != local.Version {
		return remote.Version > local.Version
	}
	return remote.SourceNode > local.SourceNode
}

// CircuitCandidate carries the fields resolve needs for spec §4.10's
// circuit-breaker rule: OPEN beats HALF_OPEN beats CLOSED regardless of
// version; equal severity falls back to version.
type CircuitCandidate struct {
	Candidate
	State model.CircuitStateKind
}

func circuitSeverity(s model.CircuitStateKind) int {
	switch s {
	case model.CircuitOpen:
		return 2
	case model.CircuitHalfOpen:
		return 1
	default:
		return 0
	}
}

// RemoteWinsCircuit reports whether remote should replace local.
func RemoteWinsCircuit(local, remote CircuitCandidate) bool {
	ls, rs := circuitSeverity(local.State), circuitSeverity(remote.State)
	if rs != ls {
		return rs > ls
	}
	return remote.Version > local.Version
}

// DrainCandidate carries the fields resolve needs for spec §4.10's drain
// rule: DRAINING beats any non-draining state; equal status falls back to
// version.
type DrainCandidate struct {
	Candidate
	State model.DrainStateKind
}

func isDraining(s model.DrainStateKind) bool { return s == model.Draining }

// RemoteWinsDrain reports whether remote should replace local.
func RemoteWinsDrain(local, remote DrainCandidate) bool {
	ld, rd := isDraining(local.State), isDraining(remote.State)
	if rd != ld {
		return rd
	}
	return remote.Version > local.Version
}
