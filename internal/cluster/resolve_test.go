// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/model"
)

func TestRemoteWinsHealthNewestCheckTimeWins(t *testing.T) {
	local := HealthCandidate{LastCheckNs: 100, Candidate: Candidate{Version: 5, SourceNode: "a"}}
	remote := HealthCandidate{LastCheckNs: 200, Candidate: Candidate{Version: 1, SourceNode: "b"}}
	require.True(t, RemoteWinsHealth(local, remote))
}

func TestRemoteWinsHealthTieBreaksOnVersionThenNode(t *testing.T) {
	local := HealthCandidate{LastCheckNs: 100, Candidate: Candidate{Version: 5, SourceNode: "a"}}
	remote := HealthCandidate{LastCheckNs: 100, Candidate: Candidate{Version: 5, SourceNode: "z"}}
	require.True(t, RemoteWinsHealth(local, remote))

	remote.SourceNode = "0"
	require.False(t, RemoteWinsHealth(local, remote))
}

func TestRemoteWinsCircuitSeverityOverridesVersion(t *testing.T) {
	local := CircuitCandidate{State: model.CircuitClosed, Candidate: Candidate{Version: 100}}
	remote := CircuitCandidate{State: model.CircuitOpen, Candidate: Candidate{Version: 1}}
	require.True(t, RemoteWinsCircuit(local, remote))
}

func TestRemoteWinsCircuitEqualSeverityFallsBackToVersion(t *testing.T) {
	local := CircuitCandidate{State: model.CircuitHalfOpen, Candidate: Candidate{Version: 3}}
	remote := CircuitCandidate{State: model.CircuitHalfOpen, Candidate: Candidate{Version: 4}}
	require.True(t, RemoteWinsCircuit(local, remote))
}

func TestRemoteWinsDrainDrainingBeatsNonDraining(t *testing.T) {
	local := DrainCandidate{State: model.Completed, Candidate: Candidate{Version: 100}}
	remote := DrainCandidate{State: model.Draining, Candidate: Candidate{Version: 1}}
	require.True(t, RemoteWinsDrain(local, remote))
}

func TestRemoteWinsDrainEqualStatusFallsBackToVersion(t *testing.T) {
	local := DrainCandidate{State: model.TimedOut, Candidate: Candidate{Version: 3}}
	remote := DrainCandidate{State: model.Cancelled, Candidate: Candidate{Version: 4}}
	require.True(t, RemoteWinsDrain(local, remote))
}
