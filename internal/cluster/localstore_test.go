// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/circuit"
	"github.com/cilium/l4lb/internal/drain"
	"github.com/cilium/l4lb/internal/health"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context) error { return nil }

func newTestStore() (*LocalStore, *health.Engine, *circuit.Manager, *drain.Engine, *taskrunner.Runner) {
	h := health.New(nil)
	c := circuit.New(nil)
	d := drain.New(func(model.TargetID) (uint64, error) { return 0, nil }, func(string) {})
	s := NewLocalStore("node-a", &LamportClock{}, h, c, d)
	runner := taskrunner.New(context.Background())
	return s, h, c, d, runner
}

func TestLocalStoreSnapshotIncludesAllSubsystems(t *testing.T) {
	s, h, c, _, runner := newTestStore()
	defer runner.Shutdown(time.Second)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 80}
	h.Register(runner, "web", id, model.HealthCheckConfig{IntervalSeconds: 3600}, fakeProber{})
	c.Register(id, circuit.Config{Enabled: true, ErrorThresholdPct: 50, MinRequests: 1, OpenDurationMs: 1000, HalfOpenRequests: 1, WindowSizeMs: 1000})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
}

func TestLocalStoreApplyHealthRemoteWinsOnNewerCheck(t *testing.T) {
	s, h, _, _, runner := newTestStore()
	defer runner.Shutdown(time.Second)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 80}
	h.Register(runner, "web", id, model.HealthCheckConfig{IntervalSeconds: 3600}, fakeProber{})

	buf, err := json.Marshal(healthPayload{ID: id, Status: model.HealthStatus{Status: model.Healthy, LastCheckNs: 100}})
	require.NoError(t, err)

	remote := model.SyncableState{
		StateType:  model.StateHealth,
		Key:        "web/" + id.String(),
		Version:    5,
		SourceNode: "node-b",
		Value:      buf,
	}

	applied := s.Apply(remote)
	require.True(t, applied)
	status, ok := h.Status(id)
	require.True(t, ok)
	require.Equal(t, model.Healthy, status.Status)
}

func TestLocalStoreApplyUnknownTypeReturnsFalse(t *testing.T) {
	s, _, _, _, runner := newTestStore()
	defer runner.Shutdown(time.Second)
	applied := s.Apply(model.SyncableState{StateType: "bogus"})
	require.False(t, applied)
}

func TestLocalStoreApplyCircuitHigherSeverityWins(t *testing.T) {
	s, _, c, _, runner := newTestStore()
	defer runner.Shutdown(time.Second)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.2"), Port: 443}
	c.Register(id, circuit.Config{Enabled: true, ErrorThresholdPct: 50, MinRequests: 1, OpenDurationMs: 1000, HalfOpenRequests: 1, WindowSizeMs: 1000})

	buf, err := json.Marshal(circuitPayload{ID: id, State: model.CircuitState{State: model.CircuitOpen}})
	require.NoError(t, err)
	remote := model.SyncableState{StateType: model.StateCircuit, Key: "web/" + id.String(), Version: 1, SourceNode: "node-b", Value: buf}

	applied := s.Apply(remote)
	require.True(t, applied)
	state, ok := c.State(id)
	require.True(t, ok)
	require.Equal(t, model.CircuitOpen, state.State)
}
