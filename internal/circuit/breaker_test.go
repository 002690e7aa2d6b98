// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package circuit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/model"
)

func testConfig() Config {
	return Config{
		Enabled:           true,
		ErrorThresholdPct: 50,
		MinRequests:       5,
		OpenDurationMs:    10_000,
		HalfOpenRequests:  2,
		WindowSizeMs:      60_000,
	}
}

// TestCircuitOpensOnErrorBurstThenRecovers reproduces spec §8 scenario 2.
func TestCircuitOpensOnErrorBurstThenRecovers(t *testing.T) {
	var events []Event
	m := New(func(id model.TargetID, e Event, s model.CircuitState) {
		events = append(events, e)
	})
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 8080}
	m.Register(id, testConfig())

	clockNs := int64(0)
	m.SetClock(func() int64 { return clockNs })

	for i := 0; i < 6; i++ {
		m.RecordResult(id, false)
	}
	state, ok := m.State(id)
	require.True(t, ok)
	require.Equal(t, model.CircuitOpen, state.State)

	// Elapse less than open_duration_ms: still OPEN.
	clockNs = 5_000 * 1_000_000
	m.checkOpenTimeouts()
	state, _ = m.State(id)
	require.Equal(t, model.CircuitOpen, state.State)

	// Elapse past open_duration_ms: HALF_OPEN.
	clockNs = 11_000 * 1_000_000
	m.checkOpenTimeouts()
	state, _ = m.State(id)
	require.Equal(t, model.CircuitHalfOpen, state.State)

	m.RecordResult(id, true)
	m.RecordResult(id, true)
	state, _ = m.State(id)
	require.Equal(t, model.CircuitClosed, state.State)

	require.Equal(t, []Event{EventOpened, EventHalfOpened, EventClosed}, events)
}

func TestCircuitHalfOpenFailureReturnsToOpen(t *testing.T) {
	m := New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 8080}
	m.Register(id, testConfig())
	m.ForceOpen(id)
	clockNs := int64(100)
	m.SetClock(func() int64 { return clockNs })
	m.forceTransition(id, model.CircuitHalfOpen, EventHalfOpened)

	m.RecordResult(id, false)
	state, _ := m.State(id)
	require.Equal(t, model.CircuitOpen, state.State)
}

func TestCircuitManualControls(t *testing.T) {
	m := New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 8080}
	m.Register(id, testConfig())

	require.True(t, m.ForceOpen(id))
	state, _ := m.State(id)
	require.Equal(t, model.CircuitOpen, state.State)

	require.True(t, m.ForceClose(id))
	state, _ = m.State(id)
	require.Equal(t, model.CircuitClosed, state.State)

	require.False(t, m.ForceOpen(model.TargetID{Address: model.MustIPAddr("10.0.0.9"), Port: 1}))
}

func TestCircuitBelowMinRequestsStaysClosed(t *testing.T) {
	m := New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 8080}
	m.Register(id, testConfig())
	m.RecordResult(id, false)
	m.RecordResult(id, false)
	state, _ := m.State(id)
	require.Equal(t, model.CircuitClosed, state.State)
}

func TestCircuitApplyRemoteOverwritesState(t *testing.T) {
	m := New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.1"), Port: 8080}
	m.Register(id, testConfig())

	m.ApplyRemote(id, model.CircuitState{State: model.CircuitOpen, ErrorCount: 7})
	state, ok := m.State(id)
	require.True(t, ok)
	require.Equal(t, model.CircuitOpen, state.State)
	require.Equal(t, 7, state.ErrorCount)
}

func TestCircuitApplyRemoteIgnoresUnregisteredTarget(t *testing.T) {
	m := New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.9"), Port: 1}
	m.ApplyRemote(id, model.CircuitState{State: model.CircuitOpen})
	_, ok := m.State(id)
	require.False(t, ok)
}
