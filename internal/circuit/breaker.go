// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package circuit implements the per-target CLOSED/HALF_OPEN/OPEN circuit
// breaker state machine from spec §4.5.
package circuit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "circuit")

// Config is a circuit breaker's per-target configuration.
type Config struct {
	Enabled           bool
	ErrorThresholdPct float64
	MinRequests       int
	OpenDurationMs    int64
	HalfOpenRequests  int
	WindowSizeMs      int64
}

// Event identifies which transition just happened, for publishing to
// subscribers (spec §4.5's circuit_opened/circuit_half_opened/circuit_closed).
type Event string

const (
	EventOpened     Event = "circuit_opened"
	EventHalfOpened Event = "circuit_half_opened"
	EventClosed     Event = "circuit_closed"
)

// EventFunc is invoked on every transition and also used to trigger the
// weight pipeline.
type EventFunc func(id model.TargetID, event Event, state model.CircuitState)

type breaker struct {
	mu     lock.Mutex
	cfg    Config
	state  model.CircuitState
}

// Manager owns every target's breaker and the shared OPEN-duration
// watcher.
type Manager struct {
	mu       lock.RWMutex
	breakers map[model.TargetID]*breaker
	onEvent  EventFunc
	now      func() int64
}

// New creates an empty circuit breaker manager. onEvent may be nil.
func New(onEvent EventFunc) *Manager {
	return &Manager{
		breakers: make(map[model.TargetID]*breaker),
		onEvent:  onEvent,
		now:      func() int64 { return time.Now().UnixNano() },
	}
}

// Register adds a target with cfg, starting CLOSED.
func (m *Manager) Register(id model.TargetID, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[id] = &breaker{
		cfg: cfg,
		state: model.CircuitState{
			State:         model.CircuitClosed,
			WindowStartNs: m.now(),
		},
	}
}

// SetClock overrides the time source used for window/transition timestamps;
// used by tests to simulate elapsed time without sleeping.
func (m *Manager) SetClock(now func() int64) {
	m.now = now
}

// Unregister removes a target's breaker (on target removal from its group).
func (m *Manager) Unregister(id model.TargetID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, id)
}

// State returns the current state of id, and whether it is registered.
func (m *Manager) State(id model.TargetID) (model.CircuitState, bool) {
	b, ok := m.get(id)
	if !ok {
		return model.CircuitState{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, true
}

// List returns a snapshot of every registered target's state.
func (m *Manager) List() map[model.TargetID]model.CircuitState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.TargetID]model.CircuitState, len(m.breakers))
	for id, b := range m.breakers {
		b.mu.Lock()
		out[id] = b.state
		b.mu.Unlock()
	}
	return out
}

func (m *Manager) get(id model.TargetID) (*breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[id]
	return b, ok
}

// RecordResult feeds one observation into id's breaker per spec §4.5's
// CLOSED/HALF_OPEN rules.
func (m *Manager) RecordResult(id model.TargetID, success bool) {
	b, ok := m.get(id)
	if !ok {
		return
	}
	b.mu.Lock()
	if !b.cfg.Enabled {
		b.mu.Unlock()
		return
	}

	if b.state.State == model.CircuitClosed {
		m.resetWindowIfExpiredLocked(b)
	}

	switch b.state.State {
	case model.CircuitClosed:
		if success {
			b.state.SuccessCount++
		} else {
			b.state.ErrorCount++
		}
		total := b.state.SuccessCount + b.state.ErrorCount
		if total >= b.cfg.MinRequests {
			errRate := float64(b.state.ErrorCount) / float64(total) * 100
			if errRate >= b.cfg.ErrorThresholdPct {
				m.transitionLocked(b, model.CircuitOpen)
				b.mu.Unlock()
				m.publish(id, EventOpened, b)
				return
			}
		}
	case model.CircuitHalfOpen:
		if !success {
			m.transitionLocked(b, model.CircuitOpen)
			b.mu.Unlock()
			m.publish(id, EventOpened, b)
			return
		}
		b.state.SuccessCount++
		if b.state.SuccessCount >= b.cfg.HalfOpenRequests {
			m.transitionLocked(b, model.CircuitClosed)
			b.mu.Unlock()
			m.publish(id, EventClosed, b)
			return
		}
	case model.CircuitOpen:
		// OPEN rejects traffic at the weight layer; observations that
		// still arrive (e.g. a probe) are ignored here.
	}
	b.mu.Unlock()
}

func (m *Manager) resetWindowIfExpiredLocked(b *breaker) {
	if b.cfg.WindowSizeMs <= 0 {
		return
	}
	elapsedMs := (m.now() - b.state.WindowStartNs) / int64(time.Millisecond)
	if elapsedMs > b.cfg.WindowSizeMs {
		b.state.ErrorCount = 0
		b.state.SuccessCount = 0
		b.state.WindowStartNs = m.now()
	}
}

func (m *Manager) transitionLocked(b *breaker, next model.CircuitStateKind) {
	b.state.State = next
	b.state.ErrorCount = 0
	b.state.SuccessCount = 0
	b.state.HalfOpenProbesUsed = 0
	b.state.WindowStartNs = m.now()
	b.state.LastTransitionNs = m.now()
}

func (m *Manager) publish(id model.TargetID, event Event, b *breaker) {
	if m.onEvent == nil {
		return
	}
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	m.onEvent(id, event, state)
}

// ForceOpen, ForceClose, and Reset are the manual controls from spec §4.5:
// they override the state machine but still emit events and trigger weight
// updates.
func (m *Manager) ForceOpen(id model.TargetID) bool {
	return m.forceTransition(id, model.CircuitOpen, EventOpened)
}

func (m *Manager) ForceClose(id model.TargetID) bool {
	return m.forceTransition(id, model.CircuitClosed, EventClosed)
}

func (m *Manager) Reset(id model.TargetID) bool {
	return m.forceTransition(id, model.CircuitClosed, EventClosed)
}

func (m *Manager) forceTransition(id model.TargetID, next model.CircuitStateKind, event Event) bool {
	b, ok := m.get(id)
	if !ok {
		return false
	}
	b.mu.Lock()
	m.transitionLocked(b, next)
	b.mu.Unlock()
	m.publish(id, event, b)
	return true
}

// StartWatcher runs the shared OPEN-duration watcher task from spec §4.5:
// every tick it checks all OPEN breakers and promotes any whose
// open_duration_ms has elapsed to HALF_OPEN.
func (m *Manager) StartWatcher(runner *taskrunner.Runner, tick time.Duration) {
	runner.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.checkOpenTimeouts()
			}
		}
	})
}

// ApplyRemote overwrites id's state with a gossiped CircuitState, per
// spec §4.10's "higher severity wins, version as tie-breaker" rule
// already decided by the caller. No event is published: a remote-applied
// transition is not a local transition the weight pipeline needs to
// re-derive from.
func (m *Manager) ApplyRemote(id model.TargetID, remote model.CircuitState) {
	b, ok := m.get(id)
	if !ok {
		return
	}
	b.mu.Lock()
	b.state = remote
	b.mu.Unlock()
}

func (m *Manager) checkOpenTimeouts() {
	m.mu.RLock()
	ids := make([]model.TargetID, 0, len(m.breakers))
	for id := range m.breakers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		b, ok := m.get(id)
		if !ok {
			continue
		}
		b.mu.Lock()
		if b.state.State != model.CircuitOpen {
			b.mu.Unlock()
			continue
		}
		elapsedMs := (m.now() - b.state.LastTransitionNs) / int64(time.Millisecond)
		if elapsedMs < b.cfg.OpenDurationMs {
			b.mu.Unlock()
			continue
		}
		m.transitionLocked(b, model.CircuitHalfOpen)
		b.mu.Unlock()
		m.publish(id, EventHalfOpened, b)
		log.WithField("target", id.String()).Debug("circuit half-opened")
	}
}
