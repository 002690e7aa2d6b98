// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package drain implements the per-target connection-drain lifecycle from
// spec §4.6: weight is zeroed immediately, a shared watcher polls the
// current connection count, and the registered callback fires exactly once
// on completion, timeout, or cancellation.
package drain

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "drain")

// Outcome is the terminal reason a drain's callback fires with.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Callback is invoked exactly once per drain.
type Callback func(outcome Outcome)

// ConnCounter reports the current connection count for a target; backed by
// the conntrack reader in production.
type ConnCounter func(id model.TargetID) (uint64, error)

// WeightTrigger is called whenever a drain starts or ends, so the weight
// pipeline can recompute before Start returns (spec §4.6's ordering
// guarantee).
type WeightTrigger func(proxyName string)

type entry struct {
	mu       lock.Mutex
	id       model.TargetID
	proxy    string
	state    model.DrainState
	callback Callback
	fired    bool
}

// Engine owns every active drain.
type Engine struct {
	mu          lock.RWMutex
	entries     map[model.TargetID]*entry
	counter     ConnCounter
	onWeight    WeightTrigger
	now         func() int64
}

// New creates an empty drain engine.
func New(counter ConnCounter, onWeight WeightTrigger) *Engine {
	return &Engine{
		entries: make(map[model.TargetID]*entry),
		counter: counter,
		onWeight: onWeight,
		now:     func() int64 { return time.Now().UnixNano() },
	}
}

// SetClock overrides the time source; used by tests.
func (e *Engine) SetClock(now func() int64) { e.now = now }

// Start begins draining id within proxyName. It verifies the target exists
// in group (callers pass groupHasTarget) and that no drain is already
// active, snapshots the initial connection count, registers DRAINING state,
// and triggers the weight pipeline before returning — satisfying spec
// §4.6's ordering guarantee that the zeroing weight update is pushed before
// Start returns.
func (e *Engine) Start(proxyName string, id model.TargetID, groupHasTarget bool, timeoutMs int64, originalWeight uint8, cb Callback) error {
	if !groupHasTarget {
		return errs.New(errs.TargetNotFound, "target %s not found in group", id)
	}

	e.mu.Lock()
	if _, active := e.entries[id]; active {
		e.mu.Unlock()
		return errs.New(errs.AlreadyDraining, "target %s is already draining", id)
	}
	e.mu.Unlock()

	initial, err := e.counter(id)
	if err != nil {
		initial = 0
	}

	ent := &entry{
		id:    id,
		proxy: proxyName,
		state: model.DrainState{
			State:            model.Draining,
			ProxyName:        proxyName,
			StartedAtNs:      e.now(),
			TimeoutMs:        timeoutMs,
			OriginalWeight:   originalWeight,
			InitialConnCount: initial,
			CurrentConnCount: initial,
		},
		callback: cb,
	}

	e.mu.Lock()
	e.entries[id] = ent
	e.mu.Unlock()

	if e.onWeight != nil {
		e.onWeight(proxyName)
	}
	return nil
}

// Cancel removes id's drain without firing its callback ("undrain"),
// restoring weights via the trigger.
func (e *Engine) Cancel(id model.TargetID) bool {
	e.mu.Lock()
	ent, ok := e.entries[id]
	if ok {
		delete(e.entries, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	if e.onWeight != nil {
		e.onWeight(ent.proxy)
	}
	return true
}

// Active reports whether id is currently draining, and its state.
func (e *Engine) Active(id model.TargetID) (model.DrainState, bool) {
	e.mu.RLock()
	ent, ok := e.entries[id]
	e.mu.RUnlock()
	if !ok {
		return model.DrainState{}, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.state, true
}

// List returns a snapshot of every active drain.
func (e *Engine) List() map[model.TargetID]model.DrainState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[model.TargetID]model.DrainState, len(e.entries))
	for id, ent := range e.entries {
		ent.mu.Lock()
		out[id] = ent.state
		ent.mu.Unlock()
	}
	return out
}

// StartWatcher runs the shared watcher task from spec §4.6: every tick it
// re-reads each draining target's connection count and transitions to
// COMPLETED or TIMED_OUT as appropriate.
func (e *Engine) StartWatcher(runner *taskrunner.Runner, tick time.Duration) {
	runner.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.cancelAll()
				return nil
			case <-ticker.C:
				e.tick()
			}
		}
	})
}

func (e *Engine) tick() {
	e.mu.RLock()
	ids := make([]model.TargetID, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.checkOne(id)
	}
}

func (e *Engine) checkOne(id model.TargetID) {
	e.mu.RLock()
	ent, ok := e.entries[id]
	e.mu.RUnlock()
	if !ok {
		return
	}

	count, err := e.counter(id)
	if err != nil {
		// The open question in spec §9: a target removed mid-drain is
		// cancelled, not timed out. We treat a lookup failure (target no
		// longer present) the same way.
		e.finish(id, ent, OutcomeCancelled)
		return
	}

	ent.mu.Lock()
	ent.state.CurrentConnCount = count
	elapsedMs := (e.now() - ent.state.StartedAtNs) / int64(time.Millisecond)
	var outcome Outcome
	switch {
	case count == 0:
		ent.state.State = model.Completed
		outcome = OutcomeCompleted
	case elapsedMs >= ent.state.TimeoutMs:
		ent.state.State = model.TimedOut
		outcome = OutcomeTimeout
	}
	ent.mu.Unlock()

	if outcome != "" {
		e.finish(id, ent, outcome)
	}
}

func (e *Engine) finish(id model.TargetID, ent *entry, outcome Outcome) {
	e.mu.Lock()
	if _, ok := e.entries[id]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.entries, id)
	e.mu.Unlock()

	ent.mu.Lock()
	already := ent.fired
	ent.fired = true
	cb := ent.callback
	proxy := ent.proxy
	ent.mu.Unlock()

	if already {
		return
	}
	if cb != nil {
		cb(outcome)
	}
	if e.onWeight != nil {
		e.onWeight(proxy)
	}
	log.WithFields(logrus.Fields{"target": id.String(), "outcome": outcome}).Debug("drain finished")
}

func (e *Engine) cancelAll() {
	e.mu.RLock()
	ids := make([]model.TargetID, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.mu.RLock()
		ent, ok := e.entries[id]
		e.mu.RUnlock()
		if ok {
			e.finish(id, ent, OutcomeCancelled)
		}
	}
}

// Shutdown cancels every active drain, firing each callback with
// :cancelled exactly once, per spec §4.6/§5.
func (e *Engine) Shutdown() {
	e.cancelAll()
}
