// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package health schedules per-target probes, tracks consecutive
// success/failure counters, and publishes HEALTHY/UNHEALTHY transitions to
// subscribers — chiefly the weight pipeline (spec §4.4).
package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "health")

const (
	defaultHealthyThreshold   = 2
	defaultUnhealthyThreshold = 3
	defaultIntervalSeconds    = 5
)

// Event describes one probe result. The engine does not construct or
// publish Events: probe results surface only through Status/List, the
// latency histograms, and TransitionFunc on status changes.
type Event struct {
	ProxyName      string
	TargetID       model.TargetID
	Success        bool
	LatencySeconds float64
}

// TransitionFunc is called whenever a target's status changes.
type TransitionFunc func(proxyName string, id model.TargetID, status model.HealthStatusKind)

type tracked struct {
	mu     lock.Mutex
	status model.HealthStatus
	prober Prober
	cfg    model.HealthCheckConfig
}

// Engine owns the set of registered targets and their current status.
type Engine struct {
	mu         lock.RWMutex
	targets    map[model.TargetID]*tracked
	proxyOf    map[model.TargetID]string
	histograms *Histograms
	onTransition TransitionFunc
}

// New creates an empty health engine. onTransition may be nil.
func New(onTransition TransitionFunc) *Engine {
	return &Engine{
		targets:      make(map[model.TargetID]*tracked),
		proxyOf:      make(map[model.TargetID]string),
		histograms:   NewHistograms(),
		onTransition: onTransition,
	}
}

// Histograms exposes the latency histogram set for scraping.
func (e *Engine) Histograms() *Histograms { return e.histograms }

// Register adds a target under proxyName with prober and cfg, starting it
// at UNKNOWN status, and schedules its probe loop on runner.
func (e *Engine) Register(runner *taskrunner.Runner, proxyName string, id model.TargetID, cfg model.HealthCheckConfig, prober Prober) {
	t := &tracked{
		status: model.HealthStatus{Status: model.Unknown},
		prober: prober,
		cfg:    cfg,
	}
	e.mu.Lock()
	e.targets[id] = t
	e.proxyOf[id] = proxyName
	e.mu.Unlock()

	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultIntervalSeconds * time.Second
	}
	runner.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				e.runProbe(proxyName, id, t)
			}
		}
	})
}

// Unregister removes a target from the engine (e.g. on removal from its
// group). Its probe loop keeps running until the context of the runner
// given to Register is cancelled; there is no per-target cancellation.
func (e *Engine) Unregister(id model.TargetID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.targets, id)
	delete(e.proxyOf, id)
}

// ForceCheck runs one probe immediately, outside the scheduled interval.
func (e *Engine) ForceCheck(id model.TargetID) {
	e.mu.RLock()
	t, ok := e.targets[id]
	proxy := e.proxyOf[id]
	e.mu.RUnlock()
	if !ok {
		return
	}
	e.runProbe(proxy, id, t)
}

func (e *Engine) runProbe(proxyName string, id model.TargetID, t *tracked) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout(t.cfg))
	defer cancel()
	err := t.prober.Probe(ctx)
	latency := time.Since(start)
	success := err == nil

	e.histograms.Observe(proxyName, id.String(), latency.Seconds())

	t.mu.Lock()
	healthyThreshold := t.cfg.HealthyThreshold
	if healthyThreshold <= 0 {
		healthyThreshold = defaultHealthyThreshold
	}
	unhealthyThreshold := t.cfg.UnhealthyThreshold
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = defaultUnhealthyThreshold
	}

	prev := t.status.Status
	t.status.LastCheckNs = time.Now().UnixNano()
	if success {
		t.status.ConsecutiveSuccesses++
		t.status.ConsecutiveFailures = 0
		if (prev == model.Unknown && t.status.ConsecutiveSuccesses >= healthyThreshold) ||
			(prev == model.Unhealthy && t.status.ConsecutiveSuccesses >= healthyThreshold) {
			t.status.Status = model.Healthy
		}
	} else {
		t.status.ConsecutiveFailures++
		t.status.ConsecutiveSuccesses = 0
		if prev != model.Unhealthy && t.status.ConsecutiveFailures >= unhealthyThreshold {
			t.status.Status = model.Unhealthy
		}
		log.WithFields(logrus.Fields{"target": id.String(), "error": err}).Debug("health probe failed")
	}
	next := t.status.Status
	t.mu.Unlock()

	if next != prev && e.onTransition != nil {
		e.onTransition(proxyName, id, next)
	}
}

func probeTimeout(cfg model.HealthCheckConfig) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

// Status returns the current health status of id, and whether it is
// registered at all.
func (e *Engine) Status(id model.TargetID) (model.HealthStatus, bool) {
	e.mu.RLock()
	t, ok := e.targets[id]
	e.mu.RUnlock()
	if !ok {
		return model.HealthStatus{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, true
}

// IsHealthy reports whether id is currently HEALTHY. Unregistered targets
// are treated as not healthy.
func (e *Engine) IsHealthy(id model.TargetID) bool {
	s, ok := e.Status(id)
	return ok && s.Status == model.Healthy
}

// List returns a snapshot of every registered target's status.
func (e *Engine) List() map[model.TargetID]model.HealthStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[model.TargetID]model.HealthStatus, len(e.targets))
	for id, t := range e.targets {
		t.mu.Lock()
		out[id] = t.status
		t.mu.Unlock()
	}
	return out
}

// ApplyRemote replaces id's status with a gossiped HealthStatus when
// remoteWins is true and leaves it unchanged otherwise; unregistered ids
// are ignored. The conflict-resolution decision (newest last_check_time,
// then the Lamport tie-breaker) is made by the caller and passed in as
// remoteWins.
func (e *Engine) ApplyRemote(id model.TargetID, remote model.HealthStatus, remoteWins bool) {
	e.mu.RLock()
	t, ok := e.targets[id]
	proxy := e.proxyOf[id]
	e.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	prev := t.status.Status
	if remoteWins {
		t.status = remote
	}
	next := t.status.Status
	t.mu.Unlock()

	if next != prev && e.onTransition != nil {
		e.onTransition(proxy, id, next)
	}
}
