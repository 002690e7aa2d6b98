// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package reconfig

import (
	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/config"
)

var log = logrus.WithField("subsys", "reconfig")

// Mutator is the minimal set of map-programming operations Apply drives,
// expressed in config terms; the tests implement it with a recording fake.
// *mapprog.Programmer does not implement it (its methods take wire-level
// routes and keys). It only names what a reload needs.
type Mutator interface {
	DrainAndRecreateListener(proxyName string, listen config.Listen) error
	RewriteDefaultTarget(proxyName string, target *config.Target, targets []config.Target) error
	AddSourceRoute(proxyName string, route config.SourceRoute) error
	RemoveSourceRoute(proxyName string, route config.SourceRoute) error
	AddSniRoute(proxyName string, route config.SniRoute) error
	RemoveSniRoute(proxyName string, route config.SniRoute) error
	CreateProxy(proxy config.Proxy) error
	RemoveProxy(proxyName string) error
}

// Report summarizes the outcome of applying a Diff, per spec §4.11.
type Report struct {
	Applied int
	Skipped int
	Failed  int
	Errors  []string
}

func (r *Report) ok()           { r.Applied++ }
func (r *Report) skip()         { r.Skipped++ }
func (r *Report) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// Apply walks d and performs the minimal sequence of map mutations via m,
// accumulating a Report. A listen-port change forces a drain+recreate for
// that listener; a default-target change rewrites only the weighted
// route; route additions/removals touch only their own entries.
func Apply(d Diff, m Mutator) Report {
	var report Report

	for _, p := range d.AddedProxies {
		if err := m.CreateProxy(p); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}

	for _, p := range d.RemovedProxies {
		if err := m.RemoveProxy(p.Name); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}

	for _, mp := range d.ModifiedProxies {
		applyModifiedProxy(mp, m, &report)
	}

	if d.SettingsChanged {
		// Settings application (timeouts, rate limits, cluster tunables)
		// is the caller's responsibility once this report comes back —
		// it has no per-proxy map mutation of its own to drive here.
		report.ok()
	}

	return report
}

func applyModifiedProxy(mp ModifiedProxy, m Mutator, report *Report) {
	if mp.ListenChanged {
		if err := m.DrainAndRecreateListener(mp.Name, mp.NewListen); err != nil {
			report.fail(err)
		} else {
			report.ok()
		}
	}

	if mp.DefaultTargetChanged {
		if err := m.RewriteDefaultTarget(mp.Name, mp.NewDefaultTarget, mp.NewDefaultTargets); err != nil {
			report.fail(err)
		} else {
			report.ok()
		}
	}

	for _, r := range mp.RemovedSourceRoutes {
		if err := m.RemoveSourceRoute(mp.Name, r); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}
	for _, r := range mp.AddedSourceRoutes {
		if err := m.AddSourceRoute(mp.Name, r); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}
	for _, r := range mp.RemovedSniRoutes {
		if err := m.RemoveSniRoute(mp.Name, r); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}
	for _, r := range mp.AddedSniRoutes {
		if err := m.AddSniRoute(mp.Name, r); err != nil {
			report.fail(err)
			continue
		}
		report.ok()
	}

	if !mp.ListenChanged && !mp.DefaultTargetChanged &&
		len(mp.AddedSourceRoutes) == 0 && len(mp.RemovedSourceRoutes) == 0 &&
		len(mp.AddedSniRoutes) == 0 && len(mp.RemovedSniRoutes) == 0 {
		report.skip()
		return
	}

	log.WithField("proxy", mp.Name).Debug("applied modified proxy")
}
