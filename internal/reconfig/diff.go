// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package reconfig computes and applies the minimal set of changes between
// two configuration snapshots, per spec §4.11.
package reconfig

import (
	"reflect"

	"github.com/cilium/l4lb/internal/config"
)

// ModifiedProxy describes what changed within one proxy present in both
// snapshots.
type ModifiedProxy struct {
	Name                      string
	ListenChanged             bool
	NewListen                 config.Listen
	DefaultTargetChanged      bool
	NewDefaultTarget          *config.Target
	NewDefaultTargets         []config.Target
	AddedSourceRoutes         []config.SourceRoute
	RemovedSourceRoutes       []config.SourceRoute
	AddedSniRoutes            []config.SniRoute
	RemovedSniRoutes          []config.SniRoute
	SessionPersistenceChanged bool
}

// Diff is the structural delta between two Config snapshots.
type Diff struct {
	AddedProxies    []config.Proxy
	RemovedProxies  []config.Proxy
	ModifiedProxies []ModifiedProxy
	SettingsChanged bool
}

// Empty reports whether d represents no change at all — the idempotence
// invariant from spec §8: diffing a config against itself always empties
// out.
func (d Diff) Empty() bool {
	return len(d.AddedProxies) == 0 && len(d.RemovedProxies) == 0 &&
		len(d.ModifiedProxies) == 0 && !d.SettingsChanged
}

// ComputeDiff compares old and next, producing the minimal description of
// what changed.
func ComputeDiff(old, next *config.Config) Diff {
	oldByName := indexByName(old.Proxies)
	nextByName := indexByName(next.Proxies)

	var d Diff
	for name, np := range nextByName {
		if _, existed := oldByName[name]; !existed {
			d.AddedProxies = append(d.AddedProxies, np)
		}
	}
	for name, op := range oldByName {
		if _, stillExists := nextByName[name]; !stillExists {
			d.RemovedProxies = append(d.RemovedProxies, op)
		}
	}
	for name, op := range oldByName {
		np, stillExists := nextByName[name]
		if !stillExists {
			continue
		}
		if mp, changed := diffProxy(op, np); changed {
			d.ModifiedProxies = append(d.ModifiedProxies, mp)
		}
	}

	d.SettingsChanged = !reflect.DeepEqual(old.Settings, next.Settings)
	return d
}

func indexByName(proxies []config.Proxy) map[string]config.Proxy {
	out := make(map[string]config.Proxy, len(proxies))
	for _, p := range proxies {
		out[p.Name] = p
	}
	return out
}

func diffProxy(old, next config.Proxy) (ModifiedProxy, bool) {
	mp := ModifiedProxy{Name: old.Name}
	changed := false

	if !reflect.DeepEqual(old.Listen, next.Listen) {
		mp.ListenChanged = true
		mp.NewListen = next.Listen
		changed = true
	}
	if !reflect.DeepEqual(old.DefaultTarget, next.DefaultTarget) || !reflect.DeepEqual(old.DefaultTargets, next.DefaultTargets) {
		mp.DefaultTargetChanged = true
		mp.NewDefaultTarget = next.DefaultTarget
		mp.NewDefaultTargets = next.DefaultTargets
		changed = true
	}
	if old.SessionPersistence != next.SessionPersistence {
		mp.SessionPersistenceChanged = true
		changed = true
	}

	added, removed := diffSourceRoutes(old.SourceRoutes, next.SourceRoutes)
	if len(added) > 0 || len(removed) > 0 {
		mp.AddedSourceRoutes, mp.RemovedSourceRoutes = added, removed
		changed = true
	}

	addedSni, removedSni := diffSniRoutes(old.SniRoutes, next.SniRoutes)
	if len(addedSni) > 0 || len(removedSni) > 0 {
		mp.AddedSniRoutes, mp.RemovedSniRoutes = addedSni, removedSni
		changed = true
	}

	return mp, changed
}

func diffSourceRoutes(old, next []config.SourceRoute) (added, removed []config.SourceRoute) {
	oldBySource := make(map[string]config.SourceRoute, len(old))
	for _, r := range old {
		oldBySource[r.Source] = r
	}
	nextBySource := make(map[string]config.SourceRoute, len(next))
	for _, r := range next {
		nextBySource[r.Source] = r
	}

	for src, r := range nextBySource {
		o, existed := oldBySource[src]
		switch {
		case !existed:
			added = append(added, r)
		case !reflect.DeepEqual(o, r):
			// Content changed under the same source key: modeled as a
			// replace (remove old, add new) rather than a third "changed"
			// bucket.
			removed = append(removed, o)
			added = append(added, r)
		}
	}
	for src, r := range oldBySource {
		if _, stillExists := nextBySource[src]; !stillExists {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func diffSniRoutes(old, next []config.SniRoute) (added, removed []config.SniRoute) {
	oldByHost := make(map[string]config.SniRoute, len(old))
	for _, r := range old {
		oldByHost[r.Hostname] = r
	}
	nextByHost := make(map[string]config.SniRoute, len(next))
	for _, r := range next {
		nextByHost[r.Hostname] = r
	}

	for host, r := range nextByHost {
		o, existed := oldByHost[host]
		switch {
		case !existed:
			added = append(added, r)
		case !reflect.DeepEqual(o, r):
			removed = append(removed, o)
			added = append(added, r)
		}
	}
	for host, r := range oldByHost {
		if _, stillExists := nextByHost[host]; !stillExists {
			removed = append(removed, r)
		}
	}
	return added, removed
}
