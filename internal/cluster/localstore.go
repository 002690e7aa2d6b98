// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"encoding/json"

	"github.com/cilium/l4lb/internal/circuit"
	"github.com/cilium/l4lb/internal/drain"
	"github.com/cilium/l4lb/internal/health"
	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
)

// LocalStore bridges the health/circuit/drain engines into the Store
// interface gossip needs: it is the node's authoritative view of its own
// state, versioned by a shared LamportClock. An accepted remote health or
// circuit state is written back into the owning engine via its ApplyRemote
// method; an accepted remote drain state only updates the store's clock and
// version bookkeeping.
//
// SyncableState.Value is an opaque, subsystem-specific payload (spec
// §4.10's wire format doesn't fix its encoding, unlike the kernel map
// keys/values in internal/wire); JSON is used here since it's a
// process-local RPC payload, not a kernel-read structure.
type LocalStore struct {
	selfID  string
	clock   *LamportClock
	health  *health.Engine
	circuit *circuit.Manager
	drain   *drain.Engine

	mu       lock.Mutex
	versions map[string]uint64 // keyed by trackKey(type, id)
	proxyOf  map[string]string // keyed by trackKey(type, id)
}

// NewLocalStore builds a Store over the three gossiped subsystems.
func NewLocalStore(selfID string, clock *LamportClock, h *health.Engine, c *circuit.Manager, d *drain.Engine) *LocalStore {
	return &LocalStore{
		selfID:   selfID,
		clock:    clock,
		health:   h,
		circuit:  c,
		drain:    d,
		versions: make(map[string]uint64),
		proxyOf:  make(map[string]string),
	}
}

func trackKey(t model.SyncableStateType, id model.TargetID) string {
	return string(t) + "|" + id.String()
}

// Touch records that (stateType, id) changed locally under proxyName just
// now, bumping its Lamport version. Call this from each engine's
// transition/event callback so gossip has something to disseminate.
func (s *LocalStore) Touch(proxyName string, stateType model.SyncableStateType, id model.TargetID) {
	key := trackKey(stateType, id)
	s.mu.Lock()
	s.proxyOf[key] = proxyName
	s.versions[key] = s.clock.NextVersion()
	s.mu.Unlock()
}

func (s *LocalStore) proxyNameOf(t model.SyncableStateType, id model.TargetID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxyOf[trackKey(t, id)]
}

func (s *LocalStore) versionOf(t model.SyncableStateType, id model.TargetID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.versions[trackKey(t, id)]; ok {
		return v
	}
	return s.clock.Value()
}

func (s *LocalStore) recordVersion(t model.SyncableStateType, id model.TargetID, v uint64) {
	s.mu.Lock()
	s.versions[trackKey(t, id)] = v
	s.mu.Unlock()
}

// Snapshot implements Store.
func (s *LocalStore) Snapshot() []model.SyncableState {
	var out []model.SyncableState
	for id, hs := range s.health.List() {
		out = append(out, s.encodeHealth(id, hs))
	}
	for id, cs := range s.circuit.List() {
		out = append(out, s.encodeCircuit(id, cs))
	}
	for id, ds := range s.drain.List() {
		out = append(out, s.encodeDrain(id, ds))
	}
	return out
}

// Digest implements Store.
func (s *LocalStore) Digest() map[DigestKey]uint64 {
	out := make(map[DigestKey]uint64)
	for _, st := range s.Snapshot() {
		out[DigestKey{Type: string(st.StateType), Key: st.Key}] = st.Version
	}
	return out
}

// Get implements Store.
func (s *LocalStore) Get(key DigestKey) (model.SyncableState, bool) {
	for _, st := range s.Snapshot() {
		if string(st.StateType) == key.Type && st.Key == key.Key {
			return st, true
		}
	}
	return model.SyncableState{}, false
}

// Apply implements Store: it decodes remote's payload, resolves the
// conflict per its type's rule, and writes the result back into the
// owning engine when remote wins.
func (s *LocalStore) Apply(remote model.SyncableState) bool {
	switch remote.StateType {
	case model.StateHealth:
		return s.applyHealth(remote)
	case model.StateCircuit:
		return s.applyCircuit(remote)
	case model.StateDrain:
		return s.applyDrain(remote)
	default:
		return false
	}
}

type healthPayload struct {
	ID     model.TargetID
	Status model.HealthStatus
}

func (s *LocalStore) encodeHealth(id model.TargetID, hs model.HealthStatus) model.SyncableState {
	buf, _ := json.Marshal(healthPayload{ID: id, Status: hs})
	return model.SyncableState{
		StateType:   model.StateHealth,
		Key:         s.proxyNameOf(model.StateHealth, id) + "/" + id.String(),
		Value:       buf,
		Version:     s.versionOf(model.StateHealth, id),
		SourceNode:  s.selfID,
		TimestampNs: hs.LastCheckNs,
	}
}

func (s *LocalStore) applyHealth(remote model.SyncableState) bool {
	var p healthPayload
	if err := json.Unmarshal(remote.Value, &p); err != nil {
		return false
	}
	local, ok := s.health.Status(p.ID)
	localVersion := s.versionOf(model.StateHealth, p.ID)
	wins := !ok || RemoteWinsHealth(
		HealthCandidate{Candidate: Candidate{Version: localVersion}, LastCheckNs: local.LastCheckNs},
		HealthCandidate{Candidate: Candidate{Version: remote.Version, SourceNode: remote.SourceNode}, LastCheckNs: p.Status.LastCheckNs},
	)
	s.health.ApplyRemote(p.ID, p.Status, wins)
	if wins {
		s.clock.Observe(remote.Version)
		s.recordVersion(model.StateHealth, p.ID, s.clock.Value())
	}
	return wins
}

type circuitPayload struct {
	ID    model.TargetID
	State model.CircuitState
}

func (s *LocalStore) encodeCircuit(id model.TargetID, cs model.CircuitState) model.SyncableState {
	buf, _ := json.Marshal(circuitPayload{ID: id, State: cs})
	return model.SyncableState{
		StateType:   model.StateCircuit,
		Key:         s.proxyNameOf(model.StateCircuit, id) + "/" + id.String(),
		Value:       buf,
		Version:     s.versionOf(model.StateCircuit, id),
		SourceNode:  s.selfID,
		TimestampNs: cs.LastTransitionNs,
	}
}

func (s *LocalStore) applyCircuit(remote model.SyncableState) bool {
	var p circuitPayload
	if err := json.Unmarshal(remote.Value, &p); err != nil {
		return false
	}
	local, ok := s.circuit.State(p.ID)
	localVersion := s.versionOf(model.StateCircuit, p.ID)
	wins := !ok || RemoteWinsCircuit(
		CircuitCandidate{Candidate: Candidate{Version: localVersion}, State: local.State},
		CircuitCandidate{Candidate: Candidate{Version: remote.Version, SourceNode: remote.SourceNode}, State: p.State.State},
	)
	if wins {
		s.circuit.ApplyRemote(p.ID, p.State)
		s.clock.Observe(remote.Version)
		s.recordVersion(model.StateCircuit, p.ID, s.clock.Value())
	}
	return wins
}

type drainPayload struct {
	ID    model.TargetID
	State model.DrainState
}

func (s *LocalStore) encodeDrain(id model.TargetID, ds model.DrainState) model.SyncableState {
	buf, _ := json.Marshal(drainPayload{ID: id, State: ds})
	return model.SyncableState{
		StateType:   model.StateDrain,
		Key:         s.proxyNameOf(model.StateDrain, id) + "/" + id.String(),
		Value:       buf,
		Version:     s.versionOf(model.StateDrain, id),
		SourceNode:  s.selfID,
		TimestampNs: ds.StartedAtNs,
	}
}

func (s *LocalStore) applyDrain(remote model.SyncableState) bool {
	var p drainPayload
	if err := json.Unmarshal(remote.Value, &p); err != nil {
		return false
	}
	local, ok := s.drain.Active(p.ID)
	localVersion := s.versionOf(model.StateDrain, p.ID)
	wins := !ok || RemoteWinsDrain(
		DrainCandidate{Candidate: Candidate{Version: localVersion}, State: local.State},
		DrainCandidate{Candidate: Candidate{Version: remote.Version, SourceNode: remote.SourceNode}, State: p.State.State},
	)
	if wins {
		s.clock.Observe(remote.Version)
		s.recordVersion(model.StateDrain, p.ID, s.clock.Value())
	}
	return wins
}
