// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package cluster keeps health, circuit, and drain state eventually
// consistent across peer instances via a SWIM-style membership protocol
// and gossip dissemination, per spec §4.10.
package cluster

import (
	"context"
	"math/rand"
	"time"

	"github.com/blang/semver/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "cluster")

// ProtocolVersion is this build's gossip wire-compatibility version,
// checked against a joining peer's advertised version (same major
// required) before admission.
var ProtocolVersion = semver.MustParse("1.0.0")

// Config holds the SWIM/gossip tunables from spec §6's cluster schema.
type Config struct {
	PingIntervalMs     uint32
	PingTimeoutMs      uint32
	PingReqCount       int
	SuspicionMult      float64
	GossipFanout       int
	GossipIntervalMs   uint32
	PushPullIntervalMs uint32
}

type peer struct {
	mu          lock.Mutex
	node        model.ClusterNode
	suspectSinceNs int64
}

// StatusChangeFunc is invoked whenever a peer's membership status changes.
type StatusChangeFunc func(node model.ClusterNode)

// Membership owns the SWIM protocol state machine for one local node.
type Membership struct {
	mu        lock.RWMutex
	selfID    string
	selfAddr  string
	cfg       Config
	transport Transport
	clock     *LamportClock
	peers     map[string]*peer
	onChange  StatusChangeFunc
	now       func() int64
	rng       *rand.Rand
}

// NewNodeID generates a fresh node identifier.
func NewNodeID() string { return uuid.NewString() }

// NewMembership creates a membership engine for selfID/selfAddr.
// onChange may be nil.
func NewMembership(selfID, selfAddr string, cfg Config, transport Transport, clock *LamportClock, onChange StatusChangeFunc) *Membership {
	return &Membership{
		selfID:    selfID,
		selfAddr:  selfAddr,
		cfg:       cfg,
		transport: transport,
		clock:     clock,
		peers:     make(map[string]*peer),
		onChange:  onChange,
		now:       func() int64 { return time.Now().UnixNano() },
		rng:       rand.New(rand.NewSource(1)),
	}
}

// SetClock overrides the time source; used by tests.
func (m *Membership) SetClock(now func() int64) { m.now = now }

// CheckJoin validates a joining peer's protocol version against ours:
// spec §4.10's supplemented rule that the major version must match.
func CheckJoin(remoteVersion string) error {
	v, err := semver.Parse(remoteVersion)
	if err != nil {
		return errs.New(errs.InvalidParam, "malformed protocol_version %q", remoteVersion)
	}
	if v.Major != ProtocolVersion.Major {
		return errs.New(errs.InvalidParam, "incompatible protocol version %s (local %s)", v, ProtocolVersion)
	}
	return nil
}

// AddPeer admits id/addr into the membership view as ALIVE. A peer that is
// already known is refreshed only with a higher incarnation, except that a
// DEAD peer is readmitted (rejoin) with any incarnation.
func (m *Membership) AddPeer(id, addr string, incarnation uint64) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if !ok {
		p = &peer{}
		m.peers[id] = p
	}
	m.mu.Unlock()

	p.mu.Lock()
	if ok && p.node.Status != model.NodeDead && incarnation <= p.node.Incarnation {
		p.mu.Unlock()
		return
	}
	p.node = model.ClusterNode{
		NodeID:      id,
		Address:     addr,
		Incarnation: incarnation,
		LastSeenNs:  m.now(),
		JoinTimeNs:  m.now(),
		Status:      model.NodeAlive,
	}
	p.mu.Unlock()

	m.publish(id)
}

// Peers returns a snapshot of every known peer (excluding self).
func (m *Membership) Peers() []model.ClusterNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClusterNode, 0, len(m.peers))
	for _, p := range m.peers {
		p.mu.Lock()
		out = append(out, p.node)
		p.mu.Unlock()
	}
	return out
}

// AlivePeers returns the addresses of every peer currently ALIVE.
func (m *Membership) AlivePeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, p := range m.peers {
		p.mu.Lock()
		if p.node.Status == model.NodeAlive {
			out = append(out, p.node.Address)
		}
		p.mu.Unlock()
	}
	return out
}

// RecordContact refreshes a peer's last-seen time and clears any
// suspicion, after receiving a ping/ack/gossip message directly from it.
func (m *Membership) RecordContact(id string, incarnation uint64) {
	m.mu.RLock()
	p, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	if incarnation >= p.node.Incarnation {
		p.node.Incarnation = incarnation
		p.node.LastSeenNs = m.now()
		changed := p.node.Status != model.NodeAlive
		p.node.Status = model.NodeAlive
		p.suspectSinceNs = 0
		p.mu.Unlock()
		if changed {
			m.publish(id)
		}
		return
	}
	p.mu.Unlock()
}

// MarkSuspect transitions an ALIVE peer to SUSPECT after a failed
// probe/ping_req round.
func (m *Membership) MarkSuspect(id string) {
	m.mu.RLock()
	p, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	if p.node.Status != model.NodeAlive {
		p.mu.Unlock()
		return
	}
	p.node.Status = model.NodeSuspect
	p.suspectSinceNs = m.now()
	p.mu.Unlock()
	m.publish(id)
	log.WithField("node", id).Debug("node marked suspect")
}

// CheckSuspicionTimeouts promotes any peer that has been SUSPECT for at
// least suspicion_mult * ping_interval_ms to DEAD.
func (m *Membership) CheckSuspicionTimeouts() {
	timeoutNs := int64(float64(m.cfg.PingIntervalMs) * m.cfg.SuspicionMult * float64(time.Millisecond))
	m.mu.RLock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.mu.RLock()
		p := m.peers[id]
		m.mu.RUnlock()

		p.mu.Lock()
		if p.node.Status != model.NodeSuspect {
			p.mu.Unlock()
			continue
		}
		elapsed := m.now() - p.suspectSinceNs
		if elapsed < timeoutNs {
			p.mu.Unlock()
			continue
		}
		p.node.Status = model.NodeDead
		p.mu.Unlock()
		m.publish(id)
		log.WithField("node", id).Debug("node marked dead")
	}
}

func (m *Membership) publish(id string) {
	if m.onChange == nil {
		return
	}
	m.mu.RLock()
	p, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	node := p.node
	p.mu.Unlock()
	m.onChange(node)
}

// pickRandomAlive returns up to n distinct random ALIVE peer addresses,
// excluding exclude.
func (m *Membership) pickRandomAlive(n int, exclude string) []string {
	all := m.AlivePeers()
	filtered := all[:0]
	for _, a := range all {
		if a != exclude {
			filtered = append(filtered, a)
		}
	}
	m.rng.Shuffle(len(filtered), func(i, j int) { filtered[i], filtered[j] = filtered[j], filtered[i] })
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered
}

// StartProber runs the periodic probe loop: every ping interval it promotes
// timed-out SUSPECT peers to DEAD and sends a ping to up to PingReqCount
// (default 2) random ALIVE peers. It does not wait for acks, send ping_req
// messages, or mark unresponsive peers SUSPECT.
func (m *Membership) StartProber(runner *taskrunner.Runner) {
	interval := time.Duration(m.cfg.PingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	k := m.cfg.PingReqCount
	if k <= 0 {
		k = 2
	}
	runner.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.CheckSuspicionTimeouts()
				for _, addr := range m.pickRandomAlive(k, m.selfAddr) {
					_ = m.transport.Send(ctx, addr, Message{
						Kind:        MsgPing,
						SenderID:    m.selfID,
						Incarnation: m.clock.Value(),
					})
				}
			}
		}
	})
}

// HandleInbound dispatches one received SWIM message, replying through
// the transport where the protocol requires a response.
func (m *Membership) HandleInbound(ctx context.Context, in Inbound) {
	switch in.Msg.Kind {
	case MsgPing:
		m.RecordContact(in.Msg.SenderID, in.Msg.Incarnation)
		_ = m.transport.Send(ctx, in.From, Message{Kind: MsgAck, SenderID: m.selfID, Incarnation: m.clock.Value()})
	case MsgAck:
		m.RecordContact(in.Msg.SenderID, in.Msg.Incarnation)
	case MsgPingReq:
		m.RecordContact(in.Msg.SenderID, in.Msg.Incarnation)
		_ = m.transport.Send(ctx, in.Msg.PingReqTarget, Message{Kind: MsgPing, SenderID: m.selfID, Incarnation: m.clock.Value()})
	}
}
