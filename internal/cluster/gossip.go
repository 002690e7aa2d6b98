// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"context"
	"time"

	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

// Store is the subset of local-state access gossip needs: every
// subsystem's syncable states, keyed by (type,key), plus a way to apply an
// incoming state when it wins conflict resolution.
type Store interface {
	// Snapshot returns every locally known SyncableState.
	Snapshot() []model.SyncableState
	// Digest returns the version of every locally known state, for pull
	// comparison.
	Digest() map[DigestKey]uint64
	// Get returns one state by key, if known.
	Get(key DigestKey) (model.SyncableState, bool)
	// Apply merges a remote state in, running conflict resolution inside
	// the store (it knows each type's comparison rule) and returns
	// whether it was actually adopted.
	Apply(remote model.SyncableState) bool
}

// Gossiper drives the periodic push/pull/push_pull dissemination loop from
// spec §4.10.
type Gossiper struct {
	selfID    string
	cfg       Config
	transport Transport
	membership *Membership
	clock     *LamportClock
	store     Store
	now       func() int64
}

// NewGossiper wires a Gossiper to its membership view and local store.
func NewGossiper(selfID string, cfg Config, transport Transport, membership *Membership, clock *LamportClock, store Store) *Gossiper {
	return &Gossiper{
		selfID:     selfID,
		cfg:        cfg,
		transport:  transport,
		membership: membership,
		clock:      clock,
		store:      store,
		now:        func() int64 { return time.Now().UnixNano() },
	}
}

// StartSender runs the periodic gossip_interval_ms push loop and the
// slower push_pull_interval_ms full-sync loop.
func (g *Gossiper) StartSender(runner *taskrunner.Runner) {
	gossipInterval := time.Duration(g.cfg.GossipIntervalMs) * time.Millisecond
	if gossipInterval <= 0 {
		gossipInterval = 200 * time.Millisecond
	}
	pushPullInterval := time.Duration(g.cfg.PushPullIntervalMs) * time.Millisecond
	if pushPullInterval <= 0 {
		pushPullInterval = 30 * time.Second
	}
	fanout := g.cfg.GossipFanout
	if fanout <= 0 {
		fanout = 3
	}

	runner.Go(func(ctx context.Context) error {
		pushTicker := time.NewTicker(gossipInterval)
		pullTicker := time.NewTicker(pushPullInterval)
		defer pushTicker.Stop()
		defer pullTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-pushTicker.C:
				g.sendPush(ctx, fanout)
			case <-pullTicker.C:
				g.sendPushPull(ctx, fanout)
			}
		}
	})
}

func (g *Gossiper) sendPush(ctx context.Context, fanout int) {
	targets := g.membership.pickRandomAlive(fanout, g.membership.selfAddr)
	states := g.store.Snapshot()
	for _, addr := range targets {
		_ = g.transport.Send(ctx, addr, Message{Kind: MsgPush, SenderID: g.selfID, States: states})
	}
}

func (g *Gossiper) sendPushPull(ctx context.Context, fanout int) {
	targets := g.membership.pickRandomAlive(fanout, g.membership.selfAddr)
	states := g.store.Snapshot()
	digest := g.store.Digest()
	for _, addr := range targets {
		_ = g.transport.Send(ctx, addr, Message{Kind: MsgPushPull, SenderID: g.selfID, States: states, Digest: digest})
	}
}

// HandleInbound applies an incoming push/pull/push_pull message: every
// state in the message is offered to the store, which resolves conflicts
// per its type's rule. A pull's digest is answered with a push of every
// state the digest shows as stale or missing on the peer's side.
func (g *Gossiper) HandleInbound(ctx context.Context, in Inbound) {
	switch in.Msg.Kind {
	case MsgPush, MsgPushPull:
		for _, s := range in.Msg.States {
			g.clock.Observe(s.Version)
			g.store.Apply(s)
		}
		if in.Msg.Kind == MsgPushPull {
			g.replyMissing(ctx, in.From, in.Msg.Digest)
		}
	case MsgPull:
		g.replyMissing(ctx, in.From, in.Msg.Digest)
	}
}

func (g *Gossiper) replyMissing(ctx context.Context, addr string, remoteDigest map[DigestKey]uint64) {
	local := g.store.Digest()
	var toSend []model.SyncableState
	for key, localVersion := range local {
		remoteVersion, known := remoteDigest[key]
		if !known || remoteVersion < localVersion {
			if s, ok := g.store.Get(key); ok {
				toSend = append(toSend, s)
			}
		}
	}
	if len(toSend) == 0 {
		return
	}
	_ = g.transport.Send(ctx, addr, Message{Kind: MsgPush, SenderID: g.selfID, States: toSend})
}
