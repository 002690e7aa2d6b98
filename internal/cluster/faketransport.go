// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"context"

	"github.com/cilium/l4lb/internal/lock"
)

// FakeTransport is an in-memory Transport backed by a shared registry of
// peer addresses to inboxes, so membership/gossip tests can run many
// simulated nodes within one process without touching a real socket.
type FakeTransport struct {
	addr     string
	inbox    chan Inbound
	registry *registry
}

type registry struct {
	mu    lock.Mutex
	peers map[string]chan Inbound
}

// NewFakeNetwork returns a shared registry new FakeTransports can join.
func NewFakeNetwork() *registry {
	return &registry{peers: make(map[string]chan Inbound)}
}

// NewFakeTransport registers addr on net and returns a Transport for it.
func NewFakeTransport(net *registry, addr string) *FakeTransport {
	t := &FakeTransport{addr: addr, inbox: make(chan Inbound, 256), registry: net}
	net.mu.Lock()
	net.peers[addr] = t.inbox
	net.mu.Unlock()
	return t
}

func (t *FakeTransport) Send(ctx context.Context, addr string, msg Message) error {
	t.registry.mu.Lock()
	inbox, ok := t.registry.peers[addr]
	t.registry.mu.Unlock()
	if !ok {
		return nil // unreachable peer: dropped, same as a real lost packet.
	}
	select {
	case inbox <- Inbound{From: t.addr, Msg: msg}:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Inbox full: drop, matching UDP's no-delivery-guarantee semantics.
	}
	return nil
}

func (t *FakeTransport) Receive() <-chan Inbound { return t.inbox }
