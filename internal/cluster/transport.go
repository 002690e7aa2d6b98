// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"context"

	"github.com/cilium/l4lb/internal/model"
)

// MessageKind identifies one of spec §4.10's SWIM/gossip message types.
type MessageKind string

const (
	MsgPing     MessageKind = "ping"
	MsgAck      MessageKind = "ack"
	MsgPingReq  MessageKind = "ping_req"
	MsgPush     MessageKind = "push"
	MsgPull     MessageKind = "pull"
	MsgPushPull MessageKind = "push_pull"
)

// Message is one SWIM/gossip envelope exchanged between peers.
type Message struct {
	Kind        MessageKind
	SenderID    string
	Incarnation uint64
	// PingReqTarget is set on MsgPingReq: the peer to probe on the
	// sender's behalf.
	PingReqTarget string
	States        []model.SyncableState
	Digest        map[DigestKey]uint64
}

// DigestKey identifies one gossiped state by (type, key) for pull digests.
type DigestKey struct {
	Type string
	Key  string
}

// Transport sends messages to a peer address and receives inbound
// messages. Production wiring is a UDP socket; tests use an in-memory
// FakeTransport so membership/gossip logic can run without a real network.
type Transport interface {
	Send(ctx context.Context, addr string, msg Message) error
	Receive() <-chan Inbound
}

// Inbound pairs a received message with the address it arrived from, so
// the membership engine can reply.
type Inbound struct {
	From string
	Msg  Message
}
