// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cluster

import (
	"bytes"
	"context"
	"encoding/gob"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var transportLog = logrus.WithField("subsys", "cluster.transport")

const maxDatagramSize = 65507

// UDPTransport is the production Transport: each Message is gob-encoded
// into a single UDP datagram. Messages that would exceed a single
// datagram are rejected by the kernel socket rather than silently
// fragmented, matching the SWIM/gossip protocol's "keep it to one packet"
// assumption (spec §4.10).
type UDPTransport struct {
	conn   *net.UDPConn
	inbox  chan Inbound
}

// NewUDPTransport binds bindAddr (e.g. "0.0.0.0:7946") and starts the
// receive loop; call Close when done.
func NewUDPTransport(bindAddr string) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	t := &UDPTransport{conn: conn, inbox: make(chan Inbound, 256)}
	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket unblocks ReadFromUDP with an error; exit quietly.
			return
		}
		var msg Message
		if err := gob.NewDecoder(bytes.NewReader(buf[:n])).Decode(&msg); err != nil {
			transportLog.WithError(err).Warn("dropping malformed gossip datagram")
			continue
		}
		select {
		case t.inbox <- Inbound{From: from.String(), Msg: msg}:
		default:
			transportLog.Warn("inbox full, dropping inbound gossip message")
		}
	}
}

// Send encodes msg and writes it as a single UDP datagram to addr.
func (t *UDPTransport) Send(ctx context.Context, addr string, msg Message) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	_, err = t.conn.WriteToUDP(buf.Bytes(), raddr)
	return err
}

// Receive returns the channel of inbound messages.
func (t *UDPTransport) Receive() <-chan Inbound { return t.inbox }

// Close shuts down the socket and stops the receive loop.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
