// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package taskrunner provides the bounded task runtime described in spec
// §5: every long-lived goroutine (DNS refresh, health probes, drain
// watcher, circuit watcher, gossip sender, membership prober) is launched
// through a Runner so Shutdown can cancel and join them all within a
// bounded time.
package taskrunner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner owns a cancellation context and an errgroup.Group of long-lived
// tasks launched with Go.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Runner whose tasks are cancelled when parent is done or
// Shutdown is called.
func New(parent context.Context) *Runner {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Runner{ctx: gctx, cancel: cancel, group: group}
}

// Context returns the context tasks should select on to notice
// cancellation.
func (r *Runner) Context() context.Context { return r.ctx }

// Go launches a long-lived task. fn should return promptly once
// r.Context() is done; watcher tasks never propagate their own errors as
// fatal (spec §7: "Watcher tasks never crash the process"), so fn should
// log and return nil rather than returning an error for recoverable
// failures.
func (r *Runner) Go(fn func(ctx context.Context) error) {
	r.group.Go(func() error {
		return fn(r.ctx)
	})
}

// Shutdown cancels all tasks and waits up to budget for them to return.
// Tasks still running when budget elapses are abandoned; the caller is
// expected to close shared resources (e.g. kernel-map handles) only after
// Shutdown returns, per spec §5's "closes kernel-map handles last".
func (r *Runner) Shutdown(budget time.Duration) {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(budget):
	}
}
