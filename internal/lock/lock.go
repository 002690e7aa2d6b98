// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build !deadlock
// +build !deadlock

// Package lock re-exports the mutex types used across the control plane.
//
// Every subsystem documented in §5 of the spec guards its shared maps with
// one of these instead of a bare sync.Mutex/RWMutex, so that builds tagged
// with `deadlock` get cycle detection for free across the whole tree — the
// same trick cilium's own pkg/lock plays over sasha-s/go-deadlock.
package lock

import "sync"

// Mutex is sync.Mutex under normal builds; see lock_deadlock.go for the
// debug variant.
type Mutex = sync.Mutex

// RWMutex is sync.RWMutex under normal builds; see lock_deadlock.go for the
// debug variant.
type RWMutex = sync.RWMutex
