// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build deadlock
// +build deadlock

package lock

import "github.com/sasha-s/go-deadlock"

// Mutex is github.com/sasha-s/go-deadlock.Mutex when built with -tags deadlock.
type Mutex = deadlock.Mutex

// RWMutex is github.com/sasha-s/go-deadlock.RWMutex when built with -tags deadlock.
type RWMutex = deadlock.RWMutex
