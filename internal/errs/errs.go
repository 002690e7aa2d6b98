// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package errs defines the stable error kinds surfaced across the control
// plane, and their mapping to recovery behavior at the admin boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable identifier for a class of control-plane error.
type Kind string

const (
	NotRunning         Kind = "NOT_RUNNING"
	NoConfig           Kind = "NO_CONFIG"
	NotFound           Kind = "NOT_FOUND"
	MissingParam       Kind = "MISSING_PARAM"
	InvalidParam       Kind = "INVALID_PARAM"
	OperationFailed    Kind = "OPERATION_FAILED"
	InternalError      Kind = "INTERNAL_ERROR"
	ClusterNotRunning  Kind = "CLUSTER_NOT_RUNNING"
	DNSStartupFailure  Kind = "DNS_STARTUP_FAILURE"
	WeightSumMismatch  Kind = "WEIGHT_SUM_MISMATCH"
	TargetCountExceed  Kind = "TARGET_COUNT_EXCEEDED"
	DuplicateTarget    Kind = "DUPLICATE_TARGET"
	TargetNotFound     Kind = "TARGET_NOT_FOUND"
	AlreadyDraining    Kind = "ALREADY_DRAINING"
)

// Error is the typed error every subsystem boundary returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
