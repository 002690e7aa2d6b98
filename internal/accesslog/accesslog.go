// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package accesslog provides an async, buffered sink for per-connection
// access records, supplementing spec §6's "optional access-log files"
// into a first-class ambient component (SPEC_FULL §4.13).
package accesslog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "accesslog")

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 10
	defaultBufferSize = 4096
)

// Record is one logged connection event.
type Record struct {
	TimestampNs int64            `json:"ts_ns"`
	ProxyName   string           `json:"proxy"`
	Target      model.TargetID   `json:"target"`
	ClientIP    model.IPAddr     `json:"client_ip"`
	BytesFwd    uint64           `json:"bytes_fwd"`
	BytesRev    uint64           `json:"bytes_rev"`
	DurationMs  int64            `json:"duration_ms"`
	Outcome     string           `json:"outcome"`
}

// Sink consumes a stream of Records and writes them to an io.Writer;
// NewFileSink and NewStdoutSink build one over a rotating file or stdout.
type Sink struct {
	ch     chan Record
	writer io.Writer
	closed chan struct{}
}

// NewFileSink returns a Sink writing newline-delimited JSON to a
// size-rotated file, using the spec's documented defaults (100MB, keep 10).
func NewFileSink(path string) *Sink {
	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		Compress:   false,
	}
	return newSink(logger)
}

// NewStdoutSink returns a Sink writing to stdout, for environments without
// a configured access-log path.
func NewStdoutSink() *Sink {
	return newSink(os.Stdout)
}

func newSink(w io.Writer) *Sink {
	return &Sink{
		ch:     make(chan Record, defaultBufferSize),
		writer: w,
		closed: make(chan struct{}),
	}
}

// Log enqueues a record without blocking the caller's connection-handling
// path; a full buffer drops the record rather than applying backpressure.
func (s *Sink) Log(r Record) {
	select {
	case s.ch <- r:
	default:
		log.Warn("access log buffer full, dropping record")
	}
}

// Start runs the async writer loop on runner until shutdown.
func (s *Sink) Start(runner *taskrunner.Runner) {
	runner.Go(func(ctx context.Context) error {
		enc := json.NewEncoder(s.writer)
		for {
			select {
			case <-ctx.Done():
				s.drain(enc)
				close(s.closed)
				return nil
			case r := <-s.ch:
				if err := enc.Encode(r); err != nil {
					log.WithError(err).Warn("failed to write access log record")
				}
			}
		}
	})
}

func (s *Sink) drain(enc *json.Encoder) {
	for {
		select {
		case r := <-s.ch:
			_ = enc.Encode(r)
		default:
			return
		}
	}
}

// NewRecord builds a Record stamped with started, with DurationMs measured
// from started to now.
func NewRecord(proxyName string, target model.TargetID, clientIP model.IPAddr, bytesFwd, bytesRev uint64, started time.Time, outcome string) Record {
	return Record{
		TimestampNs: started.UnixNano(),
		ProxyName:   proxyName,
		Target:      target,
		ClientIP:    clientIP,
		BytesFwd:    bytesFwd,
		BytesRev:    bytesRev,
		DurationMs:  time.Since(started).Milliseconds(),
		Outcome:     outcome,
	}
}
