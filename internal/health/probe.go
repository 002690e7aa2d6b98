// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// Prober runs one health check attempt and reports whether it succeeded.
type Prober interface {
	Probe(ctx context.Context) error
}

// TCPProber dials addr and succeeds if the connection is established.
type TCPProber struct {
	Addr    string
	Timeout time.Duration
}

func (p TCPProber) Probe(ctx context.Context) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("health: tcp connect %s: %w", p.Addr, err)
	}
	return conn.Close()
}

// HTTPProber issues a GET to URL and succeeds on any 2xx response.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
}

func (p HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("health: build request for %s: %w", p.URL, err)
	}
	client := http.Client{Timeout: p.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health: GET %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health: GET %s returned %d", p.URL, resp.StatusCode)
	}
	return nil
}

// CommandProber runs an operator-supplied shell-style command line and
// succeeds on exit code 0. The command string is split the way a shell
// would (quoting, escaping) so operators can write the same invocation
// they'd type interactively.
type CommandProber struct {
	Command string
	Timeout time.Duration
}

func (p CommandProber) Probe(ctx context.Context) error {
	args, err := shellwords.Parse(p.Command)
	if err != nil || len(args) == 0 {
		return fmt.Errorf("health: parse command %q: %w", p.Command, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("health: command %q failed: %w", p.Command, err)
	}
	return nil
}
