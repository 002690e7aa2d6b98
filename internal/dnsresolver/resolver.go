// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package dnsresolver runs one refresh task per registered hostname,
// resolving it to a set of addresses via miekg/dns and notifying a
// callback when the set changes (spec §4.3).
package dnsresolver

import (
	"context"
	"sort"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/lock"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
)

var log = logrus.WithField("subsys", "dnsresolver")

const (
	defaultRefreshSeconds = 30
	queryTimeout          = 5 * time.Second
)

// ChangeFunc is called with the newly resolved, weight-distributed group
// whenever the address set changes.
type ChangeFunc func(proxyName, hostname string, group model.TargetGroup)

// Binding is the input to Register: the hostname to resolve, the port and
// aggregate weight share its resolved addresses collectively carry, and
// the callback to notify on change.
type Binding struct {
	ProxyName       string
	Hostname        string
	Port            uint16
	WeightShare     uint8
	RefreshSeconds  int
	Callback        ChangeFunc
}

type registration struct {
	mu                lock.Mutex
	binding           Binding
	lastAddrs         []model.IPAddr
	consecutiveFailures int
	forceCh           chan struct{}
}

// Resolver owns the set of registered hostnames and their refresh loops.
// A nil server list falls back to the system resolver configuration via
// dns.ClientConfigFromFile("/etc/resolv.conf"), the conventional
// miekg/dns bootstrap.
type Resolver struct {
	client  *dns.Client
	servers []string

	mu   lock.RWMutex
	regs map[string]*registration // keyed by hostname
}

// New creates a Resolver. servers is a list of "ip:port" nameservers to
// query in order; if empty, the system resolver configuration is used.
func New(servers []string) *Resolver {
	return &Resolver{
		client:  &dns.Client{Timeout: queryTimeout},
		servers: servers,
		regs:    make(map[string]*registration),
	}
}

func (r *Resolver) resolveServers() ([]string, error) {
	if len(r.servers) > 0 {
		return r.servers, nil
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, errs.Wrap(errs.OperationFailed, err, "read /etc/resolv.conf")
	}
	out := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, s+":"+cfg.Port)
	}
	return out, nil
}

// Register starts b's refresh task on runner. The first resolution
// happens synchronously and its failure is returned immediately, per
// spec §4.3's "startup resolution failures are fatal for that
// registration".
func (r *Resolver) Register(runner *taskrunner.Runner, b Binding) error {
	reg := &registration{binding: b, forceCh: make(chan struct{}, 1)}

	addrs, err := r.resolve(b.Hostname)
	if err != nil {
		return errs.Wrap(errs.DNSStartupFailure, err, "initial resolution of %q failed", b.Hostname)
	}
	reg.lastAddrs = addrs

	r.mu.Lock()
	r.regs[b.Hostname] = reg
	r.mu.Unlock()

	if b.Callback != nil {
		b.Callback(b.ProxyName, b.Hostname, distribute(addrs, b.Port, b.WeightShare))
	}

	interval := time.Duration(b.RefreshSeconds) * time.Second
	if interval <= 0 {
		interval = defaultRefreshSeconds * time.Second
	}

	runner.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				r.refresh(reg)
			case <-reg.forceCh:
				r.refresh(reg)
			}
		}
	})
	return nil
}

// ForceResolve triggers an out-of-schedule refresh of hostname, if
// registered.
func (r *Resolver) ForceResolve(hostname string) bool {
	r.mu.RLock()
	reg, ok := r.regs[hostname]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case reg.forceCh <- struct{}{}:
	default:
	}
	return true
}

func (r *Resolver) refresh(reg *registration) {
	addrs, err := r.resolve(reg.binding.Hostname)
	reg.mu.Lock()
	if err != nil {
		reg.consecutiveFailures++
		reg.mu.Unlock()
		log.WithFields(logrus.Fields{"hostname": reg.binding.Hostname, "error": err}).
			Warn("dns refresh failed, reusing last-known-good set")
		return
	}
	reg.consecutiveFailures = 0
	changed := !sameMembership(reg.lastAddrs, addrs)
	reg.lastAddrs = addrs
	reg.mu.Unlock()

	if changed && reg.binding.Callback != nil {
		reg.binding.Callback(reg.binding.ProxyName, reg.binding.Hostname,
			distribute(addrs, reg.binding.Port, reg.binding.WeightShare))
	}
}

func (r *Resolver) resolve(hostname string) ([]model.IPAddr, error) {
	servers, err := r.resolveServers()
	if err != nil {
		return nil, err
	}

	var addrs []model.IPAddr
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(hostname), qtype)
		msg.RecursionDesired = true

		var lastErr error
		for _, server := range servers {
			resp, _, err := r.client.Exchange(msg, server)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range resp.Answer {
				switch rec := rr.(type) {
				case *dns.A:
					if a, err := model.IPAddrFromNetIP(rec.A); err == nil {
						addrs = append(addrs, a)
					}
				case *dns.AAAA:
					if a, err := model.IPAddrFromNetIP(rec.AAAA); err == nil {
						addrs = append(addrs, a)
					}
				}
			}
			lastErr = nil
			break
		}
		if lastErr != nil {
			return nil, errs.Wrap(errs.OperationFailed, lastErr, "resolve %q", hostname)
		}
	}

	if len(addrs) == 0 {
		return nil, errs.New(errs.OperationFailed, "no A/AAAA records for %q", hostname)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	return addrs, nil
}

func sameMembership(a, b []model.IPAddr) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[model.IPAddr]struct{}, len(a))
	for _, x := range a {
		seen[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := seen[x]; !ok {
			return false
		}
	}
	return true
}

// distribute spreads weightShare as evenly as possible across addrs,
// assigning the remainder to the last target, per spec §4.3.
func distribute(addrs []model.IPAddr, port uint16, weightShare uint8) model.TargetGroup {
	n := len(addrs)
	targets := make([]model.Target, n)
	base := int(weightShare) / n
	remainder := int(weightShare) % n

	running := uint16(0)
	cumulative := make([]uint16, n)
	for i, a := range addrs {
		w := base
		if i == n-1 {
			w += remainder
		}
		if w < 1 {
			w = 1
		}
		targets[i] = model.Target{Address: a, Port: port, Weight: uint8(w)}
		running += uint16(w)
		cumulative[i] = running
	}
	if n > 0 {
		cumulative[n-1] = 100
	}
	return model.TargetGroup{Targets: targets, CumulativeWeights: cumulative}
}
