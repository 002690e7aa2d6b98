// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package mapprog materializes proxy configuration into the kernel-map
// wire formats from internal/wire and writes them through internal/bpfmap,
// per spec §4.9. Every mutation is idempotent: reapplying identical
// content against an already-programmed map is a no-op.
package mapprog

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/cilium/l4lb/internal/bpfmap"
	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/wire"
)

// IfindexFunc resolves an interface name to a kernel ifindex; overridable
// in tests so they don't need a real network namespace.
type IfindexFunc func(name string) (uint32, error)

// Programmer owns the five kernel-map handles: listen, LPM source routes,
// SNI, and the per-source and per-backend rate limits.
type Programmer struct {
	Listen           bpfmap.Map[wire.ListenKey, wire.WeightedRoute]
	LPM              bpfmap.Map[wire.LPMKey, wire.WeightedRoute]
	SNI              bpfmap.Map[wire.SNIKey, wire.WeightedRoute]
	RateLimitSource  bpfmap.Map[wire.LPMKey, wire.RateLimitValue]
	RateLimitBackend bpfmap.Map[wire.BackendKey, wire.RateLimitValue]
	Ifindex          IfindexFunc
}

// RouteFromGroup builds the WeightedRoute materialized for a TargetGroup:
// one record per target, cumulative weight truncated to u8 (cumulative
// weights are always in [0,100]), flags as given by the caller (session
// persistence / PROXY v2 are route-level, not target-level, settings).
func RouteFromGroup(group model.TargetGroup, flags wire.RouteFlag) wire.WeightedRoute {
	records := make([]wire.RouteRecord, len(group.Targets))
	for i, t := range group.Targets {
		records[i] = wire.RouteRecord{
			IP:               t.Address,
			Port:             t.Port,
			CumulativeWeight: uint8(group.CumulativeWeights[i]),
		}
	}
	return wire.WeightedRoute{Flags: flags, Records: records}
}

func routesEqual(a, b wire.WeightedRoute) bool {
	ea, errA := a.Encode()
	eb, errB := b.Encode()
	if errA != nil || errB != nil {
		return false
	}
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if ea[i] != eb[i] {
			return false
		}
	}
	return true
}

func ifindex(p *Programmer, name string) (uint32, error) {
	if p.Ifindex != nil {
		return p.Ifindex(name)
	}
	return bpfmap.Ifindex(name)
}

// AddListenPort programs (ifindex, port, af) -> route, skipping the write
// if an identical route is already present.
func (p *Programmer) AddListenPort(ifaceName string, port uint16, af wire.AddressFamily, route wire.WeightedRoute) error {
	ifidx, err := ifindex(p, ifaceName)
	if err != nil {
		return errs.Wrap(errs.OperationFailed, err, "resolve ifindex for %q", ifaceName)
	}
	key := wire.ListenKey{Ifindex: ifidx, Port: port, AFTag: af}

	if existing, ok, err := p.Listen.Lookup(key); err == nil && ok && routesEqual(existing, route) {
		return nil
	}
	return p.Listen.Insert(key, route)
}

// RemoveListenPort deletes the listen entry if present; absence is not an
// error (idempotent removal).
func (p *Programmer) RemoveListenPort(ifaceName string, port uint16, af wire.AddressFamily) error {
	ifidx, err := ifindex(p, ifaceName)
	if err != nil {
		return errs.Wrap(errs.OperationFailed, err, "resolve ifindex for %q", ifaceName)
	}
	return p.Listen.Delete(wire.ListenKey{Ifindex: ifidx, Port: port, AFTag: af})
}

// ListListenPorts returns a snapshot of every programmed listen entry.
func (p *Programmer) ListListenPorts() (map[wire.ListenKey]wire.WeightedRoute, error) {
	out := make(map[wire.ListenKey]wire.WeightedRoute)
	err := p.Listen.Iterate(func(k wire.ListenKey, v wire.WeightedRoute) bool {
		out[k] = v
		return true
	})
	return out, err
}

func parseCIDR(cidr string) (wire.LPMKey, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return wire.LPMKey{}, errs.New(errs.InvalidParam, "invalid CIDR %q", cidr)
	}
	addr, err := model.IPAddrFromNetIP(ip)
	if err != nil {
		return wire.LPMKey{}, errs.New(errs.InvalidParam, "invalid CIDR %q", cidr)
	}
	ones, _ := ipnet.Mask.Size()
	return wire.LPMKey{PrefixLen: uint32(ones), IP: addr}, nil
}

// AddSourceRoute programs a CIDR -> route LPM entry, idempotently.
func (p *Programmer) AddSourceRoute(cidr string, route wire.WeightedRoute) error {
	key, err := parseCIDR(cidr)
	if err != nil {
		return err
	}
	if existing, ok, err := p.LPM.Lookup(key); err == nil && ok && routesEqual(existing, route) {
		return nil
	}
	return p.LPM.Insert(key, route)
}

// RemoveSourceRoute deletes a CIDR's LPM entry if present.
func (p *Programmer) RemoveSourceRoute(cidr string) error {
	key, err := parseCIDR(cidr)
	if err != nil {
		return err
	}
	return p.LPM.Delete(key)
}

// ListSourceRoutes returns a snapshot of every programmed LPM entry.
func (p *Programmer) ListSourceRoutes() (map[wire.LPMKey]wire.WeightedRoute, error) {
	out := make(map[wire.LPMKey]wire.WeightedRoute)
	err := p.LPM.Iterate(func(k wire.LPMKey, v wire.WeightedRoute) bool {
		out[k] = v
		return true
	})
	return out, err
}

// AddSniRoute programs a hostname's SNI entry, idempotently.
func (p *Programmer) AddSniRoute(hostname string, route wire.WeightedRoute) error {
	key := wire.SNIKeyForHostname(hostname)
	if existing, ok, err := p.SNI.Lookup(key); err == nil && ok && routesEqual(existing, route) {
		return nil
	}
	return p.SNI.Insert(key, route)
}

// RemoveSniRoute deletes a hostname's SNI entry if present.
func (p *Programmer) RemoveSniRoute(hostname string) error {
	return p.SNI.Delete(wire.SNIKeyForHostname(hostname))
}

// ListSniRoutes returns a snapshot of every programmed SNI entry.
func (p *Programmer) ListSniRoutes() (map[wire.SNIKey]wire.WeightedRoute, error) {
	out := make(map[wire.SNIKey]wire.WeightedRoute)
	err := p.SNI.Iterate(func(k wire.SNIKey, v wire.WeightedRoute) bool {
		out[k] = v
		return true
	})
	return out, err
}

// validateRateLimit rejects a {rate,burst} pair that rate.NewLimiter would
// treat as degenerate (burst < 1 never allows a single request through).
func validateRateLimit(requestsPerSec, burst uint32) error {
	if burst < 1 {
		return errs.New(errs.InvalidParam, "rate limit burst must be >= 1, got %d", burst)
	}
	limiter := rate.NewLimiter(rate.Limit(requestsPerSec), int(burst))
	if limiter.Burst() < 1 {
		return errs.New(errs.InvalidParam, "rate limit burst must be >= 1, got %d", burst)
	}
	return nil
}

// SetSourceRateLimit validates and programs a per-source {rate,burst} rule
// for cidr.
func (p *Programmer) SetSourceRateLimit(cidr string, requestsPerSec, burst uint32) error {
	if err := validateRateLimit(requestsPerSec, burst); err != nil {
		return err
	}
	key, err := parseCIDR(cidr)
	if err != nil {
		return err
	}
	return p.RateLimitSource.Insert(key, wire.RateLimitValue{RatePerSec: requestsPerSec, Burst: burst})
}

// DisableSourceRateLimit removes cidr's per-source rule if present.
func (p *Programmer) DisableSourceRateLimit(cidr string) error {
	key, err := parseCIDR(cidr)
	if err != nil {
		return err
	}
	return p.RateLimitSource.Delete(key)
}

// SetBackendRateLimit validates and programs a per-backend {rate,burst}
// rule.
func (p *Programmer) SetBackendRateLimit(id model.TargetID, requestsPerSec, burst uint32) error {
	if err := validateRateLimit(requestsPerSec, burst); err != nil {
		return err
	}
	key := wire.BackendKey{IP: id.Address, Port: id.Port}
	return p.RateLimitBackend.Insert(key, wire.RateLimitValue{RatePerSec: requestsPerSec, Burst: burst})
}

// DisableBackendRateLimit removes id's per-backend rule if present.
func (p *Programmer) DisableBackendRateLimit(id model.TargetID) error {
	return p.RateLimitBackend.Delete(wire.BackendKey{IP: id.Address, Port: id.Port})
}

// ClearSourceRateLimits removes every programmed per-source rule.
func (p *Programmer) ClearSourceRateLimits() error {
	var keys []wire.LPMKey
	if err := p.RateLimitSource.Iterate(func(k wire.LPMKey, v wire.RateLimitValue) bool {
		keys = append(keys, k)
		return true
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := p.RateLimitSource.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ClearBackendRateLimits removes every programmed per-backend rule.
func (p *Programmer) ClearBackendRateLimits() error {
	var keys []wire.BackendKey
	if err := p.RateLimitBackend.Iterate(func(k wire.BackendKey, v wire.RateLimitValue) bool {
		keys = append(keys, k)
		return true
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := p.RateLimitBackend.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
