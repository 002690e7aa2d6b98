// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package config holds the Go types for the configuration schema in spec
// §6, plus validation. Loading a YAML file from disk and watching it for
// changes is the hot-reload file watcher's job and out of scope here
// (spec §1); Load is a thin convenience wrapper for callers (tests, the
// cmd/l4lbd entrypoint) that just need a Config value from a path once.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v2"

	"github.com/cilium/l4lb/internal/errs"
)

// Target mirrors spec §6's Target schema; exactly one of IP or Host is set.
type Target struct {
	IP                string `yaml:"ip,omitempty"`
	Host              string `yaml:"host,omitempty"`
	Port              uint16 `yaml:"port"`
	Weight            uint8  `yaml:"weight,omitempty"`
	ProxyProtocol     string `yaml:"proxy_protocol,omitempty"`
	DNSRefreshSeconds int    `yaml:"dns_refresh_seconds,omitempty"`
	HealthCheck       *HealthCheck `yaml:"health_check,omitempty"`
}

// IsDNSBacked reports whether this target resolves via DNS.
func (t Target) IsDNSBacked() bool { return t.Host != "" }

// HealthCheck is the per-target probe configuration.
type HealthCheck struct {
	Type               string `yaml:"type"` // tcp | http | command
	Path               string `yaml:"path,omitempty"`
	Command            string `yaml:"command,omitempty"`
	IntervalSeconds    int    `yaml:"interval_seconds,omitempty"`
	TimeoutSeconds     int    `yaml:"timeout_seconds,omitempty"`
	HealthyThreshold   int    `yaml:"healthy_threshold,omitempty"`
	UnhealthyThreshold int    `yaml:"unhealthy_threshold,omitempty"`
}

// SourceRoute mirrors spec §6's source_routes entry.
type SourceRoute struct {
	Source             string   `yaml:"source"`
	Target             *Target  `yaml:"target,omitempty"`
	Targets            []Target `yaml:"targets,omitempty"`
	SessionPersistence *bool    `yaml:"session_persistence,omitempty"`
}

// SniRoute mirrors spec §6's sni_routes entry.
type SniRoute struct {
	Hostname           string   `yaml:"sni_hostname"`
	Target             *Target  `yaml:"target,omitempty"`
	Targets            []Target `yaml:"targets,omitempty"`
	SessionPersistence *bool    `yaml:"session_persistence,omitempty"`
}

// Listen mirrors spec §6's listen schema.
type Listen struct {
	Interfaces []string `yaml:"interfaces"`
	Port       uint16   `yaml:"port"`
}

// Proxy mirrors spec §6's proxies[] entry.
type Proxy struct {
	Name               string        `yaml:"name"`
	Listen             Listen        `yaml:"listen"`
	DefaultTarget      *Target       `yaml:"default_target,omitempty"`
	DefaultTargets     []Target      `yaml:"-"`
	SourceRoutes       []SourceRoute `yaml:"source_routes,omitempty"`
	SniRoutes          []SniRoute    `yaml:"sni_routes,omitempty"`
	SessionPersistence bool          `yaml:"session_persistence,omitempty"`
}

// RateLimitConfig is one {rate,burst} rule.
type RateLimitConfig struct {
	RequestsPerSec uint32 `yaml:"requests_per_sec"`
	Burst          uint32 `yaml:"burst,omitempty"`
}

// RateLimits mirrors spec §6's rate_limits schema.
type RateLimits struct {
	PerSource  *RateLimitConfig `yaml:"per_source,omitempty"`
	PerBackend *RateLimitConfig `yaml:"per_backend,omitempty"`
}

// LoadBalancing mirrors spec §6's load_balancing schema.
type LoadBalancing struct {
	Algorithm         string `yaml:"algorithm"` // weighted_random | least_connections
	Weighted          bool   `yaml:"weighted"`
	UpdateIntervalMs  uint32 `yaml:"update_interval_ms"`
}

// Cluster mirrors spec §6's cluster schema.
type Cluster struct {
	Enabled            bool     `yaml:"enabled"`
	NodeID             string   `yaml:"node_id,omitempty"`
	BindAddress        string   `yaml:"bind_address"`
	BindPort           uint16   `yaml:"bind_port"`
	Seeds              []string `yaml:"seeds,omitempty"`
	GossipIntervalMs   uint32   `yaml:"gossip_interval_ms"`
	GossipFanout       int      `yaml:"gossip_fanout"`
	PushPullIntervalMs uint32   `yaml:"push_pull_interval_ms"`
	PingIntervalMs     uint32   `yaml:"ping_interval_ms"`
	PingTimeoutMs      uint32   `yaml:"ping_timeout_ms"`
	PingReqCount       int      `yaml:"ping_req_count"`
	SuspicionMult      float64  `yaml:"suspicion_mult"`
}

// Settings mirrors spec §6's settings schema.
type Settings struct {
	StatsEnabled           bool          `yaml:"stats_enabled"`
	ConnectionTimeoutSec   int           `yaml:"connection_timeout_sec"`
	MaxConnections         int           `yaml:"max_connections"`
	DefaultDrainTimeoutMs  int           `yaml:"default_drain_timeout_ms"`
	DrainCheckIntervalMs   int           `yaml:"drain_check_interval_ms"`
	RateLimits             RateLimits    `yaml:"rate_limits,omitempty"`
	LoadBalancing          LoadBalancing `yaml:"load_balancing"`
	Cluster                Cluster       `yaml:"cluster"`
}

// Config is the top-level configuration document.
type Config struct {
	Proxies  []Proxy  `yaml:"proxies"`
	Settings Settings `yaml:"settings"`
}

// Defaults mirrors spec §6's documented default values.
func Defaults() Settings {
	return Settings{
		ConnectionTimeoutSec:  300,
		MaxConnections:        100_000,
		DefaultDrainTimeoutMs: 30_000,
		DrainCheckIntervalMs:  1000,
		LoadBalancing:         LoadBalancing{Algorithm: "weighted_random", UpdateIntervalMs: 1000},
		Cluster: Cluster{
			GossipIntervalMs:   200,
			GossipFanout:       3,
			PushPullIntervalMs: 30_000,
			PingIntervalMs:     1000,
			PingTimeoutMs:      500,
			PingReqCount:       3,
			SuspicionMult:      5,
		},
	}
}

// Load reads and parses a YAML configuration file, applying Defaults() for
// zero-valued settings, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{Settings: Defaults()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants from spec §3/§6: unique proxy
// names, listen ports >= 1, source-route CIDR syntax, non-empty and unique
// SNI hostnames, and settings bounds. Target addresses and weights are not
// checked here.
func Validate(cfg *Config) error {
	names := make(map[string]struct{}, len(cfg.Proxies))
	for _, p := range cfg.Proxies {
		if _, dup := names[p.Name]; dup {
			return errs.New(errs.InvalidParam, "duplicate proxy name %q", p.Name)
		}
		names[p.Name] = struct{}{}

		if p.Listen.Port < 1 {
			return errs.New(errs.InvalidParam, "proxy %q: listen port must be in [1,65535]", p.Name)
		}

		for _, sr := range p.SourceRoutes {
			if !govalidator.IsCIDR(sr.Source) {
				return errs.New(errs.InvalidParam, "proxy %q: invalid source route CIDR %q", p.Name, sr.Source)
			}
		}

		seenHost := make(map[string]struct{}, len(p.SniRoutes))
		for _, sni := range p.SniRoutes {
			h := sni.Hostname
			if h == "" {
				return errs.New(errs.MissingParam, "proxy %q: sni_hostname is required", p.Name)
			}
			if _, dup := seenHost[h]; dup {
				return errs.New(errs.InvalidParam, "proxy %q: duplicate sni_hostname %q", p.Name, h)
			}
			seenHost[h] = struct{}{}
		}
	}

	if cfg.Settings.ConnectionTimeoutSec < 1 || cfg.Settings.ConnectionTimeoutSec > 86400 {
		return errs.New(errs.InvalidParam, "connection_timeout_sec out of range [1,86400]")
	}
	if cfg.Settings.MaxConnections < 1 || cfg.Settings.MaxConnections > 10_000_000 {
		return errs.New(errs.InvalidParam, "max_connections out of range [1,10000000]")
	}
	if cfg.Settings.DefaultDrainTimeoutMs < 1000 || cfg.Settings.DefaultDrainTimeoutMs > 3_600_000 {
		return errs.New(errs.InvalidParam, "default_drain_timeout_ms out of range [1000,3600000]")
	}
	if cfg.Settings.DrainCheckIntervalMs < 100 || cfg.Settings.DrainCheckIntervalMs > 60_000 {
		return errs.New(errs.InvalidParam, "drain_check_interval_ms out of range [100,60000]")
	}

	return nil
}

// DrainCheckInterval and DrainTimeout convert the millisecond settings to
// time.Duration for subsystem wiring.
func (s Settings) DrainCheckInterval() time.Duration {
	return time.Duration(s.DrainCheckIntervalMs) * time.Millisecond
}

func (s Settings) DrainTimeout() time.Duration {
	return time.Duration(s.DefaultDrainTimeoutMs) * time.Millisecond
}
