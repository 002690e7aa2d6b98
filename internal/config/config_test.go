// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/errs"
)

func validConfig() *Config {
	cfg := &Config{
		Settings: Defaults(),
		Proxies: []Proxy{
			{
				Name:   "web",
				Listen: Listen{Interfaces: []string{"eth0"}, Port: 443},
				DefaultTarget: &Target{IP: "10.0.0.1", Port: 8080, Weight: 100},
				SourceRoutes: []SourceRoute{
					{Source: "10.1.0.0/16", Target: &Target{IP: "10.0.0.2", Port: 8080, Weight: 100}},
				},
				SniRoutes: []SniRoute{
					{Hostname: "api.example.com", Target: &Target{IP: "10.0.0.3", Port: 8080, Weight: 100}},
				},
			},
		},
	}
	return cfg
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsDuplicateProxyName(t *testing.T) {
	cfg := validConfig()
	cfg.Proxies = append(cfg.Proxies, cfg.Proxies[0])
	err := Validate(cfg)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.InvalidParam, e.Kind)
}

func TestValidateRejectsBadCIDR(t *testing.T) {
	cfg := validConfig()
	cfg.Proxies[0].SourceRoutes[0].Source = "not-a-cidr"
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsDuplicateSniHostname(t *testing.T) {
	cfg := validConfig()
	cfg.Proxies[0].SniRoutes = append(cfg.Proxies[0].SniRoutes, cfg.Proxies[0].SniRoutes[0])
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Settings.MaxConnections = 0
	require.Error(t, Validate(cfg))
}
