// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package reconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Proxies: []config.Proxy{
			{
				Name:   "web",
				Listen: config.Listen{Interfaces: []string{"eth0"}, Port: 443},
				SourceRoutes: []config.SourceRoute{
					{Source: "10.0.0.0/24", Target: &config.Target{IP: "10.0.0.1", Port: 80, Weight: 100}},
				},
			},
		},
		Settings: config.Defaults(),
	}
}

func TestComputeDiffIdenticalConfigsIsEmpty(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	d := ComputeDiff(a, b)
	require.True(t, d.Empty())
}

func TestComputeDiffDetectsAddedProxy(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Proxies = append(b.Proxies, config.Proxy{Name: "api", Listen: config.Listen{Port: 8080}})
	d := ComputeDiff(a, b)
	require.Len(t, d.AddedProxies, 1)
	require.Equal(t, "api", d.AddedProxies[0].Name)
}

func TestComputeDiffDetectsRemovedProxy(t *testing.T) {
	a := baseConfig()
	b := &config.Config{Settings: config.Defaults()}
	d := ComputeDiff(a, b)
	require.Len(t, d.RemovedProxies, 1)
}

func TestComputeDiffDetectsListenChange(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Proxies[0].Listen.Port = 8443
	d := ComputeDiff(a, b)
	require.Len(t, d.ModifiedProxies, 1)
	require.True(t, d.ModifiedProxies[0].ListenChanged)
}

func TestComputeDiffDetectsSourceRouteAddedAndRemoved(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Proxies[0].SourceRoutes = []config.SourceRoute{
		{Source: "10.1.0.0/24", Target: &config.Target{IP: "10.1.0.1", Port: 80, Weight: 100}},
	}
	d := ComputeDiff(a, b)
	require.Len(t, d.ModifiedProxies, 1)
	require.Len(t, d.ModifiedProxies[0].AddedSourceRoutes, 1)
	require.Len(t, d.ModifiedProxies[0].RemovedSourceRoutes, 1)
}

func TestComputeDiffDetectsSettingsChange(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Settings.MaxConnections = a.Settings.MaxConnections + 1
	d := ComputeDiff(a, b)
	require.True(t, d.SettingsChanged)
}

type recordingMutator struct {
	calls []string
	fail  map[string]bool
}

func (m *recordingMutator) DrainAndRecreateListener(proxyName string, listen config.Listen) error {
	m.calls = append(m.calls, "drain:"+proxyName)
	return m.maybeFail("drain:" + proxyName)
}
func (m *recordingMutator) RewriteDefaultTarget(proxyName string, t *config.Target, ts []config.Target) error {
	m.calls = append(m.calls, "default:"+proxyName)
	return m.maybeFail("default:" + proxyName)
}
func (m *recordingMutator) AddSourceRoute(proxyName string, r config.SourceRoute) error {
	m.calls = append(m.calls, "add_sr:"+proxyName)
	return m.maybeFail("add_sr:" + proxyName)
}
func (m *recordingMutator) RemoveSourceRoute(proxyName string, r config.SourceRoute) error {
	m.calls = append(m.calls, "rm_sr:"+proxyName)
	return m.maybeFail("rm_sr:" + proxyName)
}
func (m *recordingMutator) AddSniRoute(proxyName string, r config.SniRoute) error {
	m.calls = append(m.calls, "add_sni:"+proxyName)
	return m.maybeFail("add_sni:" + proxyName)
}
func (m *recordingMutator) RemoveSniRoute(proxyName string, r config.SniRoute) error {
	m.calls = append(m.calls, "rm_sni:"+proxyName)
	return m.maybeFail("rm_sni:" + proxyName)
}
func (m *recordingMutator) CreateProxy(p config.Proxy) error {
	m.calls = append(m.calls, "create:"+p.Name)
	return m.maybeFail("create:" + p.Name)
}
func (m *recordingMutator) RemoveProxy(name string) error {
	m.calls = append(m.calls, "remove:"+name)
	return m.maybeFail("remove:" + name)
}
func (m *recordingMutator) maybeFail(key string) error {
	if m.fail[key] {
		return errors.New("simulated failure: " + key)
	}
	return nil
}

func TestApplyCreatesAddedProxies(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Proxies = append(b.Proxies, config.Proxy{Name: "api", Listen: config.Listen{Port: 8080}})
	d := ComputeDiff(a, b)

	m := &recordingMutator{fail: map[string]bool{}}
	report := Apply(d, m)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 0, report.Failed)
	require.Contains(t, m.calls, "create:api")
}

func TestApplyReportsSkippedWhenModifiedProxyHasNoDriveableChange(t *testing.T) {
	mp := ModifiedProxy{Name: "web"}
	d := Diff{ModifiedProxies: []ModifiedProxy{mp}}
	m := &recordingMutator{fail: map[string]bool{}}
	report := Apply(d, m)
	require.Equal(t, 1, report.Skipped)
}
