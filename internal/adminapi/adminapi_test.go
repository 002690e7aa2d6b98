// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilium/l4lb/internal/circuit"
	"github.com/cilium/l4lb/internal/drain"
	"github.com/cilium/l4lb/internal/health"
	"github.com/cilium/l4lb/internal/model"
)

func TestStatusEndpointAlwaysAnswers(t *testing.T) {
	a := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthListWithoutEngineReturns503(t *testing.T) {
	a := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthGetUnknownTargetReturns404(t *testing.T) {
	h := health.New(nil)
	a := New(h, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/10.0.0.1/8080", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthGetInvalidIPReturns400(t *testing.T) {
	h := health.New(nil)
	a := New(h, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/not-an-ip/8080", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCircuitForceOpenAndReset(t *testing.T) {
	c := circuit.New(nil)
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.5"), Port: 443}
	c.Register(id, circuit.Config{Enabled: true, ErrorThresholdPct: 50, MinRequests: 1, OpenDurationMs: 1000, HalfOpenRequests: 1, WindowSizeMs: 1000})
	a := New(nil, c, nil)

	req := httptest.NewRequest(http.MethodPost, "/circuits/10.0.0.5/443/force-open", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	state, ok := c.State(id)
	require.True(t, ok)
	require.Equal(t, model.CircuitOpen, state.State)

	req = httptest.NewRequest(http.MethodPost, "/circuits/10.0.0.5/443/reset", nil)
	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	state, _ = c.State(id)
	require.Equal(t, model.CircuitClosed, state.State)
}

func TestCircuitControlUnknownTargetReturns404(t *testing.T) {
	c := circuit.New(nil)
	a := New(nil, c, nil)
	req := httptest.NewRequest(http.MethodPost, "/circuits/10.0.0.9/80/force-open", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDrainListAndCancel(t *testing.T) {
	counter := func(id model.TargetID) (uint64, error) { return 0, nil }
	d := drain.New(counter, func(proxyName string) {})
	id := model.TargetID{Address: model.MustIPAddr("10.0.0.7"), Port: 8080}
	require.NoError(t, d.Start("web", id, true, 60000, 100, func(drain.Outcome) {}))

	a := New(nil, nil, d)
	req := httptest.NewRequest(http.MethodGet, "/drains", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/drains/10.0.0.7/8080", nil)
	rec = httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := d.Active(id)
	require.False(t, ok)
}
