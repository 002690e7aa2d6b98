// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package adminapi is a thin gorilla/mux HTTP adapter exercising the
// subsystem interfaces end to end, per SPEC_FULL §4.14. It is
// deliberately minimal: a production admin façade is a collaborator out
// of scope (spec §1), but the control plane needs some driver to
// demonstrate the scenarios in spec §8.
package adminapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cilium/l4lb/internal/circuit"
	"github.com/cilium/l4lb/internal/drain"
	"github.com/cilium/l4lb/internal/errs"
	"github.com/cilium/l4lb/internal/health"
	"github.com/cilium/l4lb/internal/model"
)

// envelope is the JSON response shape every endpoint returns, per spec §6.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an errs.Kind to its HTTP status per spec §7.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.NotRunning, errs.ClusterNotRunning:
		return http.StatusServiceUnavailable
	case errs.NoConfig, errs.NotFound, errs.TargetNotFound:
		return http.StatusNotFound
	case errs.MissingParam, errs.InvalidParam, errs.OperationFailed,
		errs.WeightSumMismatch, errs.TargetCountExceed, errs.DuplicateTarget, errs.AlreadyDraining:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, err error) {
	kind := errs.InternalError
	msg := err.Error()
	if e, ok := errs.As(err); ok {
		kind = e.Kind
		msg = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Code: string(kind), Message: msg}})
}

func parseTargetID(r *http.Request) (model.TargetID, error) {
	vars := mux.Vars(r)
	ipStr, portStr := vars["ip"], vars["port"]
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return model.TargetID{}, errs.New(errs.InvalidParam, "invalid ip %q", ipStr)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return model.TargetID{}, errs.New(errs.InvalidParam, "invalid port %q", portStr)
	}
	addr, err := model.IPAddrFromNetIP(ip)
	if err != nil {
		return model.TargetID{}, errs.New(errs.InvalidParam, "invalid ip %q", ipStr)
	}
	return model.TargetID{Address: addr, Port: uint16(port)}, nil
}

// API wires gorilla/mux routes onto the subsystem interfaces.
type API struct {
	health  *health.Engine
	circuit *circuit.Manager
	drain   *drain.Engine
	router  *mux.Router
}

// New builds the router. Any dependency may be nil; its routes then answer
// 503 CLUSTER_NOT_RUNNING-style "not configured" errors instead of
// panicking.
func New(h *health.Engine, c *circuit.Manager, d *drain.Engine) *API {
	a := &API{health: h, circuit: c, drain: d, router: mux.NewRouter()}
	a.routes()
	return a
}

// Router returns the http.Handler to mount.
func (a *API) Router() http.Handler { return a.router }

func (a *API) routes() {
	a.router.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)

	a.router.HandleFunc("/health", a.handleHealthList).Methods(http.MethodGet)
	a.router.HandleFunc("/health/{ip}/{port}", a.handleHealthGet).Methods(http.MethodGet)

	a.router.HandleFunc("/circuits", a.handleCircuitList).Methods(http.MethodGet)
	a.router.HandleFunc("/circuits/{ip}/{port}/force-open", a.handleCircuitForceOpen).Methods(http.MethodPost)
	a.router.HandleFunc("/circuits/{ip}/{port}/force-close", a.handleCircuitForceClose).Methods(http.MethodPost)
	a.router.HandleFunc("/circuits/{ip}/{port}/reset", a.handleCircuitReset).Methods(http.MethodPost)

	a.router.HandleFunc("/drains", a.handleDrainList).Methods(http.MethodGet)
	a.router.HandleFunc("/drains/{ip}/{port}", a.handleDrainCancel).Methods(http.MethodDelete)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "running"})
}

func (a *API) handleHealthList(w http.ResponseWriter, r *http.Request) {
	if a.health == nil {
		writeErr(w, errs.New(errs.NotRunning, "health engine not configured"))
		return
	}
	writeOK(w, a.health.List())
}

func (a *API) handleHealthGet(w http.ResponseWriter, r *http.Request) {
	if a.health == nil {
		writeErr(w, errs.New(errs.NotRunning, "health engine not configured"))
		return
	}
	id, err := parseTargetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	status, ok := a.health.Status(id)
	if !ok {
		writeErr(w, errs.New(errs.TargetNotFound, "target %s not found", id))
		return
	}
	writeOK(w, status)
}

func (a *API) handleCircuitList(w http.ResponseWriter, r *http.Request) {
	if a.circuit == nil {
		writeErr(w, errs.New(errs.NotRunning, "circuit breaker manager not configured"))
		return
	}
	writeOK(w, a.circuit.List())
}

func (a *API) handleCircuitForceOpen(w http.ResponseWriter, r *http.Request) {
	a.circuitControl(w, r, a.circuit.ForceOpen)
}

func (a *API) handleCircuitForceClose(w http.ResponseWriter, r *http.Request) {
	a.circuitControl(w, r, a.circuit.ForceClose)
}

func (a *API) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	a.circuitControl(w, r, a.circuit.Reset)
}

func (a *API) circuitControl(w http.ResponseWriter, r *http.Request, op func(model.TargetID) bool) {
	if a.circuit == nil {
		writeErr(w, errs.New(errs.NotRunning, "circuit breaker manager not configured"))
		return
	}
	id, err := parseTargetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !op(id) {
		writeErr(w, errs.New(errs.TargetNotFound, "target %s not found", id))
		return
	}
	writeOK(w, map[string]bool{"ok": true})
}

func (a *API) handleDrainList(w http.ResponseWriter, r *http.Request) {
	if a.drain == nil {
		writeErr(w, errs.New(errs.NotRunning, "drain engine not configured"))
		return
	}
	writeOK(w, a.drain.List())
}

func (a *API) handleDrainCancel(w http.ResponseWriter, r *http.Request) {
	if a.drain == nil {
		writeErr(w, errs.New(errs.NotRunning, "drain engine not configured"))
		return
	}
	id, err := parseTargetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !a.drain.Cancel(id) {
		writeErr(w, errs.New(errs.TargetNotFound, "target %s is not draining", id))
		return
	}
	writeOK(w, map[string]bool{"ok": true})
}
