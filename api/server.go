// Package api implements the Control Surface (spec §4.7): the HTTP+JSON
// front door onto a Supervisor, resolved per SPEC_FULL §6. Grounded on
// aistore's own api/daemon.go action-message dispatch, adapted from a
// client-side request builder to a server-side handler since this
// component is the control-plane's own listener rather than a CLI's
// outbound client.
/*
 * Copyright (c) 2024, argussight authors.
 */
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/walesch-yan/argussight/apc"
	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
)

// Supervisor is the narrow slice of supervisor.Supervisor the Control
// Surface calls into; defined here to keep this package's only dependency
// on the supervisor package an interface, matching the Dispatcher/Metrics
// pattern used elsewhere in this module.
type Supervisor interface {
	Start(name, typ string, args []string, internal bool) error
	TerminateAll(names []string, internal bool) error
	ManageProcess(name, command string, args []any, maxWait time.Duration) (any, error)
	ChangeSettings(name string, settings map[string]any, maxWait time.Duration) (any, error)
	GetProcesses() apc.GetProcessesResp
}

// MinMaxWait is the smallest max_wait_time a ManageProcess/ChangeSettings
// caller may request (spec §5/§8: "max_wait_time below the configured
// minimum is rejected"). It exists to keep a misbehaving caller from
// forcing near-zero deadlines that would spuriously kill live workers.
var MinMaxWait = 10 * time.Millisecond

// Server is the HTTP listener backing the Control Surface's five
// operations. It holds no state of its own beyond the Supervisor it
// fronts.
type Server struct {
	sup Supervisor
	mux *http.ServeMux
}

func NewServer(sup Supervisor) *Server {
	s := &Server{sup: sup, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/processes/start", s.handleStart)
	s.mux.HandleFunc("/v1/processes/terminate", s.handleTerminate)
	s.mux.HandleFunc("/v1/processes/manage", s.handleManage)
	s.mux.HandleFunc("/v1/processes/settings", s.handleSettings)
	s.mux.HandleFunc("/v1/processes", s.handleGetProcesses)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req apc.StartProcessReq
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sup.Start(req.Name, req.Type, req.Args, false); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req apc.TerminateProcessesReq
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sup.TerminateAll(req.Names, false); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleManage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req apc.ManageProcessReq
	if !decodeBody(w, r, &req) {
		return
	}
	maxWait, ok := resolveMaxWait(w, req.MaxWaitMS)
	if !ok {
		return
	}
	val, err := s.sup.ManageProcess(req.Name, req.Command, req.Args, maxWait)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, val)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req apc.ChangeSettingsReq
	if !decodeBody(w, r, &req) {
		return
	}
	settings := make(map[string]any, len(req.Settings))
	for k, v := range req.Settings {
		settings[k] = apc.ParseSettingValue(v)
	}
	val, err := s.sup.ChangeSettings(req.Name, settings, 2*time.Second)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, val)
}

func (s *Server) handleGetProcesses(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeOK(w, s.sup.GetProcesses())
}

func resolveMaxWait(w http.ResponseWriter, ms int64) (time.Duration, bool) {
	d := time.Duration(ms) * time.Millisecond
	if ms <= 0 {
		return 2 * time.Second, true
	}
	if d < MinMaxWait {
		writeErr(w, cos.NewErrValidation("max_wait_time_ms must be at least %s", MinMaxWait))
		return 0, false
	}
	return d, true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err == nil {
		err = cos.JSONUnmarshal(b, v)
	}
	if err != nil {
		writeErr(w, cos.NewErrValidation("malformed request body: %v", err))
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, value any) {
	writeJSON(w, http.StatusOK, apc.Resp{OK: true, Value: value})
}

// writeErr maps a typed sentinel error to an HTTP status the way aistore's
// own error-to-status mapping does at its call sites (spec §7: a caller
// sees a structured {ok:false, error} body, never a raw stack trace).
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case cos.IsErrNotFound(err):
		status = http.StatusNotFound
	case cos.IsErrExists(err):
		status = http.StatusConflict
	case cos.IsErrDeadline(err):
		status = http.StatusGatewayTimeout
	case cos.IsErrValidation(err):
		status = http.StatusBadRequest
	case cos.IsErrResourceExhausted(err):
		status = http.StatusServiceUnavailable
	}
	nlog.Warningf("control surface: %s -> %v", http.StatusText(status), err)
	writeJSON(w, status, apc.Resp{OK: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, merr := cos.JSONMarshal(v)
	if merr != nil {
		nlog.Errorf("control surface: marshal response: %v", merr)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
