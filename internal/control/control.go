// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package control implements the control RPC surface of spec.md §6: a
// request/response channel carrying session and tracking actions. Go has no
// first-class named-pipe RPC primitive, so this is realized as an
// httprouter-routed HTTP server over a unix domain socket, the closest
// idiomatic analogue and the same shape the teacher uses for its own
// GUI/REST control surface (lib/api/api.go's getListener/httprouter
// pattern).
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/calmh/incontainer"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"

	"github.com/GameTechDev/pmmetricscore/internal/etlarchive"
	"github.com/GameTechDev/pmmetricscore/internal/eventbridge"
)

// buildID identifies the wire-compatible build; OpenSession rejects a
// client whose reported build ID does not match (spec.md §6 "establishes
// build-ID compatibility").
const buildID = "pmmetricscore-1"

// Error is the RPC error shape carried in a non-2xx response body. Kind
// distinguishes the documented error cases (spec.md §7) from transport
// failures.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

var (
	ErrVersionMismatch      = &Error{Kind: "VersionMismatch", Message: "client build id does not match service build id"}
	ErrAlreadyTrackingProcess = &Error{Kind: "AlreadyTrackingProcess", Message: "process is already being tracked"}
	ErrInvalidPid           = &Error{Kind: "InvalidPid", Message: "process is not being tracked"}
	ErrQueryActive          = &Error{Kind: "QueryActive", Message: "a frame-event query is already active for this session"}
	ErrUnknownSession       = &Error{Kind: "UnknownSession", Message: "session id not recognized or expired"}
)

// Tracker is the subset of the frame-metrics pipeline the control surface
// drives: starting/stopping per-process tracking and the telemetry/ETW
// poll-period knobs. Implemented by internal/service in the running
// process; a fake stands in for it in tests.
type Tracker interface {
	StartTracking(pid uint32, isPlayback, isBackpressured bool) error
	StopTracking(pid uint32) error
	SetTelemetryPeriodMs(ms uint32)
	SetEtwFlushPeriodMs(ms uint32, enabled bool)
	ReportMetricUse(metricID uint32, deviceID uint32, arrayIndex uint32)
	StopPlayback(pid uint32) error
}

const (
	minTelemetryPeriodMs = 4
	maxTelemetryPeriodMs = 5000
	minEtwFlushPeriodMs  = 8
	maxEtwFlushPeriodMs  = 1000
)

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// session is the per-OpenSession state: the session id and the
// shared-memory salt handed back to the client. Tracked PIDs are not
// recorded per session.
type session struct {
	id   uuid.UUID
	salt uuid.UUID
}

// Service is the control RPC server. Its Serve method satisfies
// suture.Service so it can be added directly to a suture.Supervisor
// (internal/service) alongside the output worker.
type Service struct {
	socketPath string
	tracker    Tracker
	archive    *etlarchive.Archive
	bus        *eventbridge.Bus
	logger     *slog.Logger
	apiKeyHash []byte // nil disables auth

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// New returns a control Service listening on a unix socket at socketPath.
func New(socketPath string, tracker Tracker, archive *etlarchive.Archive, bus *eventbridge.Bus, logger *slog.Logger) *Service {
	return &Service{
		socketPath: socketPath,
		tracker:    tracker,
		archive:    archive,
		bus:        bus,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*session),
	}
}

// SetAPIKey requires every RPC request to carry a matching X-Api-Key
// header, bcrypt-hashed the same way the teacher compares its GUI API key
// (lib/api/api_auth.go's IsValidAPIKey) so the configured key is never
// held in memory or logs in plaintext. An empty key disables the check.
func (s *Service) SetAPIKey(key string) error {
	if key == "" {
		s.apiKeyHash = nil
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.apiKeyHash = hash
	return nil
}

func (s *Service) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bcrypt.CompareHashAndPassword(s.apiKeyHash, []byte(r.Header.Get("X-Api-Key"))) != nil {
			sendError(w, http.StatusUnauthorized, &Error{Kind: "Unauthorized", Message: "missing or invalid X-Api-Key header"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	bs, err := json.Marshal(v)
	if err != nil {
		bs, _ = json.Marshal(&Error{Kind: "InternalError", Message: err.Error()})
	}
	w.Write(bs)
}

func sendError(w http.ResponseWriter, status int, err *Error) {
	sendJSON(w, status, err)
}

// Serve runs the control HTTP server until ctx is cancelled, satisfying
// suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	os.Remove(s.socketPath)
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()

	mux := httprouter.New()
	mux.GET("/rpc/status", s.handleStatus)
	mux.POST("/rpc/open-session", s.handleOpenSession)
	mux.POST("/rpc/start-tracking", s.handleStartTracking)
	mux.POST("/rpc/stop-tracking", s.handleStopTracking)
	mux.POST("/rpc/set-telemetry-period", s.handleSetTelemetryPeriod)
	mux.POST("/rpc/set-etw-flush-period", s.handleSetEtwFlushPeriod)
	mux.POST("/rpc/report-metric-use", s.handleReportMetricUse)
	mux.POST("/rpc/start-etl-logging", s.handleStartEtlLogging)
	mux.POST("/rpc/finish-etl-logging", s.handleFinishEtlLogging)
	mux.POST("/rpc/stop-playback", s.handleStopPlayback)

	var handler http.Handler = mux
	if s.apiKeyHash != nil {
		handler = s.requireAPIKey(mux)
	}
	srv := &http.Server{Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		srv.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleStatus reports the service's running environment, the same kind of
// self-description the teacher's /rest/system/status returns (lib/api/api.go),
// right down to reusing its container-detection dependency.
func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	openSessions := len(s.sessions)
	s.mu.Unlock()

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"build_id":      buildID,
		"container":     incontainer.Detect(),
		"open_sessions": openSessions,
	})
}

type openSessionRequest struct {
	CorrelationToken string `json:"correlation_token"`
	BuildID          string `json:"build_id"`
}

type openSessionResponse struct {
	CorrelationToken string `json:"correlation_token"`
	SessionID        string `json:"session_id"`
	Salt             string `json:"salt"`
}

func (s *Service) handleOpenSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	if req.BuildID != buildID {
		sendError(w, http.StatusConflict, ErrVersionMismatch)
		return
	}

	sess := &session{id: uuid.New(), salt: uuid.New()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbridge.Event{Kind: eventbridge.SessionOpened, SessionID: sess.id.String()})
	}

	sendJSON(w, http.StatusOK, openSessionResponse{
		CorrelationToken: req.CorrelationToken,
		SessionID:        sess.id.String(),
		Salt:             sess.salt.String(),
	})
}

type trackingRequest struct {
	CorrelationToken string `json:"correlation_token"`
	Pid              uint32 `json:"pid"`
	IsPlayback       bool   `json:"is_playback"`
	IsBackpressured  bool   `json:"is_backpressured"`
}

func (s *Service) handleStartTracking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	if err := s.tracker.StartTracking(req.Pid, req.IsPlayback, req.IsBackpressured); err != nil {
		sendError(w, http.StatusConflict, ErrAlreadyTrackingProcess)
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbridge.Event{Kind: eventbridge.TrackingStarted, Pid: req.Pid})
	}
	sendJSON(w, http.StatusOK, map[string]string{"correlation_token": req.CorrelationToken})
}

func (s *Service) handleStopTracking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	if err := s.tracker.StopTracking(req.Pid); err != nil {
		sendError(w, http.StatusNotFound, ErrInvalidPid)
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbridge.Event{Kind: eventbridge.TrackingStopped, Pid: req.Pid})
	}
	sendJSON(w, http.StatusOK, map[string]string{"correlation_token": req.CorrelationToken})
}

type telemetryPeriodRequest struct {
	CorrelationToken string `json:"correlation_token"`
	PeriodMs         uint32 `json:"period_ms"`
}

func (s *Service) handleSetTelemetryPeriod(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req telemetryPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	clamped := clamp(req.PeriodMs, minTelemetryPeriodMs, maxTelemetryPeriodMs)
	s.tracker.SetTelemetryPeriodMs(clamped)
	sendJSON(w, http.StatusOK, map[string]interface{}{"correlation_token": req.CorrelationToken, "period_ms": clamped})
}

type etwFlushPeriodRequest struct {
	CorrelationToken string `json:"correlation_token"`
	PeriodMs         *uint32 `json:"period_ms"` // absent disables periodic flush
}

func (s *Service) handleSetEtwFlushPeriod(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req etwFlushPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	if req.PeriodMs == nil {
		s.tracker.SetEtwFlushPeriodMs(0, false)
		sendJSON(w, http.StatusOK, map[string]interface{}{"correlation_token": req.CorrelationToken, "enabled": false})
		return
	}
	clamped := clamp(*req.PeriodMs, minEtwFlushPeriodMs, maxEtwFlushPeriodMs)
	s.tracker.SetEtwFlushPeriodMs(clamped, true)
	sendJSON(w, http.StatusOK, map[string]interface{}{"correlation_token": req.CorrelationToken, "period_ms": clamped, "enabled": true})
}

type reportMetricUseRequest struct {
	CorrelationToken string `json:"correlation_token"`
	Metrics          []struct {
		MetricID   uint32 `json:"metric_id"`
		DeviceID   uint32 `json:"device_id"`
		ArrayIndex uint32 `json:"array_index"`
	} `json:"metrics"`
}

func (s *Service) handleReportMetricUse(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req reportMetricUseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	for _, m := range req.Metrics {
		s.tracker.ReportMetricUse(m.MetricID, m.DeviceID, m.ArrayIndex)
	}
	sendJSON(w, http.StatusOK, map[string]string{"correlation_token": req.CorrelationToken})
}

type startEtlLoggingRequest struct {
	CorrelationToken string `json:"correlation_token"`
	Pid              uint32 `json:"pid"`
}

type startEtlLoggingResponse struct {
	CorrelationToken string `json:"correlation_token"`
	Handle           string `json:"handle"`
}

func (s *Service) handleStartEtlLogging(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req startEtlLoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	handle, err := s.archive.Start(req.Pid)
	if err != nil {
		s.logger.Warn("start etl logging failed", "pid", req.Pid, "err", err)
		sendError(w, http.StatusInternalServerError, &Error{Kind: "InternalError", Message: err.Error()})
		return
	}
	sendJSON(w, http.StatusOK, startEtlLoggingResponse{CorrelationToken: req.CorrelationToken, Handle: handle})
}

type finishEtlLoggingRequest struct {
	CorrelationToken string `json:"correlation_token"`
	Handle           string `json:"handle"`
	Compress         bool   `json:"compress"`
}

type finishEtlLoggingResponse struct {
	CorrelationToken string `json:"correlation_token"`
	FilePath         string `json:"file_path"`
}

func (s *Service) handleFinishEtlLogging(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req finishEtlLoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	path, err := s.archive.Finish(req.Handle, req.Compress)
	if err != nil {
		sendError(w, http.StatusNotFound, &Error{Kind: "UnknownHandle", Message: err.Error()})
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbridge.Event{Kind: eventbridge.EtlLoggingFinished, FilePath: path})
	}
	sendJSON(w, http.StatusOK, finishEtlLoggingResponse{CorrelationToken: req.CorrelationToken, FilePath: path})
}

type stopPlaybackRequest struct {
	CorrelationToken string `json:"correlation_token"`
	Pid              uint32 `json:"pid"`
}

func (s *Service) handleStopPlayback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req stopPlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, &Error{Kind: "BadRequest", Message: err.Error()})
		return
	}
	if err := s.tracker.StopPlayback(req.Pid); err != nil {
		sendError(w, http.StatusNotFound, ErrInvalidPid)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"correlation_token": req.CorrelationToken})
}
