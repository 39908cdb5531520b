// Copyright 2026 SchemaGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"schemagate/platform/orchestrator"
	"schemagate/platform/registry"
	"schemagate/platform/shared/logger"
)

// Server holds the gateway's wired components. Everything is injected so
// tests build one over fake backends.
type Server struct {
	pool      *registry.Pool
	planner   *orchestrator.Planner
	scheduler *orchestrator.Scheduler
	limiter   *RateLimiter
	logger    *logger.Logger
}

// NewServer wires a gateway server over an existing pool and scheduler
func NewServer(pool *registry.Pool, planner *orchestrator.Planner, scheduler *orchestrator.Scheduler, limiter *RateLimiter) *Server {
	return &Server{
		pool:      pool,
		planner:   planner,
		scheduler: scheduler,
		limiter:   limiter,
		logger:    logger.New("gateway"),
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type taskAccepted struct {
	TaskID string `json:"task_id"`
}

type planPreview struct {
	DryRun     bool                    `json:"dry_run"`
	Kind       orchestrator.TaskKind   `json:"kind"`
	TotalUnits int                     `json:"total_units"`
	Summary    string                  `json:"summary"`
	Units      []orchestrator.WorkUnit `json:"units"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var badReq *orchestrator.BadRequestError
	var notFound *registry.NotFoundError
	var readOnly *registry.ReadOnlyError
	var connErr *registry.ConnectivityError
	var authErr *registry.AuthError
	var unknownTask *orchestrator.UnknownTaskError
	var queueFull *orchestrator.QueueFullError
	var cancelErr *orchestrator.CancellationError
	var limited *RateLimitError

	switch {
	case errors.As(err, &badReq):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &unknownTask):
		status = http.StatusNotFound
	case errors.As(err, &readOnly):
		status = http.StatusConflict
	case errors.As(err, &cancelErr):
		status = http.StatusConflict
	case errors.As(err, &queueFull):
		status = http.StatusTooManyRequests
	case errors.As(err, &limited):
		status = http.StatusTooManyRequests
	case errors.As(err, &connErr):
		status = http.StatusBadGateway
	case errors.As(err, &authErr):
		status = http.StatusBadGateway
	}

	requestID := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithErr("", requestID, "request failed", err, nil)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func decodeBody(r *http.Request, into interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return &orchestrator.BadRequestError{Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// checkSubmitAllowed applies the submission rate limit keyed by caller IP
func (s *Server) checkSubmitAllowed(r *http.Request) error {
	if s.limiter == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return s.limiter.Allow(r.Context(), host)
}

// submitMigrationHandler plans a migration and either previews it (dry_run)
// or submits it for execution.
func (s *Server) submitMigrationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checkSubmitAllowed(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req orchestrator.MigrationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	plan, err := s.planner.PlanMigration(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWithPlan(w, r, plan)
}

func (s *Server) submitCleanupHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checkSubmitAllowed(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req orchestrator.CleanupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	plan, err := s.planner.PlanCleanup(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWithPlan(w, r, plan)
}

func (s *Server) submitComparisonHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.checkSubmitAllowed(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req orchestrator.ComparisonRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	plan, err := s.planner.PlanComparison(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWithPlan(w, r, plan)
}

// respondWithPlan previews dry-run plans and submits the rest
func (s *Server) respondWithPlan(w http.ResponseWriter, r *http.Request, plan *orchestrator.Plan) {
	if plan.DryRun {
		writeJSON(w, http.StatusOK, planPreview{
			DryRun:     true,
			Kind:       plan.Kind,
			TotalUnits: plan.TotalUnits,
			Summary:    plan.Summary,
			Units:      plan.Units,
		})
		return
	}

	taskID, err := s.scheduler.Submit(plan, plan.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(taskID, requestIDFrom(r.Context()), "task accepted", map[string]interface{}{
		"kind":        string(plan.Kind),
		"total_units": plan.TotalUnits,
	})
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: taskID})
}

func (s *Server) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	snap, err := s.scheduler.Progress(taskID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancelTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if err := s.scheduler.Cancel(taskID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  "cancellation requested",
	})
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	active := s.scheduler.ListActive()
	if active == nil {
		active = []orchestrator.TaskSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": active,
		"count": len(active),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "schemagate-gateway",
	})
}

// readyHandler probes every configured registry. The gateway is ready when
// at least one registry answers; per-registry detail is always included.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	registries := map[string]interface{}{}
	anyHealthy := false
	for _, name := range s.pool.Names() {
		status, err := s.pool.Probe(ctx, name)
		if err != nil {
			registries[name] = map[string]interface{}{"healthy": false, "error": err.Error()}
			continue
		}
		registries[name] = status
		if status.Healthy {
			anyHealthy = true
		}
	}

	code := http.StatusOK
	if !anyHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"ready":      anyHealthy,
		"registries": registries,
	})
}

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// requestIDMiddleware tags every request with an identifier, honoring one
// supplied by the caller
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
