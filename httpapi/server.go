// Package httpapi exposes an orchestrator over HTTP: event ingest, direct
// execution, runtime registration and paused run management.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/flow"
)

const maxBodySize = 1 << 20

type Server struct {
	orch    *flow.Orchestrator
	logger  automation.Logger
	metrics http.Handler
}

type Option func(*Server)

func WithLogger(logger automation.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func New(orch *flow.Orchestrator, opts ...Option) *Server {
	s := &Server{orch: orch}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = automation.NormalizeLogger(s.logger)
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(middleware.RequestSize(maxBodySize))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Post("/events", s.handlePublish)
	r.Route("/automations", func(r chi.Router) {
		r.Get("/", s.handleListAutomations)
		r.Post("/", s.handleRegister)
		r.Route("/{alias}", func(r chi.Router) {
			r.Delete("/", s.handleRemove)
			r.Post("/execute", s.handleExecute)
		})
	})
	r.Route("/paused", func(r chi.Router) {
		r.Get("/", s.handleListPaused)
		r.Post("/{id}/resume", s.handleResume)
		r.Delete("/{id}", s.handleCancel)
	})
	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if pe := automation.RecoverPanic(recover()); pe != nil {
				automation.WithLoggerFields(s.logger, map[string]any{
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": middleware.GetReqID(r.Context()),
				}).Error("panic in http handler: %v", pe.Value)
				writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type runView struct {
	Automation  string      `json:"automation"`
	ExecutionID string      `json:"execution_id"`
	Status      flow.Status `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

// handlePublish dispatches {"type": "...", "fields": {...}} to every
// automation and answers 202 once dispatch returns. Each run whose triggers
// matched is listed with its own execution id, the one paused runs use.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	evt, ok := decodeEvent(w, r, true)
	if !ok {
		return
	}
	results := s.orch.HandleEvent(r.Context(), automation.NewEventContext(evt))
	runs := make([]runView, 0, len(results))
	for _, res := range results {
		runs = append(runs, runView{Automation: res.Automation, ExecutionID: res.ExecutionID, Status: res.Status, Reason: res.Reason})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"type": evt.Name, "runs": runs})
}

type automationView struct {
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
	Actions     int    `json:"actions"`
}

func (s *Server) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	list := s.orch.Automations()
	out := make([]automationView, 0, len(list))
	for _, a := range list {
		out = append(out, automationView{Alias: a.Alias(), Description: a.Description(), Actions: a.ActionCount()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": out, "count": len(out)})
}

// handleRegister builds a definition against the unit registry and
// registers it, replacing an automation with the same alias.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var def flow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	a, err := s.orch.Builder().Build(def)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.orch.Register(a); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, automationView{Alias: a.Alias(), Description: a.Description(), Actions: a.ActionCount()})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.orch.Remove(chi.URLParam(r, "alias"))
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute runs one automation directly. Triggers are bypassed and
// conditions still apply. The body event is optional.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	a, found := s.orch.Automation(chi.URLParam(r, "alias"))
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "automation not found")
		return
	}
	evt, ok := decodeEvent(w, r, false)
	if !ok {
		return
	}
	if evt.Name == "" {
		evt.Name = "manual"
	}
	res, err := s.orch.ExecuteAutomation(r.Context(), a, automation.NewEventContext(evt))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPaused(w http.ResponseWriter, r *http.Request) {
	paused, err := s.orch.Paused(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": paused, "count": len(paused)})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == flow.StatusNotResumable {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeEvent(w http.ResponseWriter, r *http.Request, required bool) (automation.GenericEvent, bool) {
	var evt automation.GenericEvent
	if r.ContentLength == 0 && !required {
		return evt, true
	}
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return evt, true
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return evt, false
	}
	evt.Name = strings.TrimSpace(evt.Name)
	if required && evt.Name == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "event type is required")
		return evt, false
	}
	return evt, true
}
