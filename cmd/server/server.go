package main

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hearthkeep/homerules/internal/logger"
	"github.com/hearthkeep/homerules/rules"
)

// Server exposes the rule engine over HTTP.
type Server struct {
	cfg       Config
	db        *sql.DB // nil when running on the in-memory store
	engine    *rules.Engine
	scheduler *rules.Scheduler
	router    *chi.Mux
}

// NewServer wires routes over an already-constructed engine and scheduler.
func NewServer(cfg Config, db *sql.DB, engine *rules.Engine, scheduler *rules.Scheduler) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		engine:    engine,
		scheduler: scheduler,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Post("/api/v1/events", s.handleDispatchEvent)
	r.Post("/api/v1/cron", s.handleCronTick)

	r.Get("/api/v1/triggers", s.handleListTriggerKinds)
	r.Get("/api/v1/actions", s.handleListActionKinds)
	r.Get("/api/v1/templates", s.handleListTemplates)
	r.Get("/api/v1/templates/{templateId}", s.handleGetTemplate)

	r.Route("/api/v1/families/{familyId}/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/", s.handleListRules)
	})

	r.Route("/api/v1/rules/{ruleId}", func(r chi.Router) {
		r.Get("/", s.handleGetRule)
		r.Patch("/", s.handleUpdateRule)
		r.Delete("/", s.handleDeleteRule)
		r.Post("/toggle", s.handleToggleRule)
		r.Post("/dry-run", s.handleDryRun)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/stats", s.handleExecutionStats)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"storage": s.storageMode(),
	})
}

func (s *Server) storageMode() string {
	if s.db != nil {
		return "postgres"
	}
	return "memory"
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int64{
		"totalErrors":       logger.TotalErrors.Load(),
		"totalWarnings":     logger.TotalWarnings.Load(),
		"totalDispatches":   logger.TotalDispatches.Load(),
		"totalRulesFired":   logger.TotalRulesFired.Load(),
		"totalActionErrors": logger.TotalActionErrors.Load(),
		"recorderErrors":    logger.RecorderErrors.Load(),
		"schedulerTicks":    logger.SchedulerTicks.Load(),
	})
}

// handleDispatchEvent routes a domain event through the dispatcher.
func (s *Server) handleDispatchEvent(w http.ResponseWriter, r *http.Request) {
	var ev rules.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.Kind == "" {
		respondError(w, http.StatusBadRequest, "event kind is required", nil)
		return
	}
	if ev.FamilyID == "" {
		respondError(w, http.StatusBadRequest, "familyId is required", nil)
		return
	}
	if !s.engine.Registry().ValidTriggerKind(string(ev.Kind)) {
		respondError(w, http.StatusBadRequest, "unknown event kind", nil)
		return
	}
	if ev.Context == nil {
		ev.Context = rules.EventContext{}
	}

	logger.TotalDispatches.Add(1)
	records, err := s.engine.Dispatch(r.Context(), ev)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "dispatch failed", err)
		return
	}
	for _, rec := range records {
		if rec.Status == rules.StatusFired {
			logger.TotalRulesFired.Add(1)
			for _, o := range rec.Outcomes {
				if o.Status == rules.OutcomeFailed {
					logger.TotalActionErrors.Add(1)
				}
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"executions": recordsOrEmpty(records),
	})
}

// handleCronTick runs one scheduler pass on demand. Guarded by CRON_SECRET;
// external cron services call this when the process cannot run its own loop.
func (s *Server) handleCronTick(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret == "" {
		respondError(w, http.StatusNotFound, "cron endpoint disabled", nil)
		return
	}
	secret := r.Header.Get("X-Cron-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.CronSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid cron secret", nil)
		return
	}

	logger.SchedulerTicks.Add(1)
	summary, err := s.scheduler.Tick(r.Context(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "tick failed", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListTriggerKinds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"triggers": s.engine.Registry().TriggerKinds(),
	})
}

func (s *Server) handleListActionKinds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"actions": s.engine.Registry().ActionKinds(),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"templates": rules.BuiltinTemplates(),
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	template, ok := rules.TemplateByID(chi.URLParam(r, "templateId"))
	if !ok {
		respondError(w, http.StatusNotFound, "template not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, template)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var in rules.CreateRuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in.FamilyID = chi.URLParam(r, "familyId")

	rule, err := s.engine.CreateRule(r.Context(), in)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ruleResponse(rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyId")
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	rulesList, err := s.engine.ListRules(r.Context(), familyID, enabledOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	out := make([]map[string]any, 0, len(rulesList))
	for _, rule := range rulesList {
		out = append(out, ruleResponse(rule))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ruleResponse(rule))
}

// handleUpdateRule revises a rule. The trigger and conditions are fixed at
// creation, so a body naming either is rejected outright.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string              `json:"name"`
		Description *string              `json:"description"`
		Enabled     *bool                `json:"enabled"`
		Actions     []rules.ActionConfig `json:"actions"`
		Trigger     json.RawMessage      `json:"trigger"`
		Conditions  json.RawMessage      `json:"conditions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Trigger) > 0 {
		respondError(w, http.StatusBadRequest, "Trigger cannot be modified after creation", nil)
		return
	}
	if len(req.Conditions) > 0 {
		respondError(w, http.StatusBadRequest, "Conditions cannot be modified after creation", nil)
		return
	}

	rule, err := s.engine.UpdateRule(r.Context(), chi.URLParam(r, "ruleId"), rules.UpdateRuleInput{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
		Actions:     req.Actions,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ruleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.ToggleRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ruleResponse(rule))
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Context rules.EventContext `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Context == nil {
		req.Context = rules.EventContext{}
	}

	result, err := s.engine.DryRun(r.Context(), chi.URLParam(r, "ruleId"), req.Context)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := s.engine.ListExecutions(r.Context(), chi.URLParam(r, "ruleId"), limit, offset)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"executions": recordsOrEmpty(records),
	})
}

func (s *Server) handleExecutionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.ExecutionStats(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// respondEngineError maps engine errors to status codes: validation problems
// are the caller's fault, a missing rule is 404, everything else is a 500.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Message, nil)
	case errors.Is(err, rules.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, "rule not found", nil)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// ruleResponse renders a rule with its trigger and actions back in wire
// envelope form.
func ruleResponse(rule *rules.Rule) map[string]any {
	trigger, _ := rules.EncodeTrigger(rule.Trigger)
	actions, _ := rules.EncodeActions(rule.Actions)

	out := map[string]any{
		"id":        rule.ID,
		"familyId":  rule.FamilyID,
		"name":      rule.Name,
		"trigger":   trigger,
		"actions":   actions,
		"enabled":   rule.Enabled,
		"createdAt": rule.CreatedAt,
		"updatedAt": rule.UpdatedAt,
	}
	if rule.Description != "" {
		out["description"] = rule.Description
	}
	if rule.Conditions != nil {
		out["conditions"] = rule.Conditions
	}
	if rule.CreatedBy != "" {
		out["createdBy"] = rule.CreatedBy
	}
	return out
}

func recordsOrEmpty(records []*rules.ExecutionRecord) []*rules.ExecutionRecord {
	if records == nil {
		return []*rules.ExecutionRecord{}
	}
	return records
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
