package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearthkeep/homerules/rules"
)

func testSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		Port:              "0",
		CronSecret:        "shh",
		SchedulerInterval: time.Second,
		CacheTTL:          time.Second,
		ActionTimeout:     time.Second,
	}

	store := rules.NewInMemoryStore()
	registry := rules.NewRegistry()
	logger := testSlog()
	exec := rules.NewExecutor(loggingCollaborators(logger), logger).WithTimeout(cfg.ActionTimeout)
	dispatcher := rules.NewDispatcher(store, nil, store, exec, logger)
	engine := rules.NewEngine(store, nil, store, dispatcher, registry, logger)
	scheduler := rules.NewScheduler(store, store, dispatcher, logger)

	return NewServer(cfg, nil, engine, scheduler)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func createRulePayload() map[string]any {
	return map[string]any{
		"name": "streak bonus",
		"trigger": map[string]any{
			"type":   "chore_streak",
			"config": map[string]any{"days": 7},
		},
		"actions": []map[string]any{
			{"type": "award_credits", "config": map[string]any{"amount": 50}},
		},
	}
}

func createTestRule(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/families/fam-1/rules", createRulePayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &resp)
	if resp.ID == "" {
		t.Fatal("created rule has no id")
	}
	return resp.ID
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "healthy" || resp["storage"] != "memory" {
		t.Errorf("health body = %v", resp)
	}
}

func TestRuleLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ruleID := createTestRule(t, s)

	// Get.
	rec := doJSON(t, s, http.MethodGet, "/api/v1/rules/"+ruleID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var rule map[string]any
	decodeBody(t, rec, &rule)
	if rule["name"] != "streak bonus" || rule["enabled"] != true {
		t.Errorf("rule = %v", rule)
	}

	// List.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/families/fam-1/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var list struct {
		Rules []map[string]any `json:"rules"`
	}
	decodeBody(t, rec, &list)
	if len(list.Rules) != 1 {
		t.Errorf("rules listed = %d", len(list.Rules))
	}

	// Patch mutable fields.
	rec = doJSON(t, s, http.MethodPatch, "/api/v1/rules/"+ruleID, map[string]any{
		"name": "renamed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &rule)
	if rule["name"] != "renamed" {
		t.Errorf("patched name = %v", rule["name"])
	}

	// Toggle.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/rules/"+ruleID+"/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle = %d", rec.Code)
	}
	decodeBody(t, rec, &rule)
	if rule["enabled"] != false {
		t.Error("toggle should disable")
	}

	// Delete.
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/rules/"+ruleID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/"+ruleID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestCreateRuleValidationMessage(t *testing.T) {
	s := newTestServer(t)

	payload := createRulePayload()
	payload["actions"] = []map[string]any{}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/families/fam-1/rules", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("create = %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["error"] != "At least one action is required" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestPatchRejectsTriggerAndConditions(t *testing.T) {
	s := newTestServer(t)
	ruleID := createTestRule(t, s)

	rec := doJSON(t, s, http.MethodPatch, "/api/v1/rules/"+ruleID, map[string]any{
		"trigger": map[string]any{"type": "screentime_low", "config": map[string]any{"thresholdMinutes": 10}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("patch with trigger = %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["error"] != "Trigger cannot be modified after creation" {
		t.Errorf("error = %q", resp["error"])
	}

	rec = doJSON(t, s, http.MethodPatch, "/api/v1/rules/"+ruleID, map[string]any{
		"conditions": map[string]any{"operator": "AND", "rules": []any{}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("patch with conditions = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp["error"] != "Conditions cannot be modified after creation" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestDispatchEventEndpoint(t *testing.T) {
	s := newTestServer(t)
	ruleID := createTestRule(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"kind":     "chore_streak",
		"familyId": "fam-1",
		"context": map[string]any{
			"memberId":      "kid-1",
			"currentStreak": 10,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("dispatch = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Executions []map[string]any `json:"executions"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Executions) != 1 {
		t.Fatalf("executions = %d", len(resp.Executions))
	}
	if resp.Executions[0]["status"] != "fired" {
		t.Errorf("status = %v", resp.Executions[0]["status"])
	}

	// History shows up for the rule.
	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/rules/%s/executions?limit=5", ruleID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("executions = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if len(resp.Executions) != 1 {
		t.Errorf("history = %d records", len(resp.Executions))
	}

	// Stats reflect the firing.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/"+ruleID+"/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	var stats map[string]any
	decodeBody(t, rec, &stats)
	if stats["totalExecutions"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
}

func TestDispatchEventRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"familyId": "fam-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing kind = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"kind": "chore_streak",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing family = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]any{
		"kind":     "volcano_eruption",
		"familyId": "fam-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d", rec.Code)
	}
}

func TestDryRunEndpoint(t *testing.T) {
	s := newTestServer(t)
	ruleID := createTestRule(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rules/"+ruleID+"/dry-run", map[string]any{
		"context": map[string]any{
			"memberId":      "kid-1",
			"currentStreak": 9,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("dry run = %d", rec.Code)
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["wouldFire"] != true {
		t.Errorf("dry run = %v", resp)
	}
}

func TestCronEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no secret = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cron", nil)
	req.Header.Set("X-Cron-Secret", "shh")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid secret = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/triggers", nil)
	var triggers struct {
		Triggers []string `json:"triggers"`
	}
	decodeBody(t, rec, &triggers)
	if len(triggers.Triggers) != 8 {
		t.Errorf("triggers = %d, want 8", len(triggers.Triggers))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/actions", nil)
	var actions struct {
		Actions []string `json:"actions"`
	}
	decodeBody(t, rec, &actions)
	if len(actions.Actions) != 8 {
		t.Errorf("actions = %d, want 8", len(actions.Actions))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates", nil)
	var templates struct {
		Templates []map[string]any `json:"templates"`
	}
	decodeBody(t, rec, &templates)
	if len(templates.Templates) == 0 {
		t.Error("no templates listed")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates/chore_streak_bonus", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("template lookup = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template = %d", rec.Code)
	}
}
