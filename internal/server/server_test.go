package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealflow/internal/bridge"
	appconfig "dealflow/internal/config"
	"dealflow/internal/domain"
	"dealflow/internal/engine"
	"dealflow/internal/repo"
)

type testServer struct {
	handler  http.Handler
	mem      *repo.Memory
	engine   engine.Engine
	pipeline domain.Pipeline
	stages   map[string]domain.Stage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := repo.NewMemory()
	cfg := appconfig.Default("pipe1")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(mem, cfg, log)
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	p, stages, err := e.CreatePipeline(context.Background(), cfg, domain.Actor{Kind: domain.ActorHuman, ID: "setup"})
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	byName := make(map[string]domain.Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	handler, err := New(Config{
		Engine: e,
		Bridge: bridge.Bridge{Engine: e, Store: mem, Log: log},
		AppCfg: cfg,
		Auth: AuthConfig{
			AllowLegacyActorHeader: true,
			Logger:                 log,
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{handler: handler, mem: mem, engine: e, pipeline: p, stages: byName}
}

func (ts *testServer) request(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Actor-Id", "alice")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func (ts *testServer) createDeal(t *testing.T, value float64) domain.Deal {
	t.Helper()
	var d domain.Deal
	rec := ts.request(t, http.MethodPost, "/v0/deals", map[string]any{
		"pipeline_id": ts.pipeline.ID,
		"lead_name":   "Acme",
		"value":       value,
	}, &d)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deal: %d %s", rec.Code, rec.Body.String())
	}
	return d
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v\n%s", err, rec.Body.String())
	}
	return envelope.Error.Code
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v0/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v0/deals", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTransitionOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	d := ts.createDeal(t, 3000)
	target := ts.stages["Negociação"]

	var res TransitionResponse
	rec := ts.request(t, http.MethodPost, fmt.Sprintf("/v0/deals/%s/transition", d.ID), map[string]string{
		"to_stage_id": target.ID,
	}, &res)
	if rec.Code != http.StatusOK {
		t.Fatalf("transition: %d %s", rec.Code, rec.Body.String())
	}
	if res.Deal.StageID != target.ID || res.NoOp {
		t.Fatalf("result: %+v", res)
	}

	var history []domain.TransitionRecord
	rec = ts.request(t, http.MethodGet, fmt.Sprintf("/v0/deals/%s/history", d.ID), nil, &history)
	if rec.Code != http.StatusOK || len(history) != 1 {
		t.Fatalf("history: %d, %d records", rec.Code, len(history))
	}
}

func TestValueGateReturns422(t *testing.T) {
	ts := newTestServer(t)
	d := ts.createDeal(t, 0)
	target := ts.stages["Proposta"]

	rec := ts.request(t, http.MethodPost, fmt.Sprintf("/v0/deals/%s/transition", d.ID), map[string]string{
		"to_stage_id": target.ID,
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "validation_failed" {
		t.Fatalf("code = %s", code)
	}
}

func TestMissingReasonReturns422(t *testing.T) {
	ts := newTestServer(t)
	d := ts.createDeal(t, 3000)
	win := ts.stages["Ganho"]

	rec := ts.request(t, http.MethodPost, fmt.Sprintf("/v0/deals/%s/transition", d.ID), map[string]string{
		"to_stage_id": win.ID,
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != "reason_required" {
		t.Fatalf("code = %s", code)
	}
}

func TestUnknownDealReturns404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/v0/deals/ghost", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteStageInUseReturns409(t *testing.T) {
	ts := newTestServer(t)
	ts.createDeal(t, 100)
	first := ts.stages["Qualificação"]

	rec := ts.request(t, http.MethodDelete, "/v0/stages/"+first.ID, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "stage_in_use" {
		t.Fatalf("code = %s", code)
	}
}

func TestReorderRejectsBadOrder(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodPut, fmt.Sprintf("/v0/pipelines/%s/stages/order", ts.pipeline.ID), map[string]any{
		"order": []string{ts.stages["Ganho"].ID},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "invalid_order" {
		t.Fatalf("code = %s", code)
	}
}

func TestAgentActionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	d := ts.createDeal(t, 2000)

	var res bridge.Result
	rec := ts.request(t, http.MethodPost, "/v0/agent/actions", map[string]any{
		"action":     "move_stage",
		"deal_id":    d.ID,
		"stage":      "proposal",
		"agent_name": "vend",
	}, &res)
	if rec.Code != http.StatusOK {
		t.Fatalf("agent action: %d %s", rec.Code, rec.Body.String())
	}
	if !res.Success {
		t.Fatalf("action failed: %s", res.Error)
	}

	// a rejected action still comes back 200 with success=false
	rec = ts.request(t, http.MethodPost, "/v0/agent/actions", map[string]any{
		"action":  "move_stage",
		"deal_id": d.ID,
		"stage":   "win",
	}, &res)
	if rec.Code != http.StatusOK {
		t.Fatalf("agent action: %d", rec.Code)
	}
	if res.Success {
		t.Fatal("terminal move without reason succeeded")
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createDeal(t, 2000)

	var body struct {
		OpenCount int     `json:"open_count"`
		OpenValue float64 `json:"open_value"`
	}
	rec := ts.request(t, http.MethodGet, fmt.Sprintf("/v0/pipelines/%s/stats", ts.pipeline.ID), nil, &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body.String())
	}
	if body.OpenCount != 1 || body.OpenValue != 2000 {
		t.Fatalf("stats body: %+v", body)
	}
}
