package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bidboard/api/internal/store"
	"bidboard/api/internal/workflow"
)

func migrateRequest(t *testing.T, server *HTTPServer, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/board/migrate", strings.NewReader("{}"))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func signIn(t *testing.T, svc *Service) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session.Token
}

func TestMigrateEndpointUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	for _, token := range []string{"", "not-a-real-token"} {
		rec := migrateRequest(t, server, token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != "Unauthorized" {
			t.Errorf("error = %v", body["error"])
		}
	}
}

func TestMigrateEndpointNoOrganization(t *testing.T) {
	fs := &fakeStore{}
	fs.latestOrganizationForUserFn = func(context.Context, string) (string, error) {
		return "", workflow.ErrNoOrganization
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rec := migrateRequest(t, server, signIn(t, svc))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "No organization found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestMigrateEndpointSuccess(t *testing.T) {
	fs := &fakeStore{}
	fs.getBoardPreferencesFn = func(context.Context, string) (workflow.Preferences, bool, error) {
		return workflow.Preferences{CollapsedColumnIDs: []string{"archived"}}, true, nil
	}
	fs.listProposalStagesFn = func(context.Context, string) ([]workflow.ProposalStage, error) {
		return []workflow.ProposalStage{
			{ID: "p1", Status: "won", CurrentPhase: "phase3"},
			{ID: "p2", Status: "", CurrentPhase: "phase2"},
			{ID: "p3", Status: "", CurrentPhase: ""},
		}, nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rec := migrateRequest(t, server, signIn(t, svc))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Results struct {
			ConfigsUpdated    int      `json:"kanban_configs_updated"`
			ProposalsMigrated int      `json:"proposals_migrated"`
			Errors            []string `json:"errors"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Message != "Migration completed" {
		t.Errorf("envelope = %+v", body)
	}
	if body.Results.ConfigsUpdated != 1 || body.Results.ProposalsMigrated != 3 {
		t.Errorf("results = %+v", body.Results)
	}
	if body.Results.Errors == nil || len(body.Results.Errors) != 0 {
		t.Errorf("errors = %v", body.Results.Errors)
	}

	// Preferences from the prior configuration survived the rewrite.
	if len(fs.savedPrefs.CollapsedColumnIDs) != 1 || fs.savedPrefs.CollapsedColumnIDs[0] != "archived" {
		t.Errorf("saved prefs = %+v", fs.savedPrefs)
	}
	if len(fs.savedColumns) != 15 {
		t.Errorf("saved %d columns", len(fs.savedColumns))
	}

	if fs.stageUpdates["p1"] != "won" || fs.stageUpdates["p2"] != "resources" || fs.stageUpdates["p3"] != "initiate" {
		t.Errorf("stage updates = %v", fs.stageUpdates)
	}
}

func TestMigrateEndpointPartialFailure(t *testing.T) {
	fs := &fakeStore{}
	fs.listProposalStagesFn = func(context.Context, string) ([]workflow.ProposalStage, error) {
		return []workflow.ProposalStage{
			{ID: "p1", Status: "draft"},
			{ID: "p2", Status: "lost"},
			{ID: "p3", Status: "submitted"},
		}, nil
	}
	fs.updateProposalStageFn = func(_ context.Context, proposalID, _ string) error {
		if proposalID == "p2" {
			return errors.New("deadlock detected")
		}
		return nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rec := migrateRequest(t, server, signIn(t, svc))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool `json:"success"`
		Results struct {
			ProposalsMigrated int      `json:"proposals_migrated"`
			Errors            []string `json:"errors"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Error("partial failure still reports success")
	}
	if body.Results.ProposalsMigrated != 2 {
		t.Errorf("migrated = %d", body.Results.ProposalsMigrated)
	}
	if len(body.Results.Errors) != 1 || !strings.Contains(body.Results.Errors[0], "p2") {
		t.Errorf("errors = %v", body.Results.Errors)
	}
}

func TestMigrateEndpointIdempotent(t *testing.T) {
	fs := &fakeStore{}
	fs.listProposalStagesFn = func(context.Context, string) ([]workflow.ProposalStage, error) {
		return []workflow.ProposalStage{{ID: "p1", Status: "client_accepted", CurrentPhase: "phase7"}}, nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := signIn(t, svc)

	first := migrateRequest(t, server, token)
	second := migrateRequest(t, server, token)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("responses differ:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if fs.stageUpdates["p1"] != "won" {
		t.Errorf("stage updates = %v", fs.stageUpdates)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
}

func TestProposalRoutesRequireSession(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/board"},
		{http.MethodGet, "/api/proposals"},
		{http.MethodPost, "/api/proposals"},
		{http.MethodPost, "/api/seed"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d", route.method, route.path, rec.Code)
		}
	}
}

func TestViewerCannotWrite(t *testing.T) {
	fs := &fakeStore{}
	fs.getUserByIDFn = func(_ context.Context, userID string) (store.User, error) {
		return store.User{ID: userID, DisplayName: "Read Only", Role: "viewer"}, nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := signIn(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/proposals", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}
