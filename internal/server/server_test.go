package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/app"
	"github.com/ternarybob/bloom/internal/common"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables.toml"), []byte(`
[fitbit-client-secret]
value = "from-variables"
description = "Fitbit OAuth client secret"
`), 0644))

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(dir, "data")
	cfg.Variables.Dir = dir
	cfg.Fitbit.ClientID = "CLIENT"

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	return New(application)
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SystemRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = serve(s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, http.MethodOptions, "/api/health", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_QuestionnaireFlowPersists(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodPost, "/api/questionnaire/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodPost, "/api/questionnaire/responses",
		`{"questionId":"physical-overall","domainId":"physical","response":"Good"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/api/kv", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pairs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairs))
	found := false
	for _, p := range pairs {
		if p["key"] == "questionnaire-storage" {
			found = true
			assert.Equal(t, "********", p["value"])
		}
	}
	assert.True(t, found, "questionnaire document is persisted and masked")
}

func TestServer_FitbitStatusUnlinked(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/fitbit/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status["connected"])

	rec = serve(s, http.MethodGet, "/api/fitbit/steps", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(s, http.MethodPost, "/api/fitbit/sync?date=2026-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skipped":true`)
}

func TestServer_SchedulerRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/scheduler/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)

	rec = serve(s, http.MethodPost, "/api/scheduler/jobs/missing/trigger", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
