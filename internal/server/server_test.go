package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sells-group/netmerge/internal/store"
)

const sessionBody = `{
  "network_a": {
    "description": {"id": "a", "name": "Network A"},
    "nodes": {"type": "FeatureCollection", "features": [
      {"type": "Feature", "id": "a1", "geometry": {"type": "Point", "coordinates": [-1.5491, 53.8008]}, "properties": {"name": "Leeds"}},
      {"type": "Feature", "id": "a2", "geometry": {"type": "Point", "coordinates": [-1.0815, 53.96]}, "properties": {"name": "York"}}
    ]}
  },
  "network_b": {
    "description": {"id": "b", "name": "Network B"},
    "nodes": {"type": "FeatureCollection", "features": [
      {"type": "Feature", "id": "b1", "geometry": {"type": "Point", "coordinates": [-1.5491, 53.8008]}, "properties": {"name": "Leeds"}},
      {"type": "Feature", "id": "b2", "geometry": {"type": "Point", "coordinates": [-0.3274, 53.7457]}, "properties": {"name": "Hull"}}
    ]}
  }
}`

func do(t *testing.T, h http.Handler, method, path, body string) (int, gjson.Result) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, gjson.Parse(rec.Body.String())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestHealth(t *testing.T) {
	code, body := do(t, New().Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Get("status").String())
}

func TestReviewFlow(t *testing.T) {
	st := newTestStore(t)
	h := New(WithStore(st)).Handler()

	code, body := do(t, h, http.MethodPost, "/api/v1/session", sessionBody)
	require.Equal(t, http.StatusCreated, code, body.Raw)
	runID := body.Get("run_id").String()
	assert.NotEmpty(t, runID)
	assert.Equal(t, "node_review", body.Get("stage").String())
	assert.Equal(t, int64(1), body.Get("total").Int())
	assert.Equal(t, int64(1), body.Get("counts.pending").Int())
	assert.Equal(t, "a1", body.Get("current.a.id").String())
	assert.Equal(t, "b1", body.Get("current.b.id").String())
	assert.Equal(t, "Leeds", body.Get("current.b.name").String())

	code, body = do(t, h, http.MethodGet, "/api/v1/session/items", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Get("items").Array(), 1)

	code, body = do(t, h, http.MethodPost, "/api/v1/session/consolidate", "")
	require.Equal(t, http.StatusOK, code, body.Raw)
	assert.True(t, body.Get("applied").Bool())
	assert.Equal(t, int64(1), body.Get("state.counts.consolidated").Int())

	// No spans to compare, so finishing node review completes the run.
	code, body = do(t, h, http.MethodPost, "/api/v1/session/finish", "")
	require.Equal(t, http.StatusOK, code, body.Raw)
	assert.True(t, body.Get("applied").Bool())
	assert.Equal(t, "output", body.Get("state.stage").String())

	code, body = do(t, h, http.MethodGet, "/api/v1/session/output", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Get("nodes.features").Array(), 3)
	assert.Empty(t, body.Get("spans.features").Array())
	merged := body.Get(`nodes.features.#(properties.provenance.wasDerivedFrom.0=="a1")`)
	require.True(t, merged.Exists(), body.Raw)
	assert.True(t, merged.Get("properties.provenance.manual").Bool())
	assert.Equal(t, "node", merged.Get("properties.featureType").String())

	code, body = do(t, h, http.MethodGet, "/api/v1/session/reasons", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Get("reasons").Array(), 1)
	assert.Equal(t, "a1", body.Get("reasons.0.primary_id").String())
	assert.Equal(t, int64(1), body.Get("nodes.merged").Int())

	code, body = do(t, h, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), body.Get("count").Int())
	assert.Equal(t, "complete", body.Get("runs.0.status").String())
	assert.Equal(t, int64(3), body.Get("runs.0.result.output_nodes").Int())

	code, body = do(t, h, http.MethodGet, "/api/v1/runs/"+runID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a", body.Get("input.network_a.id").String())

	code, body = do(t, h, http.MethodGet, "/api/v1/runs/"+runID+"/records", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(1), body.Get("count").Int())
	assert.Equal(t, "b1", body.Get("records.0.secondary_id").String())

	// The session is over.
	code, _ = do(t, h, http.MethodPost, "/api/v1/session/finish", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestReject(t *testing.T) {
	h := New().Handler()

	code, _ := do(t, h, http.MethodPost, "/api/v1/session", sessionBody)
	require.Equal(t, http.StatusCreated, code)

	code, body := do(t, h, http.MethodPost, "/api/v1/session/reject", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), body.Get("counts.rejected").Int())
	assert.Empty(t, body.Get("run_id").String())

	code, _ = do(t, h, http.MethodPost, "/api/v1/session/finish", "")
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, h, http.MethodGet, "/api/v1/session/output", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Get("nodes.features").Array(), 4)
}

func TestFinishWithPendingNeedsConfirmation(t *testing.T) {
	h := New().Handler()

	code, _ := do(t, h, http.MethodPost, "/api/v1/session", sessionBody)
	require.Equal(t, http.StatusCreated, code)

	code, body := do(t, h, http.MethodPost, "/api/v1/session/finish", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, body.Get("applied").Bool())
	assert.Equal(t, "node_review", body.Get("state.stage").String())

	code, _ = do(t, h, http.MethodPost, "/api/v1/session/finish?confirm=maybe", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, h, http.MethodPost, "/api/v1/session/finish?confirm=true", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Get("applied").Bool())
	assert.Equal(t, "output", body.Get("state.stage").String())
}

func TestSessionErrors(t *testing.T) {
	h := New().Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"no session", http.MethodGet, "/api/v1/session", "", http.StatusNotFound},
		{"next without session", http.MethodPost, "/api/v1/session/next", "", http.StatusNotFound},
		{"bad body", http.MethodPost, "/api/v1/session", "{", http.StatusBadRequest},
		{"missing nodes", http.MethodPost, "/api/v1/session", `{"network_a": {}, "network_b": {}}`, http.StatusBadRequest},
		{
			"feature without geometry", http.MethodPost, "/api/v1/session",
			`{"network_a": {"nodes": {"type": "FeatureCollection", "features": [{"type": "Feature", "id": "x", "geometry": null, "properties": {}}]}},
			  "network_b": {"nodes": {"type": "FeatureCollection", "features": []}}}`,
			http.StatusBadRequest,
		},
		{"runs without store", http.MethodGet, "/api/v1/runs", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code, body.Raw)
			assert.NotEmpty(t, body.Get("error").String())
		})
	}
}

func TestOutputBeforeFinish(t *testing.T) {
	h := New().Handler()

	code, _ := do(t, h, http.MethodPost, "/api/v1/session", sessionBody)
	require.Equal(t, http.StatusCreated, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/session/output", "")
	assert.Equal(t, http.StatusConflict, code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRunsQueryValidation(t *testing.T) {
	h := New(WithStore(newTestStore(t))).Handler()

	code, _ := do(t, h, http.MethodGet, "/api/v1/runs?status=paused", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/runs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, h, http.MethodGet, "/api/v1/runs?status=complete&limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), body.Get("count").Int())

	code, _ = do(t, h, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/runs/missing/records", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCORS(t *testing.T) {
	h := New(WithAllowedOrigins("https://review.example.com")).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/session", nil)
	req.Header.Set("Origin", "https://review.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://review.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h := New(WithRateLimit(0.001, 2)).Handler()

	for range 2 {
		code, _ := do(t, h, http.MethodGet, "/api/v1/session", "")
		assert.Equal(t, http.StatusNotFound, code)
	}
	code, body := do(t, h, http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body.Get("error").String())

	// Health checks are not limited.
	code, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
}
