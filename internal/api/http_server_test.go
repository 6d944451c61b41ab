package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"domovik/internal/cache"
	"domovik/internal/config"
	"domovik/internal/events"
	"domovik/internal/models"
	"domovik/internal/orchestrator"
	"domovik/internal/queue"
	"domovik/internal/report"
	"domovik/internal/service"
	"domovik/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopScheduler struct{}

func (noopScheduler) Request(ctx context.Context, job string) error { return nil }

func newTestServer(t *testing.T, cfg config.APIConfig) *HTTPServer {
	t.Helper()

	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	q := queue.NewManager(st, &logger)
	orch := orchestrator.New(q, noopScheduler{}, events.NewBus(), 10*time.Millisecond, &logger)
	svc := service.NewOfflineService(q, cache.NewStoreCache(st), orch, nil, 0, &logger)
	exporter := report.NewExporter(q, t.TempDir(), &logger)
	return NewHTTPServer(cfg, svc, exporter, &logger)
}

func doRequest(srv *HTTPServer, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Online  bool           `json:"online"`
		Pending map[string]int `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Online, "no monitor wired means offline")
	assert.Equal(t, 0, resp.Pending["total"])
}

func TestPendingEndpointPerEntity(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	ctx := context.Background()
	_, err := srv.svc.StoreForOfflineSync(ctx, models.EntityTask, map[string]string{"title": "clean gutters"})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/v1/pending?entity=task", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":1`)

	rec = doRequest(srv, http.MethodGet, "/api/v1/pending/task", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":1`)

	rec = doRequest(srv, http.MethodGet, "/api/v1/pending?entity=recipe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSyncEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/sync/trigger", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"triggered":true`)

	rec = doRequest(srv, http.MethodGet, "/api/v1/sync/trigger", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCacheEndpointRoundTrip(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doRequest(srv, http.MethodPut, "/api/v1/cache/tasks:list?ttl=5m", `{"tasks":[]}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/cache/tasks:list", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stale":false`)

	rec = doRequest(srv, http.MethodDelete, "/api/v1/cache/tasks:list", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/cache/tasks:list", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheEndpointRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doRequest(srv, http.MethodPut, "/api/v1/cache/k", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPut, "/api/v1/cache/k?ttl=bogus", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/cache/", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailedExportEndpoint(t *testing.T) {
	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	q := queue.NewManager(st, &logger)
	orch := orchestrator.New(q, noopScheduler{}, events.NewBus(), 10*time.Millisecond, &logger)
	svc := service.NewOfflineService(q, cache.NewStoreCache(st), orch, nil, 0, &logger)
	exportDir := t.TempDir()
	srv := NewHTTPServer(config.APIConfig{}, svc, report.NewExporter(q, exportDir, &logger), &logger)

	ctx := context.Background()
	m, err := svc.StoreForOfflineSync(ctx, models.EntityTask, map[string]string{"title": "fix gate"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateMutationStatus(ctx, m.ID, models.MutationFailed, "422", nil))

	rec := doRequest(srv, http.MethodGet, "/api/v1/failed/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		File string `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.File, exportDir), "report lands in the export dir")
	_, err = os.Stat(resp.File)
	require.NoError(t, err, "report file exists")

	rec = doRequest(srv, http.MethodPost, "/api/v1/failed/export", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFailedExportWithoutExporter(t *testing.T) {
	logger := zerolog.Nop()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, st.Open())
	t.Cleanup(func() { st.Close() })

	q := queue.NewManager(st, &logger)
	orch := orchestrator.New(q, noopScheduler{}, events.NewBus(), 10*time.Millisecond, &logger)
	svc := service.NewOfflineService(q, cache.NewStoreCache(st), orch, nil, 0, &logger)
	srv := NewHTTPServer(config.APIConfig{}, svc, nil, &logger)

	rec := doRequest(srv, http.MethodGet, "/api/v1/failed/export", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "secret-key", Name: "ui"}},
		},
	}
	srv := newTestServer(t, cfg)

	rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", map[string]string{"x-api-key": "secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		Auth:      config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	srv := newTestServer(t, cfg)

	rec := doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
