// Package api exposes the sync core over HTTP for the local UI process:
// connectivity status, pending counts, cache access and a manual sync
// trigger.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"domovik/internal/config"
	"domovik/internal/models"
	"domovik/internal/service"
	"domovik/internal/syncerr"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// FailedExporter writes the failed-mutation report to a file and returns
// its path.
type FailedExporter interface {
	ExportFailed(ctx context.Context) (string, error)
}

type HTTPServer struct {
	cfg      config.APIConfig
	svc      *service.OfflineService
	exporter FailedExporter
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc *service.OfflineService, exporter FailedExporter, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, exporter: exporter, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/pending", srv.handlePending)
	mux.HandleFunc("/api/v1/pending/", srv.handlePending)
	mux.HandleFunc("/api/v1/failed", srv.handleFailed)
	mux.HandleFunc("/api/v1/failed/export", srv.handleFailedExport)
	mux.HandleFunc("/api/v1/sync/trigger", srv.handleTriggerSync)
	mux.HandleFunc("/api/v1/cache/", srv.handleCache)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured handler chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.svc.PendingCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "pending counts unavailable")
		return
	}

	resp := map[string]any{
		"online": s.svc.IsOnline(),
		"pending": map[string]int{
			"tasks":    summary.Tasks,
			"assets":   summary.Assets,
			"bookings": summary.Bookings,
			"total":    summary.Total(),
		},
	}
	if last, err := s.svc.LastReplayAt(r.Context()); err == nil && !last.IsZero() {
		resp["last_replay_at"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.svc.PendingCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "pending counts unavailable")
		return
	}

	entity := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/pending"), "/")
	if entity == "" {
		entity = strings.TrimSpace(r.URL.Query().Get("entity"))
	}
	if entity != "" {
		if !models.IsValidEntityType(entity) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity type: %s", entity))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity": entity, "pending": summary.CountFor(entity)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"tasks":    summary.Tasks,
		"assets":   summary.Assets,
		"bookings": summary.Bookings,
		"total":    summary.Total(),
	})
}

func (s *HTTPServer) handleFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	failed, err := s.svc.FailedMutations(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed mutations unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed": failed})
}

// handleFailedExport dumps the failed mutations into an xlsx file for the
// household admin and reports where it landed.
func (s *HTTPServer) handleFailedExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not available")
		return
	}

	path, err := s.exporter.ExportFailed(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed mutations export failed")
		writeError(w, http.StatusServiceUnavailable, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (s *HTTPServer) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.svc.TriggerSync(r.Context())
	if err != nil {
		if syncerr.Is(err, syncerr.KindSyncTriggerUnsupported) {
			writeError(w, http.StatusNotImplemented, "background sync is not available")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "sync trigger failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"triggered": true,
		"pending": map[string]int{
			"tasks":    summary.Tasks,
			"assets":   summary.Assets,
			"bookings": summary.Bookings,
		},
	})
}

func (s *HTTPServer) handleCache(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/cache/"
	key := strings.TrimPrefix(r.URL.Path, prefix)
	key = strings.TrimSpace(key)
	if key == "" {
		writeError(w, http.StatusBadRequest, "cache key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		res := s.svc.GetCachedData(r.Context(), key)
		if res.Entry == nil {
			writeError(w, http.StatusNotFound, "cache miss")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"key":       res.Entry.Key,
			"value":     res.Entry.Value,
			"cached_at": res.Entry.CachedAt,
			"stale":     res.Stale,
		})

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || len(body) == 0 {
			writeError(w, http.StatusBadRequest, "request body is required")
			return
		}
		if !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "request body must be valid JSON")
			return
		}

		ttl := time.Duration(0)
		if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid ttl; expected a duration like 5m")
				return
			}
			ttl = parsed
		}

		if err := s.svc.CacheData(r.Context(), key, body, ttl); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache write failed")
			return
		}
		writeJSON(w, http.StatusNoContent, nil)

	case http.MethodDelete:
		if err := s.svc.InvalidateCache(r.Context(), key); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache delete failed")
			return
		}
		writeJSON(w, http.StatusNoContent, nil)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HTTPAuth provides API-key auth and per-key rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}

	apiKey := strings.TrimSpace(r.Header.Get(header))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	// Сравниваем со всеми ключами, чтобы время ответа не зависело от
	// совпадения префикса
	for stored := range a.clients {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("invalid api key")
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	if payload == nil {
		w.WriteHeader(statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
