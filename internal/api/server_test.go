package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type idleBrowser struct{}

func (idleBrowser) OpenSession(context.Context, int64) (portal.Page, func(), error) {
	return nil, nil, errors.New("no browser in tests")
}
func (idleBrowser) GetStats() map[string]interface{} { return map[string]interface{}{} }
func (idleBrowser) Health() map[string]interface{} {
	return map[string]interface{}{"status": "healthy"}
}
func (idleBrowser) Close() error { return nil }

func newTestServer(t *testing.T, apiKey string, opts ...func(*config.Config)) *Server {
	t.Helper()

	cfg := &config.Config{
		Portal: config.PortalConfig{ID: 1, Workers: 1, ItemsLookback: 10},
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{RequestsPerMinute: 600, BurstSize: 50},
			CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
			APIKey:    apiKey,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	log := logger.Discard()
	cache := services.NewCacheService(nil, time.Hour, logger.Component(log, "cache"))

	container := &services.Container{
		CacheService:   cache,
		BrowserService: idleBrowser{},
		Metrics:        services.NewMetrics(),
	}
	container.Harvest = services.NewHarvestService(services.HarvestDeps{
		Config:  cfg,
		Cache:   cache,
		Browser: container.BrowserService,
		Metrics: container.Metrics,
		Logger:  log,
	})
	t.Cleanup(container.Harvest.Close)

	s := NewServer(cfg, log, container)
	t.Cleanup(s.Close)
	return s
}

func request(s *Server, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/runs/last?kind=discover", http.StatusNotFound},
		{http.MethodGet, "/api/v1/cache/stats", http.StatusOK},
		{http.MethodDelete, "/api/v1/cache/clear", http.StatusOK},
		{http.MethodGet, "/api/v1/browser/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/browser/health", http.StatusOK},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
		{http.MethodPut, "/api/v1/stats", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := request(s, tt.method, tt.path, nil, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestServer_APIKeyGuardsMutations(t *testing.T) {
	s := newTestServer(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, request(s, http.MethodPost, "/api/v1/runs", []byte(`{"kind":"discover"}`), nil).Code)
	assert.Equal(t, http.StatusUnauthorized, request(s, http.MethodDelete, "/api/v1/cache/clear", nil, nil).Code)
	assert.Equal(t, http.StatusOK, request(s, http.MethodDelete, "/api/v1/cache/clear", nil, map[string]string{"X-API-Key": "s3cret"}).Code)

	// reads stay open
	assert.Equal(t, http.StatusOK, request(s, http.MethodGet, "/api/v1/cache/stats", nil, nil).Code)
}

func TestServer_RunLockConflict(t *testing.T) {
	s := newTestServer(t, "")

	ok, err := s.services.CacheService.SetIfAbsent(context.Background(), "lock:run", "other", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	rec := request(s, http.MethodPost, "/api/v1/runs", []byte(`{"kind":"discover"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_SwaggerDocs(t *testing.T) {
	s := newTestServer(t, "")

	rec := request(s, http.MethodGet, "/swagger/doc.json", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/api/v1/runs"`)
	assert.Contains(t, rec.Body.String(), "ApiKeyAuth")

	rec = request(s, http.MethodGet, "/swagger/index.html", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "'unsafe-inline'")

	rec = request(s, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/swagger/index.html", rec.Header().Get("Location"))
}

func TestServer_SwaggerHiddenInProduction(t *testing.T) {
	s := newTestServer(t, "", func(cfg *config.Config) {
		cfg.Server.Environment = "production"
	})

	assert.Equal(t, http.StatusNotFound, request(s, http.MethodGet, "/swagger/doc.json", nil, nil).Code)
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'",
		request(s, http.MethodGet, "/health/live", nil, nil).Header().Get("Content-Security-Policy"))
}
