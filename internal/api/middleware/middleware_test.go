package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	rec := serve(r, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), rec.Body.String())

	rec = serve(r, http.MethodGet, "/ping", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", rec.Body.String())
}

func TestRecovery(t *testing.T) {
	r := newRouter(RequestID(), Recovery(logger.Discard()))

	rec := serve(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS(config.CORSConfig{
		AllowedOrigins: []string{"https://ops.example"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	rec := serve(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://ops.example"})
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = serve(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(r, http.MethodOptions, "/ping", map[string]string{"Origin": "https://ops.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(newRouter(Security()), http.MethodGet, "/ping", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIKeyAuth(t *testing.T) {
	open := newRouter(APIKeyAuth(""))
	assert.Equal(t, http.StatusOK, serve(open, http.MethodGet, "/ping", nil).Code)

	guarded := newRouter(APIKeyAuth("s3cret"))
	assert.Equal(t, http.StatusUnauthorized, serve(guarded, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(guarded, http.MethodGet, "/ping", map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, serve(guarded, http.MethodGet, "/ping", map[string]string{"X-API-Key": "s3cret"}).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, BurstSize: 2})
	defer rl.Stop()
	r := newRouter(rl.Middleware())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)

	rec := serve(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "61", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	assert.Equal(t, 1, rl.GetStats()["active_clients"])
}

func TestLoggerPassesThrough(t *testing.T) {
	r := newRouter(RequestID(), Logger(logger.Discard()))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/missing", nil).Code)
}
