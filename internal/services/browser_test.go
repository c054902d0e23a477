package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
)

func newTestBrowser(cfg config.BrowserConfig, navPerMinute int) *BrowserService {
	return NewBrowserService(cfg, navPerMinute, logger.Component(logger.Discard(), "browser"))
}

func TestBrowserService_ClosedRejectsSessions(t *testing.T) {
	b := newTestBrowser(config.BrowserConfig{MaxSessions: 1}, 0)
	require.NoError(t, b.Close())

	_, _, err := b.OpenSession(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBrowserClosed)
	assert.Equal(t, "unhealthy", b.Health()["status"])
}

func TestBrowserService_WaitsForFreeSlot(t *testing.T) {
	b := newTestBrowser(config.BrowserConfig{MaxSessions: 1}, 0)
	b.slots <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := b.OpenSession(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrowserService_Limiter(t *testing.T) {
	assert.Nil(t, newTestBrowser(config.BrowserConfig{}, 0).limiter())

	l := newTestBrowser(config.BrowserConfig{}, 30).limiter()
	require.NotNil(t, l)
	assert.InDelta(t, 0.5, float64(l.Limit()), 1e-9)
	assert.Equal(t, 1, l.Burst())
}

func TestBrowserService_Stats(t *testing.T) {
	b := newTestBrowser(config.BrowserConfig{MaxSessions: 3, Headless: true}, 0)

	stats := b.GetStats()
	assert.Equal(t, 0, stats["active_sessions"])
	assert.Equal(t, 3, stats["max_sessions"])
	assert.Equal(t, true, stats["headless"])
	assert.Equal(t, "healthy", b.Health()["status"])
}

func TestBrowserService_AllocatorOptions(t *testing.T) {
	minimal := newTestBrowser(config.BrowserConfig{}, 0).allocatorOptions()
	full := newTestBrowser(config.BrowserConfig{Headless: true, DisableSandbox: true, ExecPath: "/usr/bin/chromium"}, 0).allocatorOptions()

	assert.Len(t, full, len(minimal)+3)
}
