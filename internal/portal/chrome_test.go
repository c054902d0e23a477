package portal

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/logger"
)

func quietPage(lastActivity time.Time) *ChromePage {
	tracker := newNetworkTracker()
	tracker.lastActivity = lastActivity
	return &ChromePage{net: tracker, logger: logger.Component(logger.Discard(), "page")}
}

func TestWaitNetworkIdle_WaitsFullWindowAfterCall(t *testing.T) {
	page := quietPage(time.Now().Add(-time.Second))

	start := time.Now()
	require.NoError(t, page.WaitNetworkIdle(context.Background(), 5*time.Second))
	assert.GreaterOrEqual(t, time.Since(start), quietWindow)
}

func TestWaitNetworkIdle_TimeoutShorterThanWindow(t *testing.T) {
	page := quietPage(time.Now().Add(-time.Minute))

	err := page.WaitNetworkIdle(context.Background(), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitNetworkIdle_WaitsForInflightRequest(t *testing.T) {
	page := quietPage(time.Now().Add(-time.Second))
	page.net.handle(&network.EventRequestWillBeSent{RequestID: "post-1", Type: network.ResourceTypeDocument})

	finished := make(chan time.Time, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		finished <- time.Now()
		page.net.handle(&network.EventLoadingFinished{RequestID: "post-1"})
	}()

	require.NoError(t, page.WaitNetworkIdle(context.Background(), 5*time.Second))
	assert.GreaterOrEqual(t, time.Since(<-finished), quietWindow)
}

func TestWaitNetworkIdle_IgnoresStreams(t *testing.T) {
	page := quietPage(time.Now())
	page.net.handle(&network.EventRequestWillBeSent{RequestID: "ws", Type: network.ResourceTypeWebSocket})

	inflight, _ := page.net.quietSince(time.Now())
	assert.Zero(t, inflight)
}

func TestWaitNetworkIdle_ContextCancelled(t *testing.T) {
	page := quietPage(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, page.WaitNetworkIdle(ctx, time.Second), context.Canceled)
}
