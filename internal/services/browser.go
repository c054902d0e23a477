package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/portal"
)

// ErrBrowserClosed is returned by OpenSession after Close
var ErrBrowserClosed = errors.New("browser service is closed")

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

// BrowserService starts one Chrome process per session. Sessions are never
// reused, so cookies and storage of one tenant cannot leak into another.
type BrowserService struct {
	config       config.BrowserConfig
	navPerMinute int
	logger       *logrus.Entry

	slots    chan struct{}
	mu       sync.RWMutex
	sessions map[string]*browserSession
	closed   bool

	opened int64
	failed int64
}

type browserSession struct {
	id       string
	tenantID int64
	started  time.Time
	cancel   context.CancelFunc
}

// NewBrowserService creates a new browser service. navPerMinute paces
// navigations inside each session; zero disables pacing.
func NewBrowserService(cfg config.BrowserConfig, navPerMinute int, logger *logrus.Entry) *BrowserService {
	maxSessions := cfg.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &BrowserService{
		config:       cfg,
		navPerMinute: navPerMinute,
		logger:       logger,
		slots:        make(chan struct{}, maxSessions),
		sessions:     make(map[string]*browserSession),
	}
}

// OpenSession launches an isolated browser for a tenant. It blocks while
// MaxSessions browsers are already open.
func (s *BrowserService) OpenSession(ctx context.Context, tenantID int64) (portal.Page, func(), error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, nil, ErrBrowserClosed
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	sess := &browserSession{
		id:       uuid.New().String(),
		tenantID: tenantID,
		started:  time.Now(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"session_id": sess.id,
		"tenant_id":  tenantID,
	})

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	stopAfter := context.AfterFunc(ctx, tabCancel)
	sess.cancel = func() {
		stopAfter()
		tabCancel()
		allocCancel()
	}

	fail := func(err error) (portal.Page, func(), error) {
		sess.cancel()
		<-s.slots
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		log.WithError(err).Error("Failed to start browser session")
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}

	// first Run launches the browser process
	startCtx, startCancel := context.WithTimeout(tabCtx, 30*time.Second)
	err := chromedp.Run(startCtx, chromedp.Navigate("about:blank"))
	startCancel()
	if err != nil {
		return fail(err)
	}

	page, err := portal.NewChromePage(tabCtx, s.limiter(), log)
	if err != nil {
		return fail(err)
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.opened++
	s.mu.Unlock()
	log.Debug("Browser session started")

	var once sync.Once
	release := func() {
		once.Do(func() {
			sess.cancel()
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			<-s.slots
			log.WithField("duration", time.Since(sess.started).String()).Debug("Browser session closed")
		})
	}
	return page, release, nil
}

func (s *BrowserService) allocatorOptions() []chromedp.ExecAllocatorOption {
	width, height := s.config.WindowWidth, s.config.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1366, 900
	}
	userAgent := s.config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(userAgent),
	}
	if s.config.DisableSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if s.config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if s.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ExecPath))
	}
	return opts
}

func (s *BrowserService) limiter() *rate.Limiter {
	if s.navPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.navPerMinute)), 1)
}

// GetStats returns session statistics
func (s *BrowserService) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]int64, 0, len(s.sessions))
	for _, sess := range s.sessions {
		tenants = append(tenants, sess.tenantID)
	}

	return map[string]interface{}{
		"active_sessions": len(s.sessions),
		"max_sessions":    cap(s.slots),
		"opened_total":    s.opened,
		"failed_total":    s.failed,
		"active_tenants":  tenants,
		"headless":        s.config.Headless,
	}
}

// Health returns browser service health status. The service is degraded
// when every launch so far has failed.
func (s *BrowserService) Health() map[string]interface{} {
	stats := s.GetStats()

	s.mu.RLock()
	closed, opened, failed := s.closed, s.opened, s.failed
	s.mu.RUnlock()

	status := "healthy"
	switch {
	case closed:
		status = "unhealthy"
	case failed > 0 && opened == 0:
		status = "degraded"
	}

	return map[string]interface{}{
		"status": status,
		"stats":  stats,
	}
}

// Close stops every open session. Sessions released afterwards are no-ops.
func (s *BrowserService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, sess := range s.sessions {
		sess.cancel()
	}

	s.logger.WithField("sessions", len(s.sessions)).Info("Browser service closed")
	return nil
}

var _ BrowserServiceInterface = (*BrowserService)(nil)
