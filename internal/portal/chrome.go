package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// quietWindow is how long the network must stay silent to count as idle
const quietWindow = 500 * time.Millisecond

// ChromePage implements Page on a chromedp tab
type ChromePage struct {
	tab     context.Context
	limiter *rate.Limiter
	net     *networkTracker
	logger  *logrus.Entry
}

// NewChromePage wraps a chromedp tab context. Navigations wait on limiter
// when it is non-nil.
func NewChromePage(tab context.Context, limiter *rate.Limiter, logger *logrus.Entry) (*ChromePage, error) {
	p := &ChromePage{
		tab:     tab,
		limiter: limiter,
		net:     newNetworkTracker(),
		logger:  logger,
	}

	chromedp.ListenTarget(tab, p.net.handle)
	if err := chromedp.Run(tab, network.Enable()); err != nil {
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	return p, nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	p.logger.WithField("url", url).Debug("Navigating")
	return p.run(ctx, 0, chromedp.Navigate(url))
}

// WaitNetworkIdle returns once no request has been in flight for a full
// quiet window counted from the call, so a submit whose request has not been
// sent yet is never mistaken for an idle page.
func (p *ChromePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	deadline := start.Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		inflight, quiet := p.net.quietSince(start)
		if inflight == 0 && quiet >= quietWindow {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: network idle after %s (%d requests in flight)", ErrTimeout, timeout, inflight)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ChromePage) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(loc.JSElement(), chromedp.ByJSPath))
}

func (p *ChromePage) Count(ctx context.Context, loc Locator) (int, error) {
	var n int
	if err := p.run(ctx, 0, chromedp.Evaluate(loc.JSCount(), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *ChromePage) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	var res struct {
		Found bool    `json:"found"`
		Value *string `json:"value"`
	}
	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return {found: false, value: null};
		return {found: true, value: el.getAttribute(%s)};
	})()`, loc.JSElement(), jsString(name))

	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &res)); err != nil {
		return "", false, err
	}
	if !res.Found {
		return "", false, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	if res.Value == nil {
		return "", false, nil
	}
	return *res.Value, true, nil
}

func (p *ChromePage) Text(ctx context.Context, loc Locator) (string, error) {
	var text *string
	expr := fmt.Sprintf(`(() => { const el = %s; return el ? el.innerText : null; })()`, loc.JSElement())

	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return *text, nil
}

func (p *ChromePage) Fill(ctx context.Context, loc Locator, value string) error {
	sel := loc.JSElement()
	return p.run(ctx, 0,
		chromedp.WaitVisible(sel, chromedp.ByJSPath),
		chromedp.Clear(sel, chromedp.ByJSPath),
		chromedp.SendKeys(sel, value, chromedp.ByJSPath),
	)
}

func (p *ChromePage) Click(ctx context.Context, loc Locator, timeout time.Duration) error {
	sel := loc.JSElement()
	return p.run(ctx, timeout,
		chromedp.ScrollIntoView(sel, chromedp.ByJSPath),
		chromedp.Click(sel, chromedp.ByJSPath),
	)
}

func (p *ChromePage) ClickJS(ctx context.Context, loc Locator) error {
	var clicked bool
	expr := fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.click(); return true; })()`, loc.JSElement())

	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return nil
}

func (p *ChromePage) WaitAttributeChange(ctx context.Context, loc Locator, name, baseline string, timeout time.Duration) error {
	fn := fmt.Sprintf(`(baseline) => {
		const el = %s;
		return !el || el.getAttribute(%s) !== baseline;
	}`, loc.JSElement(), jsString(name))

	var changed bool
	return p.run(ctx, timeout, chromedp.PollFunction(fn, &changed,
		chromedp.WithPollingArgs(baseline),
		chromedp.WithPollingInterval(100*time.Millisecond),
		chromedp.WithPollingTimeout(timeout),
	))
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// run executes actions on the tab, bounded by timeout when positive and
// cancelled together with ctx.
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.tab, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.tab)
	}
	stop := context.AfterFunc(ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// networkTracker counts in-flight requests from CDP network events
type networkTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *networkTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// long-lived streams never finish
		if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
			return
		}
		t.mu.Lock()
		t.inflight[e.RequestID] = struct{}{}
		t.lastActivity = time.Now()
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *networkTracker) finish(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// quietSince reports in-flight requests and how long the network has been
// silent, never counting time before start.
func (t *networkTracker) quietSince(start time.Time) (int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.lastActivity
	if start.After(last) {
		last = start
	}
	return len(t.inflight), time.Since(last)
}
