// Package scraper walks the portal listing and extracts events and line items.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/portal"
)

// CursorState is the position of a Cursor in the listing
type CursorState int

const (
	AtPage CursorState = iota
	Advancing
	Exhausted
)

func (s CursorState) String() string {
	switch s {
	case AtPage:
		return "at_page"
	case Advancing:
		return "advancing"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// StopReason records why a Cursor became exhausted
type StopReason string

const (
	StopNone              StopReason = ""
	StopNoNextControl     StopReason = "no_next_control"
	StopControlDisabled   StopReason = "control_disabled"
	StopActivationFailed  StopReason = "activation_failed"
	StopNavigationStalled StopReason = "navigation_stalled"
	StopLimitReached      StopReason = "limit_reached"
)

// CursorOptions configure a Cursor
type CursorOptions struct {
	// Next locates the listing's next-page control
	Next portal.Locator
	// Ready locates content that exists once a listing page rendered
	Ready portal.Locator
	// MaxAdvances bounds page transitions. Negative means unbounded.
	MaxAdvances  int
	Timeout      time.Duration
	ClickTimeout time.Duration
}

// Cursor moves forward through a paginated listing. It never moves back
// and never revisits a page.
type Cursor struct {
	page     portal.Page
	opts     CursorOptions
	state    CursorState
	advances int
	stop     StopReason
	logger   *logrus.Entry
}

// NewCursor returns a cursor positioned on the page currently loaded
func NewCursor(page portal.Page, opts CursorOptions, logger *logrus.Entry) *Cursor {
	return &Cursor{
		page:   page,
		opts:   opts,
		state:  AtPage,
		logger: logger,
	}
}

func (c *Cursor) State() CursorState     { return c.state }
func (c *Cursor) Advances() int          { return c.advances }
func (c *Cursor) StopReason() StopReason { return c.stop }

// LimitReached reports whether the cursor stopped because of MaxAdvances
// rather than the end of the listing.
func (c *Cursor) LimitReached() bool {
	return c.stop == StopLimitReached
}

// Advance moves to the next listing page. It returns false once the
// listing is exhausted or the limit is reached. Errors are only returned
// when ctx is cancelled.
func (c *Cursor) Advance(ctx context.Context) (bool, error) {
	if c.state == Exhausted {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if c.opts.MaxAdvances >= 0 && c.advances >= c.opts.MaxAdvances {
		return c.exhaust(StopLimitReached, nil), nil
	}

	c.state = Advancing

	n, err := c.page.Count(ctx, c.opts.Next)
	if err != nil {
		return c.fail(ctx, StopNoNextControl, err)
	}
	if n == 0 {
		return c.exhaust(StopNoNextControl, nil), nil
	}

	next := c.opts.Next.Nth(0)
	if disabled, err := c.disabled(ctx, next); err != nil {
		return c.fail(ctx, StopNoNextControl, err)
	} else if disabled {
		return c.exhaust(StopControlDisabled, nil), nil
	}

	baseline, _, err := c.page.Attribute(ctx, next, "href")
	if err != nil {
		return c.fail(ctx, StopNoNextControl, err)
	}

	if err := c.page.Click(ctx, next, c.opts.ClickTimeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.logger.WithError(err).Debug("Direct click on next failed, using scripted click")
		if err := c.page.ClickJS(ctx, next); err != nil {
			return c.fail(ctx, StopActivationFailed, err)
		}
	}

	if err := c.page.WaitAttributeChange(ctx, next, "href", baseline, c.opts.Timeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// one more look: the transition may have landed right at the deadline
		current, present, aerr := c.page.Attribute(ctx, next, "href")
		if aerr == nil && present && current == baseline {
			return c.exhaust(StopNavigationStalled, err), nil
		}
	}

	if err := c.page.WaitVisible(ctx, c.opts.Ready, c.opts.Timeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.logger.WithError(err).Warn("Listing rows did not render after page change")
	}

	c.advances++
	c.state = AtPage
	c.logger.WithField("advances", c.advances).Debug("Listing advanced")
	return true, nil
}

func (c *Cursor) disabled(ctx context.Context, next portal.Locator) (bool, error) {
	class, _, err := c.page.Attribute(ctx, next, "class")
	if err != nil {
		return false, err
	}
	if strings.Contains(class, "disabled") {
		return true, nil
	}
	aria, _, err := c.page.Attribute(ctx, next, "aria-disabled")
	if err != nil {
		return false, err
	}
	if aria == "true" {
		return true, nil
	}
	href, present, err := c.page.Attribute(ctx, next, "href")
	if err != nil {
		return false, err
	}
	return !present || strings.TrimSpace(href) == "" || href == "#", nil
}

func (c *Cursor) fail(ctx context.Context, reason StopReason, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return c.exhaust(reason, err), nil
}

func (c *Cursor) exhaust(reason StopReason, err error) bool {
	c.state = Exhausted
	c.stop = reason

	log := c.logger.WithFields(logrus.Fields{
		"advances": c.advances,
		"reason":   string(reason),
	})
	if err != nil {
		log = log.WithError(err)
	}
	if reason == StopLimitReached {
		log.Info("Listing page limit reached")
	} else {
		log.Info("Listing exhausted")
	}
	return false
}

// Traversal summarizes a walk over the listing
type Traversal struct {
	Pages        int
	Advances     int
	LimitReached bool
	StopReason   StopReason
}

// Traverse calls visit on the current page and then on every page the
// cursor advances to.
func Traverse(ctx context.Context, c *Cursor, visit func(ctx context.Context, page int) error) (Traversal, error) {
	var t Traversal

	for {
		t.Pages++
		if err := visit(ctx, t.Pages); err != nil {
			return summarize(t, c), err
		}

		moved, err := c.Advance(ctx)
		if err != nil {
			return summarize(t, c), err
		}
		if !moved {
			return summarize(t, c), nil
		}
	}
}

func summarize(t Traversal, c *Cursor) Traversal {
	t.Advances = c.Advances()
	t.LimitReached = c.LimitReached()
	t.StopReason = c.StopReason()
	return t
}
