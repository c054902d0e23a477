package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/utils"
)

// Reasons a detail row yields no line item
const (
	SkipNoControl      = "no_expand_control"
	SkipActivation     = "activation_failed"
	SkipNotExpanded    = "panel_not_expanded"
	SkipContextExpired = "cancelled"
)

// RowSkip records a detail row that produced no line item
type RowSkip struct {
	Position int    `json:"position"`
	RowRef   string `json:"row_ref,omitempty"`
	Reason   string `json:"reason"`
	Err      string `json:"error,omitempty"`
}

// DetailResult is the outcome of one event detail page
type DetailResult struct {
	EventID int64
	Rows    int
	Items   []models.LineItem
	Skipped []RowSkip
}

// controlStrategy resolves the expand control of row idx
type controlStrategy func(ctx context.Context, page portal.Page, row portal.Locator, idx int) (portal.Locator, bool)

// DetailExtractor expands every line-item panel of an event page and reads
// its fields. A row that fails never affects the other rows.
type DetailExtractor struct {
	sel        portal.Selectors
	timeouts   config.TimeoutConfig
	strategies []controlStrategy
	now        func() time.Time
	logger     *logrus.Entry
}

func NewDetailExtractor(sel portal.Selectors, timeouts config.TimeoutConfig, logger *logrus.Entry) *DetailExtractor {
	strategies := make([]controlStrategy, 0, len(sel.ExpandCandidates)+1)
	for _, candidate := range sel.ExpandCandidates {
		strategies = append(strategies, withinRow(candidate))
	}
	if sel.GlobalExpand != "" {
		strategies = append(strategies, globalByIndex(sel.GlobalExpand))
	}

	return &DetailExtractor{
		sel:        sel,
		timeouts:   timeouts,
		strategies: strategies,
		now:        time.Now,
		logger:     logger,
	}
}

// ExtractEvent opens the event detail page and extracts all of its line items.
// Only failing to open the page is an error; row failures are reported in
// DetailResult.Skipped.
func (x *DetailExtractor) ExtractEvent(ctx context.Context, page portal.Page, ev models.Event) (*DetailResult, error) {
	log := x.logger.WithField("event_id", ev.EventID)

	navCtx, cancel := context.WithTimeout(ctx, x.timeouts.Page)
	err := page.Navigate(navCtx, ev.DetailURL)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("open event %d: %w", ev.EventID, err)
	}

	if err := page.WaitNetworkIdle(ctx, x.timeouts.NetworkIdle); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Detail page did not go idle, extracting anyway")
	}
	if err := portal.Sleep(ctx, x.timeouts.Settle); err != nil {
		return nil, err
	}

	rows := portal.Query(x.sel.DetailRow)
	n, err := page.Count(ctx, rows)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("count line items of event %d: %w", ev.EventID, err)
	}

	res := &DetailResult{EventID: ev.EventID, Rows: n}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			res.Skipped = append(res.Skipped, RowSkip{Position: i + 1, Reason: SkipContextExpired})
			return res, err
		}

		item, skip := x.extractRow(ctx, page, ev, rows.Nth(i), i)
		if skip != nil {
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		res.Items = append(res.Items, *item)
	}

	log.WithFields(logrus.Fields{
		"rows":    n,
		"items":   len(res.Items),
		"skipped": len(res.Skipped),
	}).Info("Event line items extracted")

	return res, nil
}

func (x *DetailExtractor) extractRow(ctx context.Context, page portal.Page, ev models.Event, row portal.Locator, idx int) (*models.LineItem, *RowSkip) {
	position := idx + 1
	refAttr, ref := x.rowRef(ctx, page, row)
	log := x.logger.WithFields(logrus.Fields{
		"event_id": ev.EventID,
		"position": position,
		"row_ref":  ref,
	})

	skip := func(reason string, err error) (*models.LineItem, *RowSkip) {
		s := &RowSkip{Position: position, RowRef: ref, Reason: reason}
		if err != nil {
			s.Err = err.Error()
		}
		log.WithField("reason", reason).Debug("Line item skipped")
		return nil, s
	}

	control, ok := x.resolveControl(ctx, page, row, idx)
	if !ok {
		return skip(SkipNoControl, nil)
	}

	if err := page.Click(ctx, control, x.timeouts.Click); err != nil {
		log.WithError(err).Debug("Direct expand click failed, using scripted click")
		if err := page.ClickJS(ctx, control); err != nil {
			return skip(SkipActivation, err)
		}
	}
	defer x.collapse(ctx, page, control, log)

	panel, ok := x.expandedPanel(ctx, page, refAttr, ref)
	if !ok {
		return skip(SkipNotExpanded, nil)
	}

	address := x.readField(ctx, page, panel, x.sel.AddressLines)
	if address == "" {
		address = x.readField(ctx, page, panel, x.sel.AddressPlaceholder)
	}

	return &models.LineItem{
		ItemKey:          models.ItemKey(ev.EventID, position),
		EventID:          ev.EventID,
		Position:         position,
		RowRef:           ref,
		Description:      utils.ExtractPortuguese(x.readField(ctx, page, panel, x.sel.Description)),
		Quantity:         x.readField(ctx, page, panel, x.sel.Quantity),
		DeliveryLocation: address,
		Details:          x.readField(ctx, page, panel, x.sel.Details),
		PeriodStart:      ev.PeriodStart,
		PeriodEnd:        ev.PeriodEnd,
		CapturedAt:       x.now(),
		WorkflowStatus:   models.ItemStatusNew,
	}, nil
}

// rowRefAttrs are the row identifier attributes, most specific first
var rowRefAttrs = []string{"data-id", "data-rbd-draggable-id"}

// rowRef returns the attribute carrying the row identifier and its value
func (x *DetailExtractor) rowRef(ctx context.Context, page portal.Page, row portal.Locator) (string, string) {
	for _, attr := range rowRefAttrs {
		if v, ok, err := page.Attribute(ctx, row, attr); err == nil && ok && v != "" {
			return attr, v
		}
	}
	return "", ""
}

func (x *DetailExtractor) resolveControl(ctx context.Context, page portal.Page, row portal.Locator, idx int) (portal.Locator, bool) {
	for _, strategy := range x.strategies {
		if loc, ok := strategy(ctx, page, row, idx); ok {
			return loc, true
		}
	}
	return portal.Locator{}, false
}

// expandedPanel finds the opened panel of the row, falling back to any
// opened panel on the page.
func (x *DetailExtractor) expandedPanel(ctx context.Context, page portal.Page, refAttr, ref string) (portal.Locator, bool) {
	anyExpanded := portal.Query(x.sel.AnyExpanded)

	target := anyExpanded
	if ref != "" {
		target = portal.Query(fmt.Sprintf(x.sel.ExpandedByRef, refAttr, portal.AttrValue(ref)))
	}
	if err := page.WaitVisible(ctx, target, x.timeouts.Expand); err == nil {
		return target, true
	}
	if ref == "" {
		return portal.Locator{}, false
	}

	if n, err := page.Count(ctx, anyExpanded); err == nil && n > 0 {
		return anyExpanded.Nth(0), true
	}
	return portal.Locator{}, false
}

func (x *DetailExtractor) readField(ctx context.Context, page portal.Page, panel portal.Locator, selector string) string {
	loc := panel.Find(selector)
	n, err := page.Count(ctx, loc)
	if err != nil || n == 0 {
		return ""
	}
	text, err := page.Text(ctx, loc.Nth(0))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (x *DetailExtractor) collapse(ctx context.Context, page portal.Page, control portal.Locator, log *logrus.Entry) {
	if err := page.ClickJS(ctx, control); err != nil {
		log.WithError(err).Warn("Failed to collapse line item panel")
	}
}

func withinRow(selector string) controlStrategy {
	return func(ctx context.Context, page portal.Page, row portal.Locator, _ int) (portal.Locator, bool) {
		loc := row.Find(selector)
		n, err := page.Count(ctx, loc)
		if err != nil || n == 0 {
			return portal.Locator{}, false
		}
		return loc.Nth(0), true
	}
}

func globalByIndex(selector string) controlStrategy {
	return func(ctx context.Context, page portal.Page, _ portal.Locator, idx int) (portal.Locator, bool) {
		loc := portal.Query(selector)
		n, err := page.Count(ctx, loc)
		if err != nil || n == 0 {
			return portal.Locator{}, false
		}
		return loc.Nth(min(idx, n-1)), true
	}
}
