package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/utils"
)

// ListingExtractor reads event summaries from the rendered listing page
type ListingExtractor struct {
	selectors portal.Selectors
	detailURL func(eventID int64) string
	logger    *logrus.Entry
}

func NewListingExtractor(selectors portal.Selectors, detailURL func(int64) string, logger *logrus.Entry) *ListingExtractor {
	return &ListingExtractor{
		selectors: selectors,
		detailURL: detailURL,
		logger:    logger,
	}
}

// ExtractPage parses the listing currently shown on page
func (x *ListingExtractor) ExtractPage(ctx context.Context, page portal.Page) ([]models.EventSummary, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listing page: %w", err)
	}

	events, skipped, err := ParseListing(html, x.selectors, x.detailURL)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		x.logger.WithField("skipped", skipped).Debug("Listing rows without numeric event id")
	}
	return events, nil
}

// ParseListing extracts event summaries from listing HTML in page order.
// Rows without a numeric event id are skipped and counted.
func ParseListing(html string, sel portal.Selectors, detailURL func(int64) string) ([]models.EventSummary, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse listing html: %w", err)
	}

	var (
		events  []models.EventSummary
		skipped int
	)
	doc.Find(sel.ListingRows).Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("a").First()
		if anchor.Length() == 0 {
			skipped++
			return
		}

		id, err := strconv.ParseInt(strings.TrimSpace(anchor.Text()), 10, 64)
		if err != nil {
			skipped++
			return
		}

		events = append(events, models.EventSummary{
			EventID:     id,
			DetailURL:   detailURL(id),
			PeriodStart: utils.ParsePortalDate(row.Find(sel.StartDate).First().Text()),
			PeriodEnd:   utils.ParsePortalDate(row.Find(sel.EndDate).First().Text()),
		})
	})

	return events, skipped, nil
}

// DedupeEvents keeps the first sighting of every event id, in order
func DedupeEvents(events []models.EventSummary) []models.EventSummary {
	seen := make(map[int64]struct{}, len(events))
	out := make([]models.EventSummary, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.EventID]; ok {
			continue
		}
		seen[e.EventID] = struct{}{}
		out = append(out, e)
	}
	return out
}
