package scraper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/portal/portaltest"
)

func detailURL(id int64) string {
	return fmt.Sprintf("https://portal.test/quotes/external_responses/%d/edit", id)
}

const listingFixture = `<html><body><table><tbody id="quote_request_tbody">
<tr>
  <td><a href="/quotes/external_responses/4512">4512</a></td>
  <td class="s-datatable-cell-start_time">03/07/25</td>
  <td class="s-datatable-cell-end_time">03/21/25</td>
</tr>
<tr>
  <td><a href="/quotes/external_responses/draft">Draft event</a></td>
  <td class="s-datatable-cell-start_time">03/07/25</td>
  <td class="s-datatable-cell-end_time">03/21/25</td>
</tr>
<tr><td>no link</td></tr>
<tr>
  <td><a href="/quotes/external_responses/4513"> 4513 </a></td>
  <td class="s-datatable-cell-start_time"></td>
  <td class="s-datatable-cell-end_time">13/40/99</td>
</tr>
</tbody></table></body></html>`

func TestParseListing(t *testing.T) {
	events, skipped, err := ParseListing(listingFixture, portal.DefaultSelectors(), detailURL)
	require.NoError(t, err)

	assert.Equal(t, 2, skipped)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, int64(4512), first.EventID)
	assert.Equal(t, detailURL(4512), first.DetailURL)
	require.NotNil(t, first.PeriodStart)
	require.NotNil(t, first.PeriodEnd)
	assert.Equal(t, time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC), *first.PeriodStart)
	assert.Equal(t, time.Date(2025, time.March, 21, 0, 0, 0, 0, time.UTC), *first.PeriodEnd)

	second := events[1]
	assert.Equal(t, int64(4513), second.EventID)
	assert.Nil(t, second.PeriodStart)
	assert.Nil(t, second.PeriodEnd)
}

func TestParseListing_EmptyTable(t *testing.T) {
	events, skipped, err := ParseListing(`<html><body><p>Nothing to quote</p></body></html>`, portal.DefaultSelectors(), detailURL)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, skipped)
}

func TestListingExtractor_ExtractPage(t *testing.T) {
	page := portaltest.New(listingFixture)
	x := NewListingExtractor(portal.DefaultSelectors(), detailURL, testLogger())

	events, err := x.ExtractPage(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4512), events[0].EventID)
}

func TestDedupeEvents(t *testing.T) {
	in := []models.EventSummary{
		{EventID: 1, DetailURL: "a"},
		{EventID: 2, DetailURL: "b"},
		{EventID: 1, DetailURL: "c"},
		{EventID: 3, DetailURL: "d"},
	}

	out := DedupeEvents(in)

	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{out[0].EventID, out[1].EventID, out[2].EventID})
	assert.Equal(t, "a", out[0].DetailURL, "first sighting wins")
}
