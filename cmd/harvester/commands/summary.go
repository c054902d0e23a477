package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nexconsult/quote-harvester/internal/models"
)

// renderSummary prints one row per tenant and pass, followed by totals
func renderSummary(w io.Writer, s *models.RunSummary) {
	fmt.Fprintf(w, "%s run %s finished in %s\n", s.Kind, s.RunID, s.Duration().Round(time.Millisecond))

	if len(s.Tenants) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Tenant", "Pass", "Pages", "Events", "New events", "New links", "Processed", "Failed", "Items", "New items", "Skipped", "Error"})

		for _, r := range s.Tenants {
			pages := fmt.Sprint(r.Pages)
			if r.LimitReached {
				pages += "+"
			}
			t.AppendRow(table.Row{
				r.TenantID, r.Pass, pages, r.Discovered, r.EventsInserted, r.LinksInserted,
				r.EventsProcessed, r.EventsFailed, r.ItemsExtracted, r.ItemsInserted, r.RowsSkipped, r.Error,
			})
		}

		totals := s.Totals()
		t.AppendFooter(table.Row{
			"Total", "", totals.Pages, totals.Discovered, totals.EventsInserted, totals.LinksInserted,
			totals.EventsProcessed, totals.EventsFailed, totals.ItemsExtracted, totals.ItemsInserted, totals.RowsSkipped, "",
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
	}

	if s.Kind == models.RunReconcile || s.Kind == models.RunFull {
		fmt.Fprintf(w, "reconcile: %d pending events checked, %d marked included\n", s.EventsChecked, s.EventsMarked)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "run failed: %s\n", s.Error)
	}
}
