// Package portal drives the supplier portal through a browser page.
package portal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a bounded wait expires
	ErrTimeout = errors.New("portal: timed out")
	// ErrNotFound is returned when a locator matches no element
	ErrNotFound = errors.New("portal: element not found")
)

// Page is a single browser tab. A Page is not safe for concurrent use; each
// tenant session owns its own.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// WaitNetworkIdle waits until no request has been in flight for a short quiet window.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// WaitVisible waits until loc resolves to a visible element.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	// Count returns how many elements the last step of loc matches.
	Count(ctx context.Context, loc Locator) (int, error)
	// Attribute returns an attribute value and whether it is present.
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)
	// Text returns the rendered text of the element.
	Text(ctx context.Context, loc Locator) (string, error)
	// Fill replaces the value of an input.
	Fill(ctx context.Context, loc Locator, value string) error
	// Click scrolls the element into view and clicks it like a user would.
	Click(ctx context.Context, loc Locator, timeout time.Duration) error
	// ClickJS dispatches a click through the element's click() method.
	ClickJS(ctx context.Context, loc Locator) error
	// WaitAttributeChange waits until the attribute differs from baseline
	// or the element disappears.
	WaitAttributeChange(ctx context.Context, loc Locator, name, baseline string, timeout time.Duration) error
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
}

// Sleep pauses for d unless ctx is cancelled first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
