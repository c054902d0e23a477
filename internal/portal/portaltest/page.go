// Package portaltest provides an in-memory portal.Page over static HTML.
package portaltest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nexconsult/quote-harvester/internal/portal"
)

// ClickFunc reacts to a click. It may mutate the document through p.Doc()
// or swap it with p.Load.
type ClickFunc func(p *Page, loc portal.Locator, sel *goquery.Selection) error

// Page is a goquery-backed portal.Page. Waits resolve immediately against
// the current document: a missing element is a timeout.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document

	// Routes maps URLs to the HTML Navigate loads
	Routes map[string]string
	// OnClick runs after Click or ClickJS resolved its element
	OnClick ClickFunc
	// ClickErr, when set, fails direct clicks it returns an error for
	ClickErr func(loc portal.Locator) error
	// ClickJSErr, when set, fails scripted clicks it returns an error for
	ClickJSErr func(loc portal.Locator) error
	// NavigateErr, when set, fails navigations it returns an error for
	NavigateErr func(url string) error
	// IdleErr is returned by WaitNetworkIdle
	IdleErr error

	Visited []string
	Clicks  []string
	Waits   []string
	Filled  map[string]string
}

// New returns a page showing html
func New(html string) *Page {
	p := &Page{Routes: map[string]string{}, Filled: map[string]string{}}
	p.Load(html)
	return p
}

// Load replaces the current document
func (p *Page) Load(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("portaltest: parse html: %v", err))
	}
	p.doc = doc
}

// Doc returns the current document
func (p *Page) Doc() *goquery.Document {
	return p.doc
}

func (p *Page) resolve(loc portal.Locator) *goquery.Selection {
	sel := p.doc.Selection
	for _, s := range loc.Steps() {
		sel = sel.Find(s.Selector).Eq(s.Index)
	}
	return sel
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	p.Visited = append(p.Visited, url)
	if p.NavigateErr != nil {
		if err := p.NavigateErr(url); err != nil {
			return err
		}
	}
	html, ok := p.Routes[url]
	if !ok {
		return fmt.Errorf("portaltest: no route for %s", url)
	}
	p.Load(html)
	return nil
}

func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.IdleErr
}

func (p *Page) WaitVisible(ctx context.Context, loc portal.Locator, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	p.Waits = append(p.Waits, loc.String())
	if p.resolve(loc).Length() == 0 {
		return fmt.Errorf("%w: waiting for %s", portal.ErrTimeout, loc)
	}
	return nil
}

func (p *Page) Count(ctx context.Context, loc portal.Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := loc.Steps()
	if len(steps) == 0 {
		return 0, nil
	}
	parent := p.doc.Selection
	for _, s := range steps[:len(steps)-1] {
		parent = parent.Find(s.Selector).Eq(s.Index)
	}
	return parent.Find(steps[len(steps)-1].Selector).Length(), nil
}

func (p *Page) Attribute(ctx context.Context, loc portal.Locator, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.resolve(loc)
	if sel.Length() == 0 {
		return "", false, fmt.Errorf("%w: %s", portal.ErrNotFound, loc)
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

func (p *Page) Text(ctx context.Context, loc portal.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.resolve(loc)
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", portal.ErrNotFound, loc)
	}
	return sel.Text(), nil
}

func (p *Page) Fill(ctx context.Context, loc portal.Locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.resolve(loc)
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", portal.ErrTimeout, loc)
	}
	sel.SetAttr("value", value)
	p.Filled[loc.String()] = value
	return nil
}

func (p *Page) Click(ctx context.Context, loc portal.Locator, timeout time.Duration) error {
	return p.click(ctx, loc, p.ClickErr, portal.ErrTimeout)
}

func (p *Page) ClickJS(ctx context.Context, loc portal.Locator) error {
	return p.click(ctx, loc, p.ClickJSErr, portal.ErrNotFound)
}

func (p *Page) click(ctx context.Context, loc portal.Locator, fail func(portal.Locator) error, missing error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	sel := p.resolve(loc)
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", missing, loc)
	}
	if fail != nil {
		if err := fail(loc); err != nil {
			return err
		}
	}
	p.Clicks = append(p.Clicks, loc.String())
	if p.OnClick != nil {
		return p.OnClick(p, loc, sel)
	}
	return nil
}

func (p *Page) WaitAttributeChange(ctx context.Context, loc portal.Locator, name, baseline string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := p.resolve(loc)
	if sel.Length() == 0 {
		return nil
	}
	if v, _ := sel.Attr(name); v != baseline {
		return nil
	}
	return fmt.Errorf("%w: %s %s unchanged", portal.ErrTimeout, loc, name)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return goquery.OuterHtml(p.doc.Selection)
}

var _ portal.Page = (*Page)(nil)
