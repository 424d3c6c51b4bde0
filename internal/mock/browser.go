// Package mock provides scripted fakes for module tests.
package mock

import (
	"context"
	"sync"
	"time"

	"auto_trader/internal/core"
)

// Element is a scriptable DOM node.
type Element struct {
	Text     string
	Attrs    map[string]string
	Disabled bool
	Hidden   bool
	Box      core.Box

	OnClick      func()
	OnRightClick func()

	mu    sync.Mutex
	Typed string
}

func (e *Element) Click(ctx context.Context, force bool) error {
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) RightClick(ctx context.Context) error {
	if e.OnRightClick != nil {
		e.OnRightClick()
	}
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed += text
	return nil
}

func (e *Element) Fill(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed = text
	return nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) { return e.Text, nil }

func (e *Element) Attr(ctx context.Context, name string) (string, error) {
	return e.Attrs[name], nil
}

func (e *Element) IsDisabled(ctx context.Context) (bool, error) { return e.Disabled, nil }
func (e *Element) IsVisible(ctx context.Context) (bool, error)  { return !e.Hidden, nil }
func (e *Element) BoundingBox(ctx context.Context) (core.Box, error) {
	return e.Box, nil
}

// Value returns everything typed or filled into the element.
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Typed
}

var _ core.IElement = (*Element)(nil)

// Page is one scripted page: selectors mapped to their matching elements.
type Page struct {
	Elements map[string][]*Element
}

// Browser is a scripted core.IBrowserSession backed by static pages.
type Browser struct {
	mu      sync.Mutex
	Pages   map[string]*Page
	URL     string
	Cookies []core.Cookie

	// GotoErr, when set, fails every navigation.
	GotoErr error
	// Navigations records every Goto target in order.
	Navigations []string
}

// NewBrowser creates an empty scripted browser.
func NewBrowser() *Browser {
	return &Browser{Pages: map[string]*Page{}}
}

// AddPage registers a page by URL.
func (b *Browser) AddPage(url string, page *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Pages[url] = page
}

// SetElement puts elements under a selector on an existing or new page.
func (b *Browser) SetElement(url, selector string, els ...*Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	page, ok := b.Pages[url]
	if !ok {
		page = &Page{Elements: map[string][]*Element{}}
		b.Pages[url] = page
	}
	if page.Elements == nil {
		page.Elements = map[string][]*Element{}
	}
	page.Elements[selector] = els
}

func (b *Browser) Goto(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GotoErr != nil {
		return b.GotoErr
	}
	b.URL = url
	b.Navigations = append(b.Navigations, url)
	return nil
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.URL, nil
}

func (b *Browser) currentPage() *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Pages[b.URL]
}

func (b *Browser) QuerySelector(ctx context.Context, selector string) (core.IElement, error) {
	page := b.currentPage()
	if page == nil {
		return nil, nil
	}
	els := page.Elements[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (b *Browser) QuerySelectorAll(ctx context.Context, selector string) ([]core.IElement, error) {
	page := b.currentPage()
	if page == nil {
		return nil, nil
	}
	els := page.Elements[selector]
	out := make([]core.IElement, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (b *Browser) Evaluate(ctx context.Context, script string) (string, error) { return "", nil }

func (b *Browser) MouseMove(ctx context.Context, x, y float64) error  { return nil }
func (b *Browser) MouseClick(ctx context.Context, x, y float64) error { return nil }

func (b *Browser) GetCookies(ctx context.Context) ([]core.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Cookie(nil), b.Cookies...), nil
}

func (b *Browser) AddCookies(ctx context.Context, cookies []core.Cookie) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Cookies = append(b.Cookies, cookies...)
	return nil
}

func (b *Browser) Close() error { return nil }

var _ core.IBrowserSession = (*Browser)(nil)

// NullPacer satisfies core.IPacer without sleeping, except Wait, which still
// observes real time so cancellation tests stay meaningful.
type NullPacer struct{}

func (NullPacer) Jitter(ctx context.Context, lo, hi time.Duration) error { return ctx.Err() }
func (NullPacer) ThinkPause(ctx context.Context) error                   { return ctx.Err() }
func (NullPacer) AfterNavigation(ctx context.Context) error              { return ctx.Err() }

func (NullPacer) TypeInto(ctx context.Context, el core.IElement, text string) error {
	return el.Fill(ctx, text)
}

func (NullPacer) Click(ctx context.Context, el core.IElement) error {
	return el.Click(ctx, false)
}

func (NullPacer) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.IPacer = NullPacer{}
