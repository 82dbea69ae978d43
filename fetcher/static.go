package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticLauncher implements the Launcher interface using colly and goquery.
// No JavaScript runs: the document is used as served, so it only works
// against captured pages (file:// URLs) or server-rendered markup.
type StaticLauncher struct {
	logger *slog.Logger
}

// NewStaticLauncher creates a new StaticLauncher instance
func NewStaticLauncher(logger *slog.Logger) *StaticLauncher {
	return &StaticLauncher{logger: logger}
}

func (sl *StaticLauncher) Launch(ctx context.Context) (Browser, error) {
	return &staticBrowser{logger: sl.logger}, nil
}

type staticBrowser struct {
	logger *slog.Logger
}

func (sb *staticBrowser) NewPage(ctx context.Context) (Page, error) {
	return &StaticPage{logger: sb.logger}, nil
}

func (sb *staticBrowser) Close() error { return nil }

func newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)

	// Captured pages are replayed from disk
	t := &http.Transport{}
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	c.WithTransport(t)
	return c
}

// StaticPage is a Page over a parsed HTML document. Clicking an element at an
// offset removes it, which is how an outside click dismisses an overlay.
type StaticPage struct {
	mu     sync.Mutex
	doc    *goquery.Document
	logger *slog.Logger
}

func (sp *StaticPage) Navigate(ctx context.Context, url string) error {
	var (
		body     []byte
		fetchErr error
	)

	c := newCollector(ctx)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return fmt.Errorf("failed to visit URL: %w", err)
	}
	c.Wait()
	if fetchErr != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, fetchErr)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	sp.mu.Lock()
	sp.doc = doc
	sp.mu.Unlock()
	sp.logger.Debug("static page loaded", "url", url, "bytes", len(body))
	return nil
}

func (sp *StaticPage) root() (*goquery.Selection, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	return sp.doc.Selection, nil
}

func (sp *StaticPage) Find(ctx context.Context, selector string) (Match, error) {
	root, err := sp.root()
	if err != nil {
		return Match{}, err
	}
	return first(root, selector), nil
}

func (sp *StaticPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	root, err := sp.root()
	if err != nil {
		return nil, err
	}
	return all(root, selector), nil
}

// Wait never blocks: the document cannot change on its own.
func (sp *StaticPage) Wait(ctx context.Context, selector string, timeout time.Duration) (Match, error) {
	m, err := sp.Find(ctx, selector)
	if err != nil {
		return Match{}, err
	}
	if !m.Found() {
		m.Status = TimedOut
	}
	return m, nil
}

func (sp *StaticPage) WaitGone(ctx context.Context, selector string, timeout time.Duration) (Status, error) {
	m, err := sp.Find(ctx, selector)
	if err != nil {
		return NotFound, err
	}
	if m.Found() && !hidden(m.Element.(*staticElement).sel) {
		return TimedOut, nil
	}
	return NotFound, nil
}

// Evaluate is a no-op, scripts do not run against a static document
func (sp *StaticPage) Evaluate(ctx context.Context, js string, args ...any) error {
	return nil
}

func (sp *StaticPage) HTML(ctx context.Context) (string, error) {
	root, err := sp.root()
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(root)
}

func (sp *StaticPage) Close() error { return nil }

type staticElement struct {
	sel *goquery.Selection
}

func first(root *goquery.Selection, selector string) Match {
	sel := root.Find(selector).First()
	if sel.Length() == 0 {
		return Match{Status: NotFound}
	}
	return found(&staticElement{sel: sel})
}

func all(root *goquery.Selection, selector string) []Element {
	var out []Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s})
	})
	return out
}

func hidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	style, _ := sel.Attr("style")
	style = strings.ReplaceAll(style, " ", "")
	return strings.Contains(style, "display:none")
}

func (se *staticElement) Find(ctx context.Context, selector string) (Match, error) {
	return first(se.sel, selector), nil
}

func (se *staticElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	return all(se.sel, selector), nil
}

func (se *staticElement) Text(ctx context.Context) (string, error) {
	return se.sel.Text(), nil
}

func (se *staticElement) Attr(ctx context.Context, name string) (string, error) {
	return se.sel.AttrOr(name, ""), nil
}

func (se *staticElement) Click(ctx context.Context) error { return nil }

func (se *staticElement) ClickAt(ctx context.Context, x, y float64) error {
	se.sel.Remove()
	return nil
}
