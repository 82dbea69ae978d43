package scraper

import (
	"context"
	"errors"
	"time"

	"apartments-bot/fetcher"
)

// node is one element of the scripted document
type node struct {
	text     string
	attrs    map[string]string
	children map[string][]*node
	failAll  map[string]error
	onClick  func()
	// blockClick makes clicks hang until the context ends, like rod does
	// with an element that never becomes interactable
	blockClick bool
}

type fakeElement struct {
	n *node
}

func (e *fakeElement) Find(ctx context.Context, selector string) (fetcher.Match, error) {
	kids := e.n.children[selector]
	if len(kids) == 0 {
		return fetcher.Match{Status: fetcher.NotFound}, nil
	}
	return fetcher.Match{Element: &fakeElement{n: kids[0]}, Status: fetcher.Found}, nil
}

func (e *fakeElement) FindAll(ctx context.Context, selector string) ([]fetcher.Element, error) {
	if err := e.n.failAll[selector]; err != nil {
		return nil, err
	}
	return wrap(e.n.children[selector]), nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) { return e.n.text, nil }

func (e *fakeElement) Attr(ctx context.Context, name string) (string, error) {
	return e.n.attrs[name], nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	if e.n.blockClick {
		<-ctx.Done()
		return ctx.Err()
	}
	if e.n.onClick != nil {
		e.n.onClick()
	}
	return nil
}

func (e *fakeElement) ClickAt(ctx context.Context, x, y float64) error {
	return e.Click(ctx)
}

func wrap(nodes []*node) []fetcher.Element {
	out := make([]fetcher.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &fakeElement{n: n})
	}
	return out
}

// fakePage resolves selectors against a flat map of top-level nodes.
// Waits never block: a missing selector times out immediately.
type fakePage struct {
	nodes       map[string][]*node
	navigateErr error
	panicOn     string
	evaluated   int
	closed      bool
}

func newFakePage() *fakePage {
	return &fakePage{nodes: map[string][]*node{}}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return p.navigateErr }

func (p *fakePage) Find(ctx context.Context, selector string) (fetcher.Match, error) {
	if selector == p.panicOn {
		panic("page crashed")
	}
	nodes := p.nodes[selector]
	if len(nodes) == 0 {
		return fetcher.Match{Status: fetcher.NotFound}, nil
	}
	return fetcher.Match{Element: &fakeElement{n: nodes[0]}, Status: fetcher.Found}, nil
}

func (p *fakePage) FindAll(ctx context.Context, selector string) ([]fetcher.Element, error) {
	if selector == p.panicOn {
		panic("page crashed")
	}
	return wrap(p.nodes[selector]), nil
}

func (p *fakePage) Wait(ctx context.Context, selector string, timeout time.Duration) (fetcher.Match, error) {
	if err := ctx.Err(); err != nil {
		return fetcher.Match{}, err
	}
	m, err := p.Find(ctx, selector)
	if err == nil && !m.Found() {
		m.Status = fetcher.TimedOut
	}
	return m, err
}

func (p *fakePage) WaitGone(ctx context.Context, selector string, timeout time.Duration) (fetcher.Status, error) {
	if len(p.nodes[selector]) > 0 {
		return fetcher.TimedOut, nil
	}
	return fetcher.NotFound, nil
}

func (p *fakePage) Evaluate(ctx context.Context, js string, args ...any) error {
	p.evaluated++
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return "<html><body>blocked</body></html>", nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page   *fakePage
	closed bool
}

func (b *fakeBrowser) NewPage(ctx context.Context) (fetcher.Page, error) { return b.page, nil }

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
}

func (l *fakeLauncher) Launch(ctx context.Context) (fetcher.Browser, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

var errLookup = errors.New("lookup exploded")

// catalog builds the scripted document using the default selectors
type catalog struct {
	sel  Selectors
	page *fakePage
}

func newCatalog() *catalog {
	c := &catalog{sel: DefaultSelectors(), page: newFakePage()}
	c.page.nodes[c.sel.Grid] = []*node{{}}
	return c
}

type itemSpec struct {
	plan, image, link, status string
	facts                     []string
	tags                      []string
}

func (c *catalog) item(spec itemSpec) *node {
	kids := map[string][]*node{}
	if spec.image != "" {
		kids[c.sel.ItemImage] = []*node{{attrs: map[string]string{"src": spec.image}}}
	}
	if spec.plan != "" {
		kids[c.sel.ItemTitle] = []*node{{text: spec.plan}}
	}
	if spec.link != "" {
		kids[c.sel.ItemLink] = []*node{{attrs: map[string]string{"href": spec.link}}}
	}
	if spec.status != "" {
		kids[c.sel.ItemStatus] = []*node{{text: spec.status}}
	}
	for _, f := range spec.facts {
		kids[c.sel.ItemFact] = append(kids[c.sel.ItemFact], &node{text: f})
	}
	for _, t := range spec.tags {
		kids[c.sel.ItemTag] = append(kids[c.sel.ItemTag], &node{text: t})
	}
	return &node{children: kids}
}

// fullItem has every required field
func (c *catalog) fullItem(plan string) *node {
	return c.item(itemSpec{
		plan:   plan,
		image:  "https://img.example/" + plan + ".jpg",
		link:   "https://www.bonava.lv/" + plan,
		status: "Pārdošanā",
		facts:  []string{"2 istabas", "48.5 m²", "120 000 €", "3. stāvs"},
	})
}

type projectOpts struct {
	noButton    bool
	noDialog    bool
	dialogStuck bool
	// stuckClicks is how many overlay clicks are ignored before it closes
	stuckClicks int
	blockClick  bool
}

// project adds a project card whose button opens a dialog listing items
func (c *catalog) project(name string, opts projectOpts, items ...*node) *node {
	kids := map[string][]*node{
		c.sel.ProjectName: {{text: name}},
		c.sel.ProjectLink: {{attrs: map[string]string{"href": "https://www.bonava.lv/" + name}}},
	}
	if !opts.noButton {
		kids[c.sel.DetailButton] = []*node{{blockClick: opts.blockClick, onClick: func() {
			if opts.noDialog {
				return
			}
			ignored := 0
			overlay := &node{onClick: func() {
				if opts.dialogStuck {
					return
				}
				if ignored < opts.stuckClicks {
					ignored++
					return
				}
				delete(c.page.nodes, c.sel.Overlay)
				delete(c.page.nodes, c.sel.ItemCard)
			}}
			c.page.nodes[c.sel.Overlay] = []*node{overlay}
			if len(items) > 0 {
				c.page.nodes[c.sel.ItemCard] = items
			}
		}}}
	}
	card := &node{children: kids}
	c.page.nodes[c.sel.ProjectCard] = append(c.page.nodes[c.sel.ProjectCard], card)
	return card
}

func (c *catalog) launcher() (*fakeLauncher, *fakeBrowser) {
	b := &fakeBrowser{page: c.page}
	return &fakeLauncher{browser: b}, b
}
