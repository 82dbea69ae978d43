package fetcher

import (
	"context"
	"time"
)

// Status is the outcome of locating an element in the rendered document
type Status uint8

const (
	NotFound Status = iota
	Found
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case TimedOut:
		return "timed out"
	default:
		return "not found"
	}
}

// Match is the result of a lookup. Element is set only when Status is Found.
type Match struct {
	Element Element
	Status  Status
}

// Found reports whether the lookup produced an element
func (m Match) Found() bool {
	return m.Status == Found && m.Element != nil
}

func found(el Element) Match {
	return Match{Element: el, Status: Found}
}

// Element is a handle into the live document. Handles must not be kept
// across waits: re-locate them from the page instead.
type Element interface {
	// Find looks up the first descendant matching selector without waiting
	Find(ctx context.Context, selector string) (Match, error)
	// FindAll returns every descendant matching selector without waiting
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Text returns the text content of the element
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value, or "" when the attribute is absent
	Attr(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	// ClickAt clicks at an offset from the element's top-left corner
	ClickAt(ctx context.Context, x, y float64) error
}

// Page is one tab of the automation session
type Page interface {
	Navigate(ctx context.Context, url string) error
	Find(ctx context.Context, selector string) (Match, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Wait blocks until selector matches or timeout elapses (TimedOut)
	Wait(ctx context.Context, selector string, timeout time.Duration) (Match, error)
	// WaitGone blocks until no visible element matches selector. It reports
	// NotFound once the element is gone and TimedOut if it is still there.
	WaitGone(ctx context.Context, selector string, timeout time.Duration) (Status, error)
	// Evaluate runs a JavaScript function in the page, awaiting a returned promise
	Evaluate(ctx context.Context, js string, args ...any) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser owns the automation process
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a Browser for one scrape run
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}
