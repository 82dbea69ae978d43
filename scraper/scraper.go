package scraper

import (
	"log/slog"

	"apartments-bot/fetcher"
)

// DefaultURL is the catalog the pipeline walks unless configured otherwise
const DefaultURL = "https://www.bonava.lv/dzivokli"

// Options configures a Scraper. Zero fields fall back to defaults.
type Options struct {
	URL       string
	Selectors Selectors
	Timing    Timing
	// DumpDir receives the page HTML when the catalog fails to render
	DumpDir string
}

// Scraper extracts apartment listings from the catalog. A Scraper is not
// safe for concurrent runs; callers serialize Run.
type Scraper struct {
	launcher fetcher.Launcher
	url      string
	sel      Selectors
	timing   Timing
	dumpDir  string
	logger   *slog.Logger
}

// New creates a new Scraper
func New(launcher fetcher.Launcher, opts Options, logger *slog.Logger) *Scraper {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		launcher: launcher,
		url:      opts.URL,
		sel:      opts.Selectors.Merge(DefaultSelectors()),
		timing:   opts.Timing.Merge(DefaultTiming()),
		dumpDir:  opts.DumpDir,
		logger:   logger,
	}
}
