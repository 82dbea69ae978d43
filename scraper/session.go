package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"apartments-bot/fetcher"
	"apartments-bot/models"
)

// Run launches a browser, walks the catalog and returns every listing found.
// The browser is torn down on every exit path, including panics, which are
// returned as errors. An empty result with a nil error means nothing is
// currently published.
func (s *Scraper) Run(ctx context.Context) (listings []models.Listing, err error) {
	start := time.Now()
	s.logger.Info("scrape started", "url", s.url)

	// Registered first so it runs after teardown
	defer func() {
		if r := recover(); r != nil {
			listings, err = nil, fmt.Errorf("scrape panicked: %v", r)
		}
		if err != nil {
			s.logger.Error("scrape failed", "err", err, "elapsed", time.Since(start))
			return
		}
		s.logger.Info("scrape finished", "listings", len(listings), "elapsed", time.Since(start))
	}()

	browser, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			s.logger.Warn("failed to close browser", "err", cerr)
		}
	}()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			s.logger.Debug("failed to close page", "err", cerr)
		}
	}()

	if err := page.Navigate(ctx, s.url); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	listings, err = s.walkCatalog(ctx, page)
	if err != nil {
		if errors.Is(err, ErrGridNotFound) {
			s.dumpPage(page)
		}
		return nil, err
	}
	return listings, nil
}

// dumpPage saves the rendered document for diagnosing a catalog that did not render
func (s *Scraper) dumpPage(page fetcher.Page) {
	if s.dumpDir == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	html, err := page.HTML(ctx)
	if err != nil {
		s.logger.Warn("failed to capture page HTML", "err", err)
		return
	}

	if err := os.MkdirAll(s.dumpDir, 0755); err != nil {
		s.logger.Warn("failed to create dump directory", "dir", s.dumpDir, "err", err)
		return
	}
	path := filepath.Join(s.dumpDir, fmt.Sprintf("catalog-%s.html", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		s.logger.Warn("failed to write page HTML", "path", path, "err", err)
		return
	}
	s.logger.Info("saved page HTML", "path", path)
}
