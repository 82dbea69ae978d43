package scraper

import (
	"context"
	"fmt"
	"time"

	"apartments-bot/fetcher"
	"apartments-bot/models"
)

// walkCatalog extracts the listings of every project on the loaded catalog
// page in discovery order. Only a missing grid fails the walk; project and
// item failures are logged and skipped.
func (s *Scraper) walkCatalog(ctx context.Context, page fetcher.Page) ([]models.Listing, error) {
	if err := s.dismissConsent(ctx, page); err != nil {
		return nil, err
	}

	grid, err := page.Wait(ctx, s.sel.Grid, s.timing.Grid)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for catalog grid: %w", err)
	}
	if !grid.Found() {
		return nil, fmt.Errorf("%w after %s", ErrGridNotFound, s.timing.Grid)
	}

	cards, err := page.FindAll(ctx, s.sel.ProjectCard)
	if err != nil {
		return nil, fmt.Errorf("failed to list project cards: %w", err)
	}
	total := len(cards)
	s.logger.Info("found project cards", "count", total)

	listings := []models.Listing{}
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Handles go stale across dialog waits, so re-locate the card
		card, err := projectCard(ctx, page, s.sel.ProjectCard, i)
		if err != nil {
			s.logger.Warn("skipping project card", "index", i, "err", err)
			continue
		}

		project, err := s.readProject(ctx, card)
		if err != nil {
			s.logger.Warn("skipping project card", "index", i, "err", err)
			continue
		}

		items, err := s.traverseProject(ctx, page, card, project)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping project", "project", project.Name, "err", err)
			continue
		}

		s.logger.Info("project extracted", "project", project.Name, "listings", len(items))
		listings = append(listings, items...)
	}

	return listings, nil
}

func projectCard(ctx context.Context, page fetcher.Page, selector string, i int) (fetcher.Element, error) {
	cards, err := page.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if i >= len(cards) {
		return nil, fmt.Errorf("card %d of %d no longer present", i, len(cards))
	}
	return cards[i], nil
}

func (s *Scraper) readProject(ctx context.Context, card fetcher.Element) (models.Project, error) {
	name, err := readText(ctx, card, "project name", s.sel.ProjectName)
	if err != nil {
		return models.Project{}, fmt.Errorf("%w: %w", ErrProjectIdentity, err)
	}
	if name == "" {
		return models.Project{}, fmt.Errorf("%w: empty project name", ErrProjectIdentity)
	}

	link, err := readAttr(ctx, card, "project link", s.sel.ProjectLink, "href")
	if err != nil {
		return models.Project{}, fmt.Errorf("%w: %w", ErrProjectIdentity, err)
	}
	return models.Project{Name: name, Link: link}, nil
}

// dismissConsent accepts the cookie banner if one shows up
func (s *Scraper) dismissConsent(ctx context.Context, page fetcher.Page) error {
	consent, err := page.Wait(ctx, s.sel.Consent, s.timing.Consent)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("consent lookup failed", "err", err)
		return nil
	}
	if !consent.Found() {
		s.logger.Debug("no consent banner, already accepted")
		return nil
	}

	if err := click(ctx, consent.Element, s.timing.Click); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("failed to accept consent", "err", err)
		return nil
	}
	s.logger.Debug("accepted consent")

	return sleep(ctx, s.timing.ConsentSettle)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
