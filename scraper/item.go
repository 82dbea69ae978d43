package scraper

import (
	"context"

	"apartments-bot/fetcher"
	"apartments-bot/models"
	"apartments-bot/parser"
)

// Positions of the fact fragments on an item card
const (
	factRooms = iota
	factArea
	factPrice
	factFloor
)

// extractItems reads every card and returns the listings that could be read,
// in card order. Unreadable cards are logged and skipped.
func (s *Scraper) extractItems(ctx context.Context, cards []fetcher.Element, project models.Project) []models.Listing {
	listings := make([]models.Listing, 0, len(cards))
	for i, card := range cards {
		listing, err := s.extractItem(ctx, card, project)
		if err != nil {
			s.logger.Warn("skipping item", "project", project.Name, "index", i, "err", err)
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

func (s *Scraper) extractItem(ctx context.Context, card fetcher.Element, project models.Project) (models.Listing, error) {
	imageURL, err := readAttr(ctx, card, "image", s.sel.ItemImage, "src")
	if err != nil {
		return models.Listing{}, err
	}
	title, err := readText(ctx, card, "title", s.sel.ItemTitle)
	if err != nil {
		return models.Listing{}, err
	}
	link, err := readAttr(ctx, card, "link", s.sel.ItemLink, "href")
	if err != nil {
		return models.Listing{}, err
	}
	facts, err := readFacts(ctx, card, s.sel.ItemFact)
	if err != nil {
		return models.Listing{}, err
	}
	status, err := readText(ctx, card, "status", s.sel.ItemStatus)
	if err != nil {
		return models.Listing{}, err
	}

	listing := models.Listing{
		ProjectName: project.Name,
		ProjectLink: project.Link,
		RoomsCount:  parser.ParseInt(fact(facts, factRooms)),
		SqMeters:    parser.ParseFloat(fact(facts, factArea)),
		Price:       parser.ParseFloat(fact(facts, factPrice)),
		Floor:       parser.NormalizeFloor(parser.ParseInt(fact(facts, factFloor))),
		Plan:        title,
		ImageURL:    imageURL,
		Link:        link,
		Status:      status,
		Tag:         s.readTags(ctx, card, project),
	}

	s.logger.Debug("item extracted", "project", project.Name, "plan", listing.Plan, "facts", facts)
	return listing, nil
}

// readTags never fails: a lookup error yields an empty tag list
func (s *Scraper) readTags(ctx context.Context, card fetcher.Element, project models.Project) string {
	els, err := card.FindAll(ctx, s.sel.ItemTag)
	if err != nil {
		s.logger.Debug("tag lookup failed", "project", project.Name, "err", err)
		return parser.EncodeTags(nil)
	}

	tags := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		tags = append(tags, text)
	}
	return parser.EncodeTags(tags)
}

func fact(facts []string, i int) string {
	if i < len(facts) {
		return facts[i]
	}
	return ""
}

func lookup(ctx context.Context, el fetcher.Element, field, selector string) (fetcher.Element, error) {
	m, err := el.Find(ctx, selector)
	if err != nil {
		return nil, &FieldError{Field: field, Err: err}
	}
	if !m.Found() {
		return nil, &FieldError{Field: field, Status: m.Status}
	}
	return m.Element, nil
}

func readText(ctx context.Context, el fetcher.Element, field, selector string) (string, error) {
	found, err := lookup(ctx, el, field, selector)
	if err != nil {
		return "", err
	}
	text, err := found.Text(ctx)
	if err != nil {
		return "", &FieldError{Field: field, Status: fetcher.Found, Err: err}
	}
	return parser.CleanText(text), nil
}

// readAttr returns "" when the element exists without the attribute
func readAttr(ctx context.Context, el fetcher.Element, field, selector, name string) (string, error) {
	found, err := lookup(ctx, el, field, selector)
	if err != nil {
		return "", err
	}
	value, err := found.Attr(ctx, name)
	if err != nil {
		return "", &FieldError{Field: field, Status: fetcher.Found, Err: err}
	}
	return value, nil
}

// readFacts requires at least one fragment; missing trailing ones parse as 0
func readFacts(ctx context.Context, el fetcher.Element, selector string) ([]string, error) {
	els, err := el.FindAll(ctx, selector)
	if err != nil {
		return nil, &FieldError{Field: "facts", Err: err}
	}
	if len(els) == 0 {
		return nil, &FieldError{Field: "facts", Status: fetcher.NotFound}
	}

	facts := make([]string, 0, len(els))
	for _, f := range els {
		text, err := f.Text(ctx)
		if err != nil {
			return nil, &FieldError{Field: "facts", Status: fetcher.Found, Err: err}
		}
		facts = append(facts, parser.CleanText(text))
	}
	return facts, nil
}
