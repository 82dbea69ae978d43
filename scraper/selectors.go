package scraper

import "time"

// Selectors holds every locator the pipeline uses against the catalog markup.
// Upstream markup changes should only need edits here or in the config file.
type Selectors struct {
	Consent      string `yaml:"consent"`
	Grid         string `yaml:"grid"`
	ProjectCard  string `yaml:"project_card"`
	ProjectName  string `yaml:"project_name"`
	ProjectLink  string `yaml:"project_link"`
	DetailButton string `yaml:"detail_button"`

	Overlay       string `yaml:"overlay"`
	DialogContent string `yaml:"dialog_content"`

	ItemCard   string `yaml:"item_card"`
	ItemImage  string `yaml:"item_image"`
	ItemTitle  string `yaml:"item_title"`
	ItemLink   string `yaml:"item_link"`
	ItemFact   string `yaml:"item_fact"`
	ItemStatus string `yaml:"item_status"`
	ItemTag    string `yaml:"item_tag"`
}

// DefaultSelectors returns the locators for the bonava.lv catalog
func DefaultSelectors() Selectors {
	return Selectors{
		Consent:      "#onetrust-accept-btn-handler",
		Grid:         ".product-search__card-grid",
		ProjectCard:  ".neighbourhood-card",
		ProjectName:  ".neighbourhood-card__heading",
		ProjectLink:  ".neighbourhood-card__info > div > div:nth-child(2) > a",
		DetailButton: "div.neighbourhood-card__info > div > div:nth-child(2) > button",

		Overlay:       ".dialog__overlay",
		DialogContent: ".dialog__content",

		ItemCard:   ".home-card",
		ItemImage:  ".home-card__image-desktop img",
		ItemTitle:  ".home-card__heading",
		ItemLink:   ".home-card__call-to-action a",
		ItemFact:   ".home-card__fact__text",
		ItemStatus: ".sales-status__label",
		ItemTag:    ".offering-tag",
	}
}

// Merge fills empty fields of s from defaults
func (s Selectors) Merge(defaults Selectors) Selectors {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Selectors{
		Consent:       pick(s.Consent, defaults.Consent),
		Grid:          pick(s.Grid, defaults.Grid),
		ProjectCard:   pick(s.ProjectCard, defaults.ProjectCard),
		ProjectName:   pick(s.ProjectName, defaults.ProjectName),
		ProjectLink:   pick(s.ProjectLink, defaults.ProjectLink),
		DetailButton:  pick(s.DetailButton, defaults.DetailButton),
		Overlay:       pick(s.Overlay, defaults.Overlay),
		DialogContent: pick(s.DialogContent, defaults.DialogContent),
		ItemCard:      pick(s.ItemCard, defaults.ItemCard),
		ItemImage:     pick(s.ItemImage, defaults.ItemImage),
		ItemTitle:     pick(s.ItemTitle, defaults.ItemTitle),
		ItemLink:      pick(s.ItemLink, defaults.ItemLink),
		ItemFact:      pick(s.ItemFact, defaults.ItemFact),
		ItemStatus:    pick(s.ItemStatus, defaults.ItemStatus),
		ItemTag:       pick(s.ItemTag, defaults.ItemTag),
	}
}

// Timing bounds every wait of a run
type Timing struct {
	Consent       time.Duration `yaml:"consent"`
	ConsentSettle time.Duration `yaml:"consent_settle"`
	Grid          time.Duration `yaml:"grid"`
	Dialog        time.Duration `yaml:"dialog"`
	Cards         time.Duration `yaml:"cards"`
	Close         time.Duration `yaml:"close"`
	ScrollStep    int           `yaml:"scroll_step"`
	ScrollPause   time.Duration `yaml:"scroll_pause"`
	// Scroll bounds the whole lazy-loading pass of one dialog
	Scroll time.Duration `yaml:"scroll"`
	// Click bounds a single click, which waits for the target to be interactable
	Click time.Duration `yaml:"click"`
}

func DefaultTiming() Timing {
	return Timing{
		Consent:       5 * time.Second,
		ConsentSettle: time.Second,
		Grid:          10 * time.Second,
		Dialog:        5 * time.Second,
		Cards:         5 * time.Second,
		Close:         5 * time.Second,
		Click:         5 * time.Second,
		ScrollStep:    200,
		ScrollPause:   100 * time.Millisecond,
		Scroll:        time.Minute,
	}
}

// Merge fills zero fields of t from defaults
func (t Timing) Merge(defaults Timing) Timing {
	pick := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	out := Timing{
		Consent:       pick(t.Consent, defaults.Consent),
		ConsentSettle: pick(t.ConsentSettle, defaults.ConsentSettle),
		Grid:          pick(t.Grid, defaults.Grid),
		Dialog:        pick(t.Dialog, defaults.Dialog),
		Cards:         pick(t.Cards, defaults.Cards),
		Close:         pick(t.Close, defaults.Close),
		Click:         pick(t.Click, defaults.Click),
		ScrollStep:    t.ScrollStep,
		ScrollPause:   pick(t.ScrollPause, defaults.ScrollPause),
		Scroll:        pick(t.Scroll, defaults.Scroll),
	}
	if out.ScrollStep <= 0 {
		out.ScrollStep = defaults.ScrollStep
	}
	return out
}
