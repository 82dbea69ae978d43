package scraper

import (
	"context"
	"fmt"
	"time"

	"apartments-bot/fetcher"
	"apartments-bot/models"
)

// ModalState is the step a project's detail dialog is in
type ModalState int

const (
	StateIdle ModalState = iota
	StateButtonClicked
	StateModalOpen
	StateScrollLoading
	StateCardsVisible
	StateExtracting
	StateModalClosing
	StateClosed
)

var modalStateNames = [...]string{
	StateIdle:          "idle",
	StateButtonClicked: "button_clicked",
	StateModalOpen:     "modal_open",
	StateScrollLoading: "scroll_loading",
	StateCardsVisible:  "cards_visible",
	StateExtracting:    "extracting",
	StateModalClosing:  "modal_closing",
	StateClosed:        "closed",
}

func (s ModalState) String() string {
	if s < 0 || int(s) >= len(modalStateNames) {
		return fmt.Sprintf("ModalState(%d)", int(s))
	}
	return modalStateNames[s]
}

// scrollScript scrolls the dialog content in steps so the lazily loaded item
// list attaches every card, then jumps to the bottom.
const scrollScript = `async (selector, step, pause) => {
	const content = document.querySelector(selector);
	if (!content) return;
	for (let i = 0; i < content.scrollHeight; i += step) {
		content.scrollTop = i;
		await new Promise((resolve) => setTimeout(resolve, pause));
	}
	content.scrollTop = content.scrollHeight;
}`

type modal struct {
	project models.Project
	state   ModalState
	s       *Scraper
}

func (m *modal) to(next ModalState) {
	m.s.logger.Debug("dialog state", "project", m.project.Name, "from", m.state, "to", next)
	m.state = next
}

// traverseProject opens the project's dialog and extracts its item cards.
// A card without a detail button yields no listings and no error.
func (s *Scraper) traverseProject(ctx context.Context, page fetcher.Page, card fetcher.Element, project models.Project) ([]models.Listing, error) {
	m := &modal{project: project, s: s}

	button, err := card.Find(ctx, s.sel.DetailButton)
	if err != nil {
		return nil, fmt.Errorf("failed to look up detail button: %w", err)
	}
	if !button.Found() {
		s.logger.Info("project has no detail button, skipping", "project", project.Name)
		return nil, nil
	}
	// A dialog left open by the previous project would be read as this one's
	if err := s.clearStaleDialog(ctx, page, m); err != nil {
		return nil, err
	}

	if err := click(ctx, button.Element, s.timing.Click); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to click detail button: %w", err)
	}
	m.to(StateButtonClicked)

	overlay, err := page.Wait(ctx, s.sel.Overlay, s.timing.Dialog)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for dialog: %w", err)
	}
	if !overlay.Found() {
		return nil, fmt.Errorf("%w after %s", ErrDialogTimeout, s.timing.Dialog)
	}
	m.to(StateModalOpen)

	// The dialog is open from here on; always try to close it
	defer s.closeDialog(ctx, page, m)

	m.to(StateScrollLoading)
	scrollCtx, cancel := context.WithTimeout(ctx, s.timing.Scroll)
	err = page.Evaluate(scrollCtx, scrollScript, s.sel.DialogContent, s.timing.ScrollStep, s.timing.ScrollPause.Milliseconds())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Cards loaded so far are still worth extracting
		s.logger.Warn("dialog scroll failed", "project", project.Name, "err", err)
	}

	cards, err := page.Wait(ctx, s.sel.ItemCard, s.timing.Cards)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for item cards: %w", err)
	}
	if !cards.Found() {
		return nil, fmt.Errorf("%w after %s", ErrNoItemCards, s.timing.Cards)
	}
	m.to(StateCardsVisible)

	items, err := page.FindAll(ctx, s.sel.ItemCard)
	if err != nil {
		return nil, fmt.Errorf("failed to list item cards: %w", err)
	}
	s.logger.Debug("found item cards", "project", project.Name, "count", len(items))

	m.to(StateExtracting)
	return s.extractItems(ctx, items, project), nil
}

// clearStaleDialog makes one more attempt at closing an overlay that is still
// on the page before the next project's button is clicked
func (s *Scraper) clearStaleDialog(ctx context.Context, page fetcher.Page, m *modal) error {
	overlay, err := page.Find(ctx, s.sel.Overlay)
	if err != nil {
		return fmt.Errorf("failed to look up dialog overlay: %w", err)
	}
	if !overlay.Found() {
		return nil
	}

	s.logger.Warn("dialog from previous project still open, closing it", "project", m.project.Name)
	s.closeDialog(ctx, page, m)
	if m.state != StateClosed {
		return ErrDialogStuck
	}
	m.to(StateIdle)
	return nil
}

// click bounds a single click. Rod keeps retrying a click on an element that
// is covered or detached until its context ends.
func click(ctx context.Context, el fetcher.Element, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := el.Click(clickCtx)
	if err != nil && ctx.Err() == nil && clickCtx.Err() != nil {
		return fmt.Errorf("%w after %s", ErrClickTimeout, timeout)
	}
	return err
}

// closeDialog dismisses the dialog with a click outside its content. Failures
// are logged only; the walk goes on to the next project regardless.
func (s *Scraper) closeDialog(ctx context.Context, page fetcher.Page, m *modal) {
	m.to(StateModalClosing)
	ctx = context.WithoutCancel(ctx)

	overlay, err := page.Find(ctx, s.sel.Overlay)
	if err != nil {
		s.logger.Warn("failed to locate dialog overlay", "project", m.project.Name, "err", err)
		return
	}
	if !overlay.Found() {
		m.to(StateClosed)
		return
	}
	clickCtx, cancel := context.WithTimeout(ctx, s.timing.Click)
	err = overlay.Element.ClickAt(clickCtx, 0, 0)
	cancel()
	if err != nil {
		s.logger.Warn("failed to click dialog overlay", "project", m.project.Name, "err", err)
		return
	}

	status, err := page.WaitGone(ctx, s.sel.Overlay, s.timing.Close)
	switch {
	case err != nil:
		s.logger.Warn("failed to wait for dialog to close", "project", m.project.Name, "err", err)
	case status == fetcher.TimedOut:
		s.logger.Warn("dialog still open", "project", m.project.Name, "timeout", s.timing.Close)
	default:
		m.to(StateClosed)
	}
}
