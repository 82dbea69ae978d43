package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodOptions configures the headless Chrome session
type RodOptions struct {
	Bin      string // browser binary, discovered when empty
	DataDir  string // user data directory, mounted as a volume in production
	Headless bool
	Width    int
	Height   int
	// SettleTimeout bounds the wait for the page to stop changing after load
	SettleTimeout time.Duration
}

// RodLauncher implements the Launcher interface using rod (headless browser)
type RodLauncher struct {
	opts   RodOptions
	logger *slog.Logger
}

// NewRodLauncher creates a new RodLauncher instance
func NewRodLauncher(opts RodOptions, logger *slog.Logger) *RodLauncher {
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = 10 * time.Second
	}
	return &RodLauncher{opts: opts, logger: logger}
}

// Launch starts Chrome and connects to it
func (rl *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	userDataDir := rl.opts.DataDir
	if userDataDir != "" {
		if err := os.MkdirAll(userDataDir, 0755); err != nil {
			rl.logger.Warn("failed to create browser data directory", "dir", userDataDir, "err", err)
			userDataDir = ""
		}
	}

	l := launcher.New().
		Headless(rl.opts.Headless).
		NoSandbox(true).
		Leakless(false). // Disable leakless to avoid antivirus issues
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-accelerated-2d-canvas").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("disable-backgrounding-occluded-windows").
		Set("mute-audio").
		Set("window-size", fmt.Sprintf("%d,%d", rl.opts.Width, rl.opts.Height))
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}
	if bin := rl.binary(); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	rl.logger.Debug("browser launched", "control_url", controlURL)
	return &rodBrowser{
		browser:  browser,
		launcher: l,
		opts:     rl.opts,
		logger:   rl.logger,
	}, nil
}

// binary picks the configured browser or the first system Chrome/Chromium found
func (rl *RodLauncher) binary() string {
	if rl.opts.Bin != "" {
		return rl.opts.Bin
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	paths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// rod downloads a Chromium build when no binary is set
	return ""
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions
	logger   *slog.Logger
}

func (rb *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := rb.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  rb.opts.Width,
		Height: rb.opts.Height,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &rodPage{page: page, settle: rb.opts.SettleTimeout, logger: rb.logger}, nil
}

// Close closes the browser and kills the process if it does not exit
func (rb *rodBrowser) Close() error {
	err := rb.browser.Close()
	if err != nil {
		rb.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page   *rod.Page
	settle time.Duration
	logger *slog.Logger
}

func (rp *rodPage) Navigate(ctx context.Context, url string) error {
	page := rp.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for load: %w", err)
	}

	// Client-side rendering keeps mutating the DOM after load
	settleCtx, cancel := context.WithTimeout(ctx, rp.settle)
	defer cancel()
	if err := rp.page.Context(settleCtx).WaitStable(500 * time.Millisecond); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rp.logger.Warn("page did not stabilize within timeout, continuing anyway", "url", url, "err", err)
	}
	return nil
}

func (rp *rodPage) Find(ctx context.Context, selector string) (Match, error) {
	has, el, err := rp.page.Context(ctx).Has(selector)
	if err != nil {
		return Match{}, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	if !has {
		return Match{Status: NotFound}, nil
	}
	return found(&rodElement{el: el}), nil
}

func (rp *rodPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := rp.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return wrapElements(els), nil
}

func (rp *rodPage) Wait(ctx context.Context, selector string, timeout time.Duration) (Match, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Element retries until the selector matches or the context expires
	el, err := rp.page.Context(waitCtx).Element(selector)
	if err != nil {
		if ctx.Err() != nil {
			return Match{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Match{Status: TimedOut}, nil
		}
		return Match{}, fmt.Errorf("failed to wait for %q: %w", selector, err)
	}
	return found(&rodElement{el: el}), nil
}

func (rp *rodPage) WaitGone(ctx context.Context, selector string, timeout time.Duration) (Status, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		has, el, err := rp.page.Context(ctx).Has(selector)
		if err != nil {
			return NotFound, fmt.Errorf("failed to query %q: %w", selector, err)
		}
		if !has {
			return NotFound, nil
		}
		// A detached element errors here; keep polling until it is gone
		if visible, err := el.Context(ctx).Visible(); err == nil && !visible {
			return NotFound, nil
		}

		select {
		case <-ctx.Done():
			return NotFound, ctx.Err()
		case <-deadline.C:
			return TimedOut, nil
		case <-ticker.C:
		}
	}
}

func (rp *rodPage) Evaluate(ctx context.Context, js string, args ...any) error {
	_, err := rp.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (rp *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := rp.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return html, nil
}

func (rp *rodPage) Close() error {
	return rp.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (re *rodElement) Find(ctx context.Context, selector string) (Match, error) {
	has, el, err := re.el.Context(ctx).Has(selector)
	if err != nil {
		return Match{}, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	if !has {
		return Match{Status: NotFound}, nil
	}
	return found(&rodElement{el: el}), nil
}

func (re *rodElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := re.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return wrapElements(els), nil
}

func (re *rodElement) Text(ctx context.Context) (string, error) {
	obj, err := re.el.Context(ctx).Eval(`() => this.textContent || ""`)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return obj.Value.Str(), nil
}

func (re *rodElement) Attr(ctx context.Context, name string) (string, error) {
	value, err := re.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", fmt.Errorf("failed to read attribute %q: %w", name, err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func (re *rodElement) Click(ctx context.Context) error {
	if err := re.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}

func (re *rodElement) ClickAt(ctx context.Context, x, y float64) error {
	el := re.el.Context(ctx)
	shape, err := el.Shape()
	if err != nil {
		return fmt.Errorf("failed to get element shape: %w", err)
	}
	box := shape.Box()
	if box == nil {
		return fmt.Errorf("element has no box")
	}

	mouse := el.Page().Context(ctx).Mouse
	if err := mouse.MoveTo(proto.Point{X: box.X + x, Y: box.Y + y}); err != nil {
		return fmt.Errorf("failed to move mouse: %w", err)
	}
	if err := mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}
