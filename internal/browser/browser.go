// Package browser renders product pages with Playwright.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless          bool
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	// UserAgents are picked at random for every page.
	UserAgents     []string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	// ScrollSteps mouse-wheel scrolls run after load so lazy content appears.
	ScrollSteps    int
	ScrollPauseMin time.Duration
	ScrollPauseMax time.Duration
	MaxRetries     int
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		NavigationTimeout: 60 * time.Second,
		SelectorTimeout:   15 * time.Second,
		UserAgents:        DefaultUserAgents(),
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		Locale:            "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
		ScrollSteps:    5,
		ScrollPauseMin: 800 * time.Millisecond,
		ScrollPauseMax: 1500 * time.Millisecond,
		MaxRetries:     2,
	}
}

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// pickUserAgent returns a random entry of agents, or "" for an empty list.
func pickUserAgent(agents []string) string {
	if len(agents) == 0 {
		return ""
	}
	return agents[rand.IntN(len(agents))]
}

// newContext opens an isolated context with a fresh user agent.
func (b *Browser) newContext() (playwright.BrowserContext, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.opts.ExtraHeaders,
	}
	if ua := pickUserAgent(b.opts.UserAgents); ua != "" {
		contextOpts.UserAgent = playwright.String(ua)
	}
	if b.opts.Locale != "" {
		contextOpts.Locale = playwright.String(b.opts.Locale)
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return bctx, nil
}

// FetchHTML loads url, waits for the network to settle, scrolls the page and
// waits up to SelectorTimeout for selector. A selector that never appears is
// not an error; the page content is returned either way.
func (b *Browser) FetchHTML(ctx context.Context, url, selector string) (string, error) {
	bctx, err := b.newContext()
	if err != nil {
		return "", err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.NavigationTimeout.Milliseconds()))

	if err := b.NavigateWithRetry(ctx, page, url); err != nil {
		return "", err
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		b.logger.Warn("network did not become idle", "url", url, "error", err)
	}

	if err := b.scroll(ctx, page); err != nil {
		return "", err
	}

	if selector != "" {
		if _, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			Timeout: playwright.Float(float64(b.opts.SelectorTimeout.Milliseconds())),
		}); err != nil {
			b.logger.Info("selector not found, using full page", "url", url, "selector", selector)
		}
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (b *Browser) NavigateWithRetry(ctx context.Context, page playwright.Page, url string) error {
	attempts := b.opts.MaxRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := sleep(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.NavigationTimeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (b *Browser) scroll(ctx context.Context, page playwright.Page) error {
	for i := 0; i < b.opts.ScrollSteps; i++ {
		if err := page.Mouse().Wheel(0, float64(800+rand.IntN(700))); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}
		if err := sleep(ctx, pause(b.opts.ScrollPauseMin, b.opts.ScrollPauseMax)); err != nil {
			return err
		}
	}
	return nil
}

func pause(minPause, maxPause time.Duration) time.Duration {
	if maxPause <= minPause {
		return minPause
	}
	return minPause + rand.N(maxPause-minPause)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
