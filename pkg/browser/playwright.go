package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"github.com/root4loot/goutils/log"
)

type playwrightBrowser struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
}

func launchPlaywright(opts Options) (Browser, error) {
	log.Debug("Installing playwright chromium...")
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	args := make([]string, 0, len(ChromeFlags()))
	for _, flag := range ChromeFlags() {
		args = append(args, "--"+flag)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	return &playwrightBrowser{opts: opts, pw: pw, browser: browser}, nil
}

func (b *playwrightBrowser) Capture(ctx context.Context, url string) ([]byte, error) {
	pageOpts := playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: b.opts.CaptureWidth, Height: b.opts.CaptureHeight},
	}
	if b.opts.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(b.opts.UserAgent)
	}

	page, err := b.browser.NewPage(pageOpts)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	// playwright has no context support; closing the page aborts a pending Goto.
	stop := context.AfterFunc(ctx, func() { _ = page.Close() })
	defer stop()

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	}); err != nil {
		return nil, navigationError(url, b.opts.Timeout, err, errors.Is(err, playwright.ErrTimeout))
	}

	if err := waitForRender(ctx, b.opts.Delay); err != nil {
		return nil, err
	}

	image, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", url, err)
	}

	return image, nil
}

func (b *playwrightBrowser) Close() error {
	return errors.Join(b.browser.Close(), b.pw.Stop())
}
