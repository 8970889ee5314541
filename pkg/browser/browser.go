// Package browser drives a headless browser through one of several
// automation engines. A Browser is launched once and captures pages one at a
// time, each in its own tab.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/root4loot/goutils/log"
)

const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

// Engines lists the supported engine names.
var Engines = []string{EngineChromedp, EngineRod, EnginePlaywright}

const (
	// idleWindow and maxInflight define network idle: no more than
	// maxInflight requests pending for idleWindow.
	idleWindow  = 500 * time.Millisecond
	maxInflight = 2
)

// Browser captures screenshots of URLs. Implementations are not safe for
// concurrent use.
type Browser interface {
	// Capture opens a fresh tab, navigates to url and returns a PNG of the
	// visible viewport. The tab is closed before Capture returns.
	Capture(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// Options contains options for launching and capturing.
type Options struct {
	CaptureWidth  int           // Viewport width
	CaptureHeight int           // Viewport height
	Timeout       time.Duration // Navigation timeout
	Delay         time.Duration // Delay after navigation, before capture
	Headless      bool          // Run in headless mode
	UserAgent     string        // Optional user agent
}

// NewOptions returns Options initialized with default values.
func NewOptions() Options {
	return Options{
		CaptureWidth:  1920,
		CaptureHeight: 1080,
		Timeout:       30 * time.Second,
		Delay:         6 * time.Second,
		Headless:      true,
	}
}

// LaunchFunc starts a browser for an engine.
type LaunchFunc func(ctx context.Context, engine string, opts Options) (Browser, error)

// Launch starts a browser using the named engine.
func Launch(ctx context.Context, engine string, opts Options) (Browser, error) {
	switch engine {
	case EngineChromedp, "":
		return launchChromedp(ctx, opts)
	case EngineRod:
		return launchRod(ctx, opts)
	case EnginePlaywright:
		return launchPlaywright(opts)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}

// ChromeFlags returns the command line switches every engine passes to
// Chromium so it runs inside containers and restricted sandboxes.
func ChromeFlags() []string {
	return []string{
		"no-sandbox",
		"disable-setuid-sandbox",
		"disable-dev-shm-usage",
		"disable-web-security",
	}
}

// waitForRender announces and waits out the post-navigation delay.
func waitForRender(ctx context.Context, d time.Duration) error {
	log.Infof("   Waiting %v for rendering...", d)
	return settle(ctx, d)
}

// settle waits for d, or until ctx is done.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func navigationError(url string, timeout time.Duration, err error, timedOut bool) error {
	if timedOut {
		return fmt.Errorf("navigation to %s timed out after %v: %w", url, timeout, err)
	}
	return fmt.Errorf("error navigating to %s: %w", url, err)
}
