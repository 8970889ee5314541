package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

type rodBrowser struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// newLauncher returns a rod launcher configured for opts.
func newLauncher(ctx context.Context, opts Options) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true)

	if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	for _, flag := range ChromeFlags() {
		l.Set(flags.Flag(flag))
	}

	if opts.UserAgent != "" {
		l.Set("user-agent", opts.UserAgent)
	}

	return l
}

func launchRod(ctx context.Context, opts Options) (Browser, error) {
	log.Debug("Launching chrome via rod...")

	l := newLauncher(ctx, opts)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return &rodBrowser{opts: opts, launcher: l, browser: browser}, nil
}

func (b *rodBrowser) Capture(ctx context.Context, url string) ([]byte, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	viewport := &proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.CaptureWidth,
		Height:            b.opts.CaptureHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}
	if err := page.SetViewport(viewport); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	nav := page.Context(navCtx)
	wait := nav.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)

	if err := nav.Navigate(url); err != nil {
		return nil, navigationError(url, b.opts.Timeout, err, errors.Is(navCtx.Err(), context.DeadlineExceeded))
	}

	wait()

	if err := navCtx.Err(); err != nil {
		return nil, navigationError(url, b.opts.Timeout, err, errors.Is(err, context.DeadlineExceeded))
	}

	if err := waitForRender(ctx, b.opts.Delay); err != nil {
		return nil, err
	}

	image, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", url, err)
	}

	return image, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}
