package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

type chromedpBrowser struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// allocatorFlags returns the command line switches chromedp passes to Chrome
// on top of its defaults.
func allocatorFlags(opts Options) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": opts.Headless,
	}

	for _, flag := range ChromeFlags() {
		flags[flag] = true
	}

	if opts.UserAgent != "" {
		flags["user-agent"] = opts.UserAgent
	}

	return flags
}

// allocatorOptions returns the chromedp exec allocator options for opts.
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	for name, value := range allocatorFlags(opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	return allocOpts
}

func launchChromedp(ctx context.Context, opts Options) (Browser, error) {
	log.Debug("Launching chrome via chromedp...")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	return &chromedpBrowser{
		opts:        opts,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

func (b *chromedpBrowser) Capture(ctx context.Context, url string) ([]byte, error) {
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	defer closeTab()

	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tracker := newIdleTracker(maxInflight)
	chromedp.ListenTarget(tabCtx, tracker.handle)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(b.opts.CaptureWidth), int64(b.opts.CaptureHeight)),
	); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		tracker.waitIdle(idleWindow),
	); err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded)
		return nil, navigationError(url, b.opts.Timeout, err, timedOut)
	}

	if err := waitForRender(ctx, b.opts.Delay); err != nil {
		return nil, err
	}

	var image []byte
	if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&image)); err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", url, err)
	}

	return image, nil
}

func (b *chromedpBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return err
}

// idleTracker follows in-flight requests of a tab and reports how long the
// tab has had no more than max requests pending.
type idleTracker struct {
	mu       sync.Mutex
	max      int
	inflight map[network.RequestID]struct{}
	quiet    time.Time // zero while above max
	now      func() time.Time
}

func newIdleTracker(max int) *idleTracker {
	t := &idleTracker{
		max:      max,
		inflight: make(map[network.RequestID]struct{}),
		now:      time.Now,
	}
	t.quiet = t.now()
	return t
}

func (t *idleTracker) handle(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	default:
		return
	}

	if len(t.inflight) > t.max {
		t.quiet = time.Time{}
	} else if t.quiet.IsZero() {
		t.quiet = t.now()
	}
}

// idleFor returns how long the tab has been idle, or zero if it is busy.
func (t *idleTracker) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.quiet.IsZero() {
		return 0
	}
	return t.now().Sub(t.quiet)
}

// waitIdle blocks until the tab has been idle for window.
func (t *idleTracker) waitIdle(window time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(window / 5)
		defer ticker.Stop()

		for {
			if t.idleFor() >= window {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
