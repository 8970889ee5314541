package tplshot

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/root4loot/tplshot/pkg/browser"
	"github.com/root4loot/tplshot/pkg/screener"
)

// fakeBrowser returns the URL as image bytes, or the error configured for it.
type fakeBrowser struct {
	errs      map[string]error
	visited   []string
	closed    int
	onCapture func()
}

func (b *fakeBrowser) Capture(ctx context.Context, url string) ([]byte, error) {
	b.visited = append(b.visited, url)
	if b.onCapture != nil {
		b.onCapture()
	}
	if err := b.errs[url]; err != nil {
		return nil, err
	}
	return []byte(url), nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return nil
}

func newTestRunner(t *testing.T, root string, b *fakeBrowser) *Runner {
	t.Helper()

	options := *DefaultOptions()
	options.RootDir = root
	options.BaseURL = "http://x"

	runner := NewRunnerWithOptions(options)
	runner.SetLauncher(func(ctx context.Context, engine string, opts browser.Options) (browser.Browser, error) {
		return b, nil
	})
	return runner
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func templatesOf(results []screener.Result) []string {
	var names []string
	for _, r := range results {
		names = append(names, r.Template)
	}
	return names
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "10-ten", "2-two", "41-metronic-one-page", "notes")

	b := &fakeBrowser{}
	report, err := newTestRunner(t, root, b).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantVisited := []string{
		"http://x/2-two/",
		"http://x/10-ten/",
		"http://x/41-metronic-one-page/theme/index.html",
	}
	if diff := cmp.Diff(wantVisited, b.visited); diff != "" {
		t.Fatalf("visited URLs mismatch (-want +got):\n%s", diff)
	}

	if b.closed != 1 {
		t.Fatalf("browser closed %d times, want 1", b.closed)
	}

	if got := len(report.Succeeded()); got != 3 {
		t.Fatalf("succeeded = %d, want 3", got)
	}

	data, err := os.ReadFile(filepath.Join(root, "screenshots", "10-ten.png"))
	if err != nil {
		t.Fatalf("read screenshot: %v", err)
	}
	if string(data) != "http://x/10-ten/" {
		t.Fatalf("unexpected screenshot content %q", data)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-slow", "2-fine")

	b := &fakeBrowser{errs: map[string]error{
		"http://x/1-slow/": context.DeadlineExceeded,
	}}
	report, err := newTestRunner(t, root, b).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if diff := cmp.Diff([]string{"1-slow"}, templatesOf(report.Failed())); diff != "" {
		t.Fatalf("failed templates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2-fine"}, templatesOf(report.Succeeded())); diff != "" {
		t.Fatalf("succeeded templates mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(report.Failed()[0].Error, context.DeadlineExceeded) {
		t.Fatalf("unexpected error %v", report.Failed()[0].Error)
	}
	if _, err := os.Stat(filepath.Join(root, "screenshots", "1-slow.png")); !os.IsNotExist(err) {
		t.Fatalf("expected no screenshot for the failed template, stat err = %v", err)
	}
	if b.closed != 1 {
		t.Fatalf("browser closed %d times, want 1", b.closed)
	}
}

func TestRunOverwritesScreenshots(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "05-foo")

	for i := 0; i < 2; i++ {
		report, err := newTestRunner(t, root, &fakeBrowser{}).Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(report.Failed()) != 0 {
			t.Fatalf("run %d: unexpected failures %v", i, report.Failed())
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, "screenshots"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "05-foo.png" {
		t.Fatalf("unexpected screenshot folder contents %v", entries)
	}
}

func TestRunNoTemplates(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(root, "out", "shots")

	b := &fakeBrowser{}
	runner := newTestRunner(t, root, b)
	runner.Options.OutputDir = output

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(report.Results))
	}
	if info, err := os.Stat(output); err != nil || !info.IsDir() {
		t.Fatalf("expected output folder to be created, stat err = %v", err)
	}
	if b.closed != 1 {
		t.Fatalf("browser closed %d times, want 1", b.closed)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-a")

	runner := newTestRunner(t, root, nil)
	launchErr := errors.New("chrome not found")
	runner.SetLauncher(func(ctx context.Context, engine string, opts browser.Options) (browser.Browser, error) {
		return nil, launchErr
	})

	if _, err := runner.Run(context.Background()); !errors.Is(err, launchErr) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "screenshots")); err != nil {
		t.Fatalf("expected output folder before launch, stat err = %v", err)
	}
}

func TestRunMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	runner := newTestRunner(t, root, &fakeBrowser{})
	runner.Options.OutputDir = filepath.Join(t.TempDir(), "shots")

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a missing root")
	}
}

func TestRunInterrupted(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-a", "2-b", "3-c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBrowser{onCapture: cancel}
	report, err := newTestRunner(t, root, b).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected one result before interruption, got %d", len(report.Results))
	}
	if b.closed != 1 {
		t.Fatalf("browser closed %d times, want 1", b.closed)
	}
}

func TestRunInterruptedDuringLastCapture(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-a", "2-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBrowser{errs: map[string]error{"http://x/2-b/": context.Canceled}}
	b.onCapture = func() {
		if len(b.visited) == 2 {
			cancel()
		}
	}

	report, err := newTestRunner(t, root, b).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected two results, got %d", len(report.Results))
	}
	if b.closed != 1 {
		t.Fatalf("browser closed %d times, want 1", b.closed)
	}
}

func TestRunAvoidDuplicates(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-a", "2-b")

	// Every capture returns the same large image.
	image := make([]byte, 64*1024)
	rand.New(rand.NewSource(1)).Read(image)
	b := &sameImageBrowser{image: image}

	options := *DefaultOptions()
	options.RootDir = root
	options.AvoidDuplicates = true
	runner := NewRunnerWithOptions(options)
	runner.SetLauncher(func(ctx context.Context, engine string, opts browser.Options) (browser.Browser, error) {
		return b, nil
	})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"2-b"}, templatesOf(report.Duplicates())); diff != "" {
		t.Fatalf("duplicates mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(root, "screenshots", "2-b.png")); !os.IsNotExist(err) {
		t.Fatalf("expected duplicate not to be written, stat err = %v", err)
	}
}

type sameImageBrowser struct{ image []byte }

func (b *sameImageBrowser) Capture(ctx context.Context, url string) ([]byte, error) {
	return b.image, nil
}

func (b *sameImageBrowser) Close() error { return nil }

func TestDefaultOptionsBaseURL(t *testing.T) {
	t.Setenv("BASE_URL", "")
	if got := DefaultOptions().BaseURL; got != "http://localhost:8080" {
		t.Fatalf("BaseURL = %q, want default", got)
	}

	t.Setenv("BASE_URL", "http://x")
	if got := DefaultOptions().BaseURL; got != "http://x" {
		t.Fatalf("BaseURL = %q, want http://x", got)
	}
}
