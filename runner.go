package tplshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/tplshot/pkg/browser"
	"github.com/root4loot/tplshot/pkg/screener"
	"github.com/root4loot/tplshot/pkg/templates"
)

const Version = "0.1.0"

// OutputFolder is the default screenshot folder, relative to the root.
const OutputFolder = "screenshots"

type Runner struct {
	Options *Options
	launch  browser.LaunchFunc
}

// Options contains options for the runner
type Options struct {
	RootDir            string              // Directory holding the template directories
	OutputDir          string              // Screenshot folder (Default: <RootDir>/screenshots)
	BaseURL            string              // URL the root directory is served under
	Engine             string              // Browser engine
	Overrides          templates.Overrides // Entry points of templates not served at <base>/<name>/
	Browser            browser.Options     // Viewport, timeout and delay
	Caption            bool                // Draw the template name under each image
	AvoidDuplicates    bool                // Do not save captures similar to an earlier one
	DuplicateThreshold int                 // Similarity percentage counted as duplicate
	Verbose            bool                // Verbose logging
}

func init() {
	log.Init("tplshot")
}

// DefaultOptions returns default options. BASE_URL overrides the base URL.
func DefaultOptions() *Options {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = templates.DefaultBaseURL
	}

	return &Options{
		RootDir:            ".",
		BaseURL:            baseURL,
		Engine:             browser.EngineChromedp,
		Overrides:          templates.DefaultOverrides(),
		Browser:            browser.NewOptions(),
		DuplicateThreshold: 96,
	}
}

// NewRunner returns a new runner
func NewRunner() *Runner {
	return NewRunnerWithOptions(*DefaultOptions())
}

// NewRunnerWithOptions returns a new runner with the specified options
func NewRunnerWithOptions(options Options) *Runner {
	SetLogLevel(&options)

	if options.Overrides == nil {
		options.Overrides = templates.DefaultOverrides()
	}

	return &Runner{
		Options: &options,
		launch:  browser.Launch,
	}
}

// SetLauncher replaces the function used to start the browser.
func (r *Runner) SetLauncher(launch browser.LaunchFunc) {
	r.launch = launch
}

// outputDir returns the folder screenshots are written to.
func (r *Runner) outputDir() string {
	if r.Options.OutputDir != "" {
		return r.Options.OutputDir
	}
	return filepath.Join(r.Options.RootDir, OutputFolder)
}

// Report collects the outcome of every capture of a run, in capture order.
type Report struct {
	Results []screener.Result
}

// Succeeded returns the captures written to disk.
func (rep *Report) Succeeded() []screener.Result {
	return rep.filter(func(r screener.Result) bool { return r.OK() && !r.Duplicate })
}

// Failed returns the captures that ended in an error.
func (rep *Report) Failed() []screener.Result {
	return rep.filter(func(r screener.Result) bool { return !r.OK() })
}

// Duplicates returns the captures skipped as duplicates.
func (rep *Report) Duplicates() []screener.Result {
	return rep.filter(func(r screener.Result) bool { return r.Duplicate })
}

func (rep *Report) filter(keep func(screener.Result) bool) []screener.Result {
	var out []screener.Result
	for _, r := range rep.Results {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Run captures every template under the root directory, one at a time. Per
// template failures are recorded in the report; the returned error is set
// only when the run as a whole could not proceed.
func (r *Runner) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{}
	outputDir := r.outputDir()

	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return report, fmt.Errorf("create output folder: %w", err)
	}

	dirs, err := templates.Discover(r.Options.RootDir)
	if err != nil {
		return report, err
	}
	log.Infof("Found %d templates to screenshot", len(dirs))

	resolver := templates.Resolver{BaseURL: r.Options.BaseURL, Overrides: r.Options.Overrides}

	b, err := r.launch(ctx, r.Options.Engine, r.Options.Browser)
	if err != nil {
		return report, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			log.Warnf("Could not close browser: %v", cerr)
		}
	}()

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run interrupted: %w", err)
		}

		result := r.capture(ctx, b, dir, resolver.Resolve(dir), outputDir, report.Results)
		report.Results = append(report.Results, result)
	}

	// A capture aborted by cancellation is not a per-template failure.
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted: %w", err)
	}

	return report, nil
}

// SetLogLevel sets the log level based on the options
func SetLogLevel(options *Options) {
	if options.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
