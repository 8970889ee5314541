package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/tplshot"
	"github.com/root4loot/tplshot/pkg/browser"
	"github.com/root4loot/tplshot/pkg/templates"
)

const (
	author = "@danielantonsen"
	usage  = `USAGE:
  tplshot [options]

Captures every <number>-<label> directory under the root folder, served
under the base URL (env BASE_URL, Default: http://localhost:8080).

INPUT:
  -r,   --root                   folder holding the template directories              (Default: .)
  -b,   --base-url               URL the root folder is served under                  (Default: $BASE_URL)
  -ov,  --overrides              YAML file mapping template names to entry points

CONFIGURATIONS:
  -e,   --engine                 browser engine: chromedp, rod, playwright            (Default: chromedp)
  -to,  --timeout                navigation timeout (seconds)                         (Default: 30)
  -dc,  --delay-capture          delay before capture (seconds)                       (Default: 6)
  -cw,  --capture-width          output width                                         (Default: 1920)
  -ch,  --capture-height         output height                                        (Default: 1080)
  -ua,  --user-agent             specify user agent                                   (Default: browser UA)
  -ad,  --avoid-duplicates       prevent saving duplicate outputs                     (Default: false)
  -dt,  --duplicate-threshold    threshold for similarity percentage (1-100)          (Default: 96)

OUTPUT:
  -o,   --outfolder              save outputs to specified folder                     (Default: <root>/screenshots)
  -ct,  --caption                add template name to output images                   (Default: false)
        --debug                  enable debug mode
        --version                display version
`
)

type cli struct {
	*tplshot.Runner
	OverridesFile string
	Help          bool
	Version       bool
}

func NewCLI() *cli {
	return &cli{Runner: tplshot.NewRunner()}
}

func main() {
	cli := NewCLI()
	if err := cli.parseFlags(os.Args[1:]); err != nil {
		log.Errorf("%v", err)
		fmt.Print(usage)
		os.Exit(2)
	}

	if cli.Help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if cli.Version {
		fmt.Println("tplshot", tplshot.Version, "by", author)
		os.Exit(0)
	}

	tplshot.SetLogLevel(cli.Options)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	report, err := cli.Run(ctx)
	stop()

	if err != nil {
		log.Errorf("Fatal error: %v", err)
		os.Exit(1)
	}

	summarize(report)
}

func (cli *cli) parseFlags(args []string) error {
	var timeout, delay int
	var debug bool

	fs := flag.NewFlagSet("tplshot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	options := cli.Options
	defaults := tplshot.DefaultOptions()

	// INPUT
	fs.StringVar(&options.RootDir, "root", defaults.RootDir, "")
	fs.StringVar(&options.RootDir, "r", defaults.RootDir, "")
	fs.StringVar(&options.BaseURL, "base-url", defaults.BaseURL, "")
	fs.StringVar(&options.BaseURL, "b", defaults.BaseURL, "")
	fs.StringVar(&cli.OverridesFile, "overrides", "", "")
	fs.StringVar(&cli.OverridesFile, "ov", "", "")

	// CONFIGURATIONS
	fs.StringVar(&options.Engine, "engine", defaults.Engine, "")
	fs.StringVar(&options.Engine, "e", defaults.Engine, "")
	fs.IntVar(&timeout, "timeout", int(defaults.Browser.Timeout/time.Second), "")
	fs.IntVar(&timeout, "to", int(defaults.Browser.Timeout/time.Second), "")
	fs.IntVar(&delay, "delay-capture", int(defaults.Browser.Delay/time.Second), "")
	fs.IntVar(&delay, "dc", int(defaults.Browser.Delay/time.Second), "")
	fs.IntVar(&options.Browser.CaptureWidth, "capture-width", defaults.Browser.CaptureWidth, "")
	fs.IntVar(&options.Browser.CaptureWidth, "cw", defaults.Browser.CaptureWidth, "")
	fs.IntVar(&options.Browser.CaptureHeight, "capture-height", defaults.Browser.CaptureHeight, "")
	fs.IntVar(&options.Browser.CaptureHeight, "ch", defaults.Browser.CaptureHeight, "")
	fs.StringVar(&options.Browser.UserAgent, "user-agent", defaults.Browser.UserAgent, "")
	fs.StringVar(&options.Browser.UserAgent, "ua", defaults.Browser.UserAgent, "")
	fs.BoolVar(&options.AvoidDuplicates, "avoid-duplicates", defaults.AvoidDuplicates, "")
	fs.BoolVar(&options.AvoidDuplicates, "ad", defaults.AvoidDuplicates, "")
	fs.IntVar(&options.DuplicateThreshold, "duplicate-threshold", defaults.DuplicateThreshold, "")
	fs.IntVar(&options.DuplicateThreshold, "dt", defaults.DuplicateThreshold, "")

	// OUTPUT
	fs.StringVar(&options.OutputDir, "outfolder", "", "")
	fs.StringVar(&options.OutputDir, "o", "", "")
	fs.BoolVar(&options.Caption, "caption", false, "")
	fs.BoolVar(&options.Caption, "ct", false, "")
	fs.BoolVar(&debug, "debug", false, "")
	fs.BoolVar(&cli.Help, "help", false, "")
	fs.BoolVar(&cli.Help, "h", false, "")
	fs.BoolVar(&cli.Version, "version", false, "")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	options.Verbose = debug
	options.Browser.Timeout = time.Duration(timeout) * time.Second
	options.Browser.Delay = time.Duration(delay) * time.Second

	if !slices.Contains(browser.Engines, options.Engine) {
		return fmt.Errorf("unknown engine %q", options.Engine)
	}

	if options.AvoidDuplicates && (options.DuplicateThreshold < 1 || options.DuplicateThreshold > 100) {
		return fmt.Errorf("invalid duplicate threshold %d: must be between 1 and 100", options.DuplicateThreshold)
	}

	if cli.OverridesFile != "" {
		extra, err := templates.LoadOverrides(cli.OverridesFile)
		if err != nil {
			return err
		}
		options.Overrides = options.Overrides.Merge(extra)
	}

	return nil
}

func summarize(report *tplshot.Report) {
	failed := report.Failed()
	for _, result := range failed {
		log.Warnf("Failed: %s (%s): %v", result.Template, result.TargetURL, result.Error)
	}

	log.Infof("%d captured, %d duplicates, %d failed", len(report.Succeeded()), len(report.Duplicates()), len(failed))
	log.Infof("All screenshots completed!")
}
