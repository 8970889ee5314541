package tplshot

import (
	"context"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/tplshot/pkg/browser"
	"github.com/root4loot/tplshot/pkg/screener"
)

// capture takes one template screenshot and writes it to outputDir. Errors
// are logged and returned in the result, never to the caller.
func (r *Runner) capture(ctx context.Context, b browser.Browser, template, url, outputDir string, earlier []screener.Result) screener.Result {
	result := screener.Result{Template: template, TargetURL: url}

	log.Infof("Taking screenshot of %s...", template)
	log.Infof("   URL: %s", url)

	image, err := b.Capture(ctx, url)
	if err != nil {
		return failed(result, err)
	}
	result.Image = image

	if r.Options.AvoidDuplicates {
		similar, err := result.IsSimilarToAny(earlier, r.Options.DuplicateThreshold)
		if err != nil {
			return failed(result, err)
		}
		if similar {
			log.Warnf("   Screenshot of %s is a duplicate of an earlier capture, not saving", template)
			result.Duplicate = true
			return result
		}
	}

	// Duplicate checks compare uncaptioned images, so the caption is only
	// applied to the copy written to disk.
	written := result
	if r.Options.Caption {
		written.Image, err = result.Image.AddTextToImage(template)
		if err != nil {
			return failed(result, err)
		}
	}

	result.Path, err = written.SaveImageToFolder(outputDir)
	if err != nil {
		return failed(result, err)
	}

	log.Infof("   Screenshot saved: %s", result.Path)
	return result
}

func failed(result screener.Result, err error) screener.Result {
	log.Errorf("   Error taking screenshot of %s: %v", result.Template, err)
	result.Error = err
	return result
}
