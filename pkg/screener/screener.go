package screener

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/glaslos/ssdeep"
	"github.com/golang/freetype/truetype"
	"github.com/root4loot/goutils/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
)

// Result contains the result of a template capture.
type Result struct {
	Template  string
	TargetURL string
	Image     Image
	Path      string // File the image was written to
	Duplicate bool   // Not written, similar to an earlier capture
	Error     error
}

type Image []byte

// OK reports whether the capture succeeded.
func (result Result) OK() bool {
	return result.Error == nil
}

// Filename returns the path the image is written to inside folder.
func (result Result) Filename(folder string) string {
	return filepath.Join(folder, result.Template+".png")
}

// SaveImageToFolder writes the image to <folder>/<template>.png, replacing
// any earlier capture of the same template.
func (result Result) SaveImageToFolder(folder string) (filename string, err error) {
	if len(result.Image) == 0 {
		return "", fmt.Errorf("no image captured for %s", result.Template)
	}

	err = os.MkdirAll(folder, os.ModePerm)
	if err != nil {
		return "", err
	}

	filename = result.Filename(folder)

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	_, err = file.Write(result.Image)
	if err != nil {
		return "", err
	}

	return filename, nil
}

// IsSimilarToAny checks if the image is a duplicate of any of the images in the results slice
func (result Result) IsSimilarToAny(results []Result, similarityThreshold int) (bool, error) {
	if similarityThreshold < 1 || similarityThreshold > 100 {
		return false, fmt.Errorf("invalid similarity threshold: %d. Must be between 1 and 100", similarityThreshold)
	}

	hash1, err := ssdeep.FuzzyBytes(result.Image)
	if err != nil {
		log.Debugf("Could not hash %s: %v", result.Template, err)
		return false, nil
	}

	for _, r := range results {
		if len(r.Image) == 0 {
			continue
		}

		hash2, err := ssdeep.FuzzyBytes(r.Image)
		if err != nil {
			continue
		}

		score, _ := ssdeep.Distance(hash1, hash2)
		if score >= similarityThreshold {
			log.Debugf("%s is similar to %s with a score of %d", result.Template, r.Template, score)
			return true, nil
		}
	}
	return false, nil
}

// AddTextToImage adds text to bottom of the image
func (imgB Image) AddTextToImage(text string) (Image, error) {
	img, err := png.Decode(bytes.NewReader(imgB))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	face, err := loadFont()
	if err != nil {
		return nil, err
	}

	const padding = 20
	const borderSize = 1

	w := img.Bounds().Dx()
	h := img.Bounds().Dy() + padding*2 + borderSize
	dc := gg.NewContext(w, h)

	dc.DrawImage(img, 0, 0)

	yLine := float64(img.Bounds().Dy())
	dc.SetColor(color.White)
	dc.DrawRectangle(0, yLine, float64(w), float64(h)-yLine)
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(float64(borderSize))
	dc.DrawLine(0, yLine, float64(w), yLine)
	dc.Stroke()
	dc.SetFontFace(face)
	dc.DrawStringAnchored(text, float64(w)/2, yLine+float64(padding), 0.5, 0.3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func loadFont() (font.Face, error) {
	ttFont, err := truetype.Parse(gomedium.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(ttFont, &truetype.Options{
		Size: 14,
	}), nil
}
