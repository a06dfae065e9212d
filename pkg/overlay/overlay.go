// Package overlay renders reconciled label images on top of their intensity
// image so that segmentation and classification can be checked by eye.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"

	"ploidyanalysis/internal/models"
	"ploidyanalysis/pkg/imageio"
)

// Renderer blends label colours over a contrast-stretched grayscale image.
type Renderer struct {
	// alpha is the label opacity in [0, 1]
	alpha float64

	// lo and hi are the display range; lo == hi selects the image range
	lo, hi float64
}

// NewRenderer creates a renderer. Pass lo == hi to stretch each image to its
// own minimum and maximum.
func NewRenderer(alpha, lo, hi float64) *Renderer {
	return &Renderer{
		alpha: math.Max(0, math.Min(1, alpha)),
		lo:    lo,
		hi:    hi,
	}
}

// PaletteColor returns a stable colour for labels without a classification.
// Hues advance by the golden angle so neighbouring ids differ clearly.
func PaletteColor(label uint32) colorful.Color {
	hue := math.Mod(float64(label)*137.508, 360)
	return colorful.Hsv(hue, 0.75, 0.95)
}

// displayRange returns the intensity range mapped to black and white.
func (r *Renderer) displayRange(img *models.IntensityImage) (float64, float64) {
	if r.hi > r.lo {
		return r.lo, r.hi
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range img.Pix {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Render returns the overlay of labels on img. colors overrides the palette
// for individual labels; background pixels are left gray.
func (r *Renderer) Render(img *models.IntensityImage, labels *models.LabelImage, colors map[uint32]colorful.Color) (*image.RGBA, error) {
	if err := models.CheckShape("image", img.Width, img.Height, "labels", labels.Width, labels.Height); err != nil {
		return nil, err
	}

	lo, hi := r.displayRange(img)
	span := hi - lo
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			g := 0.0
			if span > 0 {
				g = math.Max(0, math.Min(1, (img.At(x, y)-lo)/span))
			}
			c := colorful.Color{R: g, G: g, B: g}

			if label := labels.At(x, y); label != 0 {
				lc, ok := colors[label]
				if !ok {
					lc = PaletteColor(label)
				}
				c = c.BlendRgb(lc, r.alpha).Clamped()
			}

			cr, cg, cb := c.RGB255()
			out.SetRGBA(x, y, color.RGBA{R: cr, G: cg, B: cb, A: 255})
		}
	}

	return out, nil
}

// SaveOverlay writes an overlay as PNG.
func SaveOverlay(path string, img image.Image) error {
	return imageio.SaveImage(path, img)
}

// SeriesOverlayPath returns the overlay filename of one series.
func SeriesOverlayPath(dir, name string, series int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_series%d.png", name, series))
}

// SaveSeriesOverlay renders and writes the overlay of one series into dir,
// creating the directory if needed.
func (r *Renderer) SaveSeriesOverlay(dir, name string, series int, img *models.IntensityImage, labels *models.LabelImage, colors map[uint32]colorful.Color) (string, error) {
	rgba, err := r.Render(img, labels, colors)
	if err != nil {
		return "", err
	}
	path := SeriesOverlayPath(dir, name, series)
	if err := SaveOverlay(path, rgba); err != nil {
		return "", err
	}
	return path, nil
}
