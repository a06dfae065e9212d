// Package imageio reads and writes the single-channel rasters of a series:
// grayscale intensity images and 16-bit label images.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"ploidyanalysis/internal/models"
)

// ErrUnsupportedImage is returned for rasters that cannot hold label ids.
var ErrUnsupportedImage = errors.New("unsupported image format")

// decode opens and decodes path with the registered decoders (TIFF, PNG, JPEG).
func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// LoadIntensity reads a grayscale image. 8- and 16-bit gray rasters keep their
// raw values; other colour models are converted to 16-bit luminance.
func LoadIntensity(path string) (*models.IntensityImage, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	return ToIntensity(img), nil
}

// ToIntensity converts a decoded image to an IntensityImage.
func ToIntensity(img image.Image) *models.IntensityImage {
	b := img.Bounds()
	out := models.NewIntensityImage(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out.Set(x, y, float64(g.Y))
			}
		}
	}

	return out
}

// LoadLabels reads a label image. Only 8- and 16-bit single-channel rasters
// are accepted since any colour conversion would corrupt the ids.
func LoadLabels(path string) (*models.LabelImage, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	labels, err := ToLabels(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// ToLabels converts a decoded gray raster to a LabelImage.
func ToLabels(img image.Image) (*models.LabelImage, error) {
	b := img.Bounds()
	out := models.NewLabelImage(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, uint32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, uint32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		return nil, fmt.Errorf("%w: label raster is %T, want 8- or 16-bit gray", ErrUnsupportedImage, img)
	}

	return out, nil
}

// FromLabels converts a label image to a 16-bit gray raster, failing when an
// id does not fit.
func FromLabels(labels *models.LabelImage) (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, labels.Width, labels.Height))
	for y := 0; y < labels.Height; y++ {
		for x := 0; x < labels.Width; x++ {
			v := labels.At(x, y)
			if v > models.MaxLabelID {
				return nil, fmt.Errorf("label %d at (%d, %d) exceeds %d", v, x, y, models.MaxLabelID)
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img, nil
}

// SaveLabels writes labels as a 16-bit image; the extension selects TIFF
// (deflate compressed) or PNG. The parent directory is created if absent.
func SaveLabels(path string, labels *models.LabelImage) error {
	img, err := FromLabels(labels)
	if err != nil {
		return err
	}
	return save(path, img)
}

// save encodes img by file extension.
func save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case ".png":
		err = png.Encode(file, img)
	default:
		return fmt.Errorf("%w: cannot write %s", ErrUnsupportedImage, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// SaveImage writes an arbitrary image (for example an overlay) by extension.
func SaveImage(path string, img image.Image) error {
	return save(path, img)
}
