// Package labels reconciles two independently segmented label images (nuclear
// and marker) so that every surviving label id names the same physical cell
// in both images.
package labels

import (
	"errors"
	"fmt"

	"ploidyanalysis/internal/models"
)

var (
	// ErrShapeMismatch is returned when the two label images do not share a grid
	ErrShapeMismatch = models.ErrShapeMismatch

	// ErrLabelRange is returned when a label id does not fit the persisted id type
	ErrLabelRange = errors.New("label id out of range")
)

// Match re-keys the nuclear label image so that each nuclear pixel carries the
// marker label found at the same coordinate. Background nuclear pixels stay 0.
//
// A nucleus overlapping several marker regions keeps the mixed values; no
// majority vote is applied.
func Match(nuclear, marker *models.LabelImage) (*models.LabelImage, error) {
	if err := models.CheckShape("nuclear labels", nuclear.Width, nuclear.Height,
		"marker labels", marker.Width, marker.Height); err != nil {
		return nil, err
	}

	matched := models.NewLabelImage(nuclear.Width, nuclear.Height)
	for i, n := range nuclear.Pix {
		if n == 0 {
			continue
		}
		m := marker.Pix[i]
		if m > models.MaxLabelID {
			return nil, fmt.Errorf("%w: marker label %d at pixel (%d, %d) exceeds %d",
				ErrLabelRange, m, i%nuclear.Width, i/nuclear.Width, models.MaxLabelID)
		}
		matched.Pix[i] = m
	}

	return matched, nil
}
