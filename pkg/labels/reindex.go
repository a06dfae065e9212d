package labels

import (
	"fmt"

	"ploidyanalysis/internal/models"
)

// reindexOne maps the n-th smallest unique value of img to n.
func reindexOne(img *models.LabelImage) *models.LabelImage {
	ids := LabelSet(img)
	lookup := make(map[uint32]uint32, len(ids))
	next := uint32(0)
	if len(ids) > 0 && ids[0] != 0 {
		// Background keeps id 0 even when no pixel is background.
		next = 1
	}
	for _, v := range ids {
		lookup[v] = next
		next++
	}

	out := models.NewLabelImage(img.Width, img.Height)
	for i, v := range img.Pix {
		out.Pix[i] = lookup[v]
	}
	return out
}

// Reindex remaps both label images to a dense id range starting at 0. The
// images are remapped independently, so ids only correspond across the pair
// when the two images already share the same id set, i.e. after pruning.
func Reindex(nuclear, marker *models.LabelImage) (*models.LabelImage, *models.LabelImage, error) {
	if err := models.CheckShape("nuclear labels", nuclear.Width, nuclear.Height,
		"marker labels", marker.Width, marker.Height); err != nil {
		return nil, nil, err
	}

	n, m := reindexOne(nuclear), reindexOne(marker)
	if max := n.MaxLabel(); max > models.MaxLabelID {
		return nil, nil, fmt.Errorf("%w: %d nuclear labels after reindexing", ErrLabelRange, max)
	}
	if max := m.MaxLabel(); max > models.MaxLabelID {
		return nil, nil, fmt.Errorf("%w: %d marker labels after reindexing", ErrLabelRange, max)
	}
	return n, m, nil
}
