package labels

import (
	"fmt"
	"sort"

	"ploidyanalysis/internal/models"
)

// DefaultMaxPasses bounds PruneToFixedPoint when the caller passes 0.
const DefaultMaxPasses = 16

// PruneStats summarises a PruneToFixedPoint run.
type PruneStats struct {
	// Passes is the number of two-direction passes executed, including the
	// final pass that removed nothing
	Passes int

	// RemovedMarker and RemovedNuclear count the distinct ids zeroed in each image
	RemovedMarker  int
	RemovedNuclear int
}

// LabelSet returns the sorted unique values of img, including 0 when present.
func LabelSet(img *models.LabelImage) []uint32 {
	seen := make(map[uint32]struct{})
	for _, v := range img.Pix {
		seen[v] = struct{}{}
	}
	ids := make([]uint32, 0, len(seen))
	for v := range seen {
		ids = append(ids, v)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// nonZeroSet returns the set of non-zero ids of img.
func nonZeroSet(img *models.LabelImage) map[uint32]struct{} {
	set := make(map[uint32]struct{})
	for _, v := range img.Pix {
		if v != 0 {
			set[v] = struct{}{}
		}
	}
	return set
}

// RemoveUnmatched returns a copy of secondary in which every id that does not
// occur in primary is set to background, together with the number of distinct
// ids removed. Neither input is modified.
func RemoveUnmatched(primary, secondary *models.LabelImage) (*models.LabelImage, int, error) {
	if err := models.CheckShape("primary labels", primary.Width, primary.Height,
		"secondary labels", secondary.Width, secondary.Height); err != nil {
		return nil, 0, err
	}

	keep := nonZeroSet(primary)
	out := secondary.Clone()
	removed := make(map[uint32]struct{})
	for i, v := range out.Pix {
		if v == 0 {
			continue
		}
		if _, ok := keep[v]; !ok {
			out.Pix[i] = 0
			removed[v] = struct{}{}
		}
	}

	return out, len(removed), nil
}

// RemoveUnmatchedMarker drops marker ids that have no matching nuclear id.
func RemoveUnmatchedMarker(nuclear, marker *models.LabelImage) (*models.LabelImage, int, error) {
	return RemoveUnmatched(nuclear, marker)
}

// RemoveUnmatchedNuclear drops nuclear ids that have no matching marker id.
func RemoveUnmatchedNuclear(nuclear, marker *models.LabelImage) (*models.LabelImage, int, error) {
	return RemoveUnmatched(marker, nuclear)
}

// PruneToFixedPoint alternates RemoveUnmatchedMarker and RemoveUnmatchedNuclear
// until a pass removes nothing, so that both images end with the same set of
// non-zero ids. maxPasses <= 0 selects DefaultMaxPasses.
func PruneToFixedPoint(nuclear, marker *models.LabelImage, maxPasses int) (*models.LabelImage, *models.LabelImage, PruneStats, error) {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	var stats PruneStats
	for stats.Passes < maxPasses {
		stats.Passes++

		prunedMarker, removedMarker, err := RemoveUnmatchedMarker(nuclear, marker)
		if err != nil {
			return nil, nil, stats, err
		}
		prunedNuclear, removedNuclear, err := RemoveUnmatchedNuclear(nuclear, prunedMarker)
		if err != nil {
			return nil, nil, stats, err
		}

		nuclear, marker = prunedNuclear, prunedMarker
		stats.RemovedMarker += removedMarker
		stats.RemovedNuclear += removedNuclear

		if removedMarker == 0 && removedNuclear == 0 {
			return nuclear, marker, stats, nil
		}
	}

	return nil, nil, stats, fmt.Errorf("label sets did not converge after %d passes", maxPasses)
}

// SameLabelSet reports whether both images carry exactly the same non-zero ids.
func SameLabelSet(a, b *models.LabelImage) bool {
	sa, sb := nonZeroSet(a), nonZeroSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for v := range sa {
		if _, ok := sb[v]; !ok {
			return false
		}
	}
	return true
}
