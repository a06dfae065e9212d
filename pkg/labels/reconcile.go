package labels

import (
	"fmt"

	"ploidyanalysis/internal/models"
)

// Options controls Reconcile.
type Options struct {
	// MaxPrunePasses bounds the prune loop; 0 selects DefaultMaxPasses
	MaxPrunePasses int

	// SkipMatch starts from the given nuclear labels instead of re-keying them
	// from the marker image, for inputs that were matched upstream
	SkipMatch bool
}

// Reconciliation is the outcome of Reconcile.
type Reconciliation struct {
	// Nuclear and Marker are the reindexed label images
	Nuclear *models.LabelImage
	Marker  *models.LabelImage

	Prune PruneStats

	// Labels is the number of reconciled cells (ids 1..Labels)
	Labels int

	// Fragmented counts nuclear ids split into disjoint pieces by matching
	Fragmented int
}

// Reconcile runs Match, PruneToFixedPoint and Reindex so that the returned
// images share the dense id space 1..Labels.
func Reconcile(nuclear, marker *models.LabelImage, opts Options) (*Reconciliation, error) {
	matched := nuclear
	if !opts.SkipMatch {
		var err error
		matched, err = Match(nuclear, marker)
		if err != nil {
			return nil, fmt.Errorf("failed to match labels: %w", err)
		}
	}

	prunedNuclear, prunedMarker, stats, err := PruneToFixedPoint(matched, marker, opts.MaxPrunePasses)
	if err != nil {
		return nil, fmt.Errorf("failed to prune unmatched labels: %w", err)
	}

	reNuclear, reMarker, err := Reindex(prunedNuclear, prunedMarker)
	if err != nil {
		return nil, fmt.Errorf("failed to reindex labels: %w", err)
	}

	return &Reconciliation{
		Nuclear:    reNuclear,
		Marker:     reMarker,
		Prune:      stats,
		Labels:     int(reNuclear.MaxLabel()),
		Fragmented: CountFragments(reNuclear),
	}, nil
}
