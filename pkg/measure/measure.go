// Package measure computes per-label summary statistics of the DNA, marker and
// cell-cycle channels over reconciled nuclear and marker masks.
package measure

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"ploidyanalysis/internal/models"
)

// Record holds the raw measurements of one label id. The record with Label 0
// describes the background.
type Record struct {
	Label uint32

	// DNA channel over the nuclear mask
	NucMedianIntensity   float64
	NucIntegratedDensity float64
	NucArea              int
	NucPerimeter         float64

	// Marker channel over the marker mask
	MarkMedianIntensity   float64
	MarkIntegratedDensity float64
	MarkArea              int

	// Cell-cycle channel over the nuclear mask
	CCMedianIntensity   float64
	CCIntegratedDensity float64

	// EmptyNuclear and EmptyMarker flag masks without any pixel. Medians of
	// empty masks are NaN and sums are 0.
	EmptyNuclear bool
	EmptyMarker  bool
}

// Input bundles the images of one series.
type Input struct {
	DNA       *models.IntensityImage
	Marker    *models.IntensityImage
	CellCycle *models.IntensityImage

	NuclearLabels *models.LabelImage
	MarkerLabels  *models.LabelImage

	// Neighborhood used by the perimeter estimator; zero selects Neighborhood4
	Neighborhood Neighborhood
}

// validate checks that every image shares the nuclear label grid.
func (in Input) validate() error {
	nl := in.NuclearLabels
	checks := []struct {
		name string
		w, h int
	}{
		{"DNA image", in.DNA.Width, in.DNA.Height},
		{"marker image", in.Marker.Width, in.Marker.Height},
		{"cell-cycle image", in.CellCycle.Width, in.CellCycle.Height},
		{"marker labels", in.MarkerLabels.Width, in.MarkerLabels.Height},
	}
	for _, c := range checks {
		if err := models.CheckShape("nuclear labels", nl.Width, nl.Height, c.name, c.w, c.h); err != nil {
			return err
		}
	}
	return nil
}

// Measure returns one record per unique nuclear label id in ascending order.
// The background record (Label 0) is always first, even when the nuclear image
// has no background pixel.
func Measure(in Input) ([]Record, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	nb := in.Neighborhood
	if nb == 0 {
		nb = Neighborhood4
	}

	// Group pixel values by label in one pass instead of masking per label.
	nucDNA := make(map[uint32][]float64)
	nucCC := make(map[uint32][]float64)
	for i, l := range in.NuclearLabels.Pix {
		nucDNA[l] = append(nucDNA[l], in.DNA.Pix[i])
		nucCC[l] = append(nucCC[l], in.CellCycle.Pix[i])
	}
	mark := make(map[uint32][]float64)
	for i, l := range in.MarkerLabels.Pix {
		mark[l] = append(mark[l], in.Marker.Pix[i])
	}
	perim := perimeters(in.NuclearLabels, nb)

	ids := make([]uint32, 0, len(nucDNA)+1)
	if _, ok := nucDNA[0]; !ok {
		ids = append(ids, 0)
	}
	for l := range nucDNA {
		ids = append(ids, l)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]Record, 0, len(ids))
	for _, l := range ids {
		dna, cc, mk := nucDNA[l], nucCC[l], mark[l]
		records = append(records, Record{
			Label:                 l,
			NucMedianIntensity:    Median(dna),
			NucIntegratedDensity:  floats.Sum(dna),
			NucArea:               len(dna),
			NucPerimeter:          perim[l],
			MarkMedianIntensity:   Median(mk),
			MarkIntegratedDensity: floats.Sum(mk),
			MarkArea:              len(mk),
			CCMedianIntensity:     Median(cc),
			CCIntegratedDensity:   floats.Sum(cc),
			EmptyNuclear:          len(dna) == 0,
			EmptyMarker:           len(mk) == 0,
		})
	}

	return records, nil
}

// EmptyMaskCount returns how many non-background records have an empty
// nuclear or marker mask.
func EmptyMaskCount(records []Record) int {
	n := 0
	for _, r := range records {
		if r.Label != 0 && (r.EmptyNuclear || r.EmptyMarker) {
			n++
		}
	}
	return n
}

// Median returns the median of values, averaging the two middle values for
// even lengths. The median of an empty slice is NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
