package measure

import (
	"errors"
	"math"
	"testing"

	"ploidyanalysis/internal/models"
)

// createTestImage creates an intensity image filled by the given pattern
func createTestImage(width, height int, pattern func(x, y int) float64) *models.IntensityImage {
	img := models.NewIntensityImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, pattern(x, y))
		}
	}
	return img
}

// blockLabels returns a label image with a square block of the given id
func blockLabels(width, height, x0, y0, size int, id uint32) *models.LabelImage {
	img := models.NewLabelImage(width, height)
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			img.Set(x, y, id)
		}
	}
	return img
}

// TestMeasureBlock checks a 2x2 nucleus on a uniform background
func TestMeasureBlock(t *testing.T) {
	labels := blockLabels(4, 4, 1, 1, 2, 1)
	inBlock := func(x, y int) bool { return labels.At(x, y) == 1 }

	in := Input{
		DNA: createTestImage(4, 4, func(x, y int) float64 {
			if inBlock(x, y) {
				return 100
			}
			return 10
		}),
		Marker: createTestImage(4, 4, func(x, y int) float64 {
			if inBlock(x, y) {
				return 50
			}
			return 5
		}),
		CellCycle: createTestImage(4, 4, func(x, y int) float64 {
			return float64(x + y)
		}),
		NuclearLabels: labels,
		MarkerLabels:  labels,
	}

	records, err := Measure(in)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	bg, cell := records[0], records[1]
	if bg.Label != 0 || cell.Label != 1 {
		t.Errorf("Expected labels 0 and 1, got %d and %d", bg.Label, cell.Label)
	}
	if bg.NucMedianIntensity != 10 {
		t.Errorf("Expected background median 10, got %f", bg.NucMedianIntensity)
	}
	if cell.NucMedianIntensity != 100 {
		t.Errorf("Expected nuclear median 100, got %f", cell.NucMedianIntensity)
	}
	if cell.NucIntegratedDensity != 400 {
		t.Errorf("Expected integrated density 400, got %f", cell.NucIntegratedDensity)
	}
	if cell.NucArea != 4 || bg.NucArea != 12 {
		t.Errorf("Expected areas 4 and 12, got %d and %d", cell.NucArea, bg.NucArea)
	}
	if cell.NucPerimeter != 4 {
		t.Errorf("Expected perimeter 4, got %f", cell.NucPerimeter)
	}
	if cell.MarkMedianIntensity != 50 || cell.MarkArea != 4 || cell.MarkIntegratedDensity != 200 {
		t.Errorf("Unexpected marker stats %+v", cell)
	}
	// Cell-cycle values in the block are 2, 3, 3, 4
	if cell.CCMedianIntensity != 3 || cell.CCIntegratedDensity != 12 {
		t.Errorf("Expected cell-cycle median 3 and sum 12, got %f and %f",
			cell.CCMedianIntensity, cell.CCIntegratedDensity)
	}
	if EmptyMaskCount(records) != 0 {
		t.Errorf("Expected no empty masks")
	}
}

// TestMeasureOrdering verifies ascending ids with the background record first
func TestMeasureOrdering(t *testing.T) {
	labels := models.LabelImageFromRows([][]uint32{
		{5, 5, 0, 2},
		{5, 0, 0, 2},
		{0, 0, 9, 9},
	})
	flat := createTestImage(4, 3, func(x, y int) float64 { return 1 })
	in := Input{DNA: flat, Marker: flat, CellCycle: flat, NuclearLabels: labels, MarkerLabels: labels}

	records, err := Measure(in)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}

	expected := []uint32{0, 2, 5, 9}
	if len(records) != len(expected) {
		t.Fatalf("Expected %d records, got %d", len(expected), len(records))
	}
	for i, r := range records {
		if r.Label != expected[i] {
			t.Errorf("Record %d: expected label %d, got %d", i, expected[i], r.Label)
		}
	}
}

// TestMeasureEmptyMarkerMask verifies NaN medians and zero sums for empty masks
func TestMeasureEmptyMarkerMask(t *testing.T) {
	nuclear := models.LabelImageFromRows([][]uint32{{0, 1}, {0, 1}})
	marker := models.NewLabelImage(2, 2)
	flat := createTestImage(2, 2, func(x, y int) float64 { return 7 })

	records, err := Measure(Input{DNA: flat, Marker: flat, CellCycle: flat, NuclearLabels: nuclear, MarkerLabels: marker})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}

	cell := records[1]
	if !cell.EmptyMarker {
		t.Errorf("Expected empty marker mask to be flagged")
	}
	if !math.IsNaN(cell.MarkMedianIntensity) {
		t.Errorf("Expected NaN marker median, got %f", cell.MarkMedianIntensity)
	}
	if cell.MarkIntegratedDensity != 0 || cell.MarkArea != 0 {
		t.Errorf("Expected zero marker sum and area, got %f and %d", cell.MarkIntegratedDensity, cell.MarkArea)
	}
	if EmptyMaskCount(records) != 1 {
		t.Errorf("Expected 1 empty mask, got %d", EmptyMaskCount(records))
	}
}

// TestMeasureNoBackgroundPixels verifies that a background record is always emitted
func TestMeasureNoBackgroundPixels(t *testing.T) {
	labels := models.LabelImageFromRows([][]uint32{{1, 1}, {2, 2}})
	flat := createTestImage(2, 2, func(x, y int) float64 { return 3 })

	records, err := Measure(Input{DNA: flat, Marker: flat, CellCycle: flat, NuclearLabels: labels, MarkerLabels: labels})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if len(records) != 3 || records[0].Label != 0 {
		t.Fatalf("Expected background record first, got %+v", records)
	}
	if !records[0].EmptyNuclear || !math.IsNaN(records[0].NucMedianIntensity) {
		t.Errorf("Expected empty background record, got %+v", records[0])
	}
}

// TestMeasureShapeMismatch verifies that images off the label grid are rejected
func TestMeasureShapeMismatch(t *testing.T) {
	labels := models.NewLabelImage(4, 4)
	good := models.NewIntensityImage(4, 4)
	bad := models.NewIntensityImage(3, 4)

	_, err := Measure(Input{DNA: good, Marker: good, CellCycle: bad, NuclearLabels: labels, MarkerLabels: labels})
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

// TestPerimeter checks the estimator on small squares and a digital disk
func TestPerimeter(t *testing.T) {
	for _, tc := range []struct {
		size     int
		expected float64
	}{
		{2, 4},
		{3, 8},
		{4, 12},
	} {
		labels := blockLabels(tc.size+2, tc.size+2, 1, 1, tc.size, 1)
		p := perimeters(labels, Neighborhood4)[1]
		if math.Abs(p-tc.expected) > 1e-9 {
			t.Errorf("%dx%d square: expected perimeter %f, got %f", tc.size, tc.size, tc.expected, p)
		}
	}

	// Disk of radius 10 centred in a 29x29 grid
	disk := models.NewLabelImage(29, 29)
	for y := 0; y < 29; y++ {
		for x := 0; x < 29; x++ {
			if (x-14)*(x-14)+(y-14)*(y-14) <= 100 {
				disk.Set(x, y, 1)
			}
		}
	}
	p4 := perimeters(disk, Neighborhood4)[1]
	p8 := perimeters(disk, Neighborhood8)[1]
	expected4 := 32 + 24*math.Sqrt2
	if math.Abs(p4-expected4) > 1e-6 {
		t.Errorf("Expected 4-neighbourhood disk perimeter %f, got %f", expected4, p4)
	}
	if p8 <= p4 {
		t.Errorf("Expected 8-neighbourhood perimeter to exceed 4-neighbourhood, got %f <= %f", p8, p4)
	}
}

// TestMedian verifies odd, even and empty inputs
func TestMedian(t *testing.T) {
	if m := Median([]float64{3, 1, 2}); m != 2 {
		t.Errorf("Expected 2, got %f", m)
	}
	if m := Median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Errorf("Expected 2.5, got %f", m)
	}
	if m := Median(nil); !math.IsNaN(m) {
		t.Errorf("Expected NaN, got %f", m)
	}

	values := []float64{3, 1, 2}
	Median(values)
	if values[0] != 3 {
		t.Errorf("Median reordered its input")
	}
}
