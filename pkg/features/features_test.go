package features

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"

	"ploidyanalysis/internal/models"
	"ploidyanalysis/pkg/measure"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}

// testRecords returns a background record followed by three cells
func testRecords() []measure.Record {
	return []measure.Record{
		{Label: 0, NucMedianIntensity: 20, MarkMedianIntensity: 5, CCMedianIntensity: 2, NucArea: 100, MarkArea: 90},
		{Label: 1, NucMedianIntensity: 60, NucIntegratedDensity: 500, NucArea: 10, NucPerimeter: 12,
			MarkMedianIntensity: 15, MarkIntegratedDensity: 300, MarkArea: 20,
			CCMedianIntensity: 10, CCIntegratedDensity: 120},
		{Label: 2, NucMedianIntensity: 100, NucIntegratedDensity: 1200, NucArea: 12, NucPerimeter: 13,
			MarkMedianIntensity: 25, MarkIntegratedDensity: 900, MarkArea: 30,
			CCMedianIntensity: 4, CCIntegratedDensity: 60},
		{Label: 3, NucMedianIntensity: 140, NucIntegratedDensity: 2600, NucArea: 20, NucPerimeter: 16,
			MarkMedianIntensity: 45, MarkIntegratedDensity: 2000, MarkArea: 40,
			CCMedianIntensity: 30, CCIntegratedDensity: 800},
	}
}

// TestNormalizeCTCF verifies background correction and CTCF for the first cell
func TestNormalizeCTCF(t *testing.T) {
	table, err := Normalize(testRecords(), ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Expected 3 rows after dropping background, got %d", table.Len())
	}
	for _, r := range table.Rows {
		if r.Label == 0 {
			t.Errorf("Background row present in table")
		}
	}

	r := table.Rows[0]
	if r.NucCTCF != 300 {
		t.Errorf("Expected nuclear CTCF 500 - 10*20 = 300, got %f", r.NucCTCF)
	}
	if r.NucMedianIntensityBgCorr != 40 {
		t.Errorf("Expected nuclear bgCorr 40, got %f", r.NucMedianIntensityBgCorr)
	}
	if r.MarkCTCF != 300-20*5 {
		t.Errorf("Expected marker CTCF 200, got %f", r.MarkCTCF)
	}
	// Cell-cycle CTCF uses the nuclear area, not the marker area
	if r.CCCTCF != 120-10*2 {
		t.Errorf("Expected cell-cycle CTCF 100, got %f", r.CCCTCF)
	}

	expectedVolume := 4.0 / 3.0 * math.Pi * math.Pow(math.Sqrt(10/math.Pi), 3)
	if !almostEqual(r.NucVolume, expectedVolume) {
		t.Errorf("Expected nuclear volume %f, got %f", expectedVolume, r.NucVolume)
	}
	if !almostEqual(r.NucCircularity, 4*math.Pi*10/144) {
		t.Errorf("Unexpected circularity %f", r.NucCircularity)
	}
}

// TestNormalizeMedians verifies the population-median normalisation
func TestNormalizeMedians(t *testing.T) {
	table, err := Normalize(testRecords(), ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// Nuclear CTCF is 300, 960, 2200 with median 960
	expected := []float64{300.0 / 960, 1, 2200.0 / 960}
	for i, r := range table.Rows {
		if !almostEqual(r.NucCTCFN, expected[i]) {
			t.Errorf("Row %d: expected nuc_CTCF_n %f, got %f", i, expected[i], r.NucCTCFN)
		}
	}

	// Nuclear bgCorr is 40, 80, 120 with median 80
	if !almostEqual(table.Rows[2].NucMedianIntensityBgCorrN, 1.5) {
		t.Errorf("Expected nuc bgCorr_n 1.5, got %f", table.Rows[2].NucMedianIntensityBgCorrN)
	}
}

// TestNormalizeScaleInvariance verifies that scaling raw CTCF leaves CTCF_n unchanged
func TestNormalizeScaleInvariance(t *testing.T) {
	base, err := Normalize(testRecords(), ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// Scaling every intensity by k scales both the densities and the
	// background median, so CTCF scales by k.
	const k = 3.5
	scaled := testRecords()
	for i := range scaled {
		scaled[i].NucMedianIntensity *= k
		scaled[i].NucIntegratedDensity *= k
		scaled[i].MarkMedianIntensity *= k
		scaled[i].MarkIntegratedDensity *= k
		scaled[i].CCMedianIntensity *= k
		scaled[i].CCIntegratedDensity *= k
	}
	other, err := Normalize(scaled, ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	for i := range base.Rows {
		if !almostEqual(other.Rows[i].NucCTCF, k*base.Rows[i].NucCTCF) {
			t.Errorf("Row %d: expected CTCF to scale by %f", i, k)
		}
		if !almostEqual(other.Rows[i].NucCTCFN, base.Rows[i].NucCTCFN) ||
			!almostEqual(other.Rows[i].MarkCTCFN, base.Rows[i].MarkCTCFN) ||
			!almostEqual(other.Rows[i].CCCTCFN, base.Rows[i].CCCTCFN) {
			t.Errorf("Row %d: normalised CTCF changed under scaling", i)
		}
	}
}

// TestNormalizeNoBackground verifies the background ordering check
func TestNormalizeNoBackground(t *testing.T) {
	if _, err := Normalize(nil, ChannelNames{}); !errors.Is(err, ErrNoBackground) {
		t.Errorf("Expected ErrNoBackground for empty input, got %v", err)
	}
	records := testRecords()[1:]
	if _, err := Normalize(records, ChannelNames{}); !errors.Is(err, ErrNoBackground) {
		t.Errorf("Expected ErrNoBackground when label 0 is missing, got %v", err)
	}
}

// TestNormalizeOnlyBackground verifies that a series without cells yields an empty table
func TestNormalizeOnlyBackground(t *testing.T) {
	table, err := Normalize(testRecords()[:1], ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d rows", table.Len())
	}
}

// TestNormalizeSeriesBlock runs the 4x4 example through measurement and normalisation
func TestNormalizeSeriesBlock(t *testing.T) {
	labels := models.LabelImageFromRows([][]uint32{
		{0, 0, 0, 0},
		{0, 1, 1, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
	})
	dna := models.NewIntensityImage(4, 4)
	for i, l := range labels.Pix {
		if l == 1 {
			dna.Pix[i] = 100
		} else {
			dna.Pix[i] = 10
		}
	}
	flat := models.NewIntensityImage(4, 4)

	table, records, err := NormalizeSeries(measure.Input{
		DNA: dna, Marker: flat, CellCycle: flat,
		NuclearLabels: labels, MarkerLabels: labels,
	}, ChannelNames{})
	if err != nil {
		t.Fatalf("NormalizeSeries failed: %v", err)
	}
	if records[0].NucMedianIntensity != 10 {
		t.Errorf("Expected background median 10, got %f", records[0].NucMedianIntensity)
	}

	r := table.Rows[0]
	if r.NucMedianIntensity != 100 || r.NucMedianIntensityBgCorr != 90 {
		t.Errorf("Expected median 100 and bgCorr 90, got %f and %f", r.NucMedianIntensity, r.NucMedianIntensityBgCorr)
	}
	if r.NucArea != 4 {
		t.Errorf("Expected area 4, got %d", r.NucArea)
	}
	if r.NucCTCF != 360 {
		t.Errorf("Expected CTCF 360, got %f", r.NucCTCF)
	}
	if r.NucCTCFN != 1 {
		t.Errorf("Expected single-cell CTCF_n 1, got %f", r.NucCTCFN)
	}
}

// TestCircularityOfDisk verifies that a digital disk stays below circularity 1
func TestCircularityOfDisk(t *testing.T) {
	for _, radius := range []int{5, 10, 20} {
		size := 2*radius + 9
		c := size / 2
		labels := models.NewLabelImage(size, size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if (x-c)*(x-c)+(y-c)*(y-c) <= radius*radius {
					labels.Set(x, y, 1)
				}
			}
		}
		img := models.NewIntensityImage(size, size)

		table, _, err := NormalizeSeries(measure.Input{
			DNA: img, Marker: img, CellCycle: img,
			NuclearLabels: labels, MarkerLabels: labels,
		}, ChannelNames{})
		if err != nil {
			t.Fatalf("NormalizeSeries failed: %v", err)
		}

		circ := table.Rows[0].NucCircularity
		if circ > 1 || circ < 0.85 {
			t.Errorf("Radius %d: expected circularity in (0.85, 1], got %f", radius, circ)
		}
	}
}

// TestWriteCSV verifies the header order and cell formatting
func TestWriteCSV(t *testing.T) {
	table, err := Normalize(testRecords(), ChannelNames{Marker: "SOX2", CellCycle: "EdU"})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	table.TagSeries(2)

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV back: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d", len(rows))
	}

	header := rows[0]
	if header[0] != "label" || header[len(header)-1] != "series" {
		t.Errorf("Unexpected header bounds %v", header)
	}
	if header[5] != "SOX2_median_intensity" || header[8] != "EdU_median_intensity" {
		t.Errorf("Channel names not applied to header: %v", header)
	}
	if rows[1][0] != "1" || rows[1][len(header)-1] != "2" {
		t.Errorf("Unexpected first row %v", rows[1])
	}
	if rows[1][11] != "300" {
		t.Errorf("Expected nuc_CTCF 300 in column 11, got %s", rows[1][11])
	}
}

// TestFormatValue verifies special float spelling
func TestFormatValue(t *testing.T) {
	if formatValue(math.NaN()) != "NaN" || formatValue(math.Inf(1)) != "inf" || formatValue(2.5) != "2.5" {
		t.Errorf("Unexpected float formatting")
	}
}

// TestSummarize verifies population statistics of the normalised columns
func TestSummarize(t *testing.T) {
	table, err := Normalize(testRecords(), ChannelNames{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	s := table.Summarize()
	if s.Cells != 3 || s.DNA.Count != 3 {
		t.Errorf("Expected 3 cells, got %d / %d", s.Cells, s.DNA.Count)
	}
	expectedMean := (300.0/960 + 1 + 2200.0/960) / 3
	if !almostEqual(s.DNA.Mean, expectedMean) {
		t.Errorf("Expected mean %f, got %f", expectedMean, s.DNA.Mean)
	}
	if s.DNA.StdDev <= 0 {
		t.Errorf("Expected positive standard deviation, got %f", s.DNA.StdDev)
	}
}

// TestTableHelpers verifies series filtering and lookup
func TestTableHelpers(t *testing.T) {
	a, _ := Normalize(testRecords(), ChannelNames{})
	b, _ := Normalize(testRecords(), ChannelNames{})
	a.TagSeries(1)
	b.TagSeries(2)
	a.Append(b)

	if a.Len() != 6 {
		t.Fatalf("Expected 6 rows, got %d", a.Len())
	}
	if a.FilterSeries(2).Len() != 3 {
		t.Errorf("Expected 3 rows for series 2")
	}
	if r, ok := a.Lookup(2, 3); !ok || r.Series != 2 || r.Label != 3 {
		t.Errorf("Lookup(2, 3) returned %+v, %v", r, ok)
	}
	if _, ok := a.Lookup(3, 1); ok {
		t.Errorf("Expected lookup of missing series to fail")
	}
}
