// Package features turns raw per-label measurements into background-corrected,
// population-normalised features and writes them as a flat table.
package features

import (
	"ploidyanalysis/pkg/measure"
)

// ChannelNames holds the column prefixes of the marker and cell-cycle
// channels. The DNA channel always uses "nuc".
type ChannelNames struct {
	Marker    string
	CellCycle string
}

// DefaultChannelNames is used when a name is left empty.
var DefaultChannelNames = ChannelNames{Marker: "mark", CellCycle: "cc"}

// WithDefaults fills empty names from DefaultChannelNames.
func (n ChannelNames) WithDefaults() ChannelNames {
	if n.Marker == "" {
		n.Marker = DefaultChannelNames.Marker
	}
	if n.CellCycle == "" {
		n.CellCycle = DefaultChannelNames.CellCycle
	}
	return n
}

// Row is one reconciled cell of one series.
type Row struct {
	measure.Record

	NucMedianIntensityBgCorr float64
	NucCTCF                  float64
	NucVolume                float64
	NucCircularity           float64

	MarkMedianIntensityBgCorr float64
	MarkCTCF                  float64
	MarkVolume                float64

	CCMedianIntensityBgCorr float64
	CCCTCF                  float64

	NucMedianIntensityBgCorrN  float64
	NucCTCFN                   float64
	MarkMedianIntensityBgCorrN float64
	MarkCTCFN                  float64
	CCMedianIntensityBgCorrN   float64
	CCCTCFN                    float64

	// Series is the 1-based acquisition index, 0 until tagged by the pipeline
	Series int
}

// Table is an ordered feature table.
type Table struct {
	Names ChannelNames
	Rows  []Row
}

// Columns returns the header of the table in output order.
func (t *Table) Columns() []string {
	m, cc := t.Names.Marker, t.Names.CellCycle
	return []string{
		"label",
		"nuc_median_intensity", "nuc_integrated_density", "nuc_area", "nuc_perimeter",
		m + "_median_intensity", m + "_integrated_density", m + "_area",
		cc + "_median_intensity", cc + "_integrated_density",
		"nuc_median_intensity_bgCorr", "nuc_CTCF", "nuc_volume", "nuc_circularity",
		m + "_median_intensity_bgCorr", m + "_CTCF", m + "_volume",
		cc + "_median_intensity_bgCorr", cc + "_CTCF",
		"nuc_median_intensity_bgCorr_n", "nuc_CTCF_n",
		m + "_median_intensity_bgCorr_n", m + "_CTCF_n",
		cc + "_median_intensity_bgCorr_n", cc + "_CTCF_n",
		"series",
	}
}

// values returns the numeric cells of r in Columns order.
func (r *Row) values() []float64 {
	return []float64{
		float64(r.Label),
		r.NucMedianIntensity, r.NucIntegratedDensity, float64(r.NucArea), r.NucPerimeter,
		r.MarkMedianIntensity, r.MarkIntegratedDensity, float64(r.MarkArea),
		r.CCMedianIntensity, r.CCIntegratedDensity,
		r.NucMedianIntensityBgCorr, r.NucCTCF, r.NucVolume, r.NucCircularity,
		r.MarkMedianIntensityBgCorr, r.MarkCTCF, r.MarkVolume,
		r.CCMedianIntensityBgCorr, r.CCCTCF,
		r.NucMedianIntensityBgCorrN, r.NucCTCFN,
		r.MarkMedianIntensityBgCorrN, r.MarkCTCFN,
		r.CCMedianIntensityBgCorrN, r.CCCTCFN,
		float64(r.Series),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// TagSeries sets the series index of every row.
func (t *Table) TagSeries(series int) {
	for i := range t.Rows {
		t.Rows[i].Series = series
	}
}

// Append adds the rows of other after the rows of t.
func (t *Table) Append(other *Table) {
	t.Rows = append(t.Rows, other.Rows...)
}

// FilterSeries returns the rows of one series in table order.
func (t *Table) FilterSeries(series int) *Table {
	out := &Table{Names: t.Names}
	for _, r := range t.Rows {
		if r.Series == series {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Lookup returns the row of the given series and label.
func (t *Table) Lookup(series int, label uint32) (Row, bool) {
	for _, r := range t.Rows {
		if r.Series == series && r.Label == label {
			return r, true
		}
	}
	return Row{}, false
}
