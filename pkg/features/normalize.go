package features

import (
	"errors"
	"fmt"
	"math"

	"ploidyanalysis/pkg/measure"
)

// ErrNoBackground is returned when the first record is not the background.
var ErrNoBackground = errors.New("first record is not the background (label 0)")

// sphereVolume treats area as the area of a circle and returns the volume of
// the sphere with the same radius.
func sphereVolume(area float64) float64 {
	r := math.Sqrt(area / math.Pi)
	return 4.0 / 3.0 * math.Pi * r * r * r
}

// circularity is 4*pi*area/perimeter^2.
func circularity(area, perimeter float64) float64 {
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// Normalize computes background-corrected intensities, CTCF, volumes and
// circularity for every record, drops the background record and divides the
// corrected intensities and CTCF by their median over the remaining rows.
// records[0] must be the background; records itself is not modified.
func Normalize(records []measure.Record, names ChannelNames) (*Table, error) {
	if len(records) == 0 || records[0].Label != 0 {
		return nil, ErrNoBackground
	}
	bg := records[0]
	table := &Table{Names: names.WithDefaults(), Rows: make([]Row, 0, len(records)-1)}

	for _, rec := range records[1:] {
		nucArea := float64(rec.NucArea)
		markArea := float64(rec.MarkArea)

		table.Rows = append(table.Rows, Row{
			Record: rec,

			NucMedianIntensityBgCorr: rec.NucMedianIntensity - bg.NucMedianIntensity,
			NucCTCF:                  rec.NucIntegratedDensity - nucArea*bg.NucMedianIntensity,
			NucVolume:                sphereVolume(nucArea),
			NucCircularity:           circularity(nucArea, rec.NucPerimeter),

			MarkMedianIntensityBgCorr: rec.MarkMedianIntensity - bg.MarkMedianIntensity,
			MarkCTCF:                  rec.MarkIntegratedDensity - markArea*bg.MarkMedianIntensity,
			MarkVolume:                sphereVolume(markArea),

			// The cell-cycle channel shares the nuclear mask, so its CTCF uses the nuclear area.
			CCMedianIntensityBgCorr: rec.CCMedianIntensity - bg.CCMedianIntensity,
			CCCTCF:                  rec.CCIntegratedDensity - nucArea*bg.CCMedianIntensity,
		})
	}

	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.NucMedianIntensityBgCorr },
		func(r *Row, v float64) { r.NucMedianIntensityBgCorrN = v })
	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.NucCTCF },
		func(r *Row, v float64) { r.NucCTCFN = v })
	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.MarkMedianIntensityBgCorr },
		func(r *Row, v float64) { r.MarkMedianIntensityBgCorrN = v })
	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.MarkCTCF },
		func(r *Row, v float64) { r.MarkCTCFN = v })
	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.CCMedianIntensityBgCorr },
		func(r *Row, v float64) { r.CCMedianIntensityBgCorrN = v })
	normalizeColumn(table.Rows,
		func(r *Row) float64 { return r.CCCTCF },
		func(r *Row, v float64) { r.CCCTCFN = v })

	return table, nil
}

// normalizeColumn divides a column by its median. NaN cells are skipped when
// taking the median, the way pandas does.
func normalizeColumn(rows []Row, get func(*Row) float64, set func(*Row, float64)) {
	values := make([]float64, 0, len(rows))
	for i := range rows {
		if v := get(&rows[i]); !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	med := measure.Median(values)
	for i := range rows {
		set(&rows[i], get(&rows[i])/med)
	}
}

// NormalizeSeries measures one series and normalises the result.
func NormalizeSeries(in measure.Input, names ChannelNames) (*Table, []measure.Record, error) {
	records, err := measure.Measure(in)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to measure regions: %w", err)
	}
	table, err := Normalize(records, names)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize features: %w", err)
	}
	return table, records, nil
}
