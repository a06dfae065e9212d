package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ChannelSummary describes the population of one normalised column.
type ChannelSummary struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Summary holds population statistics of the normalised CTCF columns.
type Summary struct {
	Cells     int
	DNA       ChannelSummary
	Marker    ChannelSummary
	CellCycle ChannelSummary
}

func summarize(rows []Row, get func(*Row) float64) ChannelSummary {
	values := make([]float64, 0, len(rows))
	for i := range rows {
		v := get(&rows[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values = append(values, v)
	}

	s := ChannelSummary{Mean: math.NaN(), StdDev: math.NaN(), Count: len(values)}
	if len(values) == 0 {
		return s
	}
	if len(values) == 1 {
		s.Mean, s.StdDev = values[0], 0
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}

// Summarize returns mean and standard deviation of the normalised CTCF of
// each channel over all finite cells of the table.
func (t *Table) Summarize() Summary {
	return Summary{
		Cells:     len(t.Rows),
		DNA:       summarize(t.Rows, func(r *Row) float64 { return r.NucCTCFN }),
		Marker:    summarize(t.Rows, func(r *Row) float64 { return r.MarkCTCFN }),
		CellCycle: summarize(t.Rows, func(r *Row) float64 { return r.CCCTCFN }),
	}
}
