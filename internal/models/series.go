package models

// Channel identifies one of the three fluorescence channels of a series.
type Channel int

const (
	// DNA is the nuclear stain (e.g. DAPI)
	DNA Channel = iota
	// Marker is the cell-type marker
	Marker
	// CellCycle is the cell-cycle marker
	CellCycle
)

// String returns a short channel name for logs.
func (c Channel) String() string {
	switch c {
	case DNA:
		return "dna"
	case Marker:
		return "marker"
	case CellCycle:
		return "cellcycle"
	default:
		return "unknown"
	}
}

// SeriesFiles addresses the five input rasters of one acquisition series.
type SeriesFiles struct {
	// Index is the 1-based position of this series in the batch
	Index int

	DNA          string
	Marker       string
	CellCycle    string
	NuclearLabel string
	MarkerLabel  string
}

// Series holds the loaded rasters of one acquisition series.
type Series struct {
	Index int

	DNA       *IntensityImage
	Marker    *IntensityImage
	CellCycle *IntensityImage

	NuclearLabels *LabelImage
	MarkerLabels  *LabelImage
}
