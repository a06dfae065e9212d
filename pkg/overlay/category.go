package overlay

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Category is a downstream classification result of one cell.
type Category int

const (
	Unclassified Category = iota
	NoCell
	G1
	G2
	PloidyNA
	Ploidy2N
	Ploidy4N
	MarkerPositive
	MarkerNegative
)

var categoryNames = map[Category]string{
	Unclassified:   "unclassified",
	NoCell:         "no_cell",
	G1:             "G1",
	G2:             "G2",
	PloidyNA:       "NA",
	Ploidy2N:       "2N",
	Ploidy4N:       "4N",
	MarkerPositive: "positive",
	MarkerNegative: "negative",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory reads the labels written by the classification step. Marker
// classes may carry the marker prefix, e.g. "SOX2_positive".
func ParseCategory(s string) (Category, error) {
	switch {
	case strings.HasSuffix(s, "_positive") || s == "positive":
		return MarkerPositive, nil
	case strings.HasSuffix(s, "_negative") || s == "negative":
		return MarkerNegative, nil
	}
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown category %q", s)
}

var (
	red     = colorful.Color{R: 1, G: 0, B: 0}
	cyan    = colorful.Color{R: 0, G: 1, B: 1}
	magenta = colorful.Color{R: 1, G: 0, B: 1}
	yellow  = colorful.Color{R: 1, G: 1, B: 0}
	gray    = colorful.Color{R: 0.5, G: 0.5, B: 0.5}
)

// Color maps every category to its display colour.
func Color(c Category) colorful.Color {
	switch c {
	case NoCell:
		return red
	case G1, Ploidy2N, MarkerNegative:
		return cyan
	case G2, Ploidy4N, MarkerPositive:
		return magenta
	case PloidyNA:
		return yellow
	default:
		return gray
	}
}

// ColorMode selects which classification drives the overlay colour.
type ColorMode int

const (
	// ModeLabel colours every label from the default palette
	ModeLabel ColorMode = iota
	ModeCellCycle
	ModePloidy
	ModeCellType
)

// ParseColorMode accepts "label", "cell_cycle", "ploidy" and "cell_type".
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "label":
		return ModeLabel, nil
	case "cell_cycle":
		return ModeCellCycle, nil
	case "ploidy":
		return ModePloidy, nil
	case "cell_type":
		return ModeCellType, nil
	}
	return ModeLabel, fmt.Errorf("unknown colour mode %q", s)
}

// Classification holds the classes assigned to one cell.
type Classification struct {
	NoCell    bool
	CellCycle Category
	Ploidy    Category
	CellType  Category
}

// ColorFor returns the colour of a classified cell under mode and false when
// the mode leaves colouring to the palette. Cells flagged NoCell are always red.
func (m ColorMode) ColorFor(c Classification) (colorful.Color, bool) {
	if m == ModeLabel {
		return colorful.Color{}, false
	}
	if c.NoCell {
		return Color(NoCell), true
	}
	switch m {
	case ModeCellCycle:
		return Color(c.CellCycle), true
	case ModePloidy:
		return Color(c.Ploidy), true
	default:
		return Color(c.CellType), true
	}
}

// ColorsFor resolves the colour of every classified label.
func (m ColorMode) ColorsFor(classes map[uint32]Classification) map[uint32]colorful.Color {
	colors := make(map[uint32]colorful.Color, len(classes))
	for label, c := range classes {
		if col, ok := m.ColorFor(c); ok {
			colors[label] = col
		}
	}
	return colors
}
