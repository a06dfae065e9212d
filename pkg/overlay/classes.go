package overlay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrMissingColumn is returned when a classification table lacks the series
// or label column.
var ErrMissingColumn = errors.New("classification table is missing a column")

// ClassTable holds classifications keyed by 1-based series and label id.
type ClassTable map[int]map[uint32]Classification

// Series returns the classifications of one series; nil when it has none.
func (t ClassTable) Series(series int) map[uint32]Classification {
	return t[series]
}

// ReadClassifications parses a classification table with the columns
// "series" and "label" plus any of "cell" ("no_cell" flags a rejected cell),
// "cell_cycle", "ploidy" and "cell_type". Empty cells stay Unclassified.
func ReadClassifications(r io.Reader) (ClassTable, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"series", "label"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	field := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	category := func(rec []string, name string) (Category, error) {
		v := field(rec, name)
		if v == "" {
			return Unclassified, nil
		}
		return ParseCategory(v)
	}

	table := make(ClassTable)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		series, err := strconv.Atoi(field(rec, "series"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid series: %w", line, err)
		}
		label, err := strconv.ParseUint(field(rec, "label"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid label: %w", line, err)
		}

		c := Classification{NoCell: field(rec, "cell") == "no_cell"}
		if c.CellCycle, err = category(rec, "cell_cycle"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.Ploidy, err = category(rec, "ploidy"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.CellType, err = category(rec, "cell_type"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if table[series] == nil {
			table[series] = make(map[uint32]Classification)
		}
		table[series][uint32(label)] = c
	}
	return table, nil
}

// LoadClassifications reads a classification table from a CSV file.
func LoadClassifications(path string) (ClassTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classification table: %w", err)
	}
	defer file.Close()

	table, err := ReadClassifications(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
