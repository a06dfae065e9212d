package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"ploidyanalysis/internal/logger"
	"ploidyanalysis/internal/models"
	"ploidyanalysis/pkg/imageio"
	"ploidyanalysis/pkg/labels"
	"ploidyanalysis/pkg/overlay"
)

// ErrSeriesCount is returned when the input directories hold different
// numbers of rasters, which would desynchronise the series indices.
var ErrSeriesCount = errors.New("input directories hold different numbers of images")

// Output directory names below Params.OutputDir.
const (
	NuclearLabelDir = "nuclear_labels_matched_reindexed"
	MarkerLabelDir  = "marker_labels_matched_reindexed"
	OverlayDir      = "overlays"
)

// Params holds the batch parameters. These control the input/output and
// processing configuration.
type Params struct {
	// Input directories; the n-th raster of each (natural order) forms series n
	DNADir          string
	MarkerDir       string
	CellCycleDir    string
	NuclearLabelDir string
	MarkerLabelDir  string

	// OutputDir receives the table, reconciled labels and overlays
	OutputDir string

	// TableFile is the CSV filename inside OutputDir; empty disables writing
	TableFile string

	// SaveLabels writes the reconciled label images of every series
	SaveLabels bool

	// SaveOverlays writes a DNA overlay of the reconciled nuclear labels
	SaveOverlays bool
	OverlayAlpha float64

	// OverlayContrastLo and OverlayContrastHi fix the display range; equal
	// values stretch every image to its own range
	OverlayContrastLo float64
	OverlayContrastHi float64

	// OverlayMode picks the classification that colours each label. Labels
	// missing from OverlayClasses keep their palette colour.
	OverlayMode    overlay.ColorMode
	OverlayClasses overlay.ClassTable

	Options Options
}

// Processor runs the batch over the files named by Params.
type Processor struct {
	params *Params
	log    zerolog.Logger
}

// NewProcessor creates a processor with the provided parameters.
func NewProcessor(params *Params) *Processor {
	return &Processor{
		params: params,
		log:    logger.Component(params.Options.Logger, "pipeline"),
	}
}

// ListSeries pairs the rasters of the five input directories by position.
func (p *Processor) ListSeries() ([]models.SeriesFiles, error) {
	dirs := []struct {
		name string
		dir  string
	}{
		{"dna", p.params.DNADir},
		{"marker", p.params.MarkerDir},
		{"cellcycle", p.params.CellCycleDir},
		{"nuclear labels", p.params.NuclearLabelDir},
		{"marker labels", p.params.MarkerLabelDir},
	}

	lists := make([][]string, len(dirs))
	for i, d := range dirs {
		files, err := imageio.ListImages(d.dir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		if i > 0 && len(files) != len(lists[0]) {
			return nil, fmt.Errorf("%w: %s has %d, %s has %d",
				ErrSeriesCount, dirs[0].name, len(lists[0]), d.name, len(files))
		}
		lists[i] = files
	}
	if len(lists[0]) == 0 {
		return nil, fmt.Errorf("no images found in %s", p.params.DNADir)
	}

	series := make([]models.SeriesFiles, len(lists[0]))
	for i := range series {
		series[i] = models.SeriesFiles{
			Index:        i + 1,
			DNA:          lists[0][i],
			Marker:       lists[1][i],
			CellCycle:    lists[2][i],
			NuclearLabel: lists[3][i],
			MarkerLabel:  lists[4][i],
		}
	}
	return series, nil
}

// LoadSeries reads the five rasters of one series.
func LoadSeries(files models.SeriesFiles) (*models.Series, error) {
	s := &models.Series{Index: files.Index}
	var err error

	if s.DNA, err = imageio.LoadIntensity(files.DNA); err != nil {
		return nil, err
	}
	if s.Marker, err = imageio.LoadIntensity(files.Marker); err != nil {
		return nil, err
	}
	if s.CellCycle, err = imageio.LoadIntensity(files.CellCycle); err != nil {
		return nil, err
	}
	if s.NuclearLabels, err = imageio.LoadLabels(files.NuclearLabel); err != nil {
		return nil, err
	}
	if s.MarkerLabels, err = imageio.LoadLabels(files.MarkerLabel); err != nil {
		return nil, err
	}
	return s, nil
}

// LabelPaths returns where the reconciled labels of a series are written.
func (p *Processor) LabelPaths(series int) (nuclear, marker string) {
	name := fmt.Sprintf("Label_image_matched_reindexed_Series_%d.tif", series)
	return filepath.Join(p.params.OutputDir, NuclearLabelDir, name),
		filepath.Join(p.params.OutputDir, MarkerLabelDir, name)
}

// saveOutputs writes the per-series artifacts requested by Params.
func (p *Processor) saveOutputs(s *models.Series, rec *labels.Reconciliation) error {
	nuclear := s.NuclearLabels
	if rec != nil {
		nuclear = rec.Nuclear
		if p.params.SaveLabels {
			nucPath, markPath := p.LabelPaths(s.Index)
			if err := imageio.SaveLabels(nucPath, rec.Nuclear); err != nil {
				return fmt.Errorf("failed to save nuclear labels: %w", err)
			}
			if err := imageio.SaveLabels(markPath, rec.Marker); err != nil {
				return fmt.Errorf("failed to save marker labels: %w", err)
			}
		}
	}

	if p.params.SaveOverlays {
		renderer := overlay.NewRenderer(p.params.OverlayAlpha, p.params.OverlayContrastLo, p.params.OverlayContrastHi)
		colors := p.params.OverlayMode.ColorsFor(p.params.OverlayClasses.Series(s.Index))
		dir := filepath.Join(p.params.OutputDir, OverlayDir)
		if _, err := renderer.SaveSeriesOverlay(dir, "nuc", s.Index, s.DNA, nuclear, colors); err != nil {
			return fmt.Errorf("failed to save overlay: %w", err)
		}
	}
	return nil
}

// Process runs the complete batch: list, then for every series load,
// reconcile, measure, normalise and write outputs, and finally write the
// combined table.
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	p.log.Info().Str("step", "list").Msg("Step 1: Listing input series...")
	files, err := p.ListSeries()
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	p.log.Info().Int("series", len(files)).Msg("Found input series")

	p.log.Info().Str("step", "process").Int("workers", p.params.Options.NumWorkers).
		Msg("Step 2: Processing series...")
	opts := p.params.Options
	outcomes, err := runOrdered(ctx, len(files), opts.NumWorkers, func(ctx context.Context, i int) (*seriesOutcome, error) {
		s, err := LoadSeries(files[i])
		if err != nil {
			return nil, err
		}
		out, rec, err := processSeries(s, opts)
		if err != nil {
			return nil, err
		}
		if err := p.saveOutputs(s, rec); err != nil {
			return nil, err
		}

		event := p.log.Info().Int("series", s.Index).Int("cells", out.stats.Cells)
		if rec != nil {
			event = event.Int("prunePasses", rec.Prune.Passes).
				Int("removedMarker", rec.Prune.RemovedMarker).
				Int("removedNuclear", rec.Prune.RemovedNuclear)
		}
		event.Msg("Series processed")
		if out.stats.EmptyMasks > 0 {
			p.log.Warn().Int("series", s.Index).Int("emptyMasks", out.stats.EmptyMasks).
				Msg("Cells with empty masks recorded as NaN")
		}
		if out.stats.Fragmented > 0 {
			p.log.Warn().Int("series", s.Index).Int("fragmented", out.stats.Fragmented).
				Msg("Nuclei split across several marker labels")
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	result := merge(outcomes, opts.Names)

	if p.params.TableFile != "" {
		p.log.Info().Str("step", "write").Msg("Step 3: Writing feature table...")
		path := filepath.Join(p.params.OutputDir, p.params.TableFile)
		if err := result.Table.SaveCSV(path); err != nil {
			return nil, fmt.Errorf("failed to write feature table: %w", err)
		}
		p.log.Info().Str("path", path).Int("rows", result.Table.Len()).Msg("Feature table written")
	}

	p.log.Info().Dur("elapsed", time.Since(startTime)).Msg("Batch completed")
	return result, nil
}
