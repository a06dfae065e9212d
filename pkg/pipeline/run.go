// Package pipeline runs label reconciliation, region measurement and feature
// normalisation over an ordered batch of acquisition series and assembles one
// combined feature table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"ploidyanalysis/internal/models"
	"ploidyanalysis/pkg/features"
	"ploidyanalysis/pkg/labels"
	"ploidyanalysis/pkg/measure"
)

// SeriesError reports the failure of one series. Series is 1-based.
type SeriesError struct {
	Series int
	Err    error
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("series %d: %v", e.Series, e.Err)
}

func (e *SeriesError) Unwrap() error { return e.Err }

// Options controls a batch run.
type Options struct {
	// Names are the marker and cell-cycle column prefixes
	Names features.ChannelNames

	// Reconcile runs match, prune and reindex before measuring
	Reconcile bool
	Labels    labels.Options

	// Neighborhood of the perimeter estimator
	Neighborhood measure.Neighborhood

	// NumWorkers is the number of series processed concurrently; 0 means all cores
	NumWorkers int

	Logger zerolog.Logger
}

// SeriesStats summarises one processed series.
type SeriesStats struct {
	Series int

	// Cells is the number of rows contributed to the table
	Cells int

	// EmptyMasks counts cells whose nuclear or marker mask had no pixel
	EmptyMasks int

	// Prune and Fragmented are only set when labels were reconciled
	Prune      labels.PruneStats
	Fragmented int
}

// Result is the outcome of a batch run.
type Result struct {
	Table  *features.Table
	Series []SeriesStats
}

// seriesOutcome is what a worker hands back for one series.
type seriesOutcome struct {
	table *features.Table
	stats SeriesStats
}

// processSeries reconciles, measures and normalises one loaded series. The
// returned reconciliation is nil when opts.Reconcile is false.
func processSeries(s *models.Series, opts Options) (*seriesOutcome, *labels.Reconciliation, error) {
	stats := SeriesStats{Series: s.Index}
	nuclear, marker := s.NuclearLabels, s.MarkerLabels

	var rec *labels.Reconciliation
	if opts.Reconcile {
		var err error
		rec, err = labels.Reconcile(nuclear, marker, opts.Labels)
		if err != nil {
			return nil, nil, err
		}
		nuclear, marker = rec.Nuclear, rec.Marker
		stats.Prune = rec.Prune
		stats.Fragmented = rec.Fragmented
	}

	table, records, err := features.NormalizeSeries(measure.Input{
		DNA:           s.DNA,
		Marker:        s.Marker,
		CellCycle:     s.CellCycle,
		NuclearLabels: nuclear,
		MarkerLabels:  marker,
		Neighborhood:  opts.Neighborhood,
	}, opts.Names)
	if err != nil {
		return nil, nil, err
	}
	table.TagSeries(s.Index)

	stats.Cells = table.Len()
	stats.EmptyMasks = measure.EmptyMaskCount(records)
	return &seriesOutcome{table: table, stats: stats}, rec, nil
}

// runOrdered calls fn for indices 0..n-1 on a pool of workers and returns the
// outcomes in index order. The first failure cancels the remaining work and no
// outcome is returned.
func runOrdered(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) (*seriesOutcome, error)) ([]*seriesOutcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each index is written by exactly one worker.
	outcomes := make([]*seriesOutcome, n)
	errs := make([]error, n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := runCtx.Err(); err != nil {
					errs[i] = err
					continue
				}
				out, err := fn(runCtx, i)
				if err != nil {
					errs[i] = err
					cancel()
					continue
				}
				outcomes[i] = out
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, &SeriesError{Series: i + 1, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, &SeriesError{Series: i + 1, Err: err}
		}
	}
	return outcomes, nil
}

// merge concatenates outcomes in series order.
func merge(outcomes []*seriesOutcome, names features.ChannelNames) *Result {
	result := &Result{Table: &features.Table{Names: names.WithDefaults()}}
	for _, out := range outcomes {
		result.Table.Append(out.table)
		result.Series = append(result.Series, out.stats)
	}
	return result
}

// Run processes already loaded series. Series indices are assigned from the
// slice position (1-based) and the combined table keeps that order.
func Run(ctx context.Context, series []models.Series, opts Options) (*Result, error) {
	log := opts.Logger
	outcomes, err := runOrdered(ctx, len(series), opts.NumWorkers, func(ctx context.Context, i int) (*seriesOutcome, error) {
		s := series[i]
		s.Index = i + 1
		out, _, err := processSeries(&s, opts)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("series", s.Index).Int("cells", out.stats.Cells).Msg("series processed")
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return merge(outcomes, opts.Names), nil
}
