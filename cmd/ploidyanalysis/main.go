package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"ploidyanalysis/internal/logger"
	"ploidyanalysis/pkg/config"
	"ploidyanalysis/pkg/features"
	"ploidyanalysis/pkg/labels"
	"ploidyanalysis/pkg/measure"
	"ploidyanalysis/pkg/overlay"
	"ploidyanalysis/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "ploidyanalysis.yaml", "YAML configuration file (defaults are used when missing)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	dnaDir := flag.String("dna", "", "Directory containing the DNA stain images")
	markerDir := flag.String("marker", "", "Directory containing the cell-type marker images")
	ccDir := flag.String("cc", "", "Directory containing the cell-cycle marker images")
	nucLabelDir := flag.String("nuc-labels", "", "Directory containing the nuclear label images")
	markLabelDir := flag.String("mark-labels", "", "Directory containing the marker label images")
	outputDir := flag.String("out", "", "Output directory")
	numWorkers := flag.Int("workers", 0, "Number of series processed concurrently (default: from config)")
	markerName := flag.String("marker-name", "", "Column prefix of the marker channel")
	ccName := flag.String("cc-name", "", "Column prefix of the cell-cycle channel")
	noReconcile := flag.Bool("no-reconcile", false, "Measure the label images as given")
	overlays := flag.Bool("overlays", false, "Save a label overlay per series")
	colorMode := flag.String("color-mode", "", "Overlay colouring: label, cell_cycle, ploidy or cell_type")
	classFile := flag.String("classes", "", "Classification CSV used by the classified colour modes")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dna":
			cfg.Input.DNADir = *dnaDir
		case "marker":
			cfg.Input.MarkerDir = *markerDir
		case "cc":
			cfg.Input.CellCycleDir = *ccDir
		case "nuc-labels":
			cfg.Input.NuclearLabelDir = *nucLabelDir
		case "mark-labels":
			cfg.Input.MarkerLabelDir = *markLabelDir
		case "out":
			cfg.Output.Dir = *outputDir
		case "workers":
			cfg.Processing.NumWorkers = *numWorkers
		case "marker-name":
			cfg.Channels.Marker = *markerName
		case "cc-name":
			cfg.Channels.CellCycle = *ccName
		case "no-reconcile":
			cfg.Reconcile.Enabled = !*noReconcile
		case "overlays":
			cfg.Output.SaveOverlays = *overlays
		case "color-mode":
			cfg.Output.OverlayColorMode = *colorMode
		case "classes":
			cfg.Output.OverlayClassFile = *classFile
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	if cfg.Input.DNADir == "" || cfg.Input.MarkerDir == "" || cfg.Input.CellCycleDir == "" ||
		cfg.Input.NuclearLabelDir == "" || cfg.Input.MarkerLabelDir == "" {
		fmt.Fprintln(os.Stderr, "all five input directories are required (flags or config file)")
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	overlayMode, err := overlay.ParseColorMode(cfg.Output.OverlayColorMode)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	var classes overlay.ClassTable
	if cfg.Output.SaveOverlays && cfg.Output.OverlayClassFile != "" {
		if classes, err = overlay.LoadClassifications(cfg.Output.OverlayClassFile); err != nil {
			log.Fatalf("Failed to load classifications: %v", err)
		}
	}

	params := &pipeline.Params{
		DNADir:          cfg.Input.DNADir,
		MarkerDir:       cfg.Input.MarkerDir,
		CellCycleDir:    cfg.Input.CellCycleDir,
		NuclearLabelDir: cfg.Input.NuclearLabelDir,
		MarkerLabelDir:  cfg.Input.MarkerLabelDir,
		OutputDir:       cfg.Output.Dir,
		TableFile:       cfg.Output.TableFile,
		SaveLabels:      cfg.Output.SaveLabels,
		SaveOverlays:    cfg.Output.SaveOverlays,
		OverlayAlpha:    cfg.Output.OverlayAlpha,

		OverlayContrastLo: cfg.Output.OverlayContrastLo,
		OverlayContrastHi: cfg.Output.OverlayContrastHi,
		OverlayMode:       overlayMode,
		OverlayClasses:    classes,

		Options: pipeline.Options{
			Names: features.ChannelNames{
				Marker:    cfg.Channels.Marker,
				CellCycle: cfg.Channels.CellCycle,
			},
			Reconcile: cfg.Reconcile.Enabled,
			Labels: labels.Options{
				MaxPrunePasses: cfg.Reconcile.MaxPrunePasses,
				SkipMatch:      cfg.Reconcile.SkipMatch,
			},
			Neighborhood: measure.Neighborhood(cfg.Measure.PerimeterNeighborhood),
			NumWorkers:   cfg.Processing.NumWorkers,
			Logger:       lg,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := pipeline.NewProcessor(params).Process(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("Batch failed")
		os.Exit(1)
	}

	summary := result.Table.Summarize()
	names := params.Options.Names
	lg.Info().
		Int("series", len(result.Series)).
		Int("cells", summary.Cells).
		Float64("nucCTCFMean", summary.DNA.Mean).
		Float64(names.Marker+"CTCFMean", summary.Marker.Mean).
		Float64(names.CellCycle+"CTCFMean", summary.CellCycle.Mean).
		Msg("Summary")
}
