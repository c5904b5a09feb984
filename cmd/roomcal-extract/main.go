// Command roomcal-extract runs a single extraction-and-merge cycle
// and exits, for cron-driven deployments that don't want the
// long-running scheduler. Modeled on the teacher's
// cmd/ldap-dav-bootstrap flag-based one-shot CLI shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/config"
	"github.com/roomcal/roomcal/internal/extract"
	"github.com/roomcal/roomcal/internal/logging"
	"github.com/roomcal/roomcal/internal/merge"
	"github.com/roomcal/roomcal/internal/orchestrator"
	"github.com/roomcal/roomcal/internal/store"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the extraction run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger = logging.Component(logger, "extract-cli")

	artifacts, err := artifact.New(cfg.ArtifactDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact dir init: %v\n", err)
		os.Exit(1)
	}

	db, err := store.New(cfg.Store.Path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store init: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	renderer := extract.NewRendererPool(cfg.Extract.RenderConcurrency, cfg.Extract.RenderTimeout, logger)
	defer renderer.Close()

	extractor := &extract.Extractor{
		ICS:          extract.NewICSFetcher(cfg.Extract.ICSTimeout, logger),
		Renderer:     renderer,
		DateLayout:   "02.01.2006",
		WindowPast:   time.Duration(cfg.Extract.WindowPastDays) * 24 * time.Hour,
		WindowFuture: time.Duration(cfg.Extract.WindowFutureDays) * 24 * time.Hour,
		Logger:       logger,
	}

	merger := &merge.Merger{Artifacts: artifacts}

	orch := &orchestrator.Orchestrator{
		Sources:     db,
		Marker:      db,
		Merger:      merger,
		Artifacts:   artifacts,
		Extractor:   extractor,
		Concurrency: cfg.Extract.ICSConcurrency,
		Logger:      logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := orch.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "extraction run: %v\n", err)
		os.Exit(1)
	}

	sources, err := db.ListSources(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list sources: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Msg("extraction and merge complete")
	fmt.Printf("extraction and merge complete: %d sources\n", len(sources))
}
