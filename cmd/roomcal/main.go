// Command roomcal runs the room-calendar aggregator: the periodic
// extraction/merge scheduler and the public/admin HTTP surface,
// grounded on the teacher's cmd/ldap-dav/main.go graceful-shutdown
// shape.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/config"
	"github.com/roomcal/roomcal/internal/extract"
	"github.com/roomcal/roomcal/internal/httpapi"
	"github.com/roomcal/roomcal/internal/logging"
	"github.com/roomcal/roomcal/internal/merge"
	"github.com/roomcal/roomcal/internal/orchestrator"
	"github.com/roomcal/roomcal/internal/query"
	"github.com/roomcal/roomcal/internal/schedcache"
	"github.com/roomcal/roomcal/internal/scheduler"
	"github.com/roomcal/roomcal/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.Timezone).Msg("unknown timezone, falling back to UTC")
		loc = time.UTC
	}

	artifacts, err := artifact.New(cfg.ArtifactDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("artifact dir init failed")
	}

	db, err := store.New(cfg.Store.Path, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	defer db.Close()

	ics := extract.NewICSFetcher(cfg.Extract.ICSTimeout, logging.Component(logger, "ics"))
	renderer := extract.NewRendererPool(cfg.Extract.RenderConcurrency, cfg.Extract.RenderTimeout, logging.Component(logger, "render"))
	defer renderer.Close()

	extractor := &extract.Extractor{
		ICS:          ics,
		Renderer:     renderer,
		DateLayout:   "02.01.2006",
		WindowPast:   time.Duration(cfg.Extract.WindowPastDays) * 24 * time.Hour,
		WindowFuture: time.Duration(cfg.Extract.WindowFutureDays) * 24 * time.Hour,
		Logger:       logging.Component(logger, "extract"),
	}

	merger := &merge.Merger{Artifacts: artifacts}
	cache := schedcache.New(artifacts, db, merger)

	orch := &orchestrator.Orchestrator{
		Sources:     db,
		Marker:      db,
		Merger:      merger,
		Artifacts:   artifacts,
		Extractor:   extractor,
		Concurrency: cfg.Extract.ICSConcurrency,
		Logger:      logging.Component(logger, "orchestrator"),
	}

	q := &query.Query{Schedule: cache, Manual: db}

	sched := &scheduler.Service{
		Extractor: orch,
		AfterExtract: func(ctx context.Context) error {
			cache.Invalidate()
			return nil
		},
		Retention:       db,
		ExtractInterval: cfg.Scheduler.ExtractInterval,
		RetentionAge:    time.Duration(cfg.Scheduler.RetentionDays) * 24 * time.Hour,
		CleanupInterval: cfg.Scheduler.CleanupInterval,
		Logger:          logging.Component(logger, "scheduler"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !cfg.Scheduler.Disabled {
		sched.Start(ctx)
	}

	handler := httpapi.New(&httpapi.Handler{
		Query:         q,
		Schedule:      cache,
		Sources:       db,
		ManualEvents:  db,
		CSVUpserter:   db,
		Extraction:    orch,
		Retention:     db,
		Artifacts:     artifacts,
		AdminToken:    cfg.HTTP.AdminToken,
		MaxCSVBytes:   cfg.HTTP.MaxCSVBytes,
		RetentionDays: cfg.Scheduler.RetentionDays,
		Location:      loc,
		Logger:        logging.Component(logger, "http"),
	})

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped with error")
		}
	}()

	logger.Info().Msgf("listening on %s", cfg.HTTP.Addr)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("bye")
}
