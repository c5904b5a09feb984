// Package orchestrator runs a full extraction cycle: fan the
// configured calendar sources out across bounded worker pools, write
// each source's artifact as it completes, and track progress so a
// concurrent admin request can poll status rather than block.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomcal/roomcal/internal/artifact"
	"github.com/roomcal/roomcal/internal/extract"
	"github.com/roomcal/roomcal/internal/model"
)

// ErrAlreadyRunning is returned by Run when a previous run hasn't
// finished yet — the run-token guarantees at most one concurrent
// extraction cycle.
var ErrAlreadyRunning = errAlreadyRunning{}

type errAlreadyRunning struct{}

func (errAlreadyRunning) Error() string { return "orchestrator: extraction already running" }

// SourceLister supplies the set of sources to extract.
type SourceLister interface {
	ListSources(ctx context.Context) ([]model.CalendarSource, error)
}

// SourceMarker records a successful fetch against a source.
type SourceMarker interface {
	MarkFetched(ctx context.Context, sourceID int64, at time.Time) error
}

// Merger rebuilds the merged schedule from every known source's
// artifacts — the orchestrator's P3 phase.
type Merger interface {
	Merge(sources []model.CalendarSource) (model.Fingerprint, error)
}

// Orchestrator coordinates one extraction run across all configured
// sources (C6): P1/P2 fetch every enabled source with bounded
// concurrency, then P3 merges the result into the served schedule.
type Orchestrator struct {
	Sources     SourceLister
	Marker      SourceMarker
	Merger      Merger
	Artifacts   *artifact.Dir
	Extractor   *extract.Extractor
	Concurrency int
	Logger      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// Run executes one full extraction cycle — list enabled sources,
// extract each with bounded concurrency, write each artifact as it
// completes, merge the result (P3), and record terminal progress
// regardless of outcome. Returns ErrAlreadyRunning if a previous run
// is still in flight.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	allSources, err := o.Sources.ListSources(ctx)
	if err != nil {
		return err
	}

	var enabled []model.CalendarSource
	for _, src := range allSources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	progress := model.ImportProgress{
		RunID:        uuid.New().String(),
		Total:        len(enabled),
		StartedAt:    now(),
		CurrentPhase: model.PhaseICS,
	}
	_ = o.Artifacts.WriteProgress(progress)

	defer func() {
		progress.Finished = true
		t := now()
		progress.FinishedAt = &t
		progress.CurrentPhase = model.PhaseIdle
		_ = o.Artifacts.WriteProgress(progress)
		_ = o.Artifacts.MarkComplete()
	}()

	var mu sync.Mutex
	sem := make(chan struct{}, concurrencyOrDefault(o.Concurrency))
	var wg sync.WaitGroup

	for _, src := range enabled {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(src model.CalendarSource) {
			defer wg.Done()
			defer func() { <-sem }()

			res := o.Extractor.Extract(ctx, src, now())

			mu.Lock()
			defer mu.Unlock()

			if res.Err != nil {
				progress.Failed++
				progress.LastError = res.Err.Error()
				o.Logger.Warn().Err(res.Err).Str("url", src.PrimaryURL).Msg("extraction failed")
				_ = o.Artifacts.WriteProgress(progress)
				return
			}

			if err := o.Artifacts.WriteEvents(res.SourceHash, res.Events); err != nil {
				progress.Failed++
				progress.LastError = err.Error()
				o.Logger.Error().Err(err).Str("url", src.PrimaryURL).Msg("failed to write artifact")
				_ = o.Artifacts.WriteProgress(progress)
				return
			}

			progress.Succeeded++
			progress.FilesWritten++
			if res.UsedRender {
				progress.CurrentPhase = model.PhaseRender
			}
			_ = o.Artifacts.WriteProgress(progress)

			if src.ID != 0 && o.Marker != nil {
				_ = o.Marker.MarkFetched(ctx, src.ID, now())
			}
		}(src)
	}

	wg.Wait()

	if o.Merger != nil {
		mu.Lock()
		progress.CurrentPhase = model.PhaseMerge
		_ = o.Artifacts.WriteProgress(progress)
		mu.Unlock()

		if _, err := o.Merger.Merge(allSources); err != nil {
			mu.Lock()
			progress.LastError = err.Error()
			mu.Unlock()
			o.Logger.Error().Err(err).Msg("merge failed")
			return err
		}
	}

	return nil
}

func concurrencyOrDefault(n int) int {
	if n < 1 {
		return 4
	}
	return n
}

// now is a seam for deterministic tests.
var now = time.Now
