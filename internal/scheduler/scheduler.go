// Package scheduler runs the periodic background tasks: extraction
// cycles and retention cleanup (C10), modeled on the teacher's ticker
// based CleanupService.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Extractor triggers one extraction cycle.
type Extractor interface {
	Run(ctx context.Context) error
}

// RetentionCleaner deletes manual events older than cutoff and
// reports how many rows it removed.
type RetentionCleaner interface {
	DeleteManualEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service owns the two periodic tickers this process runs in the
// background: a fetch cycle on ExtractInterval, and a retention
// cleanup once a day.
type Service struct {
	Extractor       Extractor
	AfterExtract    func(ctx context.Context) error // invalidate the schedule cache post-merge
	Retention       RetentionCleaner
	ExtractInterval time.Duration
	RetentionAge    time.Duration
	CleanupInterval time.Duration
	Logger          zerolog.Logger
}

// Start runs both tickers until ctx is canceled. The first extraction
// fires immediately rather than waiting a full interval, so a freshly
// started process doesn't serve stale or empty data.
func (s *Service) Start(ctx context.Context) {
	go s.runExtractionLoop(ctx)
	go s.runCleanupLoop(ctx)
}

func (s *Service) runExtractionLoop(ctx context.Context) {
	s.extractOnce(ctx)

	ticker := time.NewTicker(s.ExtractInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.extractOnce(ctx)
		}
	}
}

func (s *Service) extractOnce(ctx context.Context) {
	if err := s.Extractor.Run(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("scheduled extraction failed")
		return
	}
	if s.AfterExtract != nil {
		if err := s.AfterExtract(ctx); err != nil {
			s.Logger.Error().Err(err).Msg("post-extraction cache invalidation failed")
		}
	}
}

func (s *Service) runCleanupLoop(ctx context.Context) {
	interval := s.CleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *Service) cleanupOnce(ctx context.Context) {
	if s.Retention == nil {
		return
	}
	cutoff := time.Now().Add(-s.RetentionAge)
	n, err := s.Retention.DeleteManualEventsBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error().Err(err).Msg("retention cleanup failed")
		return
	}
	if n > 0 {
		s.Logger.Info().Int64("deleted", n).Msg("retention cleanup removed old manual events")
	}
}
