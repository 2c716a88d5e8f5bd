package rollup

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs materializer passes on a fixed interval. Passes never
// overlap: a tick fires the next pass only after the previous one returned.
type Scheduler struct {
	materializer *Materializer
	interval     time.Duration
}

// NewScheduler creates a scheduler. interval <= 0 selects the 60s default.
func NewScheduler(materializer *Materializer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		materializer: materializer,
		interval:     interval,
	}
}

// Start begins periodic materialization and blocks until ctx is cancelled.
// An initial pass runs immediately so a fresh process does not wait a full
// interval before serving rollups.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting rollup scheduler", "interval", s.interval)

	s.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// runPass executes one pass; pass-level errors end the pass but not the
// scheduler, so one bad cycle cannot halt the pipeline.
func (s *Scheduler) runPass(ctx context.Context) {
	started := time.Now()
	if err := s.materializer.RunPass(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("[Scheduler] Materializer pass failed", "error", err)
		return
	}
	slog.Info("[Scheduler] Pass complete", "duration", time.Since(started))
}
