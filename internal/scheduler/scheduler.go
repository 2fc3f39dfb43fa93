// Package scheduler runs the background collection jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/pipeline"
)

// Refresher runs one collection.
type Refresher interface {
	Refresh(ctx context.Context, opts pipeline.RefreshOptions) (*pipeline.RefreshResult, error)
}

// Job kinds.
const (
	JobDaily  = "daily"
	JobWeekly = "weekly"
)

// Scheduler registers the daily collections and the weekly comprehensive
// one on a cron.
type Scheduler struct {
	refresher Refresher
	cfg       config.SchedulerConfig
	cron      *cron.Cron
	wg        sync.WaitGroup
	entries   map[string][]cron.EntryID
}

// New creates a Scheduler and registers its jobs. It fails on an invalid
// cron spec.
func New(refresher Refresher, cfg config.SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		refresher: refresher,
		cfg:       cfg,
		cron:      cron.New(),
		entries:   make(map[string][]cron.EntryID),
	}

	for _, spec := range cfg.DailySpecs {
		if err := s.add(JobDaily, spec); err != nil {
			return nil, err
		}
	}
	if cfg.WeeklySpec != "" {
		if err := s.add(JobWeekly, cfg.WeeklySpec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(kind, spec string) error {
	id, err := s.cron.AddFunc(spec, func() { s.run(kind) })
	if err != nil {
		return fmt.Errorf("schedule %s job %q: %w", kind, spec, err)
	}
	s.entries[kind] = append(s.entries[kind], id)
	return nil
}

// Entries returns the number of registered jobs of kind.
func (s *Scheduler) Entries(kind string) int {
	return len(s.entries[kind])
}

// Next returns the next activation time across all jobs, or the zero time
// when nothing is scheduled or the cron is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Start begins running the scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().
		Strs("daily", s.cfg.DailySpecs).
		Str("weekly", s.cfg.WeeklySpec).
		Msg("collection scheduler started")
}

// Stop stops the cron and waits for running jobs and manual runs to finish
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("collection scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers a job of kind immediately in the background.
func (s *Scheduler) RunNow(kind string) {
	log.Info().Str("job", kind).Msg("triggering immediate collection")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(kind)
	}()
}

func (s *Scheduler) options(kind string) pipeline.RefreshOptions {
	if kind == JobWeekly {
		return pipeline.RefreshOptions{PageSize: s.cfg.WeeklyPageSize, SkipPrices: true, DaysBack: 7}
	}
	return pipeline.RefreshOptions{}
}

func (s *Scheduler) run(kind string) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Str("job", kind).Msg("starting scheduled collection")

	res, err := s.refresher.Refresh(ctx, s.options(kind))
	switch {
	case errors.Is(err, pipeline.ErrRefreshInProgress):
		log.Warn().Str("job", kind).Msg("collection already running, skipped")
		return
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		log.Warn().Str("job", kind).Msg("api quota exhausted, skipped")
		return
	case err != nil && res == nil:
		log.Error().Err(err).Str("job", kind).Msg("scheduled collection failed")
		return
	case err != nil:
		log.Warn().Err(err).Str("job", kind).Str("run_id", res.RunID).Msg("scheduled collection interrupted")
	}

	log.Info().
		Str("job", kind).
		Str("run_id", res.RunID).
		Int("articles_saved", res.ArticlesSaved).
		Int("scores_saved", res.ScoresSaved).
		Int("prices_saved", res.PricesSaved).
		Int("failures", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("scheduled collection completed")
}
