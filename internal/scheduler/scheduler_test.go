package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/pipeline"
)

type fakeRefresher struct {
	mu   sync.Mutex
	opts []pipeline.RefreshOptions
	err  error
}

func (f *fakeRefresher) Refresh(_ context.Context, opts pipeline.RefreshOptions) (*pipeline.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RefreshResult{RunID: "run"}, nil
}

func (f *fakeRefresher) calls() []pipeline.RefreshOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.RefreshOptions(nil), f.opts...)
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:        true,
		DailySpecs:     []string{"0 9 * * *", "0 18 * * *"},
		WeeklySpec:     "0 2 * * 0",
		WeeklyPageSize: 50,
		Timeout:        time.Minute,
	}
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(&fakeRefresher{}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries(JobDaily))
	assert.Equal(t, 1, s.Entries(JobWeekly))
}

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := testConfig()
	cfg.DailySpecs = []string{"every morning"}
	_, err := New(&fakeRefresher{}, cfg)
	assert.ErrorContains(t, err, "every morning")
}

func TestNextActivation(t *testing.T) {
	s, err := New(&fakeRefresher{}, testConfig())
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next()
	require.False(t, next.IsZero())
	assert.True(t, next.After(time.Now()))
	assert.Zero(t, next.Minute())
}

func TestRunNow(t *testing.T) {
	ref := &fakeRefresher{}
	s, err := New(ref, testConfig())
	require.NoError(t, err)

	s.RunNow(JobDaily)
	s.RunNow(JobWeekly)
	require.NoError(t, s.Stop(context.Background()))

	calls := ref.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls, pipeline.RefreshOptions{})
	assert.Contains(t, calls, pipeline.RefreshOptions{PageSize: 50, SkipPrices: true, DaysBack: 7})
}

func TestRunToleratesErrors(t *testing.T) {
	for _, err := range []error{pipeline.ErrRefreshInProgress, pipeline.ErrQuotaExceeded, errors.New("boom")} {
		ref := &fakeRefresher{err: err}
		s, nerr := New(ref, testConfig())
		require.NoError(t, nerr)
		s.run(JobDaily)
		assert.Len(t, ref.calls(), 1)
	}
}
