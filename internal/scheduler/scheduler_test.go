package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
	"github.com/patelatwork/REVIBEFIT-sub001/internal/model"
)

type stubJobs struct {
	mu sync.Mutex

	periods     []model.BillingPeriod
	invoicesErr error
	refreshes   int
	refreshErr  error
}

func (s *stubJobs) GenerateDueInvoices(_ context.Context, period model.BillingPeriod) ([]*model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, period)
	return []*model.Invoice{{PartnerID: "lab-1"}}, s.invoicesErr
}

func (s *stubJobs) RefreshLatestReport(context.Context) (*analytics.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return &analytics.Report{}, s.refreshErr
}

type observed struct {
	job string
	err error
}

type stubObserver struct {
	mu   sync.Mutex
	runs []observed
}

func (o *stubObserver) ObserveJob(job string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, observed{job: job, err: err})
}

func TestNew_InvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "invoice", cfg: Config{InvoiceSpec: "not a schedule"}},
		{name: "analytics", cfg: Config{AnalyticsSpec: "61 * * * *"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&stubJobs{}, zap.NewNop(), nil, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestScheduler_RunInvoicesUsesPreviousMonth(t *testing.T) {
	jobs := &stubJobs{}
	obs := &stubObserver{}
	s, err := New(jobs, zap.NewNop(), obs, Config{})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC) }

	require.NoError(t, s.RunInvoices(context.Background()))

	require.Len(t, jobs.periods, 1)
	assert.Equal(t, model.MonthlyPeriod(2025, time.December), jobs.periods[0])
	require.Len(t, obs.runs, 1)
	assert.Equal(t, JobInvoices, obs.runs[0].job)
	assert.NoError(t, obs.runs[0].err)
}

func TestScheduler_RunInvoicesReportsFailure(t *testing.T) {
	boom := errors.New("boom")
	jobs := &stubJobs{invoicesErr: boom}
	obs := &stubObserver{}
	s, err := New(jobs, zap.NewNop(), obs, Config{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.RunInvoices(context.Background()), boom)
	require.Len(t, obs.runs, 1)
	assert.ErrorIs(t, obs.runs[0].err, boom)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	jobs := &stubJobs{}
	s, err := New(jobs, zap.NewNop(), nil, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return jobs.refreshes == 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
