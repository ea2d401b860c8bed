package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/clock"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	obsmetrics "github.com/smallbiznis/orgsync/internal/observability/metrics"
	"github.com/smallbiznis/orgsync/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	ids   []string
	err   error
}

func (f *fakeExpirer) ExpireBatch(_ context.Context, now time.Time) (invitationdomain.ExpireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	if f.err != nil {
		return invitationdomain.ExpireResult{}, f.err
	}
	ids := f.ids
	f.ids = nil
	return invitationdomain.ExpireResult{ExpiredIDs: ids, EventID: "evt"}, nil
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type panickingExpirer struct {
	calls int
}

func (p *panickingExpirer) ExpireBatch(context.Context, time.Time) (invitationdomain.ExpireResult, error) {
	p.calls++
	panic("driver blew up")
}

type fakePurger struct {
	olderThan time.Time
	purged    int64
}

func (f *fakePurger) PurgePublished(_ context.Context, olderThan time.Time) (int64, error) {
	f.olderThan = olderThan
	return f.purged, nil
}

func newTestScheduler(t *testing.T, expirer Expirer, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Scheduler{
		log:     zap.NewNop(),
		cfg:     cfg.withDefaults(),
		genID:   node,
		clock:   clock.NewFakeClock(t0),
		expirer: expirer,
	}
}

func useRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "orgsync",
		Environment: "test",
	})
	return registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useRegistry(t)

	s := newTestScheduler(t, &fakeExpirer{}, Config{})
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "orgsync",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "orgsync_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "orgsync",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "orgsync_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceExpiresWithClockNow(t *testing.T) {
	registry := useRegistry(t)
	expirer := &fakeExpirer{ids: []string{"a", "b"}}
	s := newTestScheduler(t, expirer, Config{})

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, expirer.callCount())
	assert.Equal(t, t0, expirer.calls[0])

	processed := map[string]string{
		"service":  "orgsync",
		"env":      "test",
		"job":      JobExpireInvitations,
		"resource": "invitation",
	}
	assert.Equal(t, float64(2), getCounterValue(t, registry, "orgsync_scheduler_batch_processed_total", processed))
}

func TestRunOnceReportsFailureWithoutPanicking(t *testing.T) {
	registry := useRegistry(t)
	expirer := &fakeExpirer{err: errors.New("db unavailable")}
	s := newTestScheduler(t, expirer, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobExpireInvitations)

	labels := map[string]string{
		"service": "orgsync",
		"env":     "test",
		"job":     JobExpireInvitations,
		"reason":  obsmetrics.SchedulerJobReasonUnknown,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "orgsync_scheduler_job_errors_total", labels))

	// The next tick runs independently.
	expirer.err = nil
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 2, expirer.callCount())
}

func TestRunOnceRecoversFromJobPanic(t *testing.T) {
	registry := useRegistry(t)
	broken := &panickingExpirer{}
	s := newTestScheduler(t, broken, Config{})

	var err error
	require.NotPanics(t, func() {
		err = s.RunOnce(context.Background())
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errJobPanic)
	assert.Contains(t, err.Error(), "driver blew up")
	assert.Contains(t, err.Error(), JobExpireInvitations)
	assert.Equal(t, 1, broken.calls)

	labels := map[string]string{
		"service": "orgsync",
		"env":     "test",
		"job":     JobExpireInvitations,
		"reason":  obsmetrics.SchedulerJobReasonUnknown,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "orgsync_scheduler_job_errors_total", labels))

	healthy := &fakeExpirer{}
	s.expirer = healthy
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, healthy.callCount())
}

func TestEnabledJobsFilter(t *testing.T) {
	useRegistry(t)
	expirer := &fakeExpirer{}
	s := newTestScheduler(t, expirer, Config{EnabledJobs: []string{JobPurgeOutbox}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, expirer.callCount())
}

func TestPurgeOutboxRunsOnlyWithRetention(t *testing.T) {
	useRegistry(t)
	purger := &fakePurger{purged: 3}

	s := newTestScheduler(t, &fakeExpirer{}, Config{})
	s.purger = purger
	require.NoError(t, s.RunOnce(context.Background()))
	assert.True(t, purger.olderThan.IsZero())

	s = newTestScheduler(t, &fakeExpirer{}, Config{OutboxRetention: 48 * time.Hour})
	s.purger = purger
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, t0.Add(-48*time.Hour), purger.olderThan)
}

func TestLockContentionSkipsRun(t *testing.T) {
	registry := useRegistry(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	expirer := &fakeExpirer{}
	s := newTestScheduler(t, expirer, Config{LockEnabled: true, LockTTL: time.Minute})
	s.locker = ratelimit.NewLocker(client)

	require.NoError(t, mr.Set(s.cfg.LockPrefix+JobExpireInvitations, "other-replica"))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, expirer.callCount())

	skipped := map[string]string{
		"service": "orgsync",
		"env":     "test",
		"job":     JobExpireInvitations,
		"reason":  obsmetrics.SchedulerSkipReasonLockHeld,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "orgsync_scheduler_job_skipped_total", skipped))

	mr.Del(s.cfg.LockPrefix + JobExpireInvitations)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, expirer.callCount())
	assert.False(t, mr.Exists(s.cfg.LockPrefix+JobExpireInvitations), "lock released after the run")
}

type stubInvitations struct {
	invitationdomain.Service
}

func TestNewValidatesDependencies(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(t0),
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{
		Log:           zap.NewNop(),
		InvitationSvc: stubInvitations{},
		GenID:         node,
		Clock:         clock.NewFakeClock(t0),
		Config:        Config{LockEnabled: true},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s, err := New(Params{
		Log:           zap.NewNop(),
		InvitationSvc: stubInvitations{},
		GenID:         node,
		Clock:         clock.NewFakeClock(t0),
	})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, s.cfg.RunInterval)
	assert.Nil(t, s.purger)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	useRegistry(t)
	expirer := &fakeExpirer{}
	s := newTestScheduler(t, expirer, Config{RunInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	require.Eventually(t, func() bool { return expirer.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
