package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.Disabled, Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	sweep := &testJob{name: "renewal-sweep", err: errors.New("boom")}
	other := &testJob{name: "other"}
	registry, err := NewRegistry(sweep, other)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewSchedulerMetrics(reg)
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:     quietLogger(),
		Registry:   registry,
		Lock:       lock,
		Metrics:    cronMetrics,
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweep.runs != 1 || other.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", sweep.runs, other.runs)
	}
	if !sweep.deadline {
		t.Fatal("expected job context to carry the job timeout")
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released once, releases=%d held=%v", lock.releases, lock.held)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected cron metrics to be collected")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "renewal-sweep"}
	registry, _ := NewRegistry(job)
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: registry,
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewSchedulerMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
	expected := `
# HELP payvault_cron_cycles_skipped_total Cycles skipped because another replica held the scheduler lock.
# TYPE payvault_cron_cycles_skipped_total counter
payvault_cron_cycles_skipped_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "payvault_cron_cycles_skipped_total"); err != nil {
		t.Fatalf("skipped counter: %v", err)
	}
}

func TestRunOnceReturnsLockErrors(t *testing.T) {
	service, err := NewService(ServiceParams{Logger: quietLogger(), Lock: &fakeLock{acquireErr: errors.New("redis down")}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "renewal-sweep"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: &fakeLock{}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestNewMutexLockValidates(t *testing.T) {
	if _, err := NewMutexLock(nil, "lock:cron", time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
}

type panickingJob struct{}

func (panickingJob) Name() string { return "exploding" }

func (panickingJob) Run(context.Context) error { panic("nil map write") }

func TestRunOnceSurvivesJobPanic(t *testing.T) {
	after := &testJob{name: "after"}
	registry, err := NewRegistry(panickingJob{}, after)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("expected later job to run after panic, got %d runs", after.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released, got %d", lock.releases)
	}
}
