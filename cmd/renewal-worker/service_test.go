package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

type fakeConsumer struct {
	ran bool
	err error
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	f.ran = true
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestServiceRunsConsumerAfterReadiness(t *testing.T) {
	db := &fakePinger{}
	consumer := &fakeConsumer{}
	svc, err := NewService(ServiceParams{
		Logger:       quietLogger(),
		Consumer:     consumer,
		Dependencies: map[string]pinger{"database": db},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if db.calls != 1 || !consumer.ran {
		t.Fatalf("expected ping then consume, got pings=%d ran=%v", db.calls, consumer.ran)
	}
}

func TestServiceStopsWhenDependencyDown(t *testing.T) {
	consumer := &fakeConsumer{}
	svc, err := NewService(ServiceParams{
		Logger:       quietLogger(),
		Consumer:     consumer,
		Dependencies: map[string]pinger{"redis": &fakePinger{err: errors.New("refused")}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if consumer.ran {
		t.Fatal("consumer must not start before dependencies are ready")
	}
}

func TestServiceSurfacesConsumerError(t *testing.T) {
	boom := errors.New("receive failed")
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Consumer: &fakeConsumer{err: boom}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(ServiceParams{Consumer: &fakeConsumer{}}); err == nil {
		t.Fatal("expected logger required")
	}
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected consumer required")
	}
}
