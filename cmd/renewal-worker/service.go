package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	p    pinger
}

// ServiceParams wires the renewal worker.
type ServiceParams struct {
	Logger       *logger.Logger
	Consumer     runner
	Dependencies map[string]pinger
}

// Service checks its dependencies once, then pulls renewal messages until ctx ends.
type Service struct {
	logg     *logger.Logger
	consumer runner
	deps     []dependency
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("renewal consumer is required")
	}
	deps := make([]dependency, 0, len(params.Dependencies))
	for _, name := range []string{"database", "redis", "pubsub"} {
		if p, ok := params.Dependencies[name]; ok && p != nil {
			deps = append(deps, dependency{name: name, p: p})
		}
	}
	return &Service{
		logg:     params.Logger,
		consumer: params.Consumer,
		deps:     deps,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.p.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	err := s.consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "renewal consumer stopped unexpectedly", err)
		return err
	}
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}
