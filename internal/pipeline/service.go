package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shopdw/pkg/logger"
)

// Runner executes one load.
type Runner interface {
	Run(ctx context.Context) (RunResult, error)
}

// ServiceParams configure the periodic load service.
type ServiceParams struct {
	Logger   *logger.Logger
	Runner   Runner
	Interval time.Duration
}

// Service runs the orchestrator on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	runner   Runner
	interval time.Duration
}

// NewService builds a periodic load service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("runner required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &Service{logg: params.Logger, runner: params.Runner, interval: params.Interval}, nil
}

// Run loads immediately, then once per interval until the context is
// canceled. Failed runs are logged and the loop continues.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "load service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil {
		s.logg.Error(ctx, "scheduled load failed", err)
	}
}
