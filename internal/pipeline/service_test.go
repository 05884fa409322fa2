package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingRunner struct {
	runs   int
	stopAt int
	cancel context.CancelFunc
}

func (c *countingRunner) Run(context.Context) (RunResult, error) {
	c.runs++
	if c.runs >= c.stopAt {
		c.cancel()
	}
	return RunResult{}, errors.New("boom")
}

func TestServiceKeepsRunningAfterFailedLoads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &countingRunner{stopAt: 3, cancel: cancel}

	service, err := NewService(ServiceParams{Logger: testLogger(), Runner: runner, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.runs < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runner.runs)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Runner: &countingRunner{}, Interval: time.Second}); err == nil {
		t.Fatalf("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Interval: time.Second}); err == nil {
		t.Fatalf("expected runner error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Runner: &countingRunner{}}); err == nil {
		t.Fatalf("expected interval error")
	}
}
