// Package pipeline sequences the warehouse load: schema, calendar,
// dimensions, then facts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopdw/internal/runlog"
	"github.com/angelmondragon/shopdw/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
	"github.com/angelmondragon/shopdw/pkg/metrics"
)

// OrchestratorParams configure the orchestrator. Lock, Metrics and RunLog
// are optional.
type OrchestratorParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.StageMetrics
	RunLog   runlog.Repository
	Now      func() time.Time
	NewRunID func() string
}

// RunResult describes one orchestrator invocation.
type RunResult struct {
	RunID       string
	Skipped     bool
	FailedStage string
	Stats       runlog.Stats
}

// Orchestrator runs registered stages sequentially and stops at the first
// stage error. Earlier stage commits remain in effect.
type Orchestrator struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.StageMetrics
	runLog   runlog.Repository
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator validates the params and builds the orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil || len(params.Registry.Stages()) == 0 {
		return nil, fmt.Errorf("at least one stage required")
	}
	if err := params.Registry.validate(); err != nil {
		return nil, err
	}
	lock := params.Lock
	if lock == nil {
		lock = NoopLock{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newRunID := params.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Orchestrator{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     lock,
		metrics:  params.Metrics,
		runLog:   params.RunLog,
		now:      now,
		newRunID: newRunID,
	}, nil
}

// Run executes one load. When another loader holds the lock the run is
// skipped and reported with Skipped set and a nil error.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	locked, err := o.lock.Acquire(ctx)
	if err != nil {
		return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeLocked, err, "acquire load lock")
	}
	if !locked {
		o.logg.Warn(ctx, "another loader holds the lock; skipping run")
		o.metrics.IncRun("skipped")
		return RunResult{Skipped: true}, nil
	}
	defer func() {
		if relErr := o.lock.Release(ctx); relErr != nil {
			o.logg.Error(ctx, "failed to release load lock", relErr)
		}
	}()

	result := RunResult{RunID: o.newRunID(), Stats: runlog.Stats{}}
	runCtx := o.logg.WithRunID(ctx, result.RunID)
	startedAt := o.now()
	logged := o.startRunLog(runCtx, result.RunID, startedAt)

	o.logg.Info(o.logg.WithField(runCtx, "stages", o.registry.Names()), "load run starting")
	fail := func(stage string, code pkgerrors.Code, err error, msg string) (RunResult, error) {
		result.FailedStage = stage
		if !logged {
			logged = o.startRunLog(runCtx, result.RunID, startedAt)
		}
		if logged {
			if logErr := o.runLog.Fail(runCtx, result.RunID, o.now(), stage, err, result.Stats); logErr != nil {
				o.logg.Error(runCtx, "failed to record run failure", logErr)
			}
		}
		o.metrics.IncRun(string(enums.RunStatusFailed))
		return result, pkgerrors.Wrap(code, err, msg)
	}

	for i, stage := range o.registry.Stages() {
		if i > 0 {
			// Renew the TTL between stages so a long run keeps exclusive access.
			if err := o.lock.Extend(runCtx); err != nil {
				o.logg.Error(o.logg.WithStage(runCtx, stage.Name()), "load lock lost; stopping run", err)
				return fail(stage.Name(), pkgerrors.CodeLocked, err, fmt.Sprintf("extend load lock before stage %s", stage.Name()))
			}
		}
		if err := o.runStage(runCtx, stage, result.Stats); err != nil {
			return fail(stage.Name(), pkgerrors.CodeStage, err, fmt.Sprintf("stage %s", stage.Name()))
		}
		if !logged {
			// The run log table may only exist once the schema stage has run.
			logged = o.startRunLog(runCtx, result.RunID, startedAt)
		}
	}

	if logged {
		if err := o.runLog.Finish(runCtx, result.RunID, o.now(), result.Stats); err != nil {
			o.logg.Error(runCtx, "failed to record run success", err)
		}
	}
	o.metrics.IncRun(string(enums.RunStatusSuccess))
	o.logg.Info(o.logg.WithField(runCtx, "duration_ms", o.now().Sub(startedAt).Milliseconds()), "load run complete")
	return result, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, stats runlog.Stats) error {
	name := stage.Name()
	stageCtx := o.logg.WithStage(ctx, name)
	stageCtx = o.logg.WithField(stageCtx, "event", "load.stage")
	o.logg.Info(stageCtx, "stage start")

	start := time.Now()
	report, err := stage.Run(stageCtx)
	duration := time.Since(start)
	o.metrics.ObserveDuration(name, duration)
	stageCtx = o.logg.WithField(stageCtx, "duration_ms", duration.Milliseconds())

	for outcome, n := range report {
		stats.Add(name, string(outcome), n)
		o.metrics.AddRows(name, string(outcome), n)
	}

	if err != nil {
		o.logg.Error(o.logg.WithFields(stageCtx, pkgerrors.Dump(err).LogFields()), "stage failed", err)
		o.metrics.IncFailure(name)
		return err
	}
	o.logg.Info(o.logg.WithFields(stageCtx, reportFields(report)), "stage completed")
	o.metrics.IncSuccess(name)
	return nil
}

func (o *Orchestrator) startRunLog(ctx context.Context, runID string, startedAt time.Time) bool {
	if o.runLog == nil {
		return false
	}
	if _, err := o.runLog.Start(ctx, runID, startedAt); err != nil {
		o.logg.Debug(o.logg.WithField(ctx, "error", err.Error()), "run log unavailable")
		return false
	}
	return true
}

func reportFields(report Report) map[string]any {
	fields := make(map[string]any, len(report))
	for outcome, n := range report {
		fields[string(outcome)] = n
	}
	return fields
}
