package runlog

import (
	"context"
	"time"

	"github.com/angelmondragon/shopdw/pkg/db/models"
)

// Repository persists one dw.etl_run_log row per orchestrator run.
type Repository interface {
	Start(ctx context.Context, runID string, startedAt time.Time) (*models.EtlRunLog, error)
	Finish(ctx context.Context, runID string, finishedAt time.Time, stats Stats) error
	Fail(ctx context.Context, runID string, finishedAt time.Time, stage string, cause error, stats Stats) error
	LastSuccessful(ctx context.Context) (*models.EtlRunLog, error)
	Recent(ctx context.Context, limit int) ([]models.EtlRunLog, error)
}
