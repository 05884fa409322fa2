package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/shopdw/api/responses"
	"github.com/angelmondragon/shopdw/pkg/config"
	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

const envHeader = "X-Shopdw-Env"

const recentRunsLimit = 5

// RunHistory reads the run log.
type RunHistory interface {
	LastSuccessful(ctx context.Context) (*models.EtlRunLog, error)
	Recent(ctx context.Context, limit int) ([]models.EtlRunLog, error)
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the warehouse and reports the last successful run and the
// latest attempts when the run log is available. Failure messages are left out
// in prod.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, runs RunHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set(envHeader, cfg.App.Env)

		if err := dbP.Ping(ctx); err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeConnection, err, "ping database")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		body := map[string]any{"status": "ready"}
		if runs != nil {
			// The run log table does not exist before the first load.
			body["last_run"] = nil
			body["recent_runs"] = []map[string]any{}
			if last, err := runs.LastSuccessful(ctx); err == nil && last != nil {
				body["last_run"] = runView(last, false)
			}
			if recent, err := runs.Recent(ctx, recentRunsLimit); err == nil {
				views := make([]map[string]any, 0, len(recent))
				for i := range recent {
					views = append(views, runView(&recent[i], !cfg.App.IsProd()))
				}
				body["recent_runs"] = views
			}
		}
		responses.WriteSuccess(w, body)
	}
}

func runView(run *models.EtlRunLog, withError bool) map[string]any {
	view := map[string]any{
		"run_id":     run.RunID,
		"status":     run.Status,
		"started_at": run.StartedAt.UTC().Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		view["finished_at"] = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	if run.FailedStage != nil {
		view["failed_stage"] = *run.FailedStage
	}
	if withError && run.ErrorMessage != nil {
		view["error_message"] = *run.ErrorMessage
	}
	return view
}
