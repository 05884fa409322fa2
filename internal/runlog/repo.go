// Package runlog records the outcome of every warehouse load run.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/repo"
	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	"github.com/angelmondragon/shopdw/pkg/enums"
)

// ErrDuplicateRun is returned when a run id has already been recorded.
var ErrDuplicateRun = errors.New("run already recorded")

// maxErrorMessage bounds the stored error text.
const maxErrorMessage = 4000

// Stats holds row counts per stage and outcome, e.g. stats["dim_product"]["inserted"].
type Stats map[string]map[string]int

// Add accumulates n rows for stage/outcome, ignoring zero counts.
func (s Stats) Add(stage, outcome string, n int) {
	if n == 0 {
		return
	}
	if s[stage] == nil {
		s[stage] = map[string]int{}
	}
	s[stage][outcome] += n
}

// Decode parses the JSON stats column of a run log row.
func Decode(row *models.EtlRunLog) (Stats, error) {
	stats := Stats{}
	if row == nil || row.Stats == "" {
		return stats, nil
	}
	if err := json.Unmarshal([]byte(row.Stats), &stats); err != nil {
		return nil, fmt.Errorf("decode run stats: %w", err)
	}
	return stats, nil
}

type repository struct {
	repo.Base
}

// NewRepository builds a run log repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Start(ctx context.Context, runID string, startedAt time.Time) (*models.EtlRunLog, error) {
	row := &models.EtlRunLog{
		RunID:     runID,
		StartedAt: startedAt.UTC(),
		Status:    string(enums.RunStatusInProgress),
		Stats:     "{}",
	}
	if err := r.DB(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRun, runID)
		}
		return nil, fmt.Errorf("create run log: %w", err)
	}
	return row, nil
}

func (r *repository) Finish(ctx context.Context, runID string, finishedAt time.Time, stats Stats) error {
	encoded, err := encode(stats)
	if err != nil {
		return err
	}
	return r.update(ctx, runID, map[string]any{
		"finished_at": finishedAt.UTC(),
		"status":      string(enums.RunStatusSuccess),
		"stats":       encoded,
	})
}

func (r *repository) Fail(ctx context.Context, runID string, finishedAt time.Time, stage string, cause error, stats Stats) error {
	encoded, err := encode(stats)
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	msg = truncate(msg, maxErrorMessage)
	return r.update(ctx, runID, map[string]any{
		"finished_at":   finishedAt.UTC(),
		"status":        string(enums.RunStatusFailed),
		"failed_stage":  stage,
		"error_message": msg,
		"stats":         encoded,
	})
}

// LastSuccessful returns the most recent successful run, or nil when none exists.
func (r *repository) LastSuccessful(ctx context.Context) (*models.EtlRunLog, error) {
	var row models.EtlRunLog
	err := r.DB(ctx).
		Where("status = ?", string(enums.RunStatusSuccess)).
		Order("finished_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("last successful run: %w", err)
	}
	return &row, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]models.EtlRunLog, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []models.EtlRunLog
	err := r.DB(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return rows, nil
}

func (r *repository) update(ctx context.Context, runID string, values map[string]any) error {
	res := r.DB(ctx).
		Model(&models.EtlRunLog{}).
		Where("run_id = ? AND status = ?", runID, string(enums.RunStatusInProgress)).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update run log %s: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run log %s not found or already finished", runID)
	}
	return nil
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func encode(stats Stats) (string, error) {
	if stats == nil {
		return "{}", nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("encode run stats: %w", err)
	}
	return string(b), nil
}
