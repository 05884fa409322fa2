// Package calendar generates and loads the dim_date dimension.
package calendar

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopdw/pkg/db/models"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

const defaultBatchSize = 500

// Truncate returns midnight UTC of the calendar day t falls on in its own location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayOf derives the calendar attributes of t's day.
func DayOf(t time.Time) models.DimDate {
	day := Truncate(t)
	weekday := day.Weekday()
	return models.DimDate{
		DateID:    day,
		Day:       day.Day(),
		Month:     int(day.Month()),
		Year:      day.Year(),
		Quarter:   (int(day.Month())-1)/3 + 1,
		IsWeekend: weekday == time.Saturday || weekday == time.Sunday,
	}
}

// Days returns one row per day from start to end inclusive.
func Days(start, end time.Time) ([]models.DimDate, error) {
	from, to := Truncate(start), Truncate(end)
	if from.After(to) {
		return nil, fmt.Errorf("date range start %s is after end %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	days := make([]models.DimDate, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, DayOf(d))
	}
	return days, nil
}

// LoaderParams configures a Loader.
type LoaderParams struct {
	Logger    *logger.Logger
	BatchSize int
}

// Loader inserts missing calendar days. Existing days are never rewritten.
type Loader struct {
	logg      *logger.Logger
	batchSize int
}

// Result reports how many days were generated and how many were new.
type Result struct {
	Generated int
	Inserted  int64
}

func NewLoader(params LoaderParams) (*Loader, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Loader{logg: params.Logger, batchSize: batch}, nil
}

// Load generates start..end and inserts the days not yet present.
func (l *Loader) Load(ctx context.Context, tx *gorm.DB, start, end time.Time) (Result, error) {
	days, err := Days(start, end)
	if err != nil {
		return Result{}, err
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "date_id"}}, DoNothing: true}).
		CreateInBatches(&days, l.batchSize)
	if res.Error != nil {
		return Result{}, fmt.Errorf("insert dim_date: %w", res.Error)
	}
	out := Result{Generated: len(days), Inserted: res.RowsAffected}
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"range_start": days[0].DateID.Format(time.DateOnly),
		"range_end":   days[len(days)-1].DateID.Format(time.DateOnly),
		"generated":   out.Generated,
		"inserted":    out.Inserted,
	}), "date dimension loaded")
	return out, nil
}
