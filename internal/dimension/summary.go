package dimension

import (
	"context"

	"go.uber.org/multierr"

	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

// Summary counts per-row outcomes of one upsert pass. Errs aggregates the
// row failures; a non-nil Errs never fails the stage on its own.
type Summary struct {
	Inserted  int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Errs      error
}

// Writes is the number of rows that changed the table.
func (s Summary) Writes() int {
	return s.Inserted + s.Updated
}

// Counts keys the summary by row outcome.
func (s Summary) Counts() map[enums.RowOutcome]int {
	return map[enums.RowOutcome]int{
		enums.RowOutcomeInserted:  s.Inserted,
		enums.RowOutcomeUpdated:   s.Updated,
		enums.RowOutcomeUnchanged: s.Unchanged,
		enums.RowOutcomeSkipped:   s.Skipped,
		enums.RowOutcomeFailed:    s.Failed,
	}
}

func (s *Summary) add(outcome enums.RowOutcome) {
	switch outcome {
	case enums.RowOutcomeInserted:
		s.Inserted++
	case enums.RowOutcomeUpdated:
		s.Updated++
	case enums.RowOutcomeUnchanged:
		s.Unchanged++
	case enums.RowOutcomeSkipped:
		s.Skipped++
	case enums.RowOutcomeFailed:
		s.Failed++
	}
}

func (s *Summary) fail(err error) {
	s.Failed++
	s.Errs = multierr.Append(s.Errs, err)
}

func logOutcome(ctx context.Context, logg *logger.Logger, table Table, key string, outcome enums.RowOutcome) {
	if logg == nil {
		return
	}
	rowCtx := logg.WithFields(logg.WithTable(ctx, table.Name), map[string]any{
		"natural_key": key,
		"outcome":     string(outcome),
	})
	switch outcome {
	case enums.RowOutcomeInserted, enums.RowOutcomeUpdated:
		logg.Info(rowCtx, "dimension row written")
	default:
		logg.Debug(rowCtx, "dimension row processed")
	}
}

func logRowFailure(ctx context.Context, logg *logger.Logger, table Table, key string, err error) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Dump(err).LogFields()
	fields["natural_key"] = key
	fields["outcome"] = string(enums.RowOutcomeFailed)
	fields["unique_violation"] = db.IsUniqueViolation(err, "")
	delete(fields, "error")
	logg.Error(logg.WithFields(logg.WithTable(ctx, table.Name), fields), "dimension row write failed", err)
}
