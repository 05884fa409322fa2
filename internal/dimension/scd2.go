package dimension

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopdw/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

// SCD2Params configures an SCD2Upserter.
type SCD2Params struct {
	Table  Table
	Logger *logger.Logger
	Now    func() time.Time
}

// SCD2Upserter keeps full history: a changed signature closes the current
// version and opens a new one. The table must carry start_date, end_date and
// is_current columns with at most one current row per natural key.
type SCD2Upserter struct {
	table Table
	logg  *logger.Logger
	now   func() time.Time
}

// NewSCD2Upserter validates the params and builds the upserter.
func NewSCD2Upserter(params SCD2Params) (*SCD2Upserter, error) {
	if !params.Table.valid() {
		return nil, fmt.Errorf("dimension table descriptor incomplete")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &SCD2Upserter{table: params.Table, logg: params.Logger, now: now}, nil
}

type currentVersion struct {
	NaturalKey string    `gorm:"column:natural_key"`
	DataHash   string    `gorm:"column:data_hash"`
	StartDate  time.Time `gorm:"column:start_date"`
}

// Upsert applies rows to the history table inside tx. Closing the old
// version and inserting the new one share a savepoint, so a failure leaves
// the previous version current.
func (u *SCD2Upserter) Upsert(ctx context.Context, tx *gorm.DB, rows []Row) (Summary, error) {
	current, err := u.loadCurrent(ctx, tx)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, row := range rows {
		key := normalizeKey(row.NaturalKey)
		if key == "" {
			sum.add(enums.RowOutcomeSkipped)
			logOutcome(ctx, u.logg, u.table, key, enums.RowOutcomeSkipped)
			continue
		}

		hash := u.table.Signature.Compute(row.Attributes)
		cur, found := current[key]
		if found && cur.DataHash == hash {
			sum.add(enums.RowOutcomeUnchanged)
			logOutcome(ctx, u.logg, u.table, key, enums.RowOutcomeUnchanged)
			continue
		}

		now := u.now().UTC().Truncate(time.Microsecond)
		if found && !now.After(cur.StartDate) {
			// Keeps (natural key, start_date) unique and intervals ordered
			// when the clock has not advanced past the current version.
			now = cur.StartDate.Add(time.Microsecond)
		}

		var prev *currentVersion
		if found {
			prev = &cur
		}
		outcome, err := u.write(ctx, tx, key, row, hash, prev, now)
		if err != nil {
			rowErr := pkgerrors.Wrap(pkgerrors.CodeRowWrite, err, fmt.Sprintf("%s %s=%s", u.table.Name, u.table.NaturalKey, key))
			sum.fail(rowErr)
			logRowFailure(ctx, u.logg, u.table, key, rowErr)
			continue
		}
		if outcome != enums.RowOutcomeUnchanged {
			current[key] = currentVersion{NaturalKey: key, DataHash: hash, StartDate: now}
		}
		sum.add(outcome)
		logOutcome(ctx, u.logg, u.table, key, outcome)
	}
	return sum, nil
}

func (u *SCD2Upserter) write(ctx context.Context, tx *gorm.DB, key string, row Row, hash string, prev *currentVersion, now time.Time) (enums.RowOutcome, error) {
	values := u.table.attributeValues(row)
	values[u.table.NaturalKey] = key
	values["data_hash"] = hash
	values["start_date"] = now
	values["end_date"] = nil
	values["is_current"] = true

	outcome := enums.RowOutcomeUnchanged
	err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		if prev == nil {
			res := sp.Table(u.table.Name).Clauses(clause.OnConflict{DoNothing: true}).Create(values)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				outcome = enums.RowOutcomeInserted
			}
			return nil
		}

		closed := sp.Table(u.table.Name).
			Where(u.table.NaturalKey+" = ? AND is_current = ?", key, true).
			Where("data_hash = ?", prev.DataHash).
			Updates(map[string]any{"end_date": now, "is_current": false})
		if closed.Error != nil {
			return fmt.Errorf("close current version: %w", closed.Error)
		}
		if closed.RowsAffected != 1 {
			return fmt.Errorf("close current version: expected 1 row, affected %d", closed.RowsAffected)
		}
		if err := sp.Table(u.table.Name).Create(values).Error; err != nil {
			return fmt.Errorf("insert new version: %w", err)
		}
		outcome = enums.RowOutcomeUpdated
		return nil
	})
	if err != nil {
		return enums.RowOutcomeFailed, err
	}
	return outcome, nil
}

func (u *SCD2Upserter) loadCurrent(ctx context.Context, tx *gorm.DB) (map[string]currentVersion, error) {
	var rows []currentVersion
	err := tx.WithContext(ctx).
		Table(u.table.Name).
		Select(u.table.NaturalKey+" AS natural_key, data_hash, start_date").
		Where("is_current = ?", true).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load current %s versions: %w", u.table.Name, err)
	}
	out := make(map[string]currentVersion, len(rows))
	for _, r := range rows {
		out[r.NaturalKey] = r
	}
	return out, nil
}
