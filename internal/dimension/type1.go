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

// Type1Params configures a Type1Upserter.
type Type1Params struct {
	Table  Table
	Logger *logger.Logger
	Now    func() time.Time
}

// Type1Upserter overwrites dimension attributes in place when their
// signature changes. One row exists per natural key.
type Type1Upserter struct {
	table Table
	logg  *logger.Logger
	now   func() time.Time
}

// NewType1Upserter validates the params and builds the upserter.
func NewType1Upserter(params Type1Params) (*Type1Upserter, error) {
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
	return &Type1Upserter{table: params.Table, logg: params.Logger, now: now}, nil
}

type storedHash struct {
	NaturalKey string `gorm:"column:natural_key"`
	DataHash   string `gorm:"column:data_hash"`
}

// Upsert applies rows to the dimension inside tx. Each row runs in its own
// savepoint so one failing row is rolled back and the rest proceed. The
// returned error is set only when the pass itself cannot run.
func (u *Type1Upserter) Upsert(ctx context.Context, tx *gorm.DB, rows []Row) (Summary, error) {
	existing, err := u.loadHashes(ctx, tx)
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
		stored, found := existing[key]
		if found && stored == hash {
			sum.add(enums.RowOutcomeUnchanged)
			logOutcome(ctx, u.logg, u.table, key, enums.RowOutcomeUnchanged)
			continue
		}

		outcome, err := u.write(ctx, tx, key, row, hash, found)
		if err != nil {
			rowErr := pkgerrors.Wrap(pkgerrors.CodeRowWrite, err, fmt.Sprintf("%s %s=%s", u.table.Name, u.table.NaturalKey, key))
			sum.fail(rowErr)
			logRowFailure(ctx, u.logg, u.table, key, rowErr)
			continue
		}
		existing[key] = hash
		sum.add(outcome)
		logOutcome(ctx, u.logg, u.table, key, outcome)
	}
	return sum, nil
}

func (u *Type1Upserter) write(ctx context.Context, tx *gorm.DB, key string, row Row, hash string, found bool) (enums.RowOutcome, error) {
	now := u.now().UTC().Truncate(time.Microsecond)
	values := u.table.attributeValues(row)
	values["data_hash"] = hash
	values["updated_at"] = now

	outcome := enums.RowOutcomeUnchanged
	err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		if !found {
			values[u.table.NaturalKey] = key
			values["created_at"] = now
			res := sp.Table(u.table.Name).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: u.table.NaturalKey}}, DoNothing: true}).
				Create(values)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				outcome = enums.RowOutcomeInserted
			}
			return nil
		}

		res := sp.Table(u.table.Name).
			Where(u.table.NaturalKey+" = ?", key).
			Where("data_hash <> ?", hash).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			outcome = enums.RowOutcomeUpdated
		}
		return nil
	})
	if err != nil {
		return enums.RowOutcomeFailed, err
	}
	return outcome, nil
}

func (u *Type1Upserter) loadHashes(ctx context.Context, tx *gorm.DB) (map[string]string, error) {
	var rows []storedHash
	err := tx.WithContext(ctx).
		Table(u.table.Name).
		Select(u.table.NaturalKey + " AS natural_key, data_hash").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load %s signatures: %w", u.table.Name, err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.NaturalKey] = r.DataHash
	}
	return out, nil
}
