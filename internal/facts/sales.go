// Package facts appends sales and cart facts. Facts are insert-only: a
// natural key is loaded at most once and existing rows are never updated.
package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopdw/internal/staging"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

const defaultBatchSize = 1000

// Params configures an appender.
type Params struct {
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

func (p Params) validate() (Params, error) {
	if p.Logger == nil {
		return p, fmt.Errorf("logger required")
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p, nil
}

// SalesAppender loads stg_sales into fact_sales.
type SalesAppender struct {
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewSalesAppender(params Params) (*SalesAppender, error) {
	p, err := params.validate()
	if err != nil {
		return nil, err
	}
	return &SalesAppender{logg: p.Logger, batchSize: p.BatchSize, now: p.Now}, nil
}

// Append resolves and bulk-inserts the sales not yet loaded. A failed insert
// returns a BATCH_FAILED error and the caller must roll tx back.
func (a *SalesAppender) Append(ctx context.Context, tx *gorm.DB, rows []staging.Sale) (Summary, error) {
	sum := Summary{Read: len(rows)}

	seen := make(map[string]struct{}, len(rows))
	candidates := make([]staging.Sale, 0, len(rows))
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		key := staging.Key(row.ID)
		if key == "" {
			sum.SkippedEmpty++
			continue
		}
		if _, dup := seen[key]; dup {
			sum.SkippedDuplicate++
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, row)
		keys = append(keys, key)
	}
	if len(candidates) == 0 {
		return sum, nil
	}

	existing, err := existingKeys(ctx, tx, "dw.fact_sales", "sale_id", keys, a.batchSize)
	if err != nil {
		return sum, err
	}

	resolver, err := LoadKeyResolver(ctx, tx)
	if err != nil {
		return sum, err
	}

	now := a.now().UTC().Truncate(time.Microsecond)
	facts := make([]models.FactSale, 0, len(candidates))
	for _, row := range candidates {
		key := staging.Key(row.ID)
		if _, ok := existing[key]; ok {
			sum.SkippedExisting++
			continue
		}
		fact := models.FactSale{
			SaleID:      key,
			ProductSK:   resolver.Product(staging.Key(row.ProductID)),
			CustomerSK:  resolver.Customer(staging.Key(row.UserID)),
			StoreSK:     resolver.Store(staging.Key(row.StoreKey)),
			DateID:      resolver.Day(row.Date),
			Quantity:    row.Quantity,
			Price:       row.Price,
			TotalAmount: saleTotal(row.Price, row.Quantity),
			CreatedAt:   now,
		}
		if fact.ProductSK == nil {
			sum.unresolved("product")
		}
		if fact.CustomerSK == nil {
			sum.unresolved("customer")
		}
		if fact.StoreSK == nil {
			sum.unresolved("store")
		}
		if fact.DateID == nil {
			sum.unresolved("date")
		}
		facts = append(facts, fact)
	}
	if len(facts) == 0 {
		return sum, nil
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sale_id"}}, DoNothing: true}).
		CreateInBatches(&facts, a.batchSize)
	if res.Error != nil {
		return sum, pkgerrors.Wrap(pkgerrors.CodeBatch, res.Error, fmt.Sprintf("insert %d fact_sales rows", len(facts)))
	}
	sum.Inserted = res.RowsAffected
	a.logg.Info(a.logg.WithFields(ctx, summaryFields("fact_sales", sum)), "fact batch appended")
	return sum, nil
}

// saleTotal is price × quantity with missing values treated as zero.
func saleTotal(price decimal.NullDecimal, quantity *int64) decimal.Decimal {
	if !price.Valid || quantity == nil {
		return decimal.Zero
	}
	return price.Decimal.Mul(decimal.NewFromInt(*quantity))
}

func summaryFields(table string, sum Summary) map[string]any {
	fields := map[string]any{
		"table":             table,
		"read":              sum.Read,
		"inserted":          sum.Inserted,
		"skipped_empty":     sum.SkippedEmpty,
		"skipped_duplicate": sum.SkippedDuplicate,
		"skipped_existing":  sum.SkippedExisting,
	}
	for ref, n := range sum.Unresolved {
		fields["unresolved_"+ref] = n
	}
	return fields
}
