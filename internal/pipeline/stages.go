package pipeline

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/calendar"
	"github.com/angelmondragon/shopdw/internal/dimension"
	"github.com/angelmondragon/shopdw/internal/facts"
	"github.com/angelmondragon/shopdw/internal/staging"
	"github.com/angelmondragon/shopdw/pkg/config"
	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/enums"
	"github.com/angelmondragon/shopdw/pkg/logger"
	"github.com/angelmondragon/shopdw/pkg/migrate"
)

// StageParams carry the dependencies shared by the standard stages.
type StageParams struct {
	Logger    *logger.Logger
	DB        *gorm.DB
	Tx        db.TxRunner
	Staging   staging.Repository
	Warehouse config.WarehouseConfig
	Now       func() time.Time
}

// NewStages builds the registry with every stage in load order.
func NewStages(params StageParams) (*Registry, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Tx == nil {
		params.Tx = db.Wrap(params.DB)
	}
	if params.Staging == nil {
		params.Staging = staging.NewRepository(params.DB, params.Warehouse.StagingSchema)
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	logg := params.Logger
	batch := params.Warehouse.BatchSize

	dates, err := calendar.NewLoader(calendar.LoaderParams{Logger: logg, BatchSize: batch})
	if err != nil {
		return nil, err
	}
	products, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable, Logger: logg, Now: params.Now})
	if err != nil {
		return nil, err
	}
	stores, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.StoreTable, Logger: logg, Now: params.Now})
	if err != nil {
		return nil, err
	}
	customers, err := dimension.NewSCD2Upserter(dimension.SCD2Params{Table: dimension.CustomerTable, Logger: logg, Now: params.Now})
	if err != nil {
		return nil, err
	}
	factParams := facts.Params{Logger: logg, BatchSize: batch, Now: params.Now}
	sales, err := facts.NewSalesAppender(factParams)
	if err != nil {
		return nil, err
	}
	carts, err := facts.NewCartAppender(factParams)
	if err != nil {
		return nil, err
	}

	return NewRegistry(
		&SchemaStage{logg: logg, db: params.DB},
		&DateStage{logg: logg, tx: params.Tx, loader: dates, warehouse: params.Warehouse, now: params.Now},
		&DimensionStage{
			name: StageDimProduct, logg: logg, tx: params.Tx, staging: params.Staging, upserter: products,
			read: func(ctx context.Context, repo staging.Repository) ([]dimension.Row, error) {
				rows, err := repo.Products(ctx)
				return productRows(rows), err
			},
		},
		&DimensionStage{
			name: StageDimStore, logg: logg, tx: params.Tx, staging: params.Staging, upserter: stores,
			read: func(ctx context.Context, repo staging.Repository) ([]dimension.Row, error) {
				rows, err := repo.Stores(ctx)
				return storeRows(rows), err
			},
		},
		&DimensionStage{
			name: StageDimCustomer, logg: logg, tx: params.Tx, staging: params.Staging, upserter: customers,
			read: func(ctx context.Context, repo staging.Repository) ([]dimension.Row, error) {
				rows, err := repo.Customers(ctx)
				return customerRows(rows), err
			},
		},
		&SalesStage{tx: params.Tx, staging: params.Staging, appender: sales},
		&CartStage{tx: params.Tx, staging: params.Staging, appender: carts},
	), nil
}

// SchemaStage applies pending warehouse migrations.
type SchemaStage struct {
	logg *logger.Logger
	db   *gorm.DB
}

func (s *SchemaStage) Name() string { return StageEnsureSchema }

func (s *SchemaStage) Run(ctx context.Context) (Report, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	res, err := migrate.Up(ctx, sqlDB, s.db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"applied": len(res.Applied),
		"version": res.Current,
	}), "warehouse schema ready")
	return Report{}, nil
}

// DateStage fills dim_date for the configured range.
type DateStage struct {
	logg      *logger.Logger
	tx        db.TxRunner
	loader    *calendar.Loader
	warehouse config.WarehouseConfig
	now       func() time.Time
}

func (s *DateStage) Name() string { return StageDimDate }

func (s *DateStage) Run(ctx context.Context) (Report, error) {
	start, end, err := s.warehouse.DateRange(s.now())
	if err != nil {
		return nil, err
	}
	var res calendar.Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var loadErr error
		res, loadErr = s.loader.Load(ctx, tx, start, end)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return Report{
		enums.RowOutcomeInserted:  int(res.Inserted),
		enums.RowOutcomeUnchanged: res.Generated - int(res.Inserted),
	}, nil
}

type upserter interface {
	Upsert(ctx context.Context, tx *gorm.DB, rows []dimension.Row) (dimension.Summary, error)
}

// DimensionStage reads one staging table and applies it to a dimension in a
// single transaction. Row failures are counted, not returned.
type DimensionStage struct {
	name     string
	logg     *logger.Logger
	tx       db.TxRunner
	staging  staging.Repository
	upserter upserter
	read     func(ctx context.Context, repo staging.Repository) ([]dimension.Row, error)
}

func (s *DimensionStage) Name() string { return s.name }

func (s *DimensionStage) Run(ctx context.Context) (Report, error) {
	var sum dimension.Summary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.read(ctx, s.staging.WithTx(tx))
		if err != nil {
			return err
		}
		sum, err = s.upserter.Upsert(ctx, tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"inserted":  sum.Inserted,
		"updated":   sum.Updated,
		"unchanged": sum.Unchanged,
		"skipped":   sum.Skipped,
		"failed":    sum.Failed,
		"writes":    sum.Writes(),
	}), "dimension loaded")
	return sum.Counts(), nil
}

// SalesStage appends new staging sales to fact_sales.
type SalesStage struct {
	tx       db.TxRunner
	staging  staging.Repository
	appender *facts.SalesAppender
}

func (s *SalesStage) Name() string { return StageFactSales }

func (s *SalesStage) Run(ctx context.Context) (Report, error) {
	var sum facts.Summary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.staging.WithTx(tx).Sales(ctx)
		if err != nil {
			return err
		}
		sum, err = s.appender.Append(ctx, tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum.Counts(), nil
}

// CartStage aggregates staging cart lines into fact_cart.
type CartStage struct {
	tx       db.TxRunner
	staging  staging.Repository
	appender *facts.CartAppender
}

func (s *CartStage) Name() string { return StageFactCart }

func (s *CartStage) Run(ctx context.Context) (Report, error) {
	var sum facts.Summary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines, err := s.staging.WithTx(tx).CartLines(ctx)
		if err != nil {
			return err
		}
		sum, err = s.appender.Append(ctx, tx, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum.Counts(), nil
}
