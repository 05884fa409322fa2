package staging

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/repo"
)

const DefaultSchema = "staging"

type repository struct {
	repo.Base
	schema string
}

// NewRepository builds a staging reader for the given schema. The schema
// name is interpolated into queries and must be validated by the caller.
func NewRepository(db *gorm.DB, schema string) Repository {
	if schema == "" {
		schema = DefaultSchema
	}
	return &repository{Base: repo.NewBase(db), schema: schema}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx), schema: r.schema}
}

func (r *repository) Products(ctx context.Context) ([]Product, error) {
	var rows []Product
	if err := r.scan(ctx, "stg_products", "id, title, category, price", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Stores(ctx context.Context) ([]Store, error) {
	var rows []Store
	if err := r.scan(ctx, "stg_stores", "storekey, store_name, location, country", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Customers(ctx context.Context) ([]Customer, error) {
	var rows []Customer
	if err := r.scan(ctx, "stg_customers", "id, full_name, email, phone, country", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Sales(ctx context.Context) ([]Sale, error) {
	var rows []Sale
	if err := r.scan(ctx, "stg_sales", "id, product_id, user_id, storekey, date, quantity, price", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CartLines(ctx context.Context) ([]CartLine, error) {
	var rows []CartLine
	if err := r.scan(ctx, "stg_carts", "cart_id, user_id, date, product_id, quantity", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) scan(ctx context.Context, table, columns string, dest any) error {
	name := r.schema + "." + table
	if err := r.DB(ctx).Table(name).Select(columns).Scan(dest).Error; err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}
