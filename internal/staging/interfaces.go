package staging

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads full staging snapshots. Each call is one table scan.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Products(ctx context.Context) ([]Product, error)
	Stores(ctx context.Context) ([]Store, error)
	Customers(ctx context.Context) ([]Customer, error)
	Sales(ctx context.Context) ([]Sale, error)
	CartLines(ctx context.Context) ([]CartLine, error)
}
