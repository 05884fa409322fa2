package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FactSale is an append-only sales fact keyed by the source sale id.
type FactSale struct {
	SaleSK      int64               `gorm:"column:sale_sk;primaryKey;autoIncrement"`
	SaleID      string              `gorm:"column:sale_id;not null;uniqueIndex"`
	ProductSK   *int64              `gorm:"column:product_sk"`
	CustomerSK  *int64              `gorm:"column:customer_sk"`
	StoreSK     *int64              `gorm:"column:store_sk"`
	DateID      *time.Time          `gorm:"column:date_id;type:date"`
	Quantity    *int64              `gorm:"column:quantity"`
	Price       decimal.NullDecimal `gorm:"column:price;type:numeric"`
	TotalAmount decimal.Decimal     `gorm:"column:total_amount;type:numeric;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;not null"`
}

func (FactSale) TableName() string { return "dw.fact_sales" }

// FactCart is an append-only cart fact keyed by the source cart id.
// OpenedAt is the cart's own timestamp from the source, not a load time.
type FactCart struct {
	CartSK     int64           `gorm:"column:cart_sk;primaryKey;autoIncrement"`
	CartID     string          `gorm:"column:cart_id;not null;uniqueIndex"`
	CustomerSK *int64          `gorm:"column:customer_sk"`
	DateID     *time.Time      `gorm:"column:date_id;type:date"`
	OpenedAt   *time.Time      `gorm:"column:created_at"`
	TotalItems int64           `gorm:"column:total_items;not null"`
	TotalValue decimal.Decimal `gorm:"column:total_value;type:numeric;not null"`
}

func (FactCart) TableName() string { return "dw.fact_cart" }
