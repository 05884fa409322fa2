package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DimDate is one calendar day. Rows are immutable once inserted.
type DimDate struct {
	DateID    time.Time `gorm:"column:date_id;type:date;primaryKey"`
	Day       int       `gorm:"column:day;not null"`
	Month     int       `gorm:"column:month;not null"`
	Year      int       `gorm:"column:year;not null"`
	Quarter   int       `gorm:"column:quarter;not null"`
	IsWeekend bool      `gorm:"column:is_weekend;not null"`
}

func (DimDate) TableName() string { return "dw.dim_date" }

// DimProduct is a Type 1 product dimension row.
type DimProduct struct {
	ProductSK int64               `gorm:"column:product_sk;primaryKey;autoIncrement"`
	ProductID string              `gorm:"column:product_id;not null;uniqueIndex"`
	Title     *string             `gorm:"column:title"`
	Category  *string             `gorm:"column:category"`
	Price     decimal.NullDecimal `gorm:"column:price;type:numeric"`
	DataHash  string              `gorm:"column:data_hash;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;not null"`
	UpdatedAt time.Time           `gorm:"column:updated_at;not null"`
}

func (DimProduct) TableName() string { return "dw.dim_product" }

// DimStore is a Type 1 store dimension row.
type DimStore struct {
	StoreSK   int64     `gorm:"column:store_sk;primaryKey;autoIncrement"`
	StoreID   string    `gorm:"column:store_id;not null;uniqueIndex"`
	StoreName *string   `gorm:"column:store_name"`
	Location  *string   `gorm:"column:location"`
	Country   *string   `gorm:"column:country"`
	DataHash  string    `gorm:"column:data_hash;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (DimStore) TableName() string { return "dw.dim_store" }

// DimCustomer is one version of a customer. At most one version per
// CustomerID has IsCurrent set, and EndDate is nil exactly when it does.
type DimCustomer struct {
	CustomerSK int64      `gorm:"column:customer_sk;primaryKey;autoIncrement"`
	CustomerID string     `gorm:"column:customer_id;not null"`
	FullName   *string    `gorm:"column:full_name"`
	Email      *string    `gorm:"column:email"`
	Phone      *string    `gorm:"column:phone"`
	Country    *string    `gorm:"column:country"`
	StartDate  time.Time  `gorm:"column:start_date;not null"`
	EndDate    *time.Time `gorm:"column:end_date"`
	IsCurrent  bool       `gorm:"column:is_current;not null;default:true"`
	DataHash   string     `gorm:"column:data_hash;not null"`
}

func (DimCustomer) TableName() string { return "dw.dim_customer" }
