package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/calendar"
)

// KeyResolver maps natural keys to surrogate keys from maps loaded once per
// stage. Customers resolve to their current version only.
type KeyResolver struct {
	products  map[string]int64
	prices    map[string]decimal.Decimal
	stores    map[string]int64
	customers map[string]int64
	days      map[string]time.Time
}

type productKey struct {
	ProductID string              `gorm:"column:product_id"`
	ProductSK int64               `gorm:"column:product_sk"`
	Price     decimal.NullDecimal `gorm:"column:price"`
}

type storeKey struct {
	StoreID string `gorm:"column:store_id"`
	StoreSK int64  `gorm:"column:store_sk"`
}

type customerKey struct {
	CustomerID string `gorm:"column:customer_id"`
	CustomerSK int64  `gorm:"column:customer_sk"`
}

// LoadKeyResolver reads the dimension key maps through tx.
func LoadKeyResolver(ctx context.Context, tx *gorm.DB) (*KeyResolver, error) {
	db := tx.WithContext(ctx)
	r := &KeyResolver{
		products:  map[string]int64{},
		prices:    map[string]decimal.Decimal{},
		stores:    map[string]int64{},
		customers: map[string]int64{},
		days:      map[string]time.Time{},
	}

	var products []productKey
	if err := db.Table("dw.dim_product").Select("product_id, product_sk, price").Scan(&products).Error; err != nil {
		return nil, fmt.Errorf("load product keys: %w", err)
	}
	for _, p := range products {
		r.products[p.ProductID] = p.ProductSK
		if p.Price.Valid {
			r.prices[p.ProductID] = p.Price.Decimal
		}
	}

	var stores []storeKey
	if err := db.Table("dw.dim_store").Select("store_id, store_sk").Scan(&stores).Error; err != nil {
		return nil, fmt.Errorf("load store keys: %w", err)
	}
	for _, s := range stores {
		r.stores[s.StoreID] = s.StoreSK
	}

	var customers []customerKey
	if err := db.Table("dw.dim_customer").
		Select("customer_id, customer_sk").
		Where("is_current = ?", true).
		Scan(&customers).Error; err != nil {
		return nil, fmt.Errorf("load customer keys: %w", err)
	}
	for _, c := range customers {
		r.customers[c.CustomerID] = c.CustomerSK
	}

	var days []time.Time
	if err := db.Table("dw.dim_date").Pluck("date_id", &days).Error; err != nil {
		return nil, fmt.Errorf("load calendar days: %w", err)
	}
	for _, d := range days {
		day := calendar.Truncate(d)
		r.days[day.Format(time.DateOnly)] = day
	}
	return r, nil
}

func (r *KeyResolver) Product(productID string) *int64 {
	return lookup(r.products, productID)
}

func (r *KeyResolver) Store(storeID string) *int64 {
	return lookup(r.stores, storeID)
}

func (r *KeyResolver) Customer(customerID string) *int64 {
	return lookup(r.customers, customerID)
}

// ProductPrice returns the dimension price, or zero when unknown.
func (r *KeyResolver) ProductPrice(productID string) decimal.Decimal {
	if price, ok := r.prices[productID]; ok {
		return price
	}
	return decimal.Zero
}

// Day resolves a staging date value to a dim_date key. Unparseable values
// and days outside the loaded calendar resolve to nil.
func (r *KeyResolver) Day(value *string) *time.Time {
	if value == nil {
		return nil
	}
	day, ok := calendar.ParseDay(*value)
	if !ok {
		return nil
	}
	stored, ok := r.days[day.Format(time.DateOnly)]
	if !ok {
		return nil
	}
	return &stored
}

func lookup(m map[string]int64, key string) *int64 {
	if key == "" {
		return nil
	}
	sk, ok := m[key]
	if !ok {
		return nil
	}
	return &sk
}
