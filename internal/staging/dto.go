package staging

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Staging columns are loosely typed after JSON flattening, so every field is
// nullable and natural keys are read as text whatever their column type.

type Product struct {
	ID       *string             `gorm:"column:id"`
	Title    *string             `gorm:"column:title"`
	Category *string             `gorm:"column:category"`
	Price    decimal.NullDecimal `gorm:"column:price"`
}

type Store struct {
	StoreKey  *string `gorm:"column:storekey"`
	StoreName *string `gorm:"column:store_name"`
	Location  *string `gorm:"column:location"`
	Country   *string `gorm:"column:country"`
}

type Customer struct {
	ID       *string `gorm:"column:id"`
	FullName *string `gorm:"column:full_name"`
	Email    *string `gorm:"column:email"`
	Phone    *string `gorm:"column:phone"`
	Country  *string `gorm:"column:country"`
}

type Sale struct {
	ID        *string             `gorm:"column:id"`
	ProductID *string             `gorm:"column:product_id"`
	UserID    *string             `gorm:"column:user_id"`
	StoreKey  *string             `gorm:"column:storekey"`
	Date      *string             `gorm:"column:date"`
	Quantity  *int64              `gorm:"column:quantity"`
	Price     decimal.NullDecimal `gorm:"column:price"`
}

// CartLine is one product line of a flattened cart.
type CartLine struct {
	CartID    *string `gorm:"column:cart_id"`
	UserID    *string `gorm:"column:user_id"`
	Date      *string `gorm:"column:date"`
	ProductID *string `gorm:"column:product_id"`
	Quantity  *int64  `gorm:"column:quantity"`
}

// Key trims a nullable natural key; nil and blank keys both yield "".
func Key(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
