package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopdw/internal/calendar"
	"github.com/angelmondragon/shopdw/internal/staging"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

// CartAppender loads flattened stg_carts lines into one fact_cart row per cart.
type CartAppender struct {
	logg      *logger.Logger
	batchSize int
}

func NewCartAppender(params Params) (*CartAppender, error) {
	p, err := params.validate()
	if err != nil {
		return nil, err
	}
	return &CartAppender{logg: p.Logger, batchSize: p.BatchSize}, nil
}

// Cart is the aggregate of one cart's staging lines.
type Cart struct {
	CartID string
	UserID string
	Date   *string
	Lines  []CartItem
}

// CartItem is one product line of a cart.
type CartItem struct {
	ProductID string
	Quantity  int64
}

// GroupCartLines folds lines into carts in order of first appearance. The
// first non-empty user and date seen for a cart win. Lines without a cart id
// are counted and dropped.
func GroupCartLines(lines []staging.CartLine) ([]Cart, int) {
	index := map[string]int{}
	var carts []Cart
	skipped := 0
	for _, line := range lines {
		id := staging.Key(line.CartID)
		if id == "" {
			skipped++
			continue
		}
		pos, ok := index[id]
		if !ok {
			pos = len(carts)
			index[id] = pos
			carts = append(carts, Cart{CartID: id})
		}
		cart := &carts[pos]
		if cart.UserID == "" {
			cart.UserID = staging.Key(line.UserID)
		}
		if cart.Date == nil && line.Date != nil && staging.Key(line.Date) != "" {
			cart.Date = line.Date
		}
		var qty int64
		if line.Quantity != nil {
			qty = *line.Quantity
		}
		cart.Lines = append(cart.Lines, CartItem{ProductID: staging.Key(line.ProductID), Quantity: qty})
	}
	return carts, skipped
}

// Totals returns Σ quantity and Σ quantity × price(product).
func (c Cart) Totals(price func(productID string) decimal.Decimal) (int64, decimal.Decimal) {
	var items int64
	value := decimal.Zero
	for _, line := range c.Lines {
		items += line.Quantity
		value = value.Add(price(line.ProductID).Mul(decimal.NewFromInt(line.Quantity)))
	}
	return items, value
}

// Append groups, resolves, and bulk-inserts the carts not yet loaded.
func (a *CartAppender) Append(ctx context.Context, tx *gorm.DB, lines []staging.CartLine) (Summary, error) {
	carts, empty := GroupCartLines(lines)
	sum := Summary{Read: len(lines), SkippedEmpty: empty}
	if len(carts) == 0 {
		return sum, nil
	}

	keys := make([]string, len(carts))
	for i, c := range carts {
		keys[i] = c.CartID
	}
	existing, err := existingKeys(ctx, tx, "dw.fact_cart", "cart_id", keys, a.batchSize)
	if err != nil {
		return sum, err
	}

	resolver, err := LoadKeyResolver(ctx, tx)
	if err != nil {
		return sum, err
	}

	facts := make([]models.FactCart, 0, len(carts))
	for _, cart := range carts {
		if _, ok := existing[cart.CartID]; ok {
			sum.SkippedExisting++
			continue
		}
		items, value := cart.Totals(resolver.ProductPrice)
		fact := models.FactCart{
			CartID:     cart.CartID,
			CustomerSK: resolver.Customer(cart.UserID),
			DateID:     resolver.Day(cart.Date),
			OpenedAt:   openedAt(cart.Date),
			TotalItems: items,
			TotalValue: value,
		}
		if fact.CustomerSK == nil {
			sum.unresolved("customer")
		}
		if fact.DateID == nil {
			sum.unresolved("date")
		}
		for _, line := range cart.Lines {
			if resolver.Product(line.ProductID) == nil {
				sum.unresolved("product")
			}
		}
		facts = append(facts, fact)
	}
	if len(facts) == 0 {
		return sum, nil
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "cart_id"}}, DoNothing: true}).
		CreateInBatches(&facts, a.batchSize)
	if res.Error != nil {
		return sum, pkgerrors.Wrap(pkgerrors.CodeBatch, res.Error, fmt.Sprintf("insert %d fact_cart rows", len(facts)))
	}
	sum.Inserted = res.RowsAffected
	a.logg.Info(a.logg.WithFields(ctx, summaryFields("fact_cart", sum)), "fact batch appended")
	return sum, nil
}

func openedAt(value *string) *time.Time {
	if value == nil {
		return nil
	}
	ts, ok := calendar.ParseTimestamp(*value)
	if !ok {
		return nil
	}
	ts = ts.Truncate(time.Microsecond)
	return &ts
}
