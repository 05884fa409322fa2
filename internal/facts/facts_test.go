package facts

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/calendar"
	"github.com/angelmondragon/shopdw/internal/staging"
	"github.com/angelmondragon/shopdw/pkg/db/dbtest"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

var loadTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func sp(s string) *string { return &s }

func ip(n int64) *int64 { return &n }

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func testParams(batch int) Params {
	return Params{
		Logger:    logger.New(logger.Options{ServiceName: "facts-test", Output: &bytes.Buffer{}}),
		BatchSize: batch,
		Now:       func() time.Time { return loadTime },
	}
}

func seedCalendar(t *testing.T, conn *gorm.DB, start, end time.Time) {
	t.Helper()
	days, err := calendar.Days(start, end)
	require.NoError(t, err)
	require.NoError(t, conn.Create(&days).Error)
}

func seedProduct(t *testing.T, conn *gorm.DB, id, p string) models.DimProduct {
	t.Helper()
	row := models.DimProduct{ProductID: id, Price: price(p), DataHash: "h-" + id, CreatedAt: loadTime, UpdatedAt: loadTime}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func seedCustomerVersion(t *testing.T, conn *gorm.DB, id string, start time.Time, current bool) models.DimCustomer {
	t.Helper()
	row := models.DimCustomer{CustomerID: id, StartDate: start, IsCurrent: current, DataHash: "h-" + id + start.String()}
	if !current {
		end := start.Add(time.Hour)
		row.EndDate = &end
	}
	require.NoError(t, conn.Create(&row).Error)
	if !current {
		require.NoError(t, conn.Model(&models.DimCustomer{}).Where("customer_sk = ?", row.CustomerSK).Update("is_current", false).Error)
	}
	return row
}

func appendSales(t *testing.T, conn *gorm.DB, a *SalesAppender, rows []staging.Sale) (Summary, error) {
	t.Helper()
	var sum Summary
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		sum, err = a.Append(context.Background(), tx, rows)
		return err
	})
	return sum, err
}

func appendCarts(t *testing.T, conn *gorm.DB, a *CartAppender, lines []staging.CartLine) Summary {
	t.Helper()
	var sum Summary
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		sum, err = a.Append(context.Background(), tx, lines)
		return err
	}))
	return sum
}

func TestSaleWithUnknownProductIsLoadedAndNeverBackfilled(t *testing.T) {
	conn := dbtest.Open(t)
	seedCalendar(t, conn, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	appender, err := NewSalesAppender(testParams(100))
	require.NoError(t, err)

	s1 := staging.Sale{ID: sp("S1"), ProductID: sp("P9"), Date: sp("2024-03-05"), Quantity: ip(3), Price: price("10")}
	sum, err := appendSales(t, conn, appender, []staging.Sale{s1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Unresolved["product"])

	var fact models.FactSale
	require.NoError(t, conn.Where("sale_id = ?", "S1").First(&fact).Error)
	assert.Nil(t, fact.ProductSK)
	assert.True(t, decimal.NewFromInt(30).Equal(fact.TotalAmount), "got %s", fact.TotalAmount)
	require.NotNil(t, fact.DateID)
	assert.True(t, fact.DateID.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))

	seedProduct(t, conn, "P9", "10")

	again, err := appendSales(t, conn, appender, []staging.Sale{s1})
	require.NoError(t, err)
	assert.EqualValues(t, 0, again.Inserted)
	assert.Equal(t, 1, again.SkippedExisting)

	var facts []models.FactSale
	require.NoError(t, conn.Find(&facts).Error)
	require.Len(t, facts, 1)
	assert.Nil(t, facts[0].ProductSK, "existing facts are never updated")
}

func TestSalesDedupAcrossRunsAndWithinBatch(t *testing.T) {
	conn := dbtest.Open(t)
	appender, err := NewSalesAppender(testParams(2))
	require.NoError(t, err)

	rows := []staging.Sale{
		{ID: sp("S1"), Quantity: ip(1), Price: price("2")},
		{ID: sp("S2"), Quantity: ip(2), Price: price("2")},
		{ID: sp("S1"), Quantity: ip(9), Price: price("9")},
		{ID: sp("  ")},
		{ID: nil},
		{ID: sp("S3")},
		{ID: sp("S4")},
		{ID: sp("S5")},
	}

	first, err := appendSales(t, conn, appender, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 5, first.Inserted)
	assert.Equal(t, 1, first.SkippedDuplicate)
	assert.Equal(t, 2, first.SkippedEmpty)

	second, err := appendSales(t, conn, appender, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 0, second.Inserted)
	assert.Equal(t, 5, second.SkippedExisting)

	var count int64
	require.NoError(t, conn.Model(&models.FactSale{}).Count(&count).Error)
	assert.EqualValues(t, 5, count)

	var s1 models.FactSale
	require.NoError(t, conn.Where("sale_id = ?", "S1").First(&s1).Error)
	assert.True(t, decimal.NewFromInt(2).Equal(s1.TotalAmount), "first occurrence wins")

	var s3 models.FactSale
	require.NoError(t, conn.Where("sale_id = ?", "S3").First(&s3).Error)
	assert.True(t, s3.TotalAmount.IsZero(), "missing price and quantity total to zero")
	assert.Nil(t, s3.Quantity)
	assert.False(t, s3.Price.Valid)
}

func TestSalesResolveCurrentCustomerStoreAndDate(t *testing.T) {
	conn := dbtest.Open(t)
	seedCalendar(t, conn, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	product := seedProduct(t, conn, "1", "5")
	seedCustomerVersion(t, conn, "7", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), false)
	current := seedCustomerVersion(t, conn, "7", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true)
	store := models.DimStore{StoreID: "ST1", DataHash: "h", CreatedAt: loadTime, UpdatedAt: loadTime}
	require.NoError(t, conn.Create(&store).Error)

	appender, err := NewSalesAppender(testParams(100))
	require.NoError(t, err)
	_, err = appendSales(t, conn, appender, []staging.Sale{
		{ID: sp("A"), ProductID: sp("1"), UserID: sp("7"), StoreKey: sp("ST1"), Date: sp("2024-01-15T10:00:00Z"), Quantity: ip(2), Price: price("5")},
		{ID: sp("B"), ProductID: sp("1"), UserID: sp("99"), StoreKey: sp("nope"), Date: sp("2030-01-01")},
		{ID: sp("C"), Date: sp("garbage")},
	})
	require.NoError(t, err)

	var a, b, c models.FactSale
	require.NoError(t, conn.Where("sale_id = ?", "A").First(&a).Error)
	require.NoError(t, conn.Where("sale_id = ?", "B").First(&b).Error)
	require.NoError(t, conn.Where("sale_id = ?", "C").First(&c).Error)

	require.NotNil(t, a.ProductSK)
	assert.Equal(t, product.ProductSK, *a.ProductSK)
	require.NotNil(t, a.CustomerSK)
	assert.Equal(t, current.CustomerSK, *a.CustomerSK, "resolves to the current customer version")
	require.NotNil(t, a.StoreSK)
	assert.Equal(t, store.StoreSK, *a.StoreSK)
	require.NotNil(t, a.DateID)
	assert.True(t, a.DateID.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, a.CreatedAt.Equal(loadTime))

	assert.Nil(t, b.CustomerSK)
	assert.Nil(t, b.StoreSK)
	assert.Nil(t, b.DateID, "days outside dim_date resolve to null")
	assert.Nil(t, c.DateID, "unparseable dates resolve to null")
}

func TestSalesBatchFailureRollsBackEverything(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, conn.Exec(`CREATE TRIGGER dw.reject_s3 BEFORE INSERT ON fact_sales
WHEN NEW.sale_id = 'S3'
BEGIN
  SELECT RAISE(ABORT, 'rejected by test');
END`).Error)

	appender, err := NewSalesAppender(testParams(2))
	require.NoError(t, err)
	_, err = appendSales(t, conn, appender, []staging.Sale{{ID: sp("S1")}, {ID: sp("S2")}, {ID: sp("S3")}})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeBatch, typed.Code())

	var count int64
	require.NoError(t, conn.Model(&models.FactSale{}).Count(&count).Error)
	assert.Zero(t, count, "the first chunk must roll back with the failed one")
}

func TestExistingKeysChunks(t *testing.T) {
	conn := dbtest.Open(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, conn.Create(&models.FactSale{SaleID: id, CreatedAt: loadTime}).Error)
	}
	found, err := existingKeys(context.Background(), conn, "dw.fact_sales", "sale_id", []string{"a", "x", "c", "y", "e", "z", "b"}, 2)
	require.NoError(t, err)
	assert.Len(t, found, 4)
	for _, k := range []string{"a", "b", "c", "e"} {
		assert.Contains(t, found, k)
	}
}

func TestCartAggregationAndDedup(t *testing.T) {
	conn := dbtest.Open(t)
	seedCalendar(t, conn, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	seedProduct(t, conn, "1", "10.5")
	seedProduct(t, conn, "2", "3")
	customer := seedCustomerVersion(t, conn, "7", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true)

	appender, err := NewCartAppender(testParams(100))
	require.NoError(t, err)
	lines := []staging.CartLine{
		{CartID: sp("1"), UserID: sp("7"), Date: sp("2024-03-02T10:30:00Z"), ProductID: sp("1"), Quantity: ip(2)},
		{CartID: sp("2"), UserID: sp("8"), Date: sp("2024-03-03"), ProductID: sp("404"), Quantity: ip(4)},
		{CartID: sp("1"), UserID: sp("7"), Date: sp("2024-03-02T10:30:00Z"), ProductID: sp("2"), Quantity: ip(1)},
		{CartID: nil, ProductID: sp("1"), Quantity: ip(1)},
	}

	first := appendCarts(t, conn, appender, lines)
	assert.EqualValues(t, 2, first.Inserted)
	assert.Equal(t, 1, first.SkippedEmpty)
	assert.Equal(t, 1, first.Unresolved["product"])
	assert.Equal(t, 1, first.Unresolved["customer"])

	var carts []models.FactCart
	require.NoError(t, conn.Order("cart_id").Find(&carts).Error)
	require.Len(t, carts, 2)

	one := carts[0]
	assert.Equal(t, "1", one.CartID)
	assert.EqualValues(t, 3, one.TotalItems)
	assert.True(t, decimal.NewFromInt(24).Equal(one.TotalValue), "2×10.5 + 1×3, got %s", one.TotalValue)
	require.NotNil(t, one.CustomerSK)
	assert.Equal(t, customer.CustomerSK, *one.CustomerSK)
	require.NotNil(t, one.DateID)
	assert.True(t, one.DateID.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, one.OpenedAt)
	assert.True(t, one.OpenedAt.Equal(time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)))

	two := carts[1]
	assert.EqualValues(t, 4, two.TotalItems)
	assert.True(t, two.TotalValue.IsZero(), "unknown products are valued at zero")
	assert.Nil(t, two.CustomerSK)

	second := appendCarts(t, conn, appender, lines)
	assert.EqualValues(t, 0, second.Inserted)
	assert.Equal(t, 2, second.SkippedExisting)
}

func TestGroupCartLinesKeepsFirstSeenOrder(t *testing.T) {
	carts, skipped := GroupCartLines([]staging.CartLine{
		{CartID: sp("b"), ProductID: sp("1"), Quantity: ip(1)},
		{CartID: sp("a"), UserID: sp(""), ProductID: sp("1")},
		{CartID: sp("a"), UserID: sp("5"), Date: sp("2024-01-01"), ProductID: sp("2"), Quantity: ip(2)},
		{CartID: sp(" "), ProductID: sp("3")},
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, carts, 2)
	assert.Equal(t, "b", carts[0].CartID)
	assert.Equal(t, "a", carts[1].CartID)
	assert.Equal(t, "5", carts[1].UserID, "first non-empty user wins")
	require.NotNil(t, carts[1].Date)
	assert.Equal(t, "2024-01-01", *carts[1].Date)

	items, value := carts[1].Totals(func(string) decimal.Decimal { return decimal.NewFromInt(2) })
	assert.EqualValues(t, 2, items)
	assert.True(t, decimal.NewFromInt(4).Equal(value))
}

func TestNewAppendersRequireLogger(t *testing.T) {
	_, err := NewSalesAppender(Params{})
	require.Error(t, err)
	_, err = NewCartAppender(Params{})
	require.Error(t, err)
}
