package dimension_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/internal/dimension"
	"github.com/angelmondragon/shopdw/internal/signature"
	"github.com/angelmondragon/shopdw/pkg/db/dbtest"
	"github.com/angelmondragon/shopdw/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func testLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "dimension-test", Level: zerolog.DebugLevel, Output: buf})
}

func upsertType1(t *testing.T, conn *gorm.DB, u *dimension.Type1Upserter, rows []dimension.Row) dimension.Summary {
	t.Helper()
	var sum dimension.Summary
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		sum, err = u.Upsert(context.Background(), tx, rows)
		return err
	}))
	return sum
}

func upsertSCD2(t *testing.T, conn *gorm.DB, u *dimension.SCD2Upserter, rows []dimension.Row) dimension.Summary {
	t.Helper()
	var sum dimension.Summary
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		sum, err = u.Upsert(context.Background(), tx, rows)
		return err
	}))
	return sum
}

func productRow(id, title, category, price string) dimension.Row {
	return dimension.Row{
		NaturalKey: id,
		Attributes: signature.Record{
			"title":    title,
			"category": category,
			"price":    decimal.NewNullDecimal(decimal.RequireFromString(price)),
		},
	}
}

func customerRow(id, name, email string) dimension.Row {
	return dimension.Row{
		NaturalKey: id,
		Attributes: signature.Record{"full_name": name, "email": email},
	}
}

func TestNewUpsertersValidateParams(t *testing.T) {
	_, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable})
	require.Error(t, err)
	_, err = dimension.NewType1Upserter(dimension.Type1Params{Logger: testLogger(&bytes.Buffer{})})
	require.Error(t, err)
	_, err = dimension.NewSCD2Upserter(dimension.SCD2Params{Table: dimension.Table{Name: "dw.x"}, Logger: testLogger(&bytes.Buffer{})})
	require.Error(t, err)
}

func TestType1InsertsThenNoWritesOnUnchangedRerun(t *testing.T) {
	conn := dbtest.Open(t)
	clock := newStepClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Minute)
	u, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable, Logger: testLogger(&bytes.Buffer{}), Now: clock.Now})
	require.NoError(t, err)

	rows := []dimension.Row{
		productRow("1", "Backpack", "bags", "109.95"),
		productRow("2", "Shirt", "men's clothing", "22.3"),
	}

	first := upsertType1(t, conn, u, rows)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 2, first.Writes())
	assert.NoError(t, first.Errs)

	var before []models.DimProduct
	require.NoError(t, conn.Order("product_id").Find(&before).Error)
	require.Len(t, before, 2)
	assert.Equal(t, dimension.ProductTable.Signature.Compute(rows[0].Attributes), before[0].DataHash)
	assert.True(t, before[0].CreatedAt.Equal(before[0].UpdatedAt))

	second := upsertType1(t, conn, u, rows)
	assert.Equal(t, 0, second.Writes())
	assert.Equal(t, 2, second.Unchanged)

	var after []models.DimProduct
	require.NoError(t, conn.Order("product_id").Find(&after).Error)
	for i := range before {
		assert.Equal(t, before[i].ProductSK, after[i].ProductSK)
		assert.True(t, before[i].UpdatedAt.Equal(after[i].UpdatedAt), "unchanged rows must not be touched")
	}
}

func TestRowWritesAreLoggedAtInfo(t *testing.T) {
	conn := dbtest.Open(t)
	var logs bytes.Buffer
	infoLogger := logger.New(logger.Options{ServiceName: "dimension-test", Level: zerolog.InfoLevel, Output: &logs})
	u, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable, Logger: infoLogger})
	require.NoError(t, err)

	rows := []dimension.Row{productRow("1", "Backpack", "bags", "109.95")}
	upsertType1(t, conn, u, rows)
	assert.Contains(t, logs.String(), "dimension row written")
	assert.Contains(t, logs.String(), `"natural_key":"1"`)
	assert.Contains(t, logs.String(), `"outcome":"inserted"`)

	logs.Reset()
	upsertType1(t, conn, u, rows)
	assert.NotContains(t, logs.String(), `"natural_key":"1"`, "unchanged rows stay at debug")
}

func TestType1OverwritesChangedAttributes(t *testing.T) {
	conn := dbtest.Open(t)
	clock := newStepClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour)
	u, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable, Logger: testLogger(&bytes.Buffer{}), Now: clock.Now})
	require.NoError(t, err)

	upsertType1(t, conn, u, []dimension.Row{productRow("1", "Backpack", "bags", "109.95")})
	var original models.DimProduct
	require.NoError(t, conn.Where("product_id = ?", "1").First(&original).Error)

	sum := upsertType1(t, conn, u, []dimension.Row{productRow("1", "Backpack", "bags", "99.99")})
	assert.Equal(t, 1, sum.Updated)

	var rows []models.DimProduct
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1, "type 1 keeps one row per natural key")
	updated := rows[0]
	assert.Equal(t, original.ProductSK, updated.ProductSK)
	assert.True(t, decimal.RequireFromString("99.99").Equal(updated.Price.Decimal))
	assert.NotEqual(t, original.DataHash, updated.DataHash)
	assert.True(t, original.CreatedAt.Equal(updated.CreatedAt), "created_at is set once")
	assert.True(t, updated.UpdatedAt.After(original.UpdatedAt))
}

func TestType1SkipsEmptyKeysAndHandlesInBatchDuplicates(t *testing.T) {
	conn := dbtest.Open(t)
	u, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.StoreTable, Logger: testLogger(&bytes.Buffer{})})
	require.NoError(t, err)

	sum := upsertType1(t, conn, u, []dimension.Row{
		{NaturalKey: "  ", Attributes: signature.Record{"store_name": "ghost"}},
		{NaturalKey: "ST1", Attributes: signature.Record{"store_name": "Downtown", "country": "US"}},
		{NaturalKey: " ST1 ", Attributes: signature.Record{"store_name": "Downtown", "country": "US"}},
		{NaturalKey: "ST1", Attributes: signature.Record{"store_name": "Uptown", "country": "US"}},
	})
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, 1, sum.Updated)

	var stores []models.DimStore
	require.NoError(t, conn.Find(&stores).Error)
	require.Len(t, stores, 1)
	assert.Equal(t, "Uptown", *stores[0].StoreName)
	assert.Nil(t, stores[0].Location)
}

func TestType1IsolatesRowFailures(t *testing.T) {
	conn := dbtest.Open(t)
	var logs bytes.Buffer
	u, err := dimension.NewType1Upserter(dimension.Type1Params{Table: dimension.ProductTable, Logger: testLogger(&logs)})
	require.NoError(t, err)

	bad := dimension.Row{NaturalKey: "bad", Attributes: signature.Record{"title": struct{ X int }{1}}}
	sum := upsertType1(t, conn, u, []dimension.Row{
		productRow("1", "Backpack", "bags", "109.95"),
		bad,
		productRow("2", "Shirt", "tops", "22.3"),
	})
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, multierr.Errors(sum.Errs), 1)
	typed := pkgerrors.As(sum.Errs)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeRowWrite, typed.Code())

	var count int64
	require.NoError(t, conn.Model(&models.DimProduct{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	assert.Contains(t, logs.String(), "dimension row write failed")
	assert.Contains(t, logs.String(), `"natural_key":"bad"`)
}

func TestSCD2CustomerEmailChangeScenario(t *testing.T) {
	conn := dbtest.Open(t)
	clock := newStepClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour)
	u, err := dimension.NewSCD2Upserter(dimension.SCD2Params{Table: dimension.CustomerTable, Logger: testLogger(&bytes.Buffer{}), Now: clock.Now})
	require.NoError(t, err)

	original := customerRow("7", "A Lee", "a@x.com")
	first := upsertSCD2(t, conn, u, []dimension.Row{original})
	assert.Equal(t, 1, first.Inserted)
	second := upsertSCD2(t, conn, u, []dimension.Row{original})
	assert.Equal(t, 1, second.Unchanged)

	var versions []models.DimCustomer
	require.NoError(t, conn.Where("customer_id = ?", "7").Find(&versions).Error)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsCurrent)
	assert.Nil(t, versions[0].EndDate)
	firstHash := versions[0].DataHash

	changed := upsertSCD2(t, conn, u, []dimension.Row{customerRow("7", "A Lee", "a2@x.com")})
	assert.Equal(t, 1, changed.Updated)

	versions = nil
	require.NoError(t, conn.Where("customer_id = ?", "7").Order("start_date").Find(&versions).Error)
	require.Len(t, versions, 2)
	old, cur := versions[0], versions[1]
	assert.False(t, old.IsCurrent)
	require.NotNil(t, old.EndDate)
	assert.Equal(t, firstHash, old.DataHash)
	assert.Equal(t, "a@x.com", *old.Email)
	assert.True(t, cur.IsCurrent)
	assert.Nil(t, cur.EndDate)
	assert.Equal(t, "a2@x.com", *cur.Email)
	assert.NotEqual(t, firstHash, cur.DataHash)
	assert.True(t, old.EndDate.Equal(cur.StartDate), "closing time equals the new version start")
}

func TestSCD2HistoryIsGaplessAfterNChanges(t *testing.T) {
	conn := dbtest.Open(t)
	clock := newStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour)
	u, err := dimension.NewSCD2Upserter(dimension.SCD2Params{Table: dimension.CustomerTable, Logger: testLogger(&bytes.Buffer{}), Now: clock.Now})
	require.NoError(t, err)

	emails := []string{"v0@x.com", "v1@x.com", "v2@x.com", "v3@x.com"}
	for _, email := range emails {
		upsertSCD2(t, conn, u, []dimension.Row{customerRow("42", "B Kim", email), customerRow("43", "C Roe", "stable@x.com")})
	}

	var versions []models.DimCustomer
	require.NoError(t, conn.Where("customer_id = ?", "42").Order("start_date").Find(&versions).Error)
	require.Len(t, versions, len(emails), "N changes produce N+1 versions")
	for i := 0; i < len(versions)-1; i++ {
		require.NotNil(t, versions[i].EndDate)
		assert.False(t, versions[i].IsCurrent)
		assert.True(t, versions[i].EndDate.Equal(versions[i+1].StartDate), "version %d must end where %d starts", i, i+1)
		assert.False(t, versions[i].EndDate.Before(versions[i].StartDate))
	}
	last := versions[len(versions)-1]
	assert.True(t, last.IsCurrent)
	assert.Nil(t, last.EndDate)

	for _, id := range []string{"42", "43"} {
		var current int64
		require.NoError(t, conn.Model(&models.DimCustomer{}).Where("customer_id = ? AND is_current = ?", id, true).Count(&current).Error)
		assert.EqualValues(t, 1, current, "customer %s", id)
	}
	var stable int64
	require.NoError(t, conn.Model(&models.DimCustomer{}).Where("customer_id = ?", "43").Count(&stable).Error)
	assert.EqualValues(t, 1, stable)
}

func TestSCD2FrozenClockStillOrdersVersions(t *testing.T) {
	conn := dbtest.Open(t)
	frozen := time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	u, err := dimension.NewSCD2Upserter(dimension.SCD2Params{
		Table:  dimension.CustomerTable,
		Logger: testLogger(&bytes.Buffer{}),
		Now:    func() time.Time { return frozen },
	})
	require.NoError(t, err)

	sum := upsertSCD2(t, conn, u, []dimension.Row{
		customerRow("9", "D Poe", "d1@x.com"),
		customerRow("9", "D Poe", "d2@x.com"),
	})
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Updated)
	assert.Zero(t, sum.Failed)

	var versions []models.DimCustomer
	require.NoError(t, conn.Where("customer_id = ?", "9").Order("start_date").Find(&versions).Error)
	require.Len(t, versions, 2)
	assert.True(t, versions[1].StartDate.After(versions[0].StartDate))
	assert.True(t, versions[1].IsCurrent)
}

func TestSCD2FailedNewVersionKeepsPreviousCurrent(t *testing.T) {
	conn := dbtest.Open(t)
	clock := newStepClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour)
	u, err := dimension.NewSCD2Upserter(dimension.SCD2Params{Table: dimension.CustomerTable, Logger: testLogger(&bytes.Buffer{}), Now: clock.Now})
	require.NoError(t, err)

	upsertSCD2(t, conn, u, []dimension.Row{customerRow("7", "A Lee", "a@x.com")})

	broken := dimension.Row{NaturalKey: "7", Attributes: signature.Record{"full_name": "A Lee", "email": struct{ X int }{1}}}
	sum := upsertSCD2(t, conn, u, []dimension.Row{broken, customerRow("8", "E Fox", "e@x.com")})
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Inserted)

	var versions []models.DimCustomer
	require.NoError(t, conn.Where("customer_id = ?", "7").Find(&versions).Error)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsCurrent, "close must roll back with the failed insert")
	assert.Nil(t, versions[0].EndDate)
}
