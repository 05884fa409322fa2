// Package dbtest opens throwaway SQLite warehouses for package tests. The dw
// and staging schemas are attached in-memory databases on a single pooled
// connection, so every handle returned here must stay at one open connection.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/shopdw/pkg/migrate"
)

const StagingSchema = "staging"

var stagingDDL = []string{
	`CREATE TABLE IF NOT EXISTS staging.stg_products (
  id TEXT,
  title TEXT,
  price REAL,
  description TEXT,
  category TEXT,
  image TEXT,
  rating_rate REAL,
  rating_count INTEGER
)`,
	`CREATE TABLE IF NOT EXISTS staging.stg_stores (
  storekey TEXT,
  store_name TEXT,
  location TEXT,
  country TEXT
)`,
	`CREATE TABLE IF NOT EXISTS staging.stg_customers (
  id INTEGER,
  full_name TEXT,
  email TEXT,
  phone TEXT,
  country TEXT
)`,
	`CREATE TABLE IF NOT EXISTS staging.stg_sales (
  id TEXT,
  product_id TEXT,
  user_id INTEGER,
  storekey TEXT,
  date TEXT,
  quantity INTEGER,
  price REAL
)`,
	`CREATE TABLE IF NOT EXISTS staging.stg_carts (
  cart_id INTEGER,
  user_id INTEGER,
  date TEXT,
  product_id INTEGER,
  quantity INTEGER
)`,
}

// OpenBare returns an empty database with the dw and staging schemas attached.
func OpenBare(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, schema := range []string{"dw", StagingSchema} {
		require.NoError(t, conn.Exec(fmt.Sprintf("ATTACH DATABASE ':memory:' AS %s", schema)).Error)
	}
	return conn
}

// Open returns a database with the warehouse migrations applied and empty
// staging tables created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	conn := OpenBare(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	_, err = migrate.Up(context.Background(), sqlDB, conn.Dialector.Name())
	require.NoError(t, err)

	createStaging(t, conn)
	return conn
}

// OpenStaging returns a database with empty staging tables and no warehouse
// schema, as seen by the very first load.
func OpenStaging(t testing.TB) *gorm.DB {
	t.Helper()

	conn := OpenBare(t)
	createStaging(t, conn)
	return conn
}

func createStaging(t testing.TB, conn *gorm.DB) {
	t.Helper()
	for _, ddl := range stagingDDL {
		require.NoError(t, conn.Exec(ddl).Error)
	}
}

// Insert writes one staging row given as column → value.
func Insert(t testing.TB, conn *gorm.DB, table string, row map[string]any) {
	t.Helper()
	require.NoError(t, conn.Table(StagingSchema+"."+table).Create(row).Error)
}

// Truncate empties one staging table, mirroring the full refresh done by the
// extraction step before a load.
func Truncate(t testing.TB, conn *gorm.DB, table string) {
	t.Helper()
	require.NoError(t, conn.Exec("DELETE FROM "+StagingSchema+"."+table).Error)
}
