package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations/postgres"

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var embedded embed.FS

// Result summarises an Up invocation.
type Result struct {
	Applied []int64
	Current int64
}

// FS returns the embedded migrations for the given GORM dialect name.
func FS(dialect string) (fs.FS, goose.Dialect, error) {
	var (
		dir string
		gd  goose.Dialect
	)
	switch dialect {
	case "postgres", "pgx":
		dir, gd = "migrations/postgres", goose.DialectPostgres
	case "sqlite", "sqlite3":
		dir, gd = "migrations/sqlite3", goose.DialectSQLite3
	default:
		return nil, "", fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	sub, err := fs.Sub(embedded, dir)
	if err != nil {
		return nil, "", fmt.Errorf("open embedded migrations %q: %w", dir, err)
	}
	return sub, gd, nil
}

// Up applies every pending embedded migration for the dialect. Re-running
// against an initialized warehouse applies nothing.
func Up(ctx context.Context, db *sql.DB, dialect string) (Result, error) {
	if db == nil {
		return Result{}, fmt.Errorf("db is required")
	}
	fsys, gd, err := FS(dialect)
	if err != nil {
		return Result{}, err
	}
	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return Result{}, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("goose up: %w", err)
	}
	var out Result
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out.Applied = append(out.Applied, r.Source.Version)
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return out, fmt.Errorf("goose version: %w", err)
	}
	out.Current = current
	return out, nil
}

// Run executes a standard goose command against a migrations directory on disk.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
