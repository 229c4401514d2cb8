package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredTables are the tables dispatch reads and writes. Migrate fails when
// any of them is missing after the migration files ran.
var RequiredTables = []string{"users", "staff", "requests", "outbox"}

// MigrationsDir is the repository's migrations directory.
var MigrationsDir = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}()

// Database is a migrated pool. When Schema is set the pool's search_path is
// pinned to that schema and Close drops it.
type Database struct {
	Pool   *pgxpool.Pool
	Schema string
	dsn    string
}

// Migrate applies MigrationsDir to dsn and checks RequiredTables. With
// isolate set, every object lands in a fresh it_run_<nanos> schema so
// concurrent test binaries can share one server.
func Migrate(ctx context.Context, dsn string, isolate bool) (*Database, error) {
	files, err := migrationFiles(MigrationsDir)
	if err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("infra: parse dsn: %w", err)
	}

	db := &Database{dsn: dsn}
	if isolate {
		db.Schema = fmt.Sprintf("it_run_%d", time.Now().UnixNano())
		if err := db.admin(ctx, "CREATE SCHEMA %s"); err != nil {
			return nil, err
		}
		searchPath := "SET search_path TO " + pgx.Identifier{db.Schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, searchPath)
			return err
		}
	}

	db.Pool, err = pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		_ = db.admin(ctx, "DROP SCHEMA IF EXISTS %s CASCADE")
		return nil, fmt.Errorf("infra: open pool: %w", err)
	}

	if err := db.apply(ctx, files); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	if err := verifyTables(ctx, db.Pool, RequiredTables); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return db, nil
}

// Close releases the pool and drops the isolated schema, if any.
func (d *Database) Close(ctx context.Context) error {
	if d.Pool != nil {
		d.Pool.Close()
	}
	return d.admin(ctx, "DROP SCHEMA IF EXISTS %s CASCADE")
}

// admin runs a schema statement on a connection outside the pool, whose
// search_path would otherwise point at the schema being created or dropped.
func (d *Database) admin(ctx context.Context, format string) error {
	if d.Schema == "" {
		return nil
	}
	conn, err := pgx.Connect(ctx, d.dsn)
	if err != nil {
		return fmt.Errorf("infra: connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, fmt.Sprintf(format, pgx.Identifier{d.Schema}.Sanitize())); err != nil {
		return fmt.Errorf("infra: %s: %w", d.Schema, err)
	}
	return nil
}

func (d *Database) apply(ctx context.Context, files []string) error {
	for _, path := range files {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("infra: read migration: %w", err)
		}
		if _, err := d.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("infra: apply %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// migrationFiles lists dir/*.sql in lexical order.
func migrationFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, errors.New("infra: migrations directory unknown")
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("infra: list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("infra: no migrations in %s", dir)
	}
	slices.Sort(files)
	return files, nil
}

func verifyTables(ctx context.Context, pool *pgxpool.Pool, tables []string) error {
	var missing []string
	for _, table := range tables {
		var found *string
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, table).Scan(&found); err != nil {
			return fmt.Errorf("infra: look up %s: %w", table, err)
		}
		if found == nil {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("infra: migrations did not create %v", missing)
	}
	return nil
}
