package sqlitedb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverName = "sqlite"
	dbFile     = "sqlite.db"
)

//go:embed migration/*.sql
var migrations embed.FS

// OpenDb opens the database in dbDir and applies the migrations not applied
// yet.
func OpenDb(dbDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.Join(dbDir, dbFile))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		// nolint:all
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_migration (name TEXT PRIMARY KEY)",
	); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	names, err := fs.Glob(migrations, "migration/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var applied string
		err := db.QueryRowContext(ctx, "SELECT name FROM schema_migration WHERE name = ?", name).Scan(&applied)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to read migrations: %w", err)
		}

		stmts, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if err := execTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(stmts)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migration (name) VALUES (?)", name)
			return err
		}); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

func execTx(ctx context.Context, db *sql.DB, txBody func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// nolint:all
		tx.Rollback()
	}()

	if err := txBody(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isConstraintErr(err error) bool {
	sqlErr, ok := err.(*sqlite.Error)
	if !ok {
		return false
	}
	return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
