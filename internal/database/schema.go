package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

const (
	usersTable       = "auth_users"
	resetTokensTable = "password_reset_tokens"
)

// SchemaReport describes what EnsureSchema changed.
type SchemaReport struct {
	// DroppedLegacyResetTokens is set when an incompatible reset-token
	// table was dropped and recreated. Outstanding reset links stop working.
	DroppedLegacyResetTokens bool
	AddedColumns             []string
	Migrations               int
}

// EnsureSchema brings the schema up to date. It is idempotent:
//  1. drop password_reset_tokens if it has a user_id column, lacks
//     user_email, or carries a foreign key (user rows are never touched)
//  2. apply pending migrations
//  3. add auth_users columns missing from tables created by older versions
func EnsureSchema(ctx context.Context, db *DB) (*SchemaReport, error) {
	report := &SchemaReport{}

	dropped, err := repairLegacyResetTokens(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("repair reset tokens: %w", err)
	}
	report.DroppedLegacyResetTokens = dropped

	n, err := Migrate(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	report.Migrations = n

	cols, err := tableColumns(ctx, db, resetTokensTable)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		// Only reachable if the table was dropped after its migration had
		// already been recorded.
		return nil, fmt.Errorf("%s missing after migrations", resetTokensTable)
	}

	added, err := addMissingUserColumns(ctx, db, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("add user columns: %w", err)
	}
	report.AddedColumns = added

	return report, nil
}

// Migrate applies the embedded migrations for the database's dialect and
// returns how many ran.
func Migrate(ctx context.Context, db *DB) (int, error) {
	fsys, err := fs.Sub(migrations, "migrations/"+string(db.Dialect))
	if err != nil {
		return 0, fmt.Errorf("migrations fs: %w", err)
	}

	dialect := goose.DialectSQLite3
	if db.Dialect == Postgres {
		dialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}

func repairLegacyResetTokens(ctx context.Context, db *DB) (bool, error) {
	cols, err := tableColumns(ctx, db, resetTokensTable)
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, nil
	}

	legacy := cols["user_id"] || !cols["user_email"]
	if !legacy {
		fk, err := hasForeignKeys(ctx, db, resetTokensTable)
		if err != nil {
			return false, err
		}
		legacy = fk
	}
	if !legacy {
		return false, nil
	}

	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+resetTokensTable); err != nil {
		return false, fmt.Errorf("drop legacy table: %w", err)
	}
	return true, nil
}

// userColumn is an auth_users column that older deployments may lack.
// SQLite cannot add a column with a non-constant default, so timestamps are
// added nullable there and backfilled.
type userColumn struct {
	name     string
	postgres string
	sqlite   string
	stamp    bool
}

var userColumns = []userColumn{
	{name: "name", postgres: "TEXT", sqlite: "TEXT"},
	{name: "password_hash", postgres: "TEXT", sqlite: "TEXT"},
	{name: "app_url", postgres: "TEXT", sqlite: "TEXT"},
	{name: "created_at", postgres: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", sqlite: "TIMESTAMP", stamp: true},
	{name: "updated_at", postgres: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", sqlite: "TIMESTAMP", stamp: true},
}

func addMissingUserColumns(ctx context.Context, db *DB, now time.Time) ([]string, error) {
	cols, err := tableColumns(ctx, db, usersTable)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, c := range userColumns {
		if cols[c.name] {
			continue
		}
		def := c.sqlite
		if db.Dialect == Postgres {
			def = c.postgres
		}
		if _, err := db.ExecContext(ctx, `ALTER TABLE `+usersTable+` ADD COLUMN `+c.name+` `+def); err != nil {
			return added, fmt.Errorf("add column %s: %w", c.name, err)
		}
		if c.stamp {
			if _, err := db.ExecContext(ctx, `UPDATE `+usersTable+` SET `+c.name+` = ? WHERE `+c.name+` IS NULL`, now); err != nil {
				return added, fmt.Errorf("backfill %s: %w", c.name, err)
			}
		}
		added = append(added, c.name)
	}
	return added, nil
}

// tableColumns returns the column names of table, empty if it does not exist.
func tableColumns(ctx context.Context, db *DB, table string) (map[string]bool, error) {
	query := `SELECT name FROM pragma_table_info(?)`
	if db.Dialect == Postgres {
		query = `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`
	}

	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return cols, nil
}

func hasForeignKeys(ctx context.Context, db *DB, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM pragma_foreign_key_list(?)`
	if db.Dialect == Postgres {
		query = `SELECT COUNT(*) FROM information_schema.table_constraints WHERE table_schema = current_schema() AND table_name = ? AND constraint_type = 'FOREIGN KEY'`
	}

	var n int
	if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("list foreign keys of %s: %w", table, err)
	}
	return n > 0, nil
}
