// Package sqlite implements the repository interfaces on top of SQLite
// (modernc.org/sqlite, pure Go, no CGo).
//
// UNIQUENESS ACROSS CARD DOMAINS:
// Physical card numbers, primary card numbers and mapped digital or prepaid
// secondaries live in different tables but share one number space. Every
// write that introduces a card number also inserts it into card_numbers,
// whose primary key is the single constraint that keeps the domains
// disjoint. Both inserts happen in one transaction.
//
// TRANSACTIONS:
// The DSN asks for BEGIN IMMEDIATE (_txlock=immediate) so a writer takes the
// write lock up front. Two concurrent issuances of the same card then
// serialize instead of failing with SQLITE_BUSY on lock upgrade, and
// busy_timeout makes the loser wait rather than error.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces.
type DB struct {
	conn *sql.DB
}

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// New opens (or creates) the database at dbPath and runs migrations.
//
// ":memory:" is accepted but limited to one connection, because every
// pooled connection to ":memory:" would otherwise see its own empty database.
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS card_numbers (
			number     INTEGER PRIMARY KEY,
			kind       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating card_numbers table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS businesses (
			id            TEXT PRIMARY KEY,
			business_code TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			email         TEXT UNIQUE,
			mobile_number TEXT NOT NULL UNIQUE,
			pin_hash      TEXT NOT NULL,
			is_institute  INTEGER NOT NULL DEFAULT 0,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating businesses table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS members (
			id                  TEXT PRIMARY KEY,
			mobile_number       TEXT NOT NULL UNIQUE,
			email               TEXT UNIQUE,
			full_name           TEXT NOT NULL,
			pin_hash            TEXT NOT NULL,
			primary_card_number INTEGER NOT NULL UNIQUE REFERENCES card_numbers(number),
			created_by          TEXT NOT NULL DEFAULT '',
			active              INTEGER NOT NULL DEFAULT 1,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating members table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS physical_cards (
			id            TEXT PRIMARY KEY,
			card_number   INTEGER NOT NULL UNIQUE REFERENCES card_numbers(number),
			business_code TEXT NOT NULL REFERENCES businesses(business_code),
			issued        INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_physical_cards_business ON physical_cards(business_code);
	`)
	if err != nil {
		return fmt.Errorf("creating physical_cards table: %w", err)
	}

	// secondary_card_number is UNIQUE: a card maps to at most one primary.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS card_mappings (
			id                    TEXT PRIMARY KEY,
			business_code         TEXT REFERENCES businesses(business_code),
			primary_card_number   INTEGER NOT NULL REFERENCES members(primary_card_number),
			secondary_card_number INTEGER NOT NULL UNIQUE,
			card_type             TEXT NOT NULL,
			created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_card_mappings_business ON card_mappings(business_code);
		CREATE INDEX IF NOT EXISTS idx_card_mappings_primary ON card_mappings(primary_card_number);
	`)
	if err != nil {
		return fmt.Errorf("creating card_mappings table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS staff (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating staff table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS government_users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			full_name     TEXT NOT NULL,
			mobile_number TEXT NOT NULL UNIQUE,
			department    TEXT NOT NULL,
			designation   TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating government_users table: %w", err)
	}

	// Older databases predate the institute flag.
	if err := db.addColumnIfNotExists("businesses", "is_institute",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding is_institute to businesses: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure on the given "table.column".
func uniqueViolation(err error, column string) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return strings.Contains(se.Error(), column)
	}
	return false
}

// reserveCardNumber claims number in the unified index.
func reserveCardNumber(ctx context.Context, tx *sql.Tx, number int64, kind string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO card_numbers (number, kind) VALUES (?, ?)`,
		number, kind,
	)
	return err
}

// CardNumberExists reports whether number is taken in any domain: a physical
// card, a primary card, or a mapped digital or prepaid secondary.
func (db *DB) CardNumberExists(ctx context.Context, number int64) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM card_numbers WHERE number = ?`, number,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking card number %d: %w", number, err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
