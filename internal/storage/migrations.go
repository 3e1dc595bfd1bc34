package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Amounts are stored as decimal strings.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Customers, accounts and beneficiaries",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS customers (
					user_id TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					mobile TEXT NOT NULL DEFAULT '',
					address TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES customers(user_id),
					account_number TEXT UNIQUE NOT NULL,
					account_type TEXT NOT NULL,
					account_type_name TEXT NOT NULL DEFAULT '',
					balance TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL DEFAULT 'USD',
					status TEXT NOT NULL DEFAULT 'active'
				)`,
				`CREATE INDEX idx_accounts_user ON accounts(user_id)`,
				`CREATE TABLE IF NOT EXISTS beneficiaries (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES customers(user_id),
					name TEXT NOT NULL,
					nickname TEXT NOT NULL DEFAULT '',
					account_number TEXT NOT NULL,
					bank_name TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL DEFAULT 'domestic',
					status TEXT NOT NULL DEFAULT 'active'
				)`,
				`CREATE INDEX idx_beneficiaries_user ON beneficiaries(user_id)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Cards and loans",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS cards (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES customers(user_id),
					card_number TEXT NOT NULL,
					card_type TEXT NOT NULL,
					credit_limit TEXT NOT NULL DEFAULT '0',
					status TEXT NOT NULL DEFAULT 'active'
				)`,
				`CREATE INDEX idx_cards_user ON cards(user_id)`,
				`CREATE TABLE IF NOT EXISTS loans (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES customers(user_id),
					loan_type TEXT NOT NULL,
					principal TEXT NOT NULL DEFAULT '0',
					outstanding TEXT NOT NULL DEFAULT '0',
					status TEXT NOT NULL DEFAULT 'active'
				)`,
				`CREATE INDEX idx_loans_user ON loans(user_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Transfers with idempotency keys",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transfers (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES customers(user_id),
					from_account_id TEXT NOT NULL,
					to_account_id TEXT NOT NULL,
					beneficiary_id TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					fees TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					idempotency_key TEXT,
					scheduled_date DATETIME,
					executed_date DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transfers_from ON transfers(from_account_id)`,
				`CREATE INDEX idx_transfers_user ON transfers(user_id)`,
				`CREATE UNIQUE INDEX idx_transfers_idempotency ON transfers(idempotency_key) WHERE idempotency_key IS NOT NULL`,
			)
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the database's applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
