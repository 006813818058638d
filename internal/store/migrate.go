// Database schema migration management.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
)

// migration is one schema step, compiled into the binary.
type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order; never edit an entry after release,
// append a new version instead (checksums are verified on startup).
var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
		CREATE TABLE IF NOT EXISTS orders (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			synced_version INTEGER NOT NULL DEFAULT 0,
			last_modified_at INTEGER NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			customer_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			items TEXT NOT NULL DEFAULT '[]',
			total_cents INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'open',
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_server_id ON orders(server_id);

		CREATE TABLE IF NOT EXISTS products (
			local_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			synced_version INTEGER NOT NULL DEFAULT 0,
			last_modified_at INTEGER NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_products_server_id ON products(server_id);

		CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			next_attempt_at INTEGER NOT NULL DEFAULT 0,
			unsyncable INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(enqueued_at);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_kind, entity_id);

		CREATE TABLE IF NOT EXISTS conflict_log (
			id TEXT PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			local_timestamp INTEGER NOT NULL,
			server_timestamp INTEGER NOT NULL,
			resolution TEXT NOT NULL,
			detected_at INTEGER NOT NULL
		);
		`,
	},
}

// Migrator applies compiled-in schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate applies all pending migrations and verifies checksums of the
// applied ones.
func (m *Migrator) Migrate() error {
	if err := m.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, mig := range migrations {
		sum := checksum(mig.SQL)

		if mig.Version <= current {
			var applied string
			err := m.db.QueryRow("SELECT checksum FROM schema_migrations WHERE version = ?", mig.Version).Scan(&applied)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrMigration,
					fmt.Sprintf("failed to verify migration %d", mig.Version), err)
			}
			if applied != sum {
				return apperrors.New(apperrors.ErrMigration,
					fmt.Sprintf("migration %d checksum mismatch", mig.Version))
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to begin migration", err)
		}
		if _, err := tx.Exec(mig.SQL); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("migration %d failed", mig.Version), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			mig.Version, time.Now().Unix(), mig.Description, sum,
		); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to record migration %d", mig.Version), err)
		}
		if err := tx.Commit(); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to commit migration %d", mig.Version), err)
		}
	}

	return nil
}

func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
