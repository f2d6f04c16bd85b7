package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations is the ordered schema history. Entries are append-only; the
// version recorded in schema_migrations decides which still need to run.
var migrations = []struct {
	version int
	name    string
	stmts   []string
}{
	{
		version: 1,
		name:    "create_rooms",
		stmts: []string{`
			CREATE TABLE rooms (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				category TEXT NOT NULL DEFAULT 'standard'
					CHECK (category IN ('standard', 'assessment')),
				capacity INTEGER NOT NULL DEFAULT 1 CHECK (capacity >= 1),
				display_order INTEGER NOT NULL DEFAULT 0,
				label_color TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "create_therapy_sessions",
		stmts: []string{`
			CREATE TABLE therapy_sessions (
				id TEXT PRIMARY KEY,
				room_id TEXT NOT NULL REFERENCES rooms(id),
				patient_ref TEXT NOT NULL,
				patient_label TEXT NOT NULL,
				session_type TEXT NOT NULL
					CHECK (session_type IN ('individual', 'shared', 'triple')),
				staff_slot_1 TEXT NOT NULL,
				staff_slot_2 TEXT,
				staff_slot_3 TEXT,
				status TEXT NOT NULL DEFAULT 'scheduled'
					CHECK (status IN ('scheduled', 'arrived', 'in_progress', 'completed', 'no_show')),
				scheduled_start TEXT NOT NULL,
				scheduled_end TEXT NOT NULL,
				arrived_at TEXT,
				started_at TEXT,
				finalized_at TEXT,
				active_slot INTEGER NOT NULL DEFAULT 1
					CHECK (active_slot BETWEEN 1 AND 3),
				slot_elapsed_1 INTEGER NOT NULL DEFAULT 0,
				slot_elapsed_2 INTEGER NOT NULL DEFAULT 0,
				slot_elapsed_3 INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX idx_therapy_sessions_room_start
				ON therapy_sessions(room_id, scheduled_start)`,
			`CREATE INDEX idx_therapy_sessions_status
				ON therapy_sessions(status)`,
		},
	},
	{
		version: 3,
		name:    "create_staff_allocations",
		stmts: []string{`
			CREATE TABLE staff_allocations (
				id TEXT PRIMARY KEY,
				staff_ref TEXT NOT NULL,
				staff_name TEXT NOT NULL,
				room_id TEXT NOT NULL REFERENCES rooms(id),
				weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
				period TEXT NOT NULL CHECK (period IN ('morning', 'afternoon')),
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (staff_ref, room_id, weekday, period)
			)`,
		},
	},
}

// Migrate brings the schema up to the latest version. It is safe to call on
// every startup.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	_, err := pool.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare migration table: %w", err)
	}

	var current int
	err = pool.DB().QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
				}
			}
			if _, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
				m.version, m.name); err != nil {
				return fmt.Errorf("migration %d (%s): recording version: %w", m.version, m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
