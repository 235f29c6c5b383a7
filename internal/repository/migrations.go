package repository

import (
	"database/sql"
	"fmt"
	"sort"
)

// Dialect selects the SQL flavour of a store
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_campaigns",
		Up: `
			CREATE TABLE IF NOT EXISTS campaigns (
				id           TEXT PRIMARY KEY,
				status       TEXT NOT NULL,
				sent_count   INTEGER NOT NULL DEFAULT 0,
				failed_count INTEGER NOT NULL DEFAULT 0,
				created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		Down: `DROP TABLE IF EXISTS campaigns`,
	},
	{
		Version: 2,
		Name:    "create_campaign_messages",
		Up: `
			CREATE TABLE IF NOT EXISTS campaign_messages (
				campaign_id   TEXT NOT NULL,
				message_id    TEXT NOT NULL,
				message_index INTEGER NOT NULL,
				recipient     TEXT NOT NULL,
				channel_id    TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				last_error    TEXT,
				updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (campaign_id, message_id)
			);
			CREATE INDEX IF NOT EXISTS idx_campaign_messages_status
				ON campaign_messages (campaign_id, status)`,
		Down: `DROP TABLE IF EXISTS campaign_messages`,
	},
}

// SQLite keeps timestamps as unix milliseconds
var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_campaigns",
		Up: `
			CREATE TABLE IF NOT EXISTS campaigns (
				id           TEXT PRIMARY KEY,
				status       TEXT NOT NULL,
				sent_count   INTEGER NOT NULL DEFAULT 0,
				failed_count INTEGER NOT NULL DEFAULT 0,
				created_at   INTEGER NOT NULL,
				updated_at   INTEGER NOT NULL
			)`,
		Down: `DROP TABLE IF EXISTS campaigns`,
	},
	{
		Version: 2,
		Name:    "create_campaign_messages",
		Up: `
			CREATE TABLE IF NOT EXISTS campaign_messages (
				campaign_id   TEXT NOT NULL,
				message_id    TEXT NOT NULL,
				message_index INTEGER NOT NULL,
				recipient     TEXT NOT NULL,
				channel_id    TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				last_error    TEXT,
				updated_at    INTEGER NOT NULL,
				PRIMARY KEY (campaign_id, message_id)
			);
			CREATE INDEX IF NOT EXISTS idx_campaign_messages_status
				ON campaign_messages (campaign_id, status)`,
		Down: `DROP TABLE IF EXISTS campaign_messages`,
	},
}

// Migrations returns the ordered migrations of a dialect
func Migrations(dialect Dialect) ([]Migration, error) {
	var src []Migration
	switch dialect {
	case DialectPostgres:
		src = postgresMigrations
	case DialectSQLite:
		src = sqliteMigrations
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}

	out := make([]Migration, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// CreateMigrationTable creates the schema_migrations tracking table
func CreateMigrationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// AppliedVersions returns the applied migration versions
func AppliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// MigrateUp applies every pending migration and returns how many ran
func MigrateUp(db *sql.DB, dialect Dialect) (int, error) {
	migrations, err := Migrations(dialect)
	if err != nil {
		return 0, err
	}
	if err := CreateMigrationTable(db); err != nil {
		return 0, err
	}
	applied, err := AppliedVersions(db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(db, dialect, m); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// MigrateDown rolls back the latest applied migration.
// It returns the rolled back version, or 0 when nothing was applied.
func MigrateDown(db *sql.DB, dialect Dialect) (int, error) {
	migrations, err := Migrations(dialect)
	if err != nil {
		return 0, err
	}
	applied, err := AppliedVersions(db)
	if err != nil {
		return 0, err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !applied[m.Version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return 0, fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.Down); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to roll back migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(rebind(dialect, "DELETE FROM schema_migrations WHERE version = $1"), m.Version); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to remove migration record: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("failed to commit rollback: %w", err)
		}
		return m.Version, nil
	}

	return 0, nil
}

func applyMigration(db *sql.DB, dialect Dialect, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to apply migration %d_%s: %w", m.Version, m.Name, err)
	}

	_, err = tx.Exec(
		rebind(dialect, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)"),
		m.Version, m.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// rebind turns $n placeholders into ? for SQLite
func rebind(dialect Dialect, query string) string {
	if dialect != DialectSQLite {
		return query
	}

	out := make([]byte, 0, len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			out = append(out, '?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
