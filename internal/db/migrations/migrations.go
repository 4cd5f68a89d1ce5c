// Package migrations versions the replay archive schema.
package migrations

import (
	"database/sql"
	"fmt"

	"github.com/saviobatista/vatsim-replay/internal/logging"
)

// Migration is one versioned schema change
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// All lists every archive migration in order
var All = []*Migration{
	ReplayArchive,
	RunStats,
}

// Migrator applies and rolls back migrations, recording them in
// schema_migrations
type Migrator struct {
	db *sql.DB
	lg *logging.Logger
}

// New creates a new Migrator
func New(db *sql.DB, lg *logging.Logger) *Migrator {
	return &Migrator{db: db, lg: lg}
}

// Initialize creates the schema_migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// Applied returns the names of applied migrations
func (m *Migrator) Applied() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			m.lg.Warn("error closing rows", "error", cerr)
		}
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations not applied yet, in order
func (m *Migrator) Pending(migrations []*Migration) ([]*Migration, error) {
	applied, err := m.Applied()
	if err != nil {
		return nil, err
	}

	var pending []*Migration
	for _, migration := range migrations {
		if !applied[migration.Name] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// run executes stmt and records the change in one transaction
func (m *Migrator) run(migration *Migration, stmt, recordQuery string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			m.lg.Warn("failed to rollback transaction", "migration", migration.Name, "error", err)
		}
	}()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.Exec(recordQuery, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}
	return tx.Commit()
}

// Apply applies a single migration
func (m *Migrator) Apply(migration *Migration) error {
	return m.run(migration, migration.UpSQL, "INSERT INTO schema_migrations (name) VALUES ($1)")
}

// Revert rolls back a single migration
func (m *Migrator) Revert(migration *Migration) error {
	return m.run(migration, migration.DownSQL, "DELETE FROM schema_migrations WHERE name = $1")
}

// Migrate applies all pending migrations and returns how many ran
func (m *Migrator) Migrate(migrations []*Migration) (int, error) {
	if err := m.Initialize(); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	pending, err := m.Pending(migrations)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i, migration := range pending {
		if err := m.Apply(migration); err != nil {
			return i, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		m.lg.Info("applied migration", "name", migration.Name)
	}
	return len(pending), nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(migrations []*Migration) error {
	applied, err := m.Applied()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			last = migrations[i]
			break
		}
	}
	if last == nil {
		return fmt.Errorf("no migrations to rollback")
	}

	if err := m.Revert(last); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}
	m.lg.Info("rolled back migration", "name", last.Name)
	return nil
}
