// Package store persists conversations to a local SQLite database and
// maintains the currently selected conversation that the reducer
// operates against.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // Register pure-Go sqlite driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// DatabaseFileName is the SQLite file created inside the storage directory.
const DatabaseFileName = "conversations.db"

// db wraps the SQLite connection and row-level persistence.
type db struct {
	sql *stdsql.DB
}

// conversationRow is the persisted shape of one conversation. Messages
// hold the transcript serialized as JSON; timestamps are stored as
// RFC 3339 text and rehydrated on load.
type conversationRow struct {
	ID        string
	Title     string
	Messages  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// openDB opens (creating if needed) the conversation database under
// dir and applies pending migrations.
func openDB(ctx context.Context, dir string) (*db, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(dir, DatabaseFileName)
	sqlDB, err := stdsql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a second connection would
	// only produce busy errors.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &db{sql: sqlDB}, nil
}

func (d *db) close() error {
	return d.sql.Close()
}

// runMigrations applies pending schema migrations using golang-migrate
// with migration files embedded into the binary via go:embed, so no
// external files are needed at runtime.
func runMigrations(sqlDB *stdsql.DB) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found — binary may be built incorrectly")
	}

	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "conversations", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the migration source driver. We must NOT call m.Close()
	// because that also closes the database driver, which closes the
	// shared *sql.DB passed via WithInstance().
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

// hasEmbeddedMigrations checks if the embedded FS contains any .sql migration files
func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}

func (d *db) upsert(ctx context.Context, row conversationRow) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		row.ID, row.Title, string(row.Messages),
		row.CreatedAt.UTC().Format(time.RFC3339Nano),
		row.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to persist conversation %s: %w", row.ID, err)
	}
	return nil
}

func (d *db) delete(ctx context.Context, id string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// loadAll reads every persisted conversation, oldest first.
func (d *db) loadAll(ctx context.Context) ([]conversationRow, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, title, messages, created_at, updated_at
		FROM conversations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []conversationRow
	for rows.Next() {
		var row conversationRow
		var messages, created, updated string
		if err := rows.Scan(&row.ID, &row.Title, &messages, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		row.Messages = []byte(messages)
		row.CreatedAt = parseStoredTime(created)
		row.UpdatedAt = parseStoredTime(updated)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

// parseStoredTime rehydrates a persisted timestamp. A corrupt value
// yields the zero time rather than failing the whole load.
func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
