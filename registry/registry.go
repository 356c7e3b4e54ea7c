// Package registry persists the entities the bridge has exposed, keyed by
// platform and unique id, so renamed ids can be migrated in place.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	dirPermissions    = 0750
	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

var ErrNotFound = errors.New("registry: entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	platform   TEXT NOT NULL,
	unique_id  TEXT NOT NULL,
	device_id  TEXT NOT NULL DEFAULT '',
	entry_id   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (platform, unique_id)
);`

// Config maps to the registry section of config.yaml.
type Config struct {
	Path        string `mapstructure:"path"`
	BusyTimeout int    `mapstructure:"busytimeout"`
}

// Entry is one registered entity.
type Entry struct {
	Platform  string
	UniqueId  string
	DeviceId  string
	EntryId   string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registry is a SQLite backed entity registry. Safe for concurrent use.
type Registry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database and applies the schema.
func Open(cfg Config) (*Registry, error) {
	connStr := fmt.Sprintf("file::memory:?_busy_timeout=%d", cfg.BusyTimeout*msPerSecond)
	if cfg.Path != MemoryPath && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating registry directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", cfg.Path, cfg.BusyTimeout*msPerSecond)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	// one writer, and an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying registry connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("applying registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Register inserts e or refreshes its device, entry and name.
func (r *Registry) Register(ctx context.Context, e Entry) error {
	now := time.Now().UTC().UnixNano()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (platform, unique_id, device_id, entry_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, unique_id) DO UPDATE SET
			device_id = excluded.device_id,
			entry_id = excluded.entry_id,
			name = excluded.name,
			updated_at = excluded.updated_at`,
		e.Platform, e.UniqueId, e.DeviceId, e.EntryId, e.Name, now, now)
	if err != nil {
		return fmt.Errorf("registering %s/%s: %w", e.Platform, e.UniqueId, err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, platform string, uniqueId string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT platform, unique_id, device_id, entry_id, name, created_at, updated_at
		FROM entities WHERE platform = ? AND unique_id = ?`, platform, uniqueId)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrNotFound, platform, uniqueId)
	}
	return e, err
}

func (r *Registry) List(ctx context.Context, platform string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT platform, unique_id, device_id, entry_id, name, created_at, updated_at
		FROM entities WHERE platform = ? ORDER BY unique_id`, platform)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", platform, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MigrateUniqueId renames oldId to newId. Nothing happens when oldId is not
// registered or when newId already is.
func (r *Registry) MigrateUniqueId(ctx context.Context, platform string, oldId string, newId string) error {
	if oldId == newId {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE entities SET unique_id = ?, updated_at = ?
		WHERE platform = ? AND unique_id = ?
		AND NOT EXISTS (SELECT 1 FROM entities WHERE platform = ? AND unique_id = ?)`,
		newId, time.Now().UTC().UnixNano(), platform, oldId, platform, newId)
	if err != nil {
		return fmt.Errorf("migrating %s/%s: %w", platform, oldId, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created, updated int64
	if err := s.Scan(&e.Platform, &e.UniqueId, &e.DeviceId, &e.EntryId, &e.Name, &created, &updated); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return e, nil
}
