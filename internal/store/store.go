// Package store persists calendar sources and manual events in
// SQLite, migrated with golang-migrate over an embedded pure-Go
// driver (C9).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/roomcal/roomcal/internal/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the SQLite-backed persistence layer for calendar sources
// and manual events.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (creating if needed) the SQLite database at path, applies
// pending migrations, and returns a ready Store. A single connection
// is used throughout, matching SQLite's single-writer model.
func New(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(path string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}
	defer m.Close()

	_, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty migration state, manual intervention required")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const timeLayout = time.RFC3339Nano

// ListSources returns every configured calendar source, enabled or
// not — callers that only want active sources filter on Enabled.
func (s *Store) ListSources(ctx context.Context) ([]model.CalendarSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, primary_url, ics_url, display_name, color, enabled,
		       building, room, email_address, notes, created_at, last_fetched_at
		FROM calendar_sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarSource
	for rows.Next() {
		var src model.CalendarSource
		var createdAt string
		var lastFetched sql.NullString
		if err := rows.Scan(&src.ID, &src.PrimaryURL, &src.ICSURL, &src.DisplayName, &src.Color,
			&src.Enabled, &src.Building, &src.Room, &src.EmailAddress, &src.Notes,
			&createdAt, &lastFetched); err != nil {
			return nil, err
		}
		src.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		if lastFetched.Valid {
			t, err := time.Parse(timeLayout, lastFetched.String)
			if err == nil {
				src.LastFetchedAt = &t
			}
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpsertSourceByURL inserts a new source or updates an existing one
// keyed by its primary URL — the CSV importer's and admin API's
// shared write path. CSV is authoritative for display_name, building,
// room, email_address and ics_url; color and enabled are operator-set
// and are left untouched on an existing row, so re-importing the same
// CSV never resets a manually disabled source or a custom color.
func (s *Store) UpsertSourceByURL(ctx context.Context, src model.CalendarSource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_sources
				(primary_url, ics_url, display_name, color, enabled, building, room, email_address, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(primary_url) DO UPDATE SET
				ics_url = excluded.ics_url,
				display_name = excluded.display_name,
				building = excluded.building,
				room = excluded.room,
				email_address = excluded.email_address,
				notes = excluded.notes`,
			src.PrimaryURL, src.ICSURL, src.DisplayName, src.Color, src.Enabled,
			src.Building, src.Room, src.EmailAddress, src.Notes, time.Now().UTC().Format(timeLayout))
		return err
	})
}

// UpdateSourceFields applies a partial update to one source's mutable
// fields, identified by ID.
func (s *Store) UpdateSourceFields(ctx context.Context, id int64, src model.CalendarSource) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calendar_sources SET
			ics_url = ?, display_name = ?, color = ?, enabled = ?,
			building = ?, room = ?, email_address = ?, notes = ?
		WHERE id = ?`,
		src.ICSURL, src.DisplayName, src.Color, src.Enabled,
		src.Building, src.Room, src.EmailAddress, src.Notes, id)
	return err
}

// DeleteSource removes a calendar source by ID.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calendar_sources WHERE id = ?`, id)
	return err
}

// MarkFetched stamps a source's last_fetched_at, called by the
// orchestrator after a successful extraction.
func (s *Store) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE calendar_sources SET last_fetched_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	return err
}

// AddManualEvent inserts an admin-entered one-off event and returns
// its assigned ID.
func (s *Store) AddManualEvent(ctx context.Context, e model.ManualEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_events (start_at, end_at, title, location, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Start.UTC().Format(timeLayout), e.End.UTC().Format(timeLayout), e.Title, e.Location, e.Raw,
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteManualEvent removes a manual event by ID.
func (s *Store) DeleteManualEvent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manual_events WHERE id = ?`, id)
	return err
}

// ListManualEvents returns manual events overlapping [start, end].
func (s *Store) ListManualEvents(ctx context.Context, start, end time.Time) ([]model.ManualEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_at, end_at, title, location, raw
		FROM manual_events
		WHERE start_at < ? AND end_at > ?
		ORDER BY start_at`,
		end.UTC().Format(timeLayout), start.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ManualEvent
	for rows.Next() {
		var e model.ManualEvent
		var startAt, endAt string
		if err := rows.Scan(&e.ID, &startAt, &endAt, &e.Title, &e.Location, &e.Raw); err != nil {
			return nil, err
		}
		e.Start, _ = time.Parse(timeLayout, startAt)
		e.End, _ = time.Parse(timeLayout, endAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteManualEventsBefore removes manual events that ended before
// cutoff, the scheduler's retention cleanup query.
func (s *Store) DeleteManualEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manual_events WHERE end_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
