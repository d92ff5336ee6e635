package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so stored UTC timestamps compare as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store is a SQLite-backed vehicle snapshot store.
type Store struct {
	conn    *sql.DB
	log     logrus.FieldLogger
	writeMu sync.Mutex // SQLite allows one writer at a time
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, log logrus.FieldLogger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		log.WithError(err).Warn("could not set synchronous pragma")
	}
	s := &Store{conn: conn, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.WithField("path", path).Info("vehicle store opened")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// ObservePoll records one reconciled poll and upserts every vehicle in it.
func (s *Store) ObservePoll(ctx context.Context, pollID uuid.UUID, at time.Time, vehicles []tracking.Vehicle) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO poll_snapshots (poll_id, polled_at_utc, vehicles) VALUES (?, ?, ?)",
		pollID.String(), at.UTC().Format(timeLayout), len(vehicles),
	); err != nil {
		return fmt.Errorf("failed to insert poll snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicle_current (
			number, poll_id, trip_id, driver, latitude, longitude, adherence,
			last_message_utc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (number) DO UPDATE SET
			poll_id = excluded.poll_id,
			trip_id = excluded.trip_id,
			driver = excluded.driver,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			adherence = excluded.adherence,
			last_message_utc = excluded.last_message_utc,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare vehicle upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, v := range vehicles {
		if _, err := stmt.ExecContext(ctx,
			v.Number, pollID.String(), nullable(v.TripID), nullable(v.Driver),
			v.Position.Lat, v.Position.Lon, v.Adherence, formatTime(v.LastMessage),
		); err != nil {
			return fmt.Errorf("failed to upsert vehicle %s: %w", v.Number, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored vehicles whose last message is at or after since.
// A zero since returns every vehicle. Blocks are not stored; the reconciler
// rebuilds them on the next poll.
func (s *Store) Load(ctx context.Context, since time.Time) ([]tracking.Vehicle, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT number, trip_id, driver, latitude, longitude, adherence, last_message_utc
		FROM vehicle_current ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tracking.Vehicle
	for rows.Next() {
		var (
			v           tracking.Vehicle
			trip, drv   sql.NullString
			lastMessage sql.NullString
		)
		if err := rows.Scan(&v.Number, &trip, &drv, &v.Position.Lat, &v.Position.Lon, &v.Adherence, &lastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		v.TripID, v.Driver = trip.String, drv.String
		if lastMessage.Valid {
			if v.LastMessage, err = time.Parse(timeLayout, lastMessage.String); err != nil {
				s.log.WithError(err).WithField("vehicle", v.Number).Warn("bad stored last message")
			}
		}
		if !since.IsZero() && v.LastMessage.Before(since) {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Cleanup deletes snapshots polled and vehicles last heard before
// now-retention, returning the number of rows removed.
func (s *Store) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention).UTC().Format(timeLayout)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	queries := []struct {
		name  string
		query string
	}{
		{"vehicles", "DELETE FROM vehicle_current WHERE last_message_utc IS NULL OR last_message_utc < ?"},
		{"snapshots", "DELETE FROM poll_snapshots WHERE polled_at_utc < ?"},
	}
	total := 0
	for _, q := range queries {
		res, err := s.conn.ExecContext(ctx, q.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if total > 0 {
		s.log.WithField("rows", total).Info("store cleanup removed old rows")
	}
	return total, nil
}

// LastPoll returns the id and time of the most recent recorded poll.
func (s *Store) LastPoll(ctx context.Context) (uuid.UUID, time.Time, bool, error) {
	var id, at string
	err := s.conn.QueryRowContext(ctx,
		"SELECT poll_id, polled_at_utc FROM poll_snapshots ORDER BY polled_at_utc DESC LIMIT 1",
	).Scan(&id, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, time.Time{}, false, nil
	}
	if err != nil {
		return uuid.Nil, time.Time{}, false, fmt.Errorf("failed to query last poll: %w", err)
	}
	pollID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, time.Time{}, false, fmt.Errorf("bad stored poll id %q: %w", id, err)
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return uuid.Nil, time.Time{}, false, fmt.Errorf("bad stored poll time %q: %w", at, err)
	}
	return pollID, t, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

var _ tracking.Observer = (*Store)(nil)
