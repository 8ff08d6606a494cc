// Package journal records every dispatched alarm event in a local SQLite
// database so the history survives a broker outage.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logic"
)

// DefaultPath is where the journal lives when the config does not say.
const DefaultPath = "/var/lib/alarm-gateway/journal.db"

//go:embed schema.sql
var schemaSQL string

// Journal is an alarm.Sink backed by SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Dispatch implements alarm.Sink by inserting one row per event.
func (j *Journal) Dispatch(ctx context.Context, e alarm.Event) error {
	const query = `
		INSERT INTO alarm_events
			(id, ts_unix_ns, contact_id, source, detail, site, location, floor, zone, table_no, unit, camera_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	c := e.Contact
	_, err := j.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UnixNano(), string(c.ID), string(e.Source), e.Detail,
		c.Site, c.Location, c.Floor, c.Zone, c.Table, c.Unit, c.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("insert alarm event %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]alarm.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	const query = `
		SELECT id, ts_unix_ns, contact_id, source, detail, site, location, floor, zone, table_no, unit, camera_id
		FROM alarm_events
		ORDER BY ts_unix_ns DESC, rowid DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []alarm.Event
	for rows.Next() {
		var (
			e       alarm.Event
			ts      int64
			contact string
			source  string
		)
		err := rows.Scan(&e.ID, &ts, &contact, &source, &e.Detail,
			&e.Contact.Site, &e.Contact.Location, &e.Contact.Floor, &e.Contact.Zone,
			&e.Contact.Table, &e.Contact.Unit, &e.Contact.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Contact.ID = logic.ContactID(contact)
		e.Source = alarm.Source(source)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Count returns the number of recorded events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alarm_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
