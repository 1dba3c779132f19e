// Package journal keeps a local sqlite record of alerts the observer never
// acknowledged, so they can be inspected or replayed after an outage.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS undelivered_alerts (
    event_id TEXT PRIMARY KEY,
    sensor_id TEXT NOT NULL,
    hazard TEXT NOT NULL,
    distance_cm REAL,
    detected_at TIMESTAMP NOT NULL,
    attempts INTEGER NOT NULL,
    reason TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

// Entry is one undelivered alert.
type Entry struct {
	Event      dispatch.AlertEvent
	Attempts   int
	Reason     string
	RecordedAt time.Time
}

// Journal stores undelivered alerts.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// One writer; monitor loops record rarely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	j, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an open database and ensures the schema exists.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Record stores a failed delivery. Recording the same event twice keeps the
// latest result.
func (j *Journal) Record(ctx context.Context, ev dispatch.AlertEvent, res dispatch.Result) error {
	var distance sql.NullFloat64
	if ev.DistanceCM != nil {
		distance = sql.NullFloat64{Float64: *ev.DistanceCM, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO undelivered_alerts
			(event_id, sensor_id, hazard, distance_cm, detected_at, attempts, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.SensorID,
		ev.Hazard,
		distance,
		ev.DetectedAt.UTC(),
		res.Attempts,
		res.Reason,
		j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record alert %s: %w", ev.ID, err)
	}
	return nil
}

// List returns up to limit entries, oldest first. limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT event_id, sensor_id, hazard, distance_cm, detected_at, attempts, reason, recorded_at
		FROM undelivered_alerts ORDER BY recorded_at ASC, event_id ASC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			distance sql.NullFloat64
		)
		if err := rows.Scan(
			&e.Event.ID, &e.Event.SensorID, &e.Event.Hazard, &distance,
			&e.Event.DetectedAt, &e.Attempts, &e.Reason, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		if distance.Valid {
			d := distance.Float64
			e.Event.DistanceCM = &d
		}
		e.Event.DetectedAt = e.Event.DetectedAt.UTC()
		e.RecordedAt = e.RecordedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return out, nil
}

// Remove deletes an entry once it has been replayed.
func (j *Journal) Remove(ctx context.Context, eventID string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM undelivered_alerts WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("remove alert %s: %w", eventID, err)
	}
	return nil
}

// Count returns the number of undelivered alerts.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM undelivered_alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
