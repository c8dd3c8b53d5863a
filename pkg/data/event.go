package data

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	StatusOK             = "ok"
	StatusInvalidFormat  = "invalid_format"
	StatusMissingColumns = "missing_columns"
	StatusFailed         = "failed"

	DefaultListLimit = 20
	MaxListLimit     = 1000

	insertEventSQL = `INSERT INTO audit_event (
			id, filename, status, message, row_count, high_risk, duration_ms, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectEventsSQL = `SELECT id, filename, status, message, row_count, high_risk, duration_ms, created_at
		FROM audit_event
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	selectSummarySQL = `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(row_count), 0),
			COALESCE(SUM(high_risk), 0)
		FROM audit_event
	`
)

// Event records the outcome of one prediction request.
type Event struct {
	ID         string `json:"id" yaml:"id"`
	Filename   string `json:"filename" yaml:"filename"`
	Status     string `json:"status" yaml:"status"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	Rows       int    `json:"rows" yaml:"rows"`
	HighRisk   int    `json:"high_risk" yaml:"high_risk"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt  int64  `json:"created_at" yaml:"created_at"`
}

// Summary aggregates all recorded events.
type Summary struct {
	Total    int64 `json:"total" yaml:"total"`
	OK       int64 `json:"ok" yaml:"ok"`
	Failed   int64 `json:"failed" yaml:"failed"`
	Rows     int64 `json:"rows" yaml:"rows"`
	HighRisk int64 `json:"high_risk" yaml:"high_risk"`
}

func validStatus(s string) bool {
	switch s {
	case StatusOK, StatusInvalidFormat, StatusMissingColumns, StatusFailed:
		return true
	}
	return false
}

// SaveEvent inserts e, assigning an ID and creation time when they are empty.
func (s *Store) SaveEvent(ctx context.Context, e *Event) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if e == nil {
		return errors.New("event required")
	}
	if !validStatus(e.Status) {
		return errors.Errorf("invalid event status: %q", e.Status)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UTC().UnixMilli()
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(insertEventSQL),
		e.ID, e.Filename, e.Status, e.Message, e.Rows, e.HighRisk, e.DurationMS, e.CreatedAt); err != nil {
		return errors.Wrapf(err, "failed to insert event: %s", e.ID)
	}
	return nil
}

// ListEvents returns the most recent events, newest first. Limit is clamped
// to [1, MaxListLimit]; zero or negative means DefaultListLimit.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]*Event, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectEventsSQL), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	list := make([]*Event, 0)
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Filename, &e.Status, &e.Message,
			&e.Rows, &e.HighRisk, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event row")
		}
		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate event rows")
	}
	return list, nil
}

// Summary returns totals across all events.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	sum := &Summary{}
	if err := s.db.QueryRowContext(ctx, s.rebind(selectSummarySQL), StatusOK).
		Scan(&sum.Total, &sum.OK, &sum.Rows, &sum.HighRisk); err != nil {
		return nil, errors.Wrap(err, "failed to query summary")
	}
	sum.Failed = sum.Total - sum.OK
	return sum, nil
}
