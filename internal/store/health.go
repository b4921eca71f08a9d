package store

import (
	"context"
	"database/sql"
	"time"

	"openclaw/internal/clawerr"
)

// HealthMetric is one recorded wellness measurement.
type HealthMetric struct {
	ID         int64
	Metric     string
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// RecordHealthMetric appends a measurement (sleep hours, weight, steps).
func (s *Store) RecordHealthMetric(ctx context.Context, metric string, value float64, unit string) (int64, error) {
	if metric == "" {
		return 0, clawerr.NewValidation("health metric name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_checks (metric, value, unit) VALUES (?, ?, ?)`,
		metric, value, unit)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "record health metric", Err: err}
	}
	return res.LastInsertId()
}

// HealthHistory returns measurements for a metric since a cutoff, oldest
// first so callers can plot trends.
func (s *Store) HealthHistory(ctx context.Context, metric string, since time.Time) ([]HealthMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metric, value, unit, recorded_at
		 FROM health_checks
		 WHERE metric = ? AND recorded_at >= ?
		 ORDER BY recorded_at ASC`, metric, since)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "health history", Err: err}
	}
	defer rows.Close()

	var out []HealthMetric
	for rows.Next() {
		var h HealthMetric
		var unit sql.NullString
		if err := rows.Scan(&h.ID, &h.Metric, &h.Value, &unit, &h.RecordedAt); err != nil {
			return nil, err
		}
		h.Unit = unit.String
		out = append(out, h)
	}
	return out, rows.Err()
}
