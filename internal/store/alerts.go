package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/minimib/internal/notify"
)

// AlertRecord is one row of alert history.
type AlertRecord struct {
	ID        string            `json:"id"`
	RaisedAt  time.Time         `json:"raised_at"`
	Attribute string            `json:"attribute"`
	Value     int64             `json:"value"`
	Threshold int64             `json:"threshold"`
	Recipient string            `json:"recipient"`
	Sinks     map[string]string `json:"sinks"`
}

// RecordAlert implements notify.Recorder. Each sink maps to its status,
// or to its error text when delivery failed.
func (s *SQLite) RecordAlert(ctx context.Context, ev notify.Event, out notify.Outcome) error {
	sinks := make(map[string]string, len(out.Results))
	for _, r := range out.Results {
		if r.Status == notify.StatusFailed && r.Err != nil {
			sinks[r.Sink] = r.Status + ": " + r.Err.Error()
			continue
		}
		sinks[r.Sink] = r.Status
	}
	encoded, err := json.Marshal(sinks)
	if err != nil {
		return fmt.Errorf("marshal sink results: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, raised_at, attribute, value, threshold, recipient, sinks)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.Attribute, ev.Value, ev.Threshold,
		ev.ManagerEmail, string(encoded))
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", ev.ID, err)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first. A limit of zero
// or less returns every row.
// Returns empty slice (not nil) when there is no history.
func (s *SQLite) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raised_at, attribute, value, threshold, recipient, sinks
		FROM alerts
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	records := []AlertRecord{}
	for rows.Next() {
		var (
			rec        AlertRecord
			raisedAt   string
			sinksField string
		)
		if err := rows.Scan(&rec.ID, &raisedAt, &rec.Attribute, &rec.Value, &rec.Threshold, &rec.Recipient, &sinksField); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if rec.RaisedAt, err = time.Parse(time.RFC3339Nano, raisedAt); err != nil {
			return nil, fmt.Errorf("parse raised_at for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(sinksField), &rec.Sinks); err != nil {
			return nil, fmt.Errorf("unmarshal sinks for %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return records, nil
}
