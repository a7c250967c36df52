// Package audit persists the safety trail: every safety event and
// system alert the gateway raises, queryable for incident review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliolux/helio-core/internal/safety"
)

// SystemAlert is a non-safety operational alert (collector degraded,
// broker unreachable, discovery failures).
type SystemAlert struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Source     string         `json:"source"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// EventFilter controls which safety events to return.
type EventFilter struct {
	EventType string // optional: high_temperature, circuit_overload, ...
	Severity  string // optional: warning, critical, emergency
	DeviceID  string // optional: filter by device
	ZoneID    string // optional: filter by zone
	Limit     int    // default 50, max 200
	Offset    int    // pagination offset
}

// EventList contains paginated safety event results.
type EventList struct {
	Events []safety.Event `json:"events"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Repository reads and writes the audit tables in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an audit repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordSafetyEvent inserts a safety event. Satisfies safety.Recorder.
func (r *Repository) RecordSafetyEvent(ctx context.Context, e safety.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO safety_events (id, occurred_at, event_type, severity, zone_id, device_id, circuit_id, value, limit_value, unit, action, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OccurredAt.UTC().Format(time.RFC3339Nano),
		e.EventType, string(e.Severity),
		nullableString(e.ZoneID), nullableString(e.DeviceID), nullableString(e.CircuitID),
		e.Value, e.Limit, nullableString(e.Unit),
		string(e.Action), e.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting safety event: %w", err)
	}
	return nil
}

// ListSafetyEvents returns safety events matching the filter, most
// recent first.
func (r *Repository) ListSafetyEvents(ctx context.Context, filter EventFilter) (*EventList, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.ZoneID != "" {
		conditions = append(conditions, "zone_id = ?")
		args = append(args, filter.ZoneID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from fixed parameterised conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM safety_events %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting safety events: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, occurred_at, event_type, severity, zone_id, device_id, circuit_id, value, limit_value, unit, action, message FROM safety_events %s ORDER BY occurred_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying safety events: %w", err)
	}
	defer rows.Close()

	var events []safety.Event
	for rows.Next() {
		var e safety.Event
		var occurredAt string
		var zoneID, deviceID, circuitID, unit sql.NullString
		var severity, action string

		if err := rows.Scan(&e.ID, &occurredAt, &e.EventType, &severity,
			&zoneID, &deviceID, &circuitID,
			&e.Value, &e.Limit, &unit, &action, &e.Message); err != nil {
			return nil, fmt.Errorf("scanning safety event: %w", err)
		}

		e.Severity = safety.Severity(severity)
		e.Action = safety.Action(action)
		e.ZoneID = zoneID.String
		e.DeviceID = deviceID.String
		e.CircuitID = circuitID.String
		e.Unit = unit.String

		t, err := parseTimestamp(occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing safety event timestamp %q: %w", occurredAt, err)
		}
		e.OccurredAt = t

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating safety events: %w", err)
	}
	if events == nil {
		events = []safety.Event{}
	}

	return &EventList{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// RecordAlert inserts a system alert. The ID and timestamp are
// generated when empty.
func (r *Repository) RecordAlert(ctx context.Context, alert *SystemAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	var detailsJSON any
	if alert.Details != nil {
		b, err := json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("marshalling alert details: %w", err)
		}
		detailsJSON = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO system_alerts (id, occurred_at, source, severity, message, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.OccurredAt.UTC().Format(time.RFC3339Nano),
		alert.Source, alert.Severity, alert.Message, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting system alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent system alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, limit int) ([]SystemAlert, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, occurred_at, source, severity, message, details FROM system_alerts ORDER BY occurred_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying system alerts: %w", err)
	}
	defer rows.Close()

	var alerts []SystemAlert
	for rows.Next() {
		var a SystemAlert
		var occurredAt string
		var detailsJSON sql.NullString

		if err := rows.Scan(&a.ID, &occurredAt, &a.Source, &a.Severity, &a.Message, &detailsJSON); err != nil {
			return nil, fmt.Errorf("scanning system alert: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				a.Details = details
			}
		}

		t, err := parseTimestamp(occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing system alert timestamp %q: %w", occurredAt, err)
		}
		a.OccurredAt = t

		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating system alerts: %w", err)
	}
	if alerts == nil {
		alerts = []SystemAlert{}
	}
	return alerts, nil
}

// nullableString returns nil for empty strings so empty scopes land as
// NULL rather than "".
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
