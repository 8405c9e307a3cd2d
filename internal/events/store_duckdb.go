// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package events persists and publishes security events raised by the
// inspection pipeline. Writes go through a circuit breaker so a sick
// database degrades event recording instead of packet processing.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("event not found")

// Store is the persistence contract for security events.
type Store interface {
	SaveEvent(ctx context.Context, event *models.Event) error
	QueryByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]models.Event, error)
	Statistics(ctx context.Context) (models.EventStatistics, error)
	Resolve(ctx context.Context, eventID string) error
}

// DuckDBStore implements Store on a DuckDB database.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed event store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// InitSchema creates the event tables if they don't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			event_id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			relay_node TEXT,
			packet_id TEXT,
			rule_triggered JSON,
			details JSON,
			resolved BOOLEAN DEFAULT false
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON security_events(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON security_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_severity ON security_events(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_events_resolved ON security_events(resolved)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	// Checkpoint to flush the WAL so a crash during startup cannot leave
	// DuckDB replaying a half-written schema.
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after event schema initialization")
	}

	return nil
}

// SaveEvent persists one event.
func (s *DuckDBStore) SaveEvent(ctx context.Context, event *models.Event) error {
	rules, err := json.Marshal(event.RuleTriggered)
	if err != nil {
		return fmt.Errorf("failed to marshal triggered rules: %w", err)
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	query := `INSERT INTO security_events
		(event_id, timestamp, event_type, severity, relay_node, packet_id, rule_triggered, details, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		event.EventID,
		event.Timestamp,
		event.EventType,
		string(event.Severity),
		event.RelayNode,
		event.PacketID,
		rules,
		details,
		event.Resolved,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// QueryByTimeRange returns events within [start, end], newest first.
// A non-positive limit applies a default of 1000.
func (s *DuckDBStore) QueryByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT event_id, timestamp, event_type, severity, relay_node, packet_id, rule_triggered, details, resolved
		FROM security_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Statistics returns aggregate counts over all recorded events. Suspicious
// counts high-severity events only.
func (s *DuckDBStore) Statistics(ctx context.Context) (models.EventStatistics, error) {
	query := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE event_type = ?),
		COUNT(*) FILTER (WHERE event_type = ?),
		COUNT(*) FILTER (WHERE severity = ?)
		FROM security_events`

	var stats models.EventStatistics
	err := s.db.QueryRowContext(ctx, query,
		models.EventTypeBlocked,
		models.EventTypeFlagged,
		string(models.SeverityHigh),
	).Scan(&stats.TotalEvents, &stats.Blocked, &stats.Flagged, &stats.Suspicious)
	if err != nil {
		return models.EventStatistics{}, fmt.Errorf("failed to compute event statistics: %w", err)
	}

	return stats, nil
}

// Resolve marks an event as reviewed. Returns ErrNotFound for unknown ids.
func (s *DuckDBStore) Resolve(ctx context.Context, eventID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE security_events SET resolved = true WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("failed to resolve event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEventRow(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Event, error) {
	var event models.Event
	var severity string
	// DuckDB returns JSON columns as driver-native values; marshal them
	// back through bytes before decoding into Go types.
	var rules, details interface{}

	if err := scanner.Scan(
		&event.EventID,
		&event.Timestamp,
		&event.EventType,
		&severity,
		&event.RelayNode,
		&event.PacketID,
		&rules,
		&details,
		&event.Resolved,
	); err != nil {
		return models.Event{}, err
	}
	event.Severity = models.Severity(severity)

	if rules != nil {
		if b, err := toJSONBytes(rules); err == nil {
			if err := json.Unmarshal(b, &event.RuleTriggered); err != nil {
				logging.Warn().Err(err).Str("event_id", event.EventID).
					Msg("corrupt rule_triggered column, returning event without it")
			}
		}
	}
	if details != nil {
		if b, err := toJSONBytes(details); err == nil {
			if err := json.Unmarshal(b, &event.Details); err != nil {
				logging.Warn().Err(err).Str("event_id", event.EventID).
					Msg("corrupt details column, returning event without it")
			}
		}
	}

	return event, nil
}

func toJSONBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return json.Marshal(t)
	}
}
