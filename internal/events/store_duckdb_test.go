// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// setupTestStore creates a DuckDBStore on an in-memory database with the
// schema initialized.
func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return store
}

func saveTestEvents(ctx context.Context, t *testing.T, store *DuckDBStore, events []*models.Event) {
	t.Helper()
	for _, ev := range events {
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent(%s): %v", ev.EventID, err)
		}
	}
}

func blockedEvent(id string, at time.Time) *models.Event {
	return &models.Event{
		EventID:       id,
		Timestamp:     at,
		EventType:     models.EventTypeBlocked,
		Severity:      models.SeverityHigh,
		RelayNode:     "entry",
		PacketID:      "pkt-" + id,
		RuleTriggered: []string{"R003"},
		Details:       map[string]any{"riskScore": float64(95)},
	}
}

func TestSaveAndQueryRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	saveTestEvents(ctx, t, store, []*models.Event{blockedEvent("evt-1", now)})

	got, err := store.QueryByTimeRange(ctx, now.Add(-time.Minute), now.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("QueryByTimeRange: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}

	ev := got[0]
	if ev.EventID != "evt-1" {
		t.Errorf("EventID = %q", ev.EventID)
	}
	if ev.EventType != models.EventTypeBlocked {
		t.Errorf("EventType = %q", ev.EventType)
	}
	if ev.Severity != models.SeverityHigh {
		t.Errorf("Severity = %q", ev.Severity)
	}
	if len(ev.RuleTriggered) != 1 || ev.RuleTriggered[0] != "R003" {
		t.Errorf("RuleTriggered = %v", ev.RuleTriggered)
	}
	if v, ok := ev.Details["riskScore"]; !ok || v != float64(95) {
		t.Errorf("Details = %v", ev.Details)
	}
	if ev.Resolved {
		t.Error("new event should not be resolved")
	}
}

func TestQueryByTimeRangeOrderAndWindow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	var events []*models.Event
	for i := 0; i < 5; i++ {
		events = append(events, blockedEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	saveTestEvents(ctx, t, store, events)

	// Window covers only evt-1 through evt-3.
	got, err := store.QueryByTimeRange(ctx, base.Add(time.Minute), base.Add(3*time.Minute), 0)
	if err != nil {
		t.Fatalf("QueryByTimeRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].EventID != "evt-3" || got[2].EventID != "evt-1" {
		t.Errorf("order = [%s %s %s], want newest first",
			got[0].EventID, got[1].EventID, got[2].EventID)
	}

	limited, err := store.QueryByTimeRange(ctx, base.Add(-time.Minute), base.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("QueryByTimeRange limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited len = %d, want 2", len(limited))
	}
}

func TestStatisticsCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saveTestEvents(ctx, t, store, []*models.Event{
		blockedEvent("evt-1", now),
		blockedEvent("evt-2", now),
		{
			EventID:   "evt-3",
			Timestamp: now,
			EventType: models.EventTypeFlagged,
			Severity:  models.SeverityMedium,
		},
		{
			EventID:   "evt-4",
			Timestamp: now,
			EventType: models.EventTypeAllowed,
			Severity:  models.SeverityLow,
		},
	})

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if stats.Blocked != 2 {
		t.Errorf("Blocked = %d, want 2", stats.Blocked)
	}
	if stats.Flagged != 1 {
		t.Errorf("Flagged = %d, want 1", stats.Flagged)
	}
	// Suspicious is high severity only; the medium flagged event and the
	// low allowed event stay out of it.
	if stats.Suspicious != 2 {
		t.Errorf("Suspicious = %d, want 2", stats.Suspicious)
	}
}

func TestStatisticsMediumSeverityNotSuspicious(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	saveTestEvents(ctx, t, store, []*models.Event{
		{
			EventID:   "evt-1",
			Timestamp: time.Now().UTC(),
			EventType: models.EventTypeFlagged,
			Severity:  models.SeverityMedium,
		},
	})

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Suspicious != 0 {
		t.Errorf("Suspicious = %d after one medium event, want 0", stats.Suspicious)
	}
	if stats.Flagged != 1 {
		t.Errorf("Flagged = %d, want 1", stats.Flagged)
	}
}

func TestResolveEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saveTestEvents(ctx, t, store, []*models.Event{blockedEvent("evt-1", now)})

	if err := store.Resolve(ctx, "evt-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, err := store.QueryByTimeRange(ctx, now.Add(-time.Minute), now.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("QueryByTimeRange: %v", err)
	}
	if len(got) != 1 || !got[0].Resolved {
		t.Error("event should be resolved after Resolve")
	}
}

func TestResolveUnknownEventID(t *testing.T) {
	store := setupTestStore(t)

	err := store.Resolve(context.Background(), "no-such-event")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
}
