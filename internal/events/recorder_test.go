// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// mockStore implements Store in memory.
type mockStore struct {
	mu      sync.Mutex
	saved   []*models.Event
	saveErr error
}

func (m *mockStore) SaveEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, event)
	return nil
}

func (m *mockStore) QueryByTimeRange(_ context.Context, _, _ time.Time, _ int) ([]models.Event, error) {
	return nil, nil
}

func (m *mockStore) Statistics(_ context.Context) (models.EventStatistics, error) {
	return models.EventStatistics{}, nil
}

func (m *mockStore) Resolve(_ context.Context, _ string) error {
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func testEvent() *models.Event {
	return &models.Event{
		EventType: models.EventTypeBlocked,
		Severity:  models.SeverityHigh,
		RelayNode: "entry",
		PacketID:  "pkt-1",
	}
}

func TestRecordAssignsIdentity(t *testing.T) {
	store := &mockStore{}
	recorder := NewRecorder(store, nil, RecorderConfig{})

	event := testEvent()
	recorded, err := recorder.Record(context.Background(), event)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if recorded.EventID == "" {
		t.Error("EventID not assigned")
	}
	if recorded.Timestamp.IsZero() {
		t.Error("Timestamp not assigned")
	}
	if store.count() != 1 {
		t.Errorf("store has %d events, want 1", store.count())
	}
}

func TestRecordKeepsCallerEventID(t *testing.T) {
	recorder := NewRecorder(&mockStore{}, nil, RecorderConfig{})

	event := testEvent()
	event.EventID = "fixed-id"
	recorded, err := recorder.Record(context.Background(), event)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if recorded.EventID != "fixed-id" {
		t.Errorf("EventID = %q, want fixed-id", recorded.EventID)
	}
}

func TestRecordStoreFailureIsReportedNotFatal(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	recorder := NewRecorder(store, nil, RecorderConfig{})

	recorded, err := recorder.Record(context.Background(), testEvent())
	if err == nil {
		t.Fatal("Record returned nil error for failing store")
	}
	if recorded == nil || recorded.EventID == "" {
		t.Error("failed Record should still return an identified event")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &mockStore{saveErr: errors.New("down")}
	recorder := NewRecorder(store, nil, RecorderConfig{
		BreakerFailureThreshold: 3,
		BreakerResetTimeout:     time.Minute,
	})

	for i := 0; i < 3; i++ {
		if _, err := recorder.Record(context.Background(), testEvent()); err == nil {
			t.Fatalf("Record %d succeeded unexpectedly", i)
		}
	}

	if state := recorder.BreakerState(); state != "open" {
		t.Errorf("BreakerState = %q, want open", state)
	}

	// With the breaker open the store is no longer called.
	before := store.count()
	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	if _, err := recorder.Record(context.Background(), testEvent()); err == nil {
		t.Error("open breaker should reject writes")
	}
	if store.count() != before {
		t.Error("store was called while breaker open")
	}
}

func TestRecordPublishesLiveEvents(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, TopicEvents)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	recorder := NewRecorder(&mockStore{}, pubsub, RecorderConfig{EmitLiveEvents: true})

	event := testEvent()
	if _, err := recorder.Record(ctx, event); err != nil {
		t.Fatalf("Record: %v", err)
	}

	select {
	case msg := <-messages:
		var got models.Event
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got.PacketID != "pkt-1" || got.EventType != models.EventTypeBlocked {
			t.Errorf("published event = %+v", got)
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("no live event published")
	}
}

func TestRecordEmitDisabledPublishesNothing(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, TopicEvents)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	recorder := NewRecorder(&mockStore{}, pubsub, RecorderConfig{EmitLiveEvents: false})
	if _, err := recorder.Record(ctx, testEvent()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	select {
	case msg := <-messages:
		t.Errorf("unexpected message published: %s", msg.UUID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecordPersistenceDisabledSkipsStore(t *testing.T) {
	store := &mockStore{}
	recorder := NewRecorder(store, nil, RecorderConfig{DisablePersistence: true})

	recorded, err := recorder.Record(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if recorded.EventID == "" {
		t.Error("EventID should still be assigned")
	}
	if store.count() != 0 {
		t.Errorf("store writes = %d, want 0", store.count())
	}
}
