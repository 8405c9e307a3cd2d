// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// TopicEvents is the in-process topic live events are published on.
const TopicEvents = "security.events"

// RecorderConfig tunes the recorder's failure isolation.
type RecorderConfig struct {
	// RecordTimeout bounds each store write.
	RecordTimeout time.Duration
	// BreakerFailureThreshold is the consecutive failure count that opens
	// the breaker.
	BreakerFailureThreshold uint32
	// BreakerResetTimeout is how long the breaker stays open before
	// probing the store again.
	BreakerResetTimeout time.Duration
	// EmitLiveEvents publishes recorded events on TopicEvents.
	EmitLiveEvents bool
	// DisablePersistence skips the store write; events still reach live
	// subscribers. Maps to the logging.log_events switch.
	DisablePersistence bool
}

// Recorder persists events through a circuit breaker and publishes them to
// in-process subscribers. A failing store never propagates an error into
// the decision path; the packet verdict stands regardless.
type Recorder struct {
	store     Store
	breaker   *gobreaker.CircuitBreaker[any]
	publisher message.Publisher
	emitLive  bool
	persist   bool
	timeout   time.Duration
}

// NewRecorder creates a recorder around the given store. publisher may be
// nil when live event fan-out is disabled.
func NewRecorder(store Store, publisher message.Publisher, cfg RecorderConfig) *Recorder {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerResetTimeout <= 0 {
		cfg.BreakerResetTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "event-store",
		Timeout: cfg.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("event store circuit breaker state change")
		},
	}

	return &Recorder{
		store:     store,
		breaker:   gobreaker.NewCircuitBreaker[any](settings),
		publisher: publisher,
		emitLive:  cfg.EmitLiveEvents && publisher != nil,
		persist:   !cfg.DisablePersistence,
		timeout:   cfg.RecordTimeout,
	}
}

// Record assigns the event's identity, persists it, and publishes it to
// live subscribers. The returned event always carries a valid EventID and
// timestamp even when the store write failed; the error reports the write
// outcome so callers can log it.
func (r *Recorder) Record(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var err error
	if r.persist {
		_, err = r.breaker.Execute(func() (any, error) {
			writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return nil, r.store.SaveEvent(writeCtx, event)
		})
		if err != nil {
			metrics.EventStoreErrors.Inc()
		} else {
			metrics.EventsRecorded.WithLabelValues(event.EventType).Inc()
		}
	}

	// Live subscribers get the event either way; a broken store should
	// not blind the admin dashboard.
	r.publish(event)

	return event, err
}

// BreakerState reports the circuit breaker state for status endpoints.
func (r *Recorder) BreakerState() string {
	return r.breaker.State().String()
}

// Store exposes the underlying store for read paths.
func (r *Recorder) Store() Store {
	return r.store
}

func (r *Recorder) publish(event *models.Event) {
	if !r.emitLive {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event_id", event.EventID).Msg("failed to marshal live event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := r.publisher.Publish(TopicEvents, msg); err != nil {
		logging.Error().Err(err).Str("event_id", event.EventID).Msg("failed to publish live event")
	}
}
