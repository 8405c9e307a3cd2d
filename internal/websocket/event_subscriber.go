// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// EventSubscriber bridges the in-process event stream to websocket
// broadcasts. It subscribes to the recorder's topic and forwards each
// event to the hub.
type EventSubscriber struct {
	hub        *Hub
	subscriber message.Subscriber
	topic      string
}

// NewEventSubscriber creates a subscriber feeding the given hub.
func NewEventSubscriber(hub *Hub, subscriber message.Subscriber, topic string) *EventSubscriber {
	return &EventSubscriber{hub: hub, subscriber: subscriber, topic: topic}
}

// Serve consumes the event topic until the context is done. Shaped for
// supervision tree membership.
func (s *EventSubscriber) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return err
	}

	logging.Info().Str("topic", s.topic).Msg("websocket event subscriber started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("websocket event subscriber stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				logging.Info().Msg("event stream closed")
				return nil
			}
			s.handle(msg)
		}
	}
}

func (s *EventSubscriber) handle(msg *message.Message) {
	// Always ack; a malformed live event is dropped, not redelivered.
	defer msg.Ack()

	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("discarding malformed event message")
		return
	}

	s.hub.BroadcastEvent(&event)
}
