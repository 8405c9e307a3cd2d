// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package action

import (
	"context"
	"strings"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// LogNotifier writes blocked-packet events to the structured log. It is
// always available and serves as the baseline admin channel when no
// webhook is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Name returns the notifier name.
func (n *LogNotifier) Name() string {
	return "log"
}

// Enabled always reports true.
func (n *LogNotifier) Enabled() bool {
	return true
}

// Send logs the event at warn level.
func (n *LogNotifier) Send(_ context.Context, event *models.Event) error {
	logging.Warn().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("severity", string(event.Severity)).
		Str("relay_node", event.RelayNode).
		Str("packet_id", event.PacketID).
		Str("rules", strings.Join(event.RuleTriggered, ",")).
		Msg("security event")
	return nil
}
