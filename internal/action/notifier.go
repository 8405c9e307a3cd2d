// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package action

import (
	"context"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Notifier delivers blocked-packet events to an admin channel.
type Notifier interface {
	// Send delivers a single event. Implementations must respect the
	// context deadline and apply their own rate limiting.
	Send(ctx context.Context, event *models.Event) error

	// Name identifies the notifier for logging.
	Name() string

	// Enabled reports whether the notifier should receive events.
	Enabled() bool
}
