// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package ratestats

import (
	"context"
	"time"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

const (
	// messageWindow is the rate-limit observation window: messages/sec.
	messageWindow  = time.Second
	messageBuckets = 10

	// imageWindow is the image-count observation window: images/min.
	imageWindow  = time.Minute
	imageBuckets = 12
)

// Tracker maintains per-sender message and image counters over their
// respective windows. All methods are safe for concurrent use; concurrent
// packets from the same sender are counted exactly once each.
type Tracker struct {
	messages *windowStore
	images   *windowStore

	// now is swappable for tests.
	now func() time.Time
}

// NewTracker creates a tracker holding at most maxSenders counters per
// window.
func NewTracker(maxSenders int) *Tracker {
	return &Tracker{
		messages: newWindowStore(messageWindow, messageBuckets, maxSenders),
		images:   newWindowStore(imageWindow, imageBuckets, maxSenders),
		now:      time.Now,
	}
}

// RecordMessage counts one message from the sender.
func (t *Tracker) RecordMessage(senderID string) {
	if senderID == "" {
		return
	}
	t.messages.add(senderID, 1, t.now())
}

// RecordImages counts n images from the sender.
func (t *Tracker) RecordImages(senderID string, n int) {
	if senderID == "" || n <= 0 {
		return
	}
	t.images.add(senderID, int64(n), t.now())
}

// Snapshot returns the sender's current traffic metadata.
func (t *Tracker) Snapshot(senderID string) models.SenderMetadata {
	now := t.now()
	return models.SenderMetadata{
		MessageRate: float64(t.messages.count(senderID, now)) / messageWindow.Seconds(),
		ImageCount:  int(t.images.count(senderID, now)),
	}
}

// TrackedSenders returns the number of senders currently holding counters.
func (t *Tracker) TrackedSenders() int {
	n := t.messages.len()
	if m := t.images.len(); m > n {
		n = m
	}
	return n
}

// Serve runs the idle-sender janitor until the context is canceled. It is
// shaped for suture supervision.
func (t *Tracker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(imageWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := t.now()
			removed := t.messages.cleanupInactive(now) + t.images.cleanupInactive(now)
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("evicted idle sender counters")
			}
		}
	}
}
