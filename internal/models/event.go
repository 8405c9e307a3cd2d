// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package models

import "time"

// Severity indicates the severity level of a recorded event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event types written by the action decider.
const (
	EventTypeBlocked = "packet_blocked"
	EventTypeFlagged = "packet_flagged"
	EventTypeAllowed = "packet_allowed"
)

// Event is a durable record of one decision. Never mutated after creation
// except the Resolved flag, flipped by an operator during triage.
type Event struct {
	EventID       string         `json:"eventId"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"eventType"`
	Severity      Severity       `json:"severity"`
	RelayNode     string         `json:"relayNode"`
	PacketID      string         `json:"packetId"`
	RuleTriggered []string       `json:"ruleTriggered"`
	Details       map[string]any `json:"details"`
	Resolved      bool           `json:"resolved"`
}

// EventStatistics holds the running counters exposed for observability.
type EventStatistics struct {
	TotalEvents int64 `json:"totalEvents"`
	Blocked     int64 `json:"blocked"`
	Flagged     int64 `json:"flagged"`

	// Suspicious counts high-severity events.
	Suspicious int64 `json:"suspicious"`
}
