// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package action resolves aggregated risk signals into a terminal verdict
// (ALLOW, FLAG, BLOCK) and executes its side effects: event recording and
// admin notification. The decision itself is a pure mapping; it never
// inspects payload content.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Reasons attached to non-allow results.
const (
	reasonBlocked = "High risk score detected"
	reasonFlagged = "Suspicious packet, needs review"
)

// EventRecorder persists decision events. Implemented by the events
// package; failures are isolated there and here, never reversing a
// decision already made.
type EventRecorder interface {
	Record(ctx context.Context, event *models.Event) (*models.Event, error)
}

// Decision is the resolved verdict for one packet.
type Decision struct {
	Action    models.Action `json:"action"`
	Flags     []string      `json:"flags"`
	RiskScore int           `json:"riskScore"`
}

// Decider maps risk scores to verdicts and executes their consequences.
type Decider struct {
	flagThreshold  int
	blockThreshold int
	logAllowed     bool

	recorder EventRecorder

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewDecider creates a decider with the given thresholds. Risk at or above
// blockThreshold blocks; at or above flagThreshold flags; anything lower is
// allowed.
func NewDecider(flagThreshold, blockThreshold int, logAllowed bool, recorder EventRecorder) *Decider {
	return &Decider{
		flagThreshold:  flagThreshold,
		blockThreshold: blockThreshold,
		logAllowed:     logAllowed,
		recorder:       recorder,
	}
}

// RegisterNotifier adds an admin notification sink.
func (d *Decider) RegisterNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// Decide maps the aggregated risk score and any rule-suggested action to a
// verdict. The mapping is deterministic: thresholds first, then escalation
// when the rule engine suggested a stronger action than the score alone
// reaches.
func (d *Decider) Decide(riskScore int, flags []string, suggested models.Action) Decision {
	verdict := models.ActionAllow
	switch {
	case riskScore >= d.blockThreshold:
		verdict = models.ActionBlock
	case riskScore >= d.flagThreshold:
		verdict = models.ActionFlag
	}

	if suggested.Priority() > verdict.Priority() {
		verdict = suggested
	}

	return Decision{Action: verdict, Flags: flags, RiskScore: riskScore}
}

// Execute performs the side effects of a decision and returns the result
// handed back to the transport layer. Recording or notification failures
// are logged and surfaced through the recorder's own alerting; they never
// change the returned result.
func (d *Decider) Execute(ctx context.Context, decision Decision, packetID, nodeLabel string, triggeredRules []string) models.ExecutionResult {
	switch decision.Action {
	case models.ActionBlock:
		d.raise(ctx, models.EventTypeBlocked, models.SeverityHigh, decision, packetID, nodeLabel, triggeredRules, true)
		return models.ExecutionResult{Status: models.StatusBlocked, PacketID: packetID, Reason: reasonBlocked}

	case models.ActionFlag:
		d.raise(ctx, models.EventTypeFlagged, models.SeverityMedium, decision, packetID, nodeLabel, triggeredRules, false)
		return models.ExecutionResult{Status: models.StatusFlagged, PacketID: packetID, Reason: reasonFlagged}

	default:
		if d.logAllowed {
			d.raise(ctx, models.EventTypeAllowed, models.SeverityLow, decision, packetID, nodeLabel, triggeredRules, false)
		}
		return models.ExecutionResult{Status: models.StatusAllowed, PacketID: packetID}
	}
}

// raise records an event and, when notify is set, fans it out to the admin
// notifiers.
func (d *Decider) raise(ctx context.Context, eventType string, severity models.Severity, decision Decision, packetID, nodeLabel string, triggeredRules []string, notify bool) {
	event := &models.Event{
		Timestamp:     time.Now(),
		EventType:     eventType,
		Severity:      severity,
		RelayNode:     nodeLabel,
		PacketID:      packetID,
		RuleTriggered: triggeredRules,
		Details: map[string]any{
			"riskScore": decision.RiskScore,
			"flags":     decision.Flags,
		},
	}

	recorded, err := d.recorder.Record(ctx, event)
	if err != nil {
		logging.Error().Err(err).Str("packet_id", packetID).Msg("failed to record decision event")
		recorded = event
	}

	if !notify {
		return
	}

	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	for _, n := range notifiers {
		if !n.Enabled() {
			continue
		}
		go func(n Notifier) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Send(notifyCtx, recorded); err != nil {
				logging.Error().Err(err).Str("notifier", n.Name()).Msg("failed to notify")
			}
		}(n)
	}
}

// Thresholds reports the configured thresholds, for status endpoints.
func (d *Decider) Thresholds() (flag, block int) {
	return d.flagThreshold, d.blockThreshold
}

// String renders a decision for logs.
func (dec Decision) String() string {
	return fmt.Sprintf("%s (risk=%d)", dec.Action, dec.RiskScore)
}
