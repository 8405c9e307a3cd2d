// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package models defines the data types shared across the inspection
// pipeline: packets under evaluation, per-sender traffic metadata, risk
// assessments, and recorded security events.
package models

// Action is a rule-suggested or final verdict for a packet.
type Action string

const (
	ActionAllow Action = "allow"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Priority returns the resolution rank of the action: block > flag > allow.
func (a Action) Priority() int {
	switch a {
	case ActionBlock:
		return 2
	case ActionFlag:
		return 1
	default:
		return 0
	}
}

// Terminal statuses returned to the transport layer.
const (
	StatusAllowed = "ALLOWED"
	StatusFlagged = "FLAGGED"
	StatusBlocked = "BLOCKED"
)

// Packet is one message-bearing unit submitted for risk evaluation. It is
// created per inbound message and lives only for the duration of one
// pipeline pass; Flags and RiskScore accumulate during the pass and never
// decrease.
type Packet struct {
	ID         string   `json:"id"`
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	Payload    string   `json:"payload"`
	Size       int64    `json:"size,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	RiskScore  int      `json:"riskScore,omitempty"`
	Action     Action   `json:"action,omitempty"`
}

// AddFlag appends a flag if not already present, preserving insertion order.
func (p *Packet) AddFlag(flag string) {
	for _, f := range p.Flags {
		if f == flag {
			return
		}
	}
	p.Flags = append(p.Flags, flag)
}

// AddRisk accumulates risk points. Negative deltas are ignored: a packet's
// risk score never decreases within one evaluation.
func (p *Packet) AddRisk(points int) {
	if points > 0 {
		p.RiskScore += points
	}
}

// SenderMetadata carries per-sender traffic counters maintained by an
// external collaborator (the ratestats tracker) and consumed by
// metadata-dependent rules.
type SenderMetadata struct {
	// MessageRate is the sender's messages per second over the last second.
	MessageRate float64 `json:"messageRate"`

	// ImageCount is the number of images the sender posted in the last
	// minute.
	ImageCount int `json:"imageCount"`
}

// AnomalyResult is the verdict of the anomaly scorer for one packet.
type AnomalyResult struct {
	// AnomalyScore is the derived risk contribution, (1-confidence)*100
	// when anomalous, else 0.
	AnomalyScore float64 `json:"anomalyScore"`

	// IsAnomalous is true when confidence fell below the configured
	// threshold.
	IsAnomalous bool `json:"isAnomalous"`

	// Confidence is the agreement with the trained baseline in [0,1].
	// An untrained scorer reports 1.
	Confidence float64 `json:"confidence"`
}

// RiskAssessment is the aggregate of one evaluation. Produced once per
// packet and immutable after creation.
type RiskAssessment struct {
	// TotalRisk is the sum of structural, rule, and anomaly contributions.
	// Uncapped.
	TotalRisk int `json:"totalRisk"`

	// TriggeredRules lists triggered rule ids in registration order.
	TriggeredRules []string `json:"triggeredRules"`

	// Anomaly is the anomaly scorer's verdict.
	Anomaly AnomalyResult `json:"anomaly"`

	// Action is the final resolved verdict.
	Action Action `json:"action"`
}

// ExecutionResult is returned to the surrounding transport/delivery layer.
type ExecutionResult struct {
	Status   string `json:"status"`
	PacketID string `json:"packetId"`
	Reason   string `json:"reason,omitempty"`
}
