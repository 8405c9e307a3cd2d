// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package pipeline chains the inspection stages into a single evaluation:
// inspect, evaluate rules, score anomaly, decide, execute. Each packet
// passes through exactly once and leaves with a terminal verdict.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/action"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/anomaly"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/inspector"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/ratestats"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/rules"
)

// PacketLog receives every inspected packet. The badger-backed packet log
// implements it; a nil log disables retention.
type PacketLog interface {
	Append(packet *models.Packet) error
}

// Pipeline orchestrates one packet evaluation end to end.
type Pipeline struct {
	inspector *inspector.Inspector
	engine    *rules.Engine
	scorer    anomaly.Scorer
	decider   *action.Decider
	tracker   *ratestats.Tracker
	log       PacketLog

	enabled        atomic.Bool
	anomalyEnabled atomic.Bool

	nodeLabel string
}

// Config assembles a pipeline from its stages.
type Config struct {
	Inspector      *inspector.Inspector
	Engine         *rules.Engine
	Scorer         anomaly.Scorer
	Decider        *action.Decider
	Tracker        *ratestats.Tracker
	Log            PacketLog
	NodeLabel      string
	Enabled        bool
	AnomalyEnabled bool
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		inspector: cfg.Inspector,
		engine:    cfg.Engine,
		scorer:    cfg.Scorer,
		decider:   cfg.Decider,
		tracker:   cfg.Tracker,
		log:       cfg.Log,
		nodeLabel: cfg.NodeLabel,
	}
	p.enabled.Store(cfg.Enabled)
	p.anomalyEnabled.Store(cfg.AnomalyEnabled)
	return p
}

// Process evaluates one packet. nodeLabel overrides the pipeline's default
// relay label when non-empty. A disabled pipeline passes everything
// through untouched. The packet is mutated in place: its id, size, flags,
// risk score, and action reflect the evaluation on return.
func (p *Pipeline) Process(ctx context.Context, packet *models.Packet, nodeLabel string) (models.ExecutionResult, models.RiskAssessment) {
	if nodeLabel == "" {
		nodeLabel = p.nodeLabel
	}

	if !p.enabled.Load() {
		packet.Action = models.ActionAllow
		return models.ExecutionResult{Status: models.StatusAllowed, PacketID: packet.ID},
			models.RiskAssessment{TriggeredRules: []string{}, Action: models.ActionAllow}
	}

	metrics.PacketsInspected.Inc()

	// Traffic statistics update first so the current packet counts toward
	// its own sender's rate.
	p.tracker.RecordMessage(packet.SenderID)
	if isImagePayload(packet.Payload) {
		p.tracker.RecordImages(packet.SenderID, 1)
	}

	// Stage 1: structural and content inspection.
	inspectStart := time.Now()
	insp := p.inspector.Inspect(packet, nodeLabel)
	metrics.ObserveStage("inspect", inspectStart)

	// Caller-supplied ids survive; only anonymous packets get the fresh
	// inspection id.
	if packet.ID == "" {
		packet.ID = insp.PacketID
	}
	if packet.Size == 0 {
		packet.Size = insp.Metadata.Size
	}
	for _, flag := range insp.Flags {
		packet.AddFlag(flag)
	}
	packet.AddRisk(insp.RiskScore)

	// Stage 2: rule evaluation against packet and sender statistics.
	rulesStart := time.Now()
	senderMeta := p.tracker.Snapshot(packet.SenderID)
	eval := p.engine.Evaluate(packet, senderMeta)
	metrics.ObserveStage("rules", rulesStart)

	for _, id := range eval.TriggeredRules {
		packet.AddFlag(id)
	}
	packet.AddRisk(eval.TotalRisk)

	// Stage 3: anomaly scoring on the accumulated packet state.
	var anomalyResult models.AnomalyResult
	anomalyResult.Confidence = 1
	if p.anomalyEnabled.Load() && p.scorer != nil {
		anomalyStart := time.Now()
		anomalyResult = p.scorer.Score(packet)
		metrics.ObserveStage("anomaly", anomalyStart)

		if anomalyResult.IsAnomalous {
			packet.AddFlag("ANOMALY_DETECTED")
			packet.AddRisk(int(anomalyResult.AnomalyScore))
		}
	}

	// Stage 4: verdict and side effects.
	decideStart := time.Now()
	decision := p.decider.Decide(packet.RiskScore, packet.Flags, eval.SuggestedAction)
	packet.Action = decision.Action
	result := p.decider.Execute(ctx, decision, packet.ID, nodeLabel, eval.TriggeredRules)
	metrics.ObserveStage("decide", decideStart)

	metrics.PacketDecisions.WithLabelValues(string(decision.Action)).Inc()

	assessment := models.RiskAssessment{
		TotalRisk:      packet.RiskScore,
		TriggeredRules: eval.TriggeredRules,
		Anomaly:        anomalyResult,
		Action:         decision.Action,
	}

	p.record(packet)

	logging.Debug().
		Str("packet_id", packet.ID).
		Str("action", string(decision.Action)).
		Int("risk", packet.RiskScore).
		Strs("flags", packet.Flags).
		Msg("packet evaluated")

	return result, assessment
}

// record appends the evaluated packet to the retention log. Failures are
// logged; retention is best effort.
func (p *Pipeline) record(packet *models.Packet) {
	if p.log == nil {
		return
	}
	if err := p.log.Append(packet); err != nil {
		logging.Error().Err(err).Str("packet_id", packet.ID).Msg("failed to log packet")
	}
}

// SetEnabled toggles the whole pipeline. Disabled means every packet is
// allowed without inspection.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
	logging.Info().Bool("enabled", enabled).Msg("pipeline toggled")
}

// Enabled reports whether the pipeline inspects traffic.
func (p *Pipeline) Enabled() bool {
	return p.enabled.Load()
}

// SetAnomalyEnabled toggles the anomaly scoring stage.
func (p *Pipeline) SetAnomalyEnabled(enabled bool) {
	p.anomalyEnabled.Store(enabled)
}

// AnomalyEnabled reports whether the anomaly stage runs.
func (p *Pipeline) AnomalyEnabled() bool {
	return p.anomalyEnabled.Load()
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	Enabled        bool `json:"enabled"`
	RulesEnabled   bool `json:"rulesEnabled"`
	RuleCount      int  `json:"ruleCount"`
	AnomalyEnabled bool `json:"anomalyEnabled"`
	AnomalyTrained bool `json:"anomalyTrained"`
	TrackedSenders int  `json:"trackedSenders"`
}

// Status reports the current pipeline state.
func (p *Pipeline) Status() Status {
	trained := false
	if t, ok := p.scorer.(interface{ Trained() bool }); ok {
		trained = t.Trained()
	}
	return Status{
		Enabled:        p.enabled.Load(),
		RulesEnabled:   p.engine.Enabled(),
		RuleCount:      len(p.engine.Rules()),
		AnomalyEnabled: p.anomalyEnabled.Load(),
		AnomalyTrained: trained,
		TrackedSenders: p.tracker.TrackedSenders(),
	}
}

// isImagePayload reports whether the payload declares an image message.
// Non-JSON payloads are not images.
func isImagePayload(payload string) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return false
	}
	return probe.Type == "image"
}
