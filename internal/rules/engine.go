// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package rules evaluates an ordered, extensible set of declarative rules
// against packets and per-sender traffic metadata. Each engine instance
// owns its registry; there is no process-wide rule list shared across
// engines.
package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// ErrInvalidRule is returned when a registered rule fails validation.
var ErrInvalidRule = errors.New("invalid rule")

// Predicate decides whether a rule triggers for a packet. Must be safe for
// concurrent calls.
type Predicate func(packet *models.Packet, meta models.SenderMetadata) bool

// Rule is a named predicate with a fixed risk contribution and a suggested
// action.
type Rule struct {
	ID          string        `json:"id" validate:"required"`
	Name        string        `json:"name" validate:"required"`
	RiskScore   int           `json:"riskScore" validate:"gte=0"`
	Action      models.Action `json:"action" validate:"required,oneof=allow flag block"`
	Description string        `json:"description"`
	Predicate   Predicate     `json:"-" validate:"required"`
}

// Evaluation is the outcome of running every registered rule against one
// packet.
type Evaluation struct {
	// TotalRisk is the sum of the risk contributions of triggered rules.
	TotalRisk int `json:"totalRisk"`

	// TriggeredRules lists triggered rule ids in registration order.
	TriggeredRules []string `json:"triggeredRules"`

	// SuggestedAction resolves by strict priority: block > flag > allow.
	SuggestedAction models.Action `json:"suggestedAction"`
}

// Engine holds the rule registry. Evaluation takes a read snapshot;
// registration is the rare exclusive write.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	disabled map[string]bool
	validate *validator.Validate
	enabled  bool
}

// NewEngine creates an engine seeded with the given rules, preserving their
// order.
func NewEngine(seed []Rule) (*Engine, error) {
	e := &Engine{
		disabled: make(map[string]bool),
		validate: validator.New(),
		enabled:  true,
	}
	for _, rule := range seed {
		if err := e.Register(rule); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register adds a rule to the registry. A rule missing an id, name,
// predicate, or carrying an unknown action is rejected with ErrInvalidRule;
// duplicate ids are rejected as well.
func (e *Engine) Register(rule Rule) error {
	if err := e.validate.Struct(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, rule.ID)
		}
	}
	e.rules = append(e.rules, rule)

	logging.Info().Str("rule", rule.ID).Str("name", rule.Name).Msg("registered rule")
	return nil
}

// Evaluate runs every enabled rule against the packet. A rule whose
// predicate panics is logged and skipped; the remaining rules still run.
func (e *Engine) Evaluate(packet *models.Packet, meta models.SenderMetadata) Evaluation {
	e.mu.RLock()
	rules := e.rules
	disabled := make(map[string]bool, len(e.disabled))
	for id, off := range e.disabled {
		disabled[id] = off
	}
	enabled := e.enabled
	e.mu.RUnlock()

	eval := Evaluation{
		TriggeredRules:  []string{},
		SuggestedAction: models.ActionAllow,
	}
	if !enabled {
		return eval
	}

	for _, rule := range rules {
		if disabled[rule.ID] {
			continue
		}
		triggered, err := checkRule(rule, packet, meta)
		if err != nil {
			metrics.RuleEvaluationPanics.Inc()
			logging.Error().Err(err).Str("rule", rule.ID).Msg("rule evaluation failed, skipping")
			continue
		}
		if !triggered {
			continue
		}

		metrics.RuleTriggers.WithLabelValues(rule.ID).Inc()
		eval.TotalRisk += rule.RiskScore
		eval.TriggeredRules = append(eval.TriggeredRules, rule.ID)
		if rule.Action.Priority() > eval.SuggestedAction.Priority() {
			eval.SuggestedAction = rule.Action
		}
	}

	return eval
}

// checkRule runs one predicate, converting a panic into an error so a bad
// rule never aborts evaluation of the rest.
func checkRule(rule Rule, packet *models.Packet, meta models.SenderMetadata) (triggered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			triggered = false
			err = fmt.Errorf("rule %s panicked: %v", rule.ID, r)
		}
	}()
	return rule.Predicate(packet, meta), nil
}

// SetRuleEnabled enables or disables a single rule.
func (e *Engine) SetRuleEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		if rule.ID == id {
			e.disabled[id] = !enabled
			return nil
		}
	}
	return fmt.Errorf("rule not found: %s", id)
}

// SetEnabled enables or disables the whole engine. A disabled engine
// evaluates to zero risk and allow.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports whether the engine is enabled.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// RuleInfo describes a registered rule for listings; the predicate is not
// exposed.
type RuleInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	RiskScore   int           `json:"riskScore"`
	Action      models.Action `json:"action"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
}

// Rules lists registered rules in registration order.
func (e *Engine) Rules() []RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]RuleInfo, 0, len(e.rules))
	for _, rule := range e.rules {
		infos = append(infos, RuleInfo{
			ID:          rule.ID,
			Name:        rule.Name,
			RiskScore:   rule.RiskScore,
			Action:      rule.Action,
			Description: rule.Description,
			Enabled:     !e.disabled[rule.ID],
		})
	}
	return infos
}

// Rule returns a registered rule's listing by id.
func (e *Engine) Rule(id string) (RuleInfo, bool) {
	for _, info := range e.Rules() {
		if info.ID == id {
			return info, true
		}
	}
	return RuleInfo{}, false
}
