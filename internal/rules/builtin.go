// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/config"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/inspector"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Default rule ids.
const (
	RuleOversizedPacket = "R001"
	RuleMalformedJSON   = "R002"
	RuleSQLInjection    = "R003"
	RuleMessageRate     = "R004"
	RuleXSSAttempt      = "R005"
	RuleExcessiveImages = "R006"
	RuleNullBytes       = "R007"
	RuleUnusualChars    = "R008"
)

// DefaultRules builds the built-in rule set with thresholds taken from the
// rule-engine configuration.
func DefaultRules(cfg config.RulesConfig) []Rule {
	return []Rule{
		{
			ID:          RuleOversizedPacket,
			Name:        "Oversized Packet",
			RiskScore:   40,
			Action:      models.ActionFlag,
			Description: fmt.Sprintf("Packet exceeds %d byte size limit", cfg.OversizedPacketLimit),
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return p.Size > cfg.OversizedPacketLimit
			},
		},
		{
			ID:          RuleMalformedJSON,
			Name:        "Malformed JSON",
			RiskScore:   60,
			Action:      models.ActionBlock,
			Description: "Invalid JSON structure in payload",
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return !json.Valid([]byte(p.Payload))
			},
		},
		{
			ID:          RuleSQLInjection,
			Name:        "SQL Injection Attempt",
			RiskScore:   80,
			Action:      models.ActionBlock,
			Description: "Detected SQL injection pattern in payload",
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return inspector.ContainsSQLKeyword(p.Payload)
			},
		},
		{
			ID:          RuleMessageRate,
			Name:        "Rate Limiting",
			RiskScore:   50,
			Action:      models.ActionFlag,
			Description: fmt.Sprintf("Sender exceeding %.0f messages/sec", cfg.RateLimitMessagesPerSec),
			Predicate: func(_ *models.Packet, meta models.SenderMetadata) bool {
				return meta.MessageRate > cfg.RateLimitMessagesPerSec
			},
		},
		{
			ID:          RuleXSSAttempt,
			Name:        "XSS Attempt",
			RiskScore:   70,
			Action:      models.ActionBlock,
			Description: "Detected script tag in payload",
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return inspector.ContainsScriptTag(p.Payload)
			},
		},
		{
			ID:          RuleExcessiveImages,
			Name:        "Excessive Images",
			RiskScore:   30,
			Action:      models.ActionFlag,
			Description: fmt.Sprintf("Sender posted more than %d images in one minute", cfg.MaxImagesPerMinute),
			Predicate: func(_ *models.Packet, meta models.SenderMetadata) bool {
				return meta.ImageCount > cfg.MaxImagesPerMinute
			},
		},
		{
			ID:          RuleNullBytes,
			Name:        "Null Bytes Detected",
			RiskScore:   65,
			Action:      models.ActionBlock,
			Description: "Null byte character found in payload",
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return inspector.ContainsNullByte(p.Payload)
			},
		},
		{
			ID:          RuleUnusualChars,
			Name:        "Unusual Characters",
			RiskScore:   45,
			Action:      models.ActionFlag,
			Description: "Payload contains non-ASCII or unusual characters",
			Predicate: func(p *models.Packet, _ models.SenderMetadata) bool {
				return inspector.ContainsNonASCII(p.Payload)
			},
		},
	}
}

// CustomRuleSpec is a declarative rule definition accepted at runtime, e.g.
// through the admin API. Exactly one matcher must be set.
type CustomRuleSpec struct {
	ID          string        `json:"id" validate:"required"`
	Name        string        `json:"name" validate:"required"`
	RiskScore   int           `json:"riskScore" validate:"gte=0"`
	Action      models.Action `json:"action" validate:"required,oneof=allow flag block"`
	Description string        `json:"description"`

	// PayloadContains triggers when the payload contains the substring.
	PayloadContains string `json:"payloadContains,omitempty"`

	// PayloadPattern triggers when the payload matches the regexp.
	PayloadPattern string `json:"payloadPattern,omitempty"`

	// MaxSize triggers when the packet size exceeds the limit.
	MaxSize int64 `json:"maxSize,omitempty"`
}

// Build converts the definition into a registrable rule.
func (s CustomRuleSpec) Build() (Rule, error) {
	rule := Rule{
		ID:          s.ID,
		Name:        s.Name,
		RiskScore:   s.RiskScore,
		Action:      s.Action,
		Description: s.Description,
	}

	switch {
	case s.PayloadContains != "":
		needle := s.PayloadContains
		rule.Predicate = func(p *models.Packet, _ models.SenderMetadata) bool {
			return containsFold(p.Payload, needle)
		}
	case s.PayloadPattern != "":
		pattern, err := regexp.Compile(s.PayloadPattern)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: bad pattern: %v", ErrInvalidRule, err)
		}
		rule.Predicate = func(p *models.Packet, _ models.SenderMetadata) bool {
			return pattern.MatchString(p.Payload)
		}
	case s.MaxSize > 0:
		limit := s.MaxSize
		rule.Predicate = func(p *models.Packet, _ models.SenderMetadata) bool {
			return p.Size > limit
		}
	default:
		return Rule{}, fmt.Errorf("%w: spec defines no matcher", ErrInvalidRule)
	}

	return rule, nil
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
