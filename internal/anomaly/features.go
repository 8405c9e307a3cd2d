// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package anomaly scores packets against a trained baseline of normal
// traffic. The scorer is an interface over {Train, Score} so the pipeline's
// contract is decoupled from the modeling technique; the one concrete
// implementation is a per-feature Gaussian z-score model.
package anomaly

import "github.com/dionjoshualobo/SchizoChatPlus/internal/models"

// NumFeatures is the dimensionality of the feature vector.
const NumFeatures = 5

// Normalization maxima, per feature. Values beyond the max clamp to 1.
const (
	maxSize          = 2000
	maxPayloadLength = 2000
	maxRiskScore     = 100
	maxFlagCount     = 10
)

// FeatureVector is a packet mapped into [0,1]^5: normalized size, payload
// length, prior risk score, flag count, and a binary blocked indicator.
type FeatureVector [NumFeatures]float64

// ExtractFeatures maps a packet to its feature vector. Extraction is
// idempotent and every component is clamped into [0,1].
func ExtractFeatures(p *models.Packet) FeatureVector {
	blocked := 0.0
	if p.Action == models.ActionBlock {
		blocked = 1.0
	}
	return FeatureVector{
		normalize(float64(p.Size), maxSize),
		normalize(float64(len(p.Payload)), maxPayloadLength),
		normalize(float64(p.RiskScore), maxRiskScore),
		normalize(float64(len(p.Flags)), maxFlagCount),
		blocked,
	}
}

// normalize linearly maps value into [0,1] against max, clamping both ends.
func normalize(value, max float64) float64 {
	if max <= 0 {
		return 0
	}
	v := value / max
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
