// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package anomaly

import (
	"math"
	"sync"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Scorer is the anomaly detection contract consumed by the pipeline.
type Scorer interface {
	// Train fits a baseline to samples of normal traffic. An empty sample
	// set is a no-op: the scorer stays untrained rather than fitting a
	// degenerate model.
	Train(samples []*models.Packet) error

	// Score evaluates one packet against the baseline. An untrained scorer
	// returns the neutral result {AnomalyScore: 0, IsAnomalous: false,
	// Confidence: 1} instead of an error.
	Score(p *models.Packet) models.AnomalyResult
}

// stddevFloor keeps z-scores finite when a feature has no variance in the
// training set.
const stddevFloor = 0.05

// gaussianModel is one fitted baseline. Immutable once built; retraining
// replaces the whole model.
type gaussianModel struct {
	mean   FeatureVector
	stddev FeatureVector
}

// GaussianScorer scores packets by mean per-feature z-score distance from
// the trained baseline. Confidence decays smoothly with distance:
// confidence = 1 / (1 + avgZ/3), so baseline-identical traffic scores ~1
// and a packet three standard deviations out on average scores 0.5.
type GaussianScorer struct {
	mu        sync.RWMutex
	model     *gaussianModel
	threshold float64
}

// NewGaussianScorer creates a scorer flagging packets whose confidence
// falls below threshold.
func NewGaussianScorer(threshold float64) *GaussianScorer {
	return &GaussianScorer{threshold: threshold}
}

// Train fits a fresh baseline and atomically swaps it in. In-flight Score
// calls observe either the old or new model, never a mix.
func (s *GaussianScorer) Train(samples []*models.Packet) error {
	if len(samples) == 0 {
		logging.Warn().Msg("no training samples provided, scorer unchanged")
		return nil
	}

	vectors := make([]FeatureVector, len(samples))
	for i, sample := range samples {
		vectors[i] = ExtractFeatures(sample)
	}

	model := fit(vectors)

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	logging.Info().Int("samples", len(samples)).Msg("anomaly baseline trained")
	return nil
}

// Score evaluates the packet against the current baseline.
func (s *GaussianScorer) Score(p *models.Packet) models.AnomalyResult {
	s.mu.RLock()
	model := s.model
	threshold := s.threshold
	s.mu.RUnlock()

	if model == nil {
		return models.AnomalyResult{AnomalyScore: 0, IsAnomalous: false, Confidence: 1}
	}

	features := ExtractFeatures(p)

	var totalZ float64
	for i := 0; i < NumFeatures; i++ {
		totalZ += math.Abs(features[i]-model.mean[i]) / model.stddev[i]
	}
	avgZ := totalZ / NumFeatures

	confidence := 1 / (1 + avgZ/3)

	metrics.AnomalyConfidence.Observe(confidence)

	result := models.AnomalyResult{Confidence: confidence}
	if confidence < threshold {
		result.IsAnomalous = true
		result.AnomalyScore = (1 - confidence) * 100
		metrics.AnomalyDetections.Inc()
	}
	return result
}

// Trained reports whether a baseline has been fitted.
func (s *GaussianScorer) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// fit computes per-feature mean and standard deviation.
func fit(vectors []FeatureVector) *gaussianModel {
	n := float64(len(vectors))
	model := &gaussianModel{}

	for _, v := range vectors {
		for i := 0; i < NumFeatures; i++ {
			model.mean[i] += v[i]
		}
	}
	for i := 0; i < NumFeatures; i++ {
		model.mean[i] /= n
	}

	for _, v := range vectors {
		for i := 0; i < NumFeatures; i++ {
			d := v[i] - model.mean[i]
			model.stddev[i] += d * d
		}
	}
	for i := 0; i < NumFeatures; i++ {
		model.stddev[i] = math.Sqrt(model.stddev[i] / n)
		if model.stddev[i] < stddevFloor {
			model.stddev[i] = stddevFloor
		}
	}

	return model
}
