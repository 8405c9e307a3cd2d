// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package anomaly

import (
	"context"
	"time"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/metrics"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// SampleSource supplies recent normal traffic for baseline training. The
// raw packet log implements this.
type SampleSource interface {
	RecentPackets(ctx context.Context, limit int) ([]*models.Packet, error)
}

// Retrainer periodically refits the scorer's baseline from recent traffic.
// It runs as a supervised service.
type Retrainer struct {
	scorer   Scorer
	source   SampleSource
	interval time.Duration
	target   int
}

// NewRetrainer creates a retrainer that refits every interval using up to
// target samples.
func NewRetrainer(scorer Scorer, source SampleSource, interval time.Duration, target int) *Retrainer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if target <= 0 {
		target = 1000
	}
	return &Retrainer{scorer: scorer, source: source, interval: interval, target: target}
}

// Serve retrains once at startup and then on every interval tick, until the
// context is canceled. Retrain failures are logged and retried on the next
// tick; they never stop the service.
func (r *Retrainer) Serve(ctx context.Context) error {
	r.retrain(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("anomaly retrainer stopped")
			return ctx.Err()
		case <-ticker.C:
			r.retrain(ctx)
		}
	}
}

// retrain performs one fetch-and-fit cycle.
func (r *Retrainer) retrain(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	samples, err := r.source.RecentPackets(fetchCtx, r.target)
	if err != nil {
		metrics.AnomalyRetrainings.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("failed to fetch training samples")
		return
	}
	// The baseline models normal traffic only. Flagged and blocked packets
	// stay out of the fit, otherwise repeated attacks would shift the
	// baseline toward them.
	normal := samples[:0]
	for _, sample := range samples {
		if sample.Action == models.ActionAllow {
			normal = append(normal, sample)
		}
	}
	samples = normal

	if len(samples) == 0 {
		metrics.AnomalyRetrainings.WithLabelValues("empty").Inc()
		logging.Debug().Msg("no allowed traffic samples yet, skipping retrain")
		return
	}

	if err := r.scorer.Train(samples); err != nil {
		metrics.AnomalyRetrainings.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("anomaly retrain failed")
		return
	}
	metrics.AnomalyRetrainings.WithLabelValues("ok").Inc()
}
