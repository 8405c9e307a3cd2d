// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package metrics exposes Prometheus collectors for the inspection
// pipeline. Collectors are registered once at import via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PacketsInspected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_packets_inspected_total",
			Help: "Total number of packets run through the inspection pipeline",
		},
	)

	PacketDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_packet_decisions_total",
			Help: "Total number of packet verdicts by action",
		},
		[]string{"action"}, // "allow", "flag", "block"
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "inspect", "rules", "anomaly", "decide"
	)

	// Rule engine metrics
	RuleTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_triggered_total",
			Help: "Total number of rule matches by rule id",
		},
		[]string{"rule_id"},
	)

	RuleEvaluationPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rules_evaluation_panics_total",
			Help: "Total number of rule predicates recovered from panic",
		},
	)

	// Anomaly scorer metrics
	AnomalyConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_confidence",
			Help:    "Distribution of anomaly scorer confidence values",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
	)

	AnomalyDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_detections_total",
			Help: "Total number of packets scored as anomalous",
		},
	)

	AnomalyRetrainings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_retrainings_total",
			Help: "Total number of anomaly model retraining runs by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "empty"
	)

	// Event store metrics
	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_recorded_total",
			Help: "Total number of security events persisted by type",
		},
		[]string{"event_type"},
	)

	EventStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_store_errors_total",
			Help: "Total number of failed event store writes",
		},
	)

	// Packet log metrics
	PacketLogWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packet_log_writes_total",
			Help: "Total number of packets written to the raw packet log",
		},
	)

	PacketLogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packet_log_errors_total",
			Help: "Total number of failed packet log writes",
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of messages broadcast to WebSocket clients",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

// ObserveStage records one pipeline stage duration.
func ObserveStage(stage string, start time.Time) {
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
