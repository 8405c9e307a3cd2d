// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package config defines the configuration surface of the inspection
// pipeline and loads it with koanf: defaults, then an optional YAML file,
// then SCP_-prefixed environment variables, each layer overriding the last.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the pipeline service.
type Config struct {
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Rules         RulesConfig         `koanf:"rules"`
	Anomaly       AnomalyConfig       `koanf:"anomaly"`
	Packet        PacketConfig        `koanf:"packet"`
	Actions       ActionsConfig       `koanf:"actions"`
	Events        EventsConfig        `koanf:"events"`
	PacketLog     PacketLogConfig     `koanf:"packet_log"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// PipelineConfig holds the global pipeline switch.
type PipelineConfig struct {
	// Enabled is the global switch. When false every packet is allowed
	// unscored.
	Enabled bool `koanf:"enabled"`
}

// RulesConfig configures the rule engine and its built-in thresholds.
type RulesConfig struct {
	Enabled bool `koanf:"enabled"`

	// OversizedPacketLimit is the serialized byte limit for R001.
	OversizedPacketLimit int64 `koanf:"oversized_packet_limit" validate:"gt=0"`

	// MaxImagesPerMinute is the per-sender image limit for R006.
	MaxImagesPerMinute int `koanf:"max_images_per_minute" validate:"gt=0"`

	// RateLimitMessagesPerSec is the per-sender message rate limit for R004.
	RateLimitMessagesPerSec float64 `koanf:"rate_limit_messages_per_sec" validate:"gt=0"`

	// MaxTrackedSenders caps the sliding-window counter store.
	MaxTrackedSenders int `koanf:"max_tracked_senders" validate:"gt=0"`
}

// AnomalyConfig configures the anomaly scorer.
type AnomalyConfig struct {
	Enabled bool `koanf:"enabled"`

	// ConfidenceThreshold: confidence below this marks the packet anomalous.
	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"gt=0,lt=1"`

	// TrainingSetSize is the target number of normal samples per baseline.
	TrainingSetSize int `koanf:"training_set_size" validate:"gt=0"`

	// RetrainInterval is how often the retrainer refits the baseline.
	RetrainInterval time.Duration `koanf:"retrain_interval" validate:"gt=0"`
}

// PacketConfig controls packet-validation strictness in the inspector.
type PacketConfig struct {
	RequireValidJSON bool `koanf:"require_valid_json"`
	DetectNullBytes  bool `koanf:"detect_null_bytes"`
	DetectNonUTF8    bool `koanf:"detect_non_utf8"`
}

// ActionsConfig holds the decision thresholds.
type ActionsConfig struct {
	// FlagThreshold: riskScore >= FlagThreshold resolves to FLAG.
	FlagThreshold int `koanf:"flag_threshold" validate:"gt=0"`

	// BlockThreshold: riskScore >= BlockThreshold resolves to BLOCK.
	BlockThreshold int `koanf:"block_threshold" validate:"gt=0"`
}

// EventsConfig configures the event recorder and its DuckDB store.
type EventsConfig struct {
	// DatabasePath is the DuckDB file path. Empty means in-memory.
	DatabasePath string `koanf:"database_path"`

	// RecordTimeout bounds each store write; a timed-out write is a
	// recoverable failure, never a hold on the pipeline.
	RecordTimeout time.Duration `koanf:"record_timeout" validate:"gt=0"`

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the store circuit breaker.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold" validate:"gt=0"`

	// BreakerResetTimeout is how long the breaker stays open before
	// probing the store again.
	BreakerResetTimeout time.Duration `koanf:"breaker_reset_timeout" validate:"gt=0"`
}

// PacketLogConfig configures the optional badger-backed raw packet log.
type PacketLogConfig struct {
	// Path is the badger directory. Empty means in-memory.
	Path string `koanf:"path"`

	// TTL is how long raw packets are retained.
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

// NotificationsConfig configures admin notification sinks.
type NotificationsConfig struct {
	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	Enabled bool              `koanf:"enabled"`
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`

	// RatePerSecond limits outbound notifications.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gt=0"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RateLimitPerMinute is the per-IP request budget for API endpoints.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"gt=0"`

	// NodeLabel identifies this relay node in recorded events.
	NodeLabel string `koanf:"node_label"`
}

// LoggingConfig configures log output and event logging behavior.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// LogPackets persists raw packets to the packet log store.
	LogPackets bool `koanf:"log_packets"`

	// LogEvents persists decision events to the event store.
	LogEvents bool `koanf:"log_events"`

	// EmitLiveEvents pushes recorded events to live subscribers.
	EmitLiveEvents bool `koanf:"emit_live_events"`

	// LogAllowed records ALLOW decisions as low-severity events.
	LogAllowed bool `koanf:"log_allowed"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Enabled: true,
		},
		Rules: RulesConfig{
			Enabled:                 true,
			OversizedPacketLimit:    1 << 20, // 1 MiB
			MaxImagesPerMinute:      5,
			RateLimitMessagesPerSec: 10,
			MaxTrackedSenders:       10000,
		},
		Anomaly: AnomalyConfig{
			Enabled:             true,
			ConfidenceThreshold: 0.3,
			TrainingSetSize:     1000,
			RetrainInterval:     30 * time.Minute,
		},
		Packet: PacketConfig{
			RequireValidJSON: true,
			DetectNullBytes:  true,
			DetectNonUTF8:    true,
		},
		Actions: ActionsConfig{
			FlagThreshold:  50,
			BlockThreshold: 80,
		},
		Events: EventsConfig{
			DatabasePath:            "/data/schizochat-events.duckdb",
			RecordTimeout:           5 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     30 * time.Second,
		},
		PacketLog: PacketLogConfig{
			Path: "/data/packet-log",
			TTL:  24 * time.Hour,
		},
		Notifications: NotificationsConfig{
			Webhook: WebhookConfig{
				Enabled:       false,
				RatePerSecond: 2,
			},
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               5001,
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 300,
			NodeLabel:          "entry",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			LogPackets:     true,
			LogEvents:      true,
			EmitLiveEvents: true,
			LogAllowed:     false,
		},
	}
}

// Validate checks field constraints and cross-field invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if c.Actions.FlagThreshold >= c.Actions.BlockThreshold {
		return fmt.Errorf("config validation: flag_threshold (%d) must be below block_threshold (%d)",
			c.Actions.FlagThreshold, c.Actions.BlockThreshold)
	}
	return nil
}
