// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/schizochat/config.yaml",
	"/etc/schizochat/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "SCP_CONFIG_PATH"

// envPrefix namespaces this service's environment variables, e.g.
// SCP_ACTIONS_BLOCK_THRESHOLD -> actions.block_threshold.
const envPrefix = "SCP_"

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables. Pass an empty path to use the default search
// order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := resolvePath(path); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolvePath picks an explicit path, the env override, or the first
// existing default path. Returns empty when no file is available.
func resolvePath(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// configSections maps the env-var section prefix to its koanf path,
// ordered longest-prefix first so that packet_log matches before packet.
var configSections = []struct {
	prefix string
	path   string
}{
	{"notifications_webhook", "notifications.webhook"},
	{"packet_log", "packet_log"},
	{"pipeline", "pipeline"},
	{"anomaly", "anomaly"},
	{"actions", "actions"},
	{"events", "events"},
	{"server", "server"},
	{"logging", "logging"},
	{"packet", "packet"},
	{"rules", "rules"},
}

// envTransform maps SCP_SECTION_SOME_KEY to section.some_key. The section
// is matched against the known top-level keys; the remainder keeps its
// underscores so multi-word field names resolve correctly.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range configSections {
		if strings.HasPrefix(key, section.prefix+"_") {
			return section.path + "." + strings.TrimPrefix(key, section.prefix+"_")
		}
	}
	return key
}
