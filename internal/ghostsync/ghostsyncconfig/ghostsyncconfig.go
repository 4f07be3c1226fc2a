// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ghostsyncconfig provides configuration parsing and validation for ghostsync.
//
// Configuration is stored at ~/.config/ghostsync/config.yaml (or
// $GHOSTSYNC_CONFIG_DIR/config.yaml). Secrets never live in the file:
// the IBKR Flex Web Service token comes from the IBKR_TOKEN environment
// variable and the Ghostfolio bearer token from GHOSTFOLIO_TOKEN.
package ghostsyncconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncactivity"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the configuration file within the config directory.
const ConfigFileName = "config.yaml"

// configTemplate is the default configuration file template with comments.
// yaml.v3 does not preserve comments, so we hardcode the template string.
const configTemplate = `# The configuration file version.
#
# Required. The only current valid version is v1.
version: v1
# IBKR Flex Query configuration.
#
# Required. Create a Flex Query at https://www.interactivebrokers.com
# under Performance & Reports > Flex Queries. Include the Trades and
# Cash Report sections with all fields enabled.
#
# The Flex Web Service token must be set via the IBKR_TOKEN environment variable.
ibkr:
  # The Flex Query ID (visible next to your query name in the IBKR portal).
  #
  # Required.
  query_id: ""
# Ghostfolio destination configuration.
#
# The bearer token must be set via the GHOSTFOLIO_TOKEN environment variable.
ghostfolio:
  # The base URL of the Ghostfolio instance.
  #
  # Required.
  host: ""
  # The default currency for a newly created IBKR account.
  #
  # Required.
  currency: "EUR"
  # The Ghostfolio platform ID to attach the IBKR account to.
  #
  # Required.
  platform_id: ""
# Additional symbol remap rules, tried before the built-in table.
#
# Optional. Each rule removes the matched substring from the broker symbol
# and appends the replacement. The first matching rule wins.
# symbol_mappings:
#   - match: "ASML"
#     replacement: "ASML.AS"
`

// ExternalConfig is the YAML-serializable configuration file structure.
type ExternalConfig struct {
	// Version is the configuration file version (must be "v1").
	Version string `yaml:"version"`
	// IBKR holds the Interactive Brokers Flex Query configuration.
	IBKR ExternalIBKRConfig `yaml:"ibkr"`
	// Ghostfolio holds the destination Ghostfolio configuration.
	Ghostfolio ExternalGhostfolioConfig `yaml:"ghostfolio"`
	// SymbolMappings is the optional list of extra symbol remap rules.
	SymbolMappings []ExternalSymbolMappingConfig `yaml:"symbol_mappings"`
}

// ExternalIBKRConfig holds IBKR-specific configuration.
type ExternalIBKRConfig struct {
	// QueryID is the Flex Query ID.
	QueryID string `yaml:"query_id"`
}

// ExternalGhostfolioConfig holds Ghostfolio-specific configuration.
type ExternalGhostfolioConfig struct {
	// Host is the base URL of the Ghostfolio instance.
	Host string `yaml:"host"`
	// Currency is the default currency for a newly created account.
	Currency string `yaml:"currency"`
	// PlatformID is the Ghostfolio platform category id.
	PlatformID string `yaml:"platform_id"`
}

// ExternalSymbolMappingConfig holds one extra symbol remap rule.
type ExternalSymbolMappingConfig struct {
	// Match is the substring to look for in the raw broker symbol.
	Match string `yaml:"match"`
	// Replacement is appended to the symbol after removing Match.
	Replacement string `yaml:"replacement"`
}

// Config is the validated runtime configuration derived from the config file.
type Config struct {
	// IBKRQueryID is the Flex Query ID.
	//
	// To create a Flex Query, log in to IBKR Client Portal, navigate to
	// Performance & Reports > Flex Queries, and create a new query with
	// the Trades and Cash Report sections enabled. The Query ID is
	// displayed next to the query name in the list.
	IBKRQueryID string
	// GhostfolioHost is the base URL of the Ghostfolio instance.
	GhostfolioHost string
	// DefaultCurrency is the currency used when creating the IBKR account.
	DefaultCurrency string
	// PlatformID is the Ghostfolio platform category id.
	PlatformID string
	// SymbolRules is the full remap table: config-supplied rules first,
	// then the built-in table, in priority order.
	SymbolRules []ghostsyncactivity.SymbolRule
}

// NewConfig validates an ExternalConfig and returns a runtime Config.
func NewConfig(externalConfig ExternalConfig) (*Config, error) {
	if externalConfig.Version != "v1" {
		return nil, fmt.Errorf("unsupported config version %q, must be v1", externalConfig.Version)
	}
	if externalConfig.IBKR.QueryID == "" {
		return nil, errors.New("ibkr.query_id is required")
	}
	if externalConfig.Ghostfolio.Host == "" {
		return nil, errors.New("ghostfolio.host is required")
	}
	if externalConfig.Ghostfolio.Currency == "" {
		return nil, errors.New("ghostfolio.currency is required")
	}
	if externalConfig.Ghostfolio.PlatformID == "" {
		return nil, errors.New("ghostfolio.platform_id is required")
	}
	// Config-supplied rules take priority over the built-in table.
	symbolRules := make([]ghostsyncactivity.SymbolRule, 0, len(externalConfig.SymbolMappings)+len(ghostsyncactivity.DefaultSymbolRules))
	for _, m := range externalConfig.SymbolMappings {
		if m.Match == "" {
			return nil, errors.New("symbol mapping match is required")
		}
		symbolRules = append(symbolRules, ghostsyncactivity.SymbolRule{
			Match:       m.Match,
			Replacement: m.Replacement,
		})
	}
	symbolRules = append(symbolRules, ghostsyncactivity.DefaultSymbolRules...)
	return &Config{
		IBKRQueryID:     externalConfig.IBKR.QueryID,
		GhostfolioHost:  externalConfig.Ghostfolio.Host,
		DefaultCurrency: externalConfig.Ghostfolio.Currency,
		PlatformID:      externalConfig.Ghostfolio.PlatformID,
		SymbolRules:     symbolRules,
	}, nil
}

// ConfigFilePath returns the path to the configuration file within the given config directory.
func ConfigFilePath(configDirPath string) string {
	return filepath.Join(configDirPath, ConfigFileName)
}

// ReadConfig reads and validates the configuration file from the given config directory.
// Returns a clear error message directing users to run "ghostsync config init" if the file is missing.
func ReadConfig(configDirPath string) (*Config, error) {
	filePath := ConfigFilePath(configDirPath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found at %s, run \"ghostsync config init\" to create one", filePath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var externalConfig ExternalConfig
	if err := unmarshalYAMLStrict(data, &externalConfig); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
	}
	return NewConfig(externalConfig)
}

// InitConfig creates a new configuration file with a documented template.
// Creates the config directory if it does not exist.
// Returns the path to the created file, or an error if the file already exists.
func InitConfig(configDirPath string) (string, error) {
	filePath := ConfigFilePath(configDirPath)
	if _, err := os.Stat(filePath); err == nil {
		return "", fmt.Errorf("configuration file already exists: %s", filePath)
	}
	// Create the config directory if it does not exist.
	if err := os.MkdirAll(configDirPath, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(configTemplate), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// ValidateConfig reads and validates the configuration file from the given config directory.
func ValidateConfig(configDirPath string) error {
	_, err := ReadConfig(configDirPath)
	return err
}

// unmarshalYAMLStrict unmarshals the data as YAML with strict field checking.
// If the data length is 0, this is a no-op.
func unmarshalYAMLStrict(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields.
	yamlDecoder.KnownFields(true)
	if err := yamlDecoder.Decode(v); err != nil {
		return fmt.Errorf("could not unmarshal as YAML: %w", err)
	}
	return nil
}
