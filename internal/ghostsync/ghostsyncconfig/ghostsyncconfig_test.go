// Copyright 2026 Peter Edge
//
// All rights reserved.

package ghostsyncconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncactivity"
	"github.com/stretchr/testify/require"
)

// validExternalConfig returns a minimal valid ExternalConfig.
func validExternalConfig() ExternalConfig {
	return ExternalConfig{
		Version: "v1",
		IBKR: ExternalIBKRConfig{
			QueryID: "123456",
		},
		Ghostfolio: ExternalGhostfolioConfig{
			Host:       "https://ghostfolio.example.com",
			Currency:   "EUR",
			PlatformID: "platform-1",
		},
	}
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	config, err := NewConfig(validExternalConfig())
	require.NoError(t, err)
	require.Equal(t, "123456", config.IBKRQueryID)
	require.Equal(t, "https://ghostfolio.example.com", config.GhostfolioHost)
	require.Equal(t, "EUR", config.DefaultCurrency)
	require.Equal(t, "platform-1", config.PlatformID)
	// Without extra mappings, the rules are exactly the built-in table.
	require.Equal(t, ghostsyncactivity.DefaultSymbolRules, config.SymbolRules)
}

func TestNewConfigSymbolMappings(t *testing.T) {
	t.Parallel()
	externalConfig := validExternalConfig()
	externalConfig.SymbolMappings = []ExternalSymbolMappingConfig{
		{Match: "ASML", Replacement: "ASML.AS"},
	}
	config, err := NewConfig(externalConfig)
	require.NoError(t, err)
	// Config-supplied rules come first so they win over the built-in table.
	require.Equal(t, ghostsyncactivity.SymbolRule{Match: "ASML", Replacement: "ASML.AS"}, config.SymbolRules[0])
	require.Len(t, config.SymbolRules, len(ghostsyncactivity.DefaultSymbolRules)+1)
}

func TestNewConfigErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		mutate  func(*ExternalConfig)
		wantErr string
	}{
		{
			name:    "bad version",
			mutate:  func(c *ExternalConfig) { c.Version = "v2" },
			wantErr: "unsupported config version",
		},
		{
			name:    "missing query id",
			mutate:  func(c *ExternalConfig) { c.IBKR.QueryID = "" },
			wantErr: "ibkr.query_id is required",
		},
		{
			name:    "missing host",
			mutate:  func(c *ExternalConfig) { c.Ghostfolio.Host = "" },
			wantErr: "ghostfolio.host is required",
		},
		{
			name:    "missing currency",
			mutate:  func(c *ExternalConfig) { c.Ghostfolio.Currency = "" },
			wantErr: "ghostfolio.currency is required",
		},
		{
			name:    "missing platform id",
			mutate:  func(c *ExternalConfig) { c.Ghostfolio.PlatformID = "" },
			wantErr: "ghostfolio.platform_id is required",
		},
		{
			name: "empty symbol mapping match",
			mutate: func(c *ExternalConfig) {
				c.SymbolMappings = []ExternalSymbolMappingConfig{{Match: "", Replacement: "X"}}
			},
			wantErr: "symbol mapping match is required",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			externalConfig := validExternalConfig()
			testCase.mutate(&externalConfig)
			_, err := NewConfig(externalConfig)
			require.Error(t, err)
			require.Contains(t, err.Error(), testCase.wantErr)
		})
	}
}

func TestReadConfig(t *testing.T) {
	t.Parallel()
	configDirPath := t.TempDir()
	configData := `version: v1
ibkr:
  query_id: "123456"
ghostfolio:
  host: "https://ghostfolio.example.com"
  currency: "EUR"
  platform_id: "platform-1"
symbol_mappings:
  - match: "ASML"
    replacement: "ASML.AS"
`
	require.NoError(t, os.WriteFile(filepath.Join(configDirPath, ConfigFileName), []byte(configData), 0o644))
	config, err := ReadConfig(configDirPath)
	require.NoError(t, err)
	require.Equal(t, "123456", config.IBKRQueryID)
	require.Equal(t, "ASML", config.SymbolRules[0].Match)
}

func TestReadConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := ReadConfig(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghostsync config init")
}

func TestReadConfigUnknownField(t *testing.T) {
	t.Parallel()
	configDirPath := t.TempDir()
	configData := `version: v1
ibkr:
  query_id: "123456"
unknown_field: true
`
	require.NoError(t, os.WriteFile(filepath.Join(configDirPath, ConfigFileName), []byte(configData), 0o644))
	_, err := ReadConfig(configDirPath)
	require.Error(t, err)
}

func TestInitConfigTemplateValidatesAfterFillingIn(t *testing.T) {
	t.Parallel()
	configDirPath := filepath.Join(t.TempDir(), "ghostsync")
	filePath, err := InitConfig(configDirPath)
	require.NoError(t, err)
	require.Equal(t, ConfigFilePath(configDirPath), filePath)
	// The fresh template is incomplete on purpose; validation must say so.
	err = ValidateConfig(configDirPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ibkr.query_id is required")
	// Init refuses to overwrite an existing file.
	_, err = InitConfig(configDirPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}
