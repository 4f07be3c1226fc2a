// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ghostsynccmd provides shared wiring for ghostsync commands that
// need the sync pipeline (reading config, getting tokens, constructing clients).
package ghostsynccmd

import (
	"errors"

	"buf.build/go/app/appext"
	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncconfig"
	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncsync"
	"github.com/bufdev/ghostsync/internal/pkg/ghostfolio"
	"github.com/bufdev/ghostsync/internal/pkg/ibkrflexquery"
)

const (
	// IBKRTokenEnvVar is the environment variable name for the IBKR Flex Web Service token.
	IBKRTokenEnvVar = "IBKR_TOKEN"
	// GhostfolioTokenEnvVar is the environment variable name for the Ghostfolio bearer token.
	GhostfolioTokenEnvVar = "GHOSTFOLIO_TOKEN"
)

// NewSyncer constructs a Syncer from the appext container by reading the
// config file, extracting the tokens from the environment, and creating the
// required API clients.
func NewSyncer(container appext.Container, dryRun bool) (ghostsyncsync.Syncer, error) {
	// Read and validate the configuration file.
	config, err := ghostsyncconfig.ReadConfig(container.ConfigDirPath())
	if err != nil {
		return nil, err
	}
	ibkrToken, ghostfolioToken, err := Tokens(container)
	if err != nil {
		return nil, err
	}
	// Extract the logger from the appext container.
	logger := container.Logger()
	// Construct the API clients.
	flexQueryClient := ibkrflexquery.NewClient(logger)
	ghostfolioClient := ghostfolio.NewClient(logger, config.GhostfolioHost, ghostfolioToken)
	return ghostsyncsync.NewSyncer(logger, ibkrToken, config, flexQueryClient, ghostfolioClient, dryRun), nil
}

// Tokens reads the IBKR and Ghostfolio tokens from the environment via the
// app container, returning a clear error for whichever is missing.
func Tokens(container appext.Container) (string, string, error) {
	ibkrToken := container.Env(IBKRTokenEnvVar)
	if ibkrToken == "" {
		return "", "", errors.New("IBKR_TOKEN environment variable is required, set it to your IBKR Flex Web Service token (see \"ghostsync --help\" for details)")
	}
	ghostfolioToken := container.Env(GhostfolioTokenEnvVar)
	if ghostfolioToken == "" {
		return "", "", errors.New("GHOSTFOLIO_TOKEN environment variable is required, set it to a Ghostfolio bearer token (see \"ghostsync --help\" for details)")
	}
	return ibkrToken, ghostfolioToken, nil
}
