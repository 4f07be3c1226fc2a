// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package sync implements the "sync" command.
package sync

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/ghostsynccmd"
	"github.com/spf13/pflag"
)

// dryRunFlagName is the flag name for skipping all writes.
const dryRunFlagName = "dry-run"

// NewCommand returns a new sync command that runs the full sync pipeline.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Sync IBKR cash balances and trade activities into Ghostfolio",
		Long: `Sync IBKR cash balances and trade activities into Ghostfolio.

Downloads the configured Flex Query, finds or creates the "IBKR" account(s)
in Ghostfolio, pushes the ending cash balance per currency, and imports the
closing trades that are not already present. Re-running with unchanged
upstream data imports nothing.`,
		Args: appcmd.NoArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

type flags struct {
	// DryRun computes and logs the diff without writing to Ghostfolio.
	DryRun bool
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(
		&f.DryRun,
		dryRunFlagName,
		false,
		"Compute and log what would change without writing to Ghostfolio",
	)
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	// Construct the syncer using shared command wiring.
	syncer, err := ghostsynccmd.NewSyncer(container, flags.DryRun)
	if err != nil {
		return err
	}
	return syncer.Sync(ctx)
}
