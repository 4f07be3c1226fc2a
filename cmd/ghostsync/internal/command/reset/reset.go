// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package reset implements the "reset" command.
package reset

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/ghostsynccmd"
	"github.com/spf13/pflag"
)

// forceFlagName is the flag name confirming the deletion.
const forceFlagName = "force"

// NewCommand returns a new reset command that deletes all synced activities.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Delete every activity on the IBKR account(s) in Ghostfolio",
		Long: `Delete every activity on the IBKR account(s) in Ghostfolio.

Used for manual re-seeding before a fresh sync. Accounts themselves and
their cash balances are left untouched. Requires --force.`,
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
	// Force confirms the deletion.
	Force bool
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(
		&f.Force,
		forceFlagName,
		false,
		"Confirm deleting all activities on the IBKR account(s)",
	)
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	if !flags.Force {
		return appcmd.NewInvalidArgumentError("--force is required, reset deletes every activity on the IBKR account(s)")
	}
	// Construct the syncer using shared command wiring.
	syncer, err := ghostsynccmd.NewSyncer(container, false)
	if err != nil {
		return err
	}
	return syncer.Reset(ctx)
}
