// Copyright 2026 Peter Edge
//
// All rights reserved.

package main

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/command/config"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/command/probe"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/command/reset"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/command/sync"
	"github.com/joho/godotenv"
)

func main() {
	// Load a .env file if one is present; tokens may live there locally.
	_ = godotenv.Load()
	appcmd.Main(context.Background(), newRootCommand("ghostsync"))
}

// newRootCommand creates the root ghostsync command with all sub-commands.
func newRootCommand(name string) *appcmd.Command {
	builder := appext.NewBuilder(name)
	return &appcmd.Command{
		Use:                 name,
		Short:               "Sync Interactive Brokers activity into Ghostfolio",
		BindPersistentFlags: builder.BindRoot,
		SubCommands: []*appcmd.Command{
			config.NewCommand("config", builder),
			probe.NewCommand("probe", builder),
			reset.NewCommand("reset", builder),
			sync.NewCommand("sync", builder),
		},
	}
}
