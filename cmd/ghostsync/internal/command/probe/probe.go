// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package probe implements the "probe" command for testing connectivity
// to both IBKR and Ghostfolio.
package probe

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/ghostsync/cmd/ghostsync/internal/ghostsynccmd"
	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncconfig"
	"github.com/bufdev/ghostsync/internal/pkg/cliio"
	"github.com/bufdev/ghostsync/internal/pkg/ghostfolio"
	"github.com/bufdev/ghostsync/internal/pkg/ibkrflexquery"
	"github.com/spf13/pflag"
)

// formatFlagName is the flag name for the output format.
const formatFlagName = "format"

// NewCommand returns a new probe command for testing API connectivity.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Probe the IBKR and Ghostfolio APIs without writing anything",
		Long: `Probe the IBKR and Ghostfolio APIs without writing anything.

Downloads the configured Flex Query and prints trade and cash-entry counts,
then lists the Ghostfolio accounts visible to the token. Makes no writes.`,
		Args: appcmd.NoArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

// *** PRIVATE ***

type flags struct {
	// Format is the output format, one of table or json.
	Format string
}

func newFlags() *flags {
	return &flags{}
}

func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(
		&f.Format,
		formatFlagName,
		string(cliio.FormatTable),
		"Output format, one of: table, json",
	)
}

// report is the probe result serialized for --format json.
type report struct {
	Statements  int                  `json:"statements"`
	Trades      int                  `json:"trades"`
	CashEntries int                  `json:"cashEntries"`
	Accounts    []ghostfolio.Account `json:"accounts"`
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	// Read config for the query ID and Ghostfolio host.
	config, err := ghostsyncconfig.ReadConfig(container.ConfigDirPath())
	if err != nil {
		return err
	}
	ibkrToken, ghostfolioToken, err := ghostsynccmd.Tokens(container)
	if err != nil {
		return err
	}
	logger := container.Logger()
	// Make a single Flex Query call and count what came back.
	flexQueryClient := ibkrflexquery.NewClient(logger)
	logger.Info("probing IBKR", "query_id", config.IBKRQueryID)
	statements, err := flexQueryClient.Download(ctx, ibkrToken, config.IBKRQueryID)
	if err != nil {
		return fmt.Errorf("IBKR probe failed: %w", err)
	}
	var trades, cashEntries int
	for _, statement := range statements {
		trades += len(statement.Trades)
		cashEntries += len(statement.CashReport)
	}
	// List Ghostfolio accounts to verify the token and host.
	ghostfolioClient := ghostfolio.NewClient(logger, config.GhostfolioHost, ghostfolioToken)
	logger.Info("probing Ghostfolio", "host", config.GhostfolioHost)
	accounts, err := ghostfolioClient.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("Ghostfolio probe failed: %w", err)
	}
	probeReport := report{
		Statements:  len(statements),
		Trades:      trades,
		CashEntries: cashEntries,
		Accounts:    accounts,
	}
	switch format {
	case cliio.FormatJSON:
		return cliio.WriteJSON(container.Stdout(), probeReport)
	default:
		return writeReportTable(container.Stdout(), probeReport)
	}
}

func writeReportTable(writer io.Writer, probeReport report) error {
	if _, err := fmt.Fprintf(
		writer,
		"statements: %d\ntrades: %d\ncash_entries: %d\naccounts: %d\n\n",
		probeReport.Statements,
		probeReport.Trades,
		probeReport.CashEntries,
		len(probeReport.Accounts),
	); err != nil {
		return err
	}
	if len(probeReport.Accounts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(probeReport.Accounts))
	for _, account := range probeReport.Accounts {
		rows = append(rows, []string{
			account.Name,
			account.Currency,
			strconv.FormatFloat(account.Balance, 'f', -1, 64),
			account.Id,
		})
	}
	return cliio.WriteTable(writer, []string{"NAME", "CURRENCY", "BALANCE", "ID"}, rows)
}
