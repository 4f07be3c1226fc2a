// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ghostsyncsync provides the sync orchestrator for IBKR activity.
//
// A sync run is strictly sequential: download the Flex statement, resolve
// the destination account(s), push cash balances, transform trades into
// activities, diff against what Ghostfolio already holds, and import the
// remainder in chunks. Runs are idempotent: a second run against unchanged
// upstream data imports nothing.
//
// The design assumes a single runner at a time. The diff is not
// transactional with respect to the activity listing, so overlapping runs
// against the same account could import duplicates.
package ghostsyncsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncactivity"
	"github.com/bufdev/ghostsync/internal/ghostsync/ghostsyncconfig"
	"github.com/bufdev/ghostsync/internal/pkg/ghostfolio"
	"github.com/bufdev/ghostsync/internal/pkg/ibkrflexquery"
	"github.com/shopspring/decimal"
)

const (
	// accountName is the fixed display name of IBKR accounts in Ghostfolio.
	// The resolver matches on this label; operators must not rename the account.
	accountName = "IBKR"
	// importChunkSize is the maximum number of activities per bulk import call.
	importChunkSize = 10
)

// Syncer is the interface for synchronizing IBKR activity into Ghostfolio.
type Syncer interface {
	// Sync runs the full pipeline once: cash balances, then trade activities.
	Sync(ctx context.Context) error
	// Reset deletes every activity on the resolved IBKR account(s).
	// Used for manual re-seeding, not part of the regular sync path.
	Reset(ctx context.Context) error
}

// NewSyncer creates a new Syncer with all required dependencies.
//
// The ibkrToken is the Flex Web Service token from the IBKR_TOKEN
// environment variable. With dryRun set, the syncer logs every write it
// would perform without calling Ghostfolio's mutating endpoints.
func NewSyncer(
	logger *slog.Logger,
	ibkrToken string,
	config *ghostsyncconfig.Config,
	flexQueryClient ibkrflexquery.Client,
	ghostfolioClient ghostfolio.Client,
	dryRun bool,
) Syncer {
	return &syncer{
		logger:           logger,
		ibkrToken:        ibkrToken,
		config:           config,
		flexQueryClient:  flexQueryClient,
		ghostfolioClient: ghostfolioClient,
		dryRun:           dryRun,
	}
}

// AccountResolution is the result of resolving the destination account(s).
//
// It is a sealed variant: either a SingleAccount or a MultiAccount.
// Downstream code type-switches exhaustively instead of type-testing
// ad-hoc shapes.
type AccountResolution interface {
	isAccountResolution()
}

// SingleAccount is the resolution when exactly one IBKR account exists
// (or one was just created). All currencies funnel into it.
type SingleAccount struct {
	// ID is the Ghostfolio account id.
	ID string
	// Currency is the cash bucket currency for the account.
	Currency string
}

func (SingleAccount) isAccountResolution() {}

// MultiAccount is the resolution when multiple IBKR accounts exist,
// one per currency.
type MultiAccount struct {
	// IDByCurrency maps each account currency to its Ghostfolio account id.
	IDByCurrency map[string]string
}

func (MultiAccount) isAccountResolution() {}

// *** PRIVATE ***

type syncer struct {
	logger           *slog.Logger
	ibkrToken        string
	config           *ghostsyncconfig.Config
	flexQueryClient  ibkrflexquery.Client
	ghostfolioClient ghostfolio.Client
	dryRun           bool
}

func (s *syncer) Sync(ctx context.Context) error {
	// Step 1: Fetch and parse the Flex Query statement. Failure is fatal.
	s.logger.Info("downloading flex query data")
	statements, err := s.flexQueryClient.Download(ctx, s.ibkrToken, s.config.IBKRQueryID)
	if err != nil {
		return fmt.Errorf("downloading flex query: %w", err)
	}
	trades, cashEntries := mergeStatements(statements)
	s.logger.Info("flex query data downloaded", "statements", len(statements), "trades", len(trades), "cash_entries", len(cashEntries))

	// Step 2: Resolve the destination account(s). Failure is fatal:
	// without the account list there is no safe import target.
	resolution, err := s.resolveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("resolving accounts: %w", err)
	}

	// Step 3: Push cash balances per currency bucket. Failures here are
	// logged but never block the trade sync.
	s.syncCash(ctx, resolution, cashEntries)

	// Step 4: Transform qualifying trades into activities, bucketed per account.
	candidates := s.transformTrades(resolution, trades)

	// Step 5: List existing activities once. Failure is fatal: diffing
	// against an empty list would re-import everything.
	existing, err := s.ghostfolioClient.ListActivities(ctx)
	if err != nil {
		return fmt.Errorf("listing existing activities: %w", err)
	}

	// Step 6: Diff and import per account.
	var syncErrs []error
	for _, accountID := range sortedKeys(candidates) {
		if err := s.syncAccountActivities(ctx, accountID, existing, candidates[accountID]); err != nil {
			s.logger.Error("importing activities failed", "account_id", accountID, "error", err)
			syncErrs = append(syncErrs, fmt.Errorf("account %s: %w", accountID, err))
		}
	}
	return errors.Join(syncErrs...)
}

func (s *syncer) Reset(ctx context.Context) error {
	resolution, err := s.resolveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("resolving accounts: %w", err)
	}
	accountIDs := resolutionAccountIDs(resolution)
	activities, err := s.ghostfolioClient.ListActivities(ctx)
	if err != nil {
		return fmt.Errorf("listing activities: %w", err)
	}
	var toDelete []ghostfolio.Activity
	for _, activity := range activities {
		if accountIDs[activity.AccountId] {
			toDelete = append(toDelete, activity)
		}
	}
	if len(toDelete) == 0 {
		s.logger.Info("no activities to delete")
		return nil
	}
	// Keep deleting past individual failures; report them all at the end.
	var deleteErrs []error
	for _, activity := range toDelete {
		if s.dryRun {
			s.logger.Info("would delete activity", "activity_id", activity.Id, "account_id", activity.AccountId)
			continue
		}
		if err := s.ghostfolioClient.DeleteActivity(ctx, activity.Id); err != nil {
			s.logger.Error("deleting activity failed", "activity_id", activity.Id, "error", err)
			deleteErrs = append(deleteErrs, err)
		}
	}
	s.logger.Info("activities deleted", "count", len(toDelete)-len(deleteErrs), "failed", len(deleteErrs))
	return errors.Join(deleteErrs...)
}

// resolveAccounts finds or creates the destination account(s) named "IBKR".
//
// Zero matches creates a single account in the configured default currency.
// One match funnels all currencies into that account. Multiple matches is a
// configuration anomaly that is surfaced via a warning log before switching
// to one-account-per-currency mode.
func (s *syncer) resolveAccounts(ctx context.Context) (AccountResolution, error) {
	accounts, err := s.ghostfolioClient.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var matches []ghostfolio.Account
	for _, account := range accounts {
		if account.Name == accountName {
			matches = append(matches, account)
		}
	}
	switch len(matches) {
	case 0:
		if s.dryRun {
			s.logger.Info("would create account", "name", accountName, "currency", s.config.DefaultCurrency)
			return SingleAccount{ID: "", Currency: s.config.DefaultCurrency}, nil
		}
		s.logger.Info("no account found, creating one", "name", accountName, "currency", s.config.DefaultCurrency)
		accountID, err := s.ghostfolioClient.CreateAccount(ctx, ghostfolio.CreateAccountRequest{
			Balance:    0,
			Currency:   s.config.DefaultCurrency,
			IsExcluded: false,
			Name:       accountName,
			PlatformId: s.config.PlatformID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating account: %w", err)
		}
		s.logger.Info("account created", "account_id", accountID)
		return SingleAccount{ID: accountID, Currency: s.config.DefaultCurrency}, nil
	case 1:
		return SingleAccount{ID: matches[0].Id, Currency: s.config.DefaultCurrency}, nil
	default:
		idByCurrency := make(map[string]string, len(matches))
		for _, account := range matches {
			if existingID, ok := idByCurrency[account.Currency]; ok {
				s.logger.Warn("multiple accounts share a currency, keeping the first", "currency", account.Currency, "kept_account_id", existingID, "ignored_account_id", account.Id)
				continue
			}
			idByCurrency[account.Currency] = account.Id
		}
		s.logger.Warn("multiple accounts found, syncing one account per currency", "name", accountName, "count", len(matches))
		return MultiAccount{IDByCurrency: idByCurrency}, nil
	}
}

// syncCash pushes the ending cash balance for every currency bucket of the resolution.
func (s *syncer) syncCash(ctx context.Context, resolution AccountResolution, cashEntries []ibkrflexquery.XMLCashReportCurrency) {
	switch r := resolution.(type) {
	case SingleAccount:
		s.pushCash(ctx, r.ID, r.Currency, cashForCurrency(cashEntries, r.Currency))
	case MultiAccount:
		for _, currency := range sortedKeys(r.IDByCurrency) {
			s.pushCash(ctx, r.IDByCurrency[currency], currency, cashForCurrency(cashEntries, currency))
		}
	}
}

// pushCash issues a full-replace account update carrying the cash balance.
//
// A zero balance makes no network call: a parsing gap upstream must never
// zero out a real balance. Failures are logged and the run continues.
func (s *syncer) pushCash(ctx context.Context, accountID string, currency string, cash decimal.Decimal) {
	if cash.IsZero() {
		s.logger.Info("no cash retrieved, skipping balance update", "account_id", accountID, "currency", currency)
		return
	}
	if s.dryRun {
		s.logger.Info("would update cash balance", "account_id", accountID, "currency", currency, "balance", cash.String())
		return
	}
	if err := s.ghostfolioClient.UpdateAccount(ctx, ghostfolio.UpdateAccountRequest{
		Balance:    cash.InexactFloat64(),
		Id:         accountID,
		Currency:   currency,
		IsExcluded: false,
		Name:       accountName,
		PlatformId: s.config.PlatformID,
	}); err != nil {
		s.logger.Error("updating cash balance failed", "account_id", accountID, "currency", currency, "error", err)
		return
	}
	s.logger.Info("cash balance updated", "account_id", accountID, "currency", currency, "balance", cash.String())
}

// transformTrades converts qualifying trades into activities bucketed by
// destination account id. Per-record failures are logged and dropped: one
// bad record never aborts the batch.
func (s *syncer) transformTrades(resolution AccountResolution, trades []ibkrflexquery.XMLTrade) map[string][]ghostsyncactivity.Activity {
	candidates := make(map[string][]ghostsyncactivity.Activity)
	var transformed, skipped int
	for _, trade := range trades {
		activity, skipReason, err := ghostsyncactivity.FromTrade(s.config.SymbolRules, trade)
		if err != nil {
			s.logger.Warn("dropping malformed trade", "symbol", trade.Symbol, "trade_date", trade.TradeDate, "error", err)
			skipped++
			continue
		}
		if skipReason != ghostsyncactivity.SkipNone {
			// Non-qualifying closes are worth a log line; opens and cash
			// movements are expected noise.
			if skipReason != ghostsyncactivity.SkipNotClose && skipReason != ghostsyncactivity.SkipCashCategory {
				s.logger.Warn("skipping trade", "symbol", trade.Symbol, "reason", string(skipReason))
			}
			skipped++
			continue
		}
		accountID, ok := accountIDForCurrency(resolution, activity.Currency)
		if !ok {
			s.logger.Warn("skipping trade, no account for currency", "symbol", trade.Symbol, "currency", activity.Currency)
			skipped++
			continue
		}
		activity.AccountID = accountID
		s.logger.Info("adding activity", "type", activity.Type, "symbol", activity.Symbol, "quantity", activity.Quantity, "account_id", accountID)
		candidates[accountID] = append(candidates[accountID], activity)
		transformed++
	}
	s.logger.Info("trades transformed", "transformed", transformed, "skipped", skipped)
	return candidates
}

// syncAccountActivities diffs the candidates for one account against that
// account's existing activities and imports the remainder in chunks.
//
// The diff only ever compares against activities already attributed to the
// same account; cross-account comparison would mask real duplicates.
func (s *syncer) syncAccountActivities(ctx context.Context, accountID string, existing []ghostfolio.Activity, candidates []ghostsyncactivity.Activity) error {
	var existingForAccount []ghostsyncactivity.Activity
	for _, activity := range existing {
		if activity.AccountId == accountID {
			existingForAccount = append(existingForAccount, ghostsyncactivity.FromListed(activity))
		}
	}
	diff := ghostsyncactivity.Diff(existingForAccount, candidates)
	if len(diff) == 0 {
		s.logger.Info("nothing new to sync", "account_id", accountID)
		return nil
	}
	s.logger.Info("importing new activities", "account_id", accountID, "count", len(diff), "already_present", len(candidates)-len(diff))
	// Sort by date ascending so every chunk's payload is date-ordered.
	sort.SliceStable(diff, func(i, j int) bool {
		return diff[i].Date < diff[j].Date
	})
	// Submit sequentially. The first failed chunk aborts the remaining
	// ones; chunks already submitted stay applied. Partial import is an
	// accepted outcome, resolved by the diff on the next run.
	for _, chunk := range ghostsyncactivity.Chunk(diff, importChunkSize) {
		importActivities := make([]ghostfolio.ImportActivity, 0, len(chunk))
		for _, activity := range chunk {
			importActivities = append(importActivities, ghostsyncactivity.ToImport(activity))
		}
		if s.dryRun {
			s.logger.Info("would import activities", "account_id", accountID, "count", len(importActivities))
			continue
		}
		if err := s.ghostfolioClient.ImportActivities(ctx, importActivities); err != nil {
			return fmt.Errorf("importing chunk of %d: %w", len(chunk), err)
		}
		s.logger.Info("activities imported", "account_id", accountID, "count", len(importActivities))
	}
	return nil
}

// mergeStatements flattens the per-IBKR-account statements into one run-scoped report.
func mergeStatements(statements []ibkrflexquery.FlexStatement) ([]ibkrflexquery.XMLTrade, []ibkrflexquery.XMLCashReportCurrency) {
	var trades []ibkrflexquery.XMLTrade
	var cashEntries []ibkrflexquery.XMLCashReportCurrency
	for _, statement := range statements {
		trades = append(trades, statement.Trades...)
		cashEntries = append(cashEntries, statement.CashReport...)
	}
	return trades, cashEntries
}

// cashForCurrency sums the ending cash over all entries matching the
// currency. Entries without a currency are skipped. An absent currency
// sums to zero, which callers treat as "nothing to update".
func cashForCurrency(cashEntries []ibkrflexquery.XMLCashReportCurrency, currency string) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range cashEntries {
		if entry.Currency == "" || entry.Currency != currency {
			continue
		}
		amount, err := decimal.NewFromString(entry.EndingCash)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total
}

// accountIDForCurrency returns the destination account for a trade currency.
// Single-account mode funnels every currency into the one account.
func accountIDForCurrency(resolution AccountResolution, currency string) (string, bool) {
	switch r := resolution.(type) {
	case SingleAccount:
		return r.ID, true
	case MultiAccount:
		accountID, ok := r.IDByCurrency[currency]
		return accountID, ok
	default:
		return "", false
	}
}

// resolutionAccountIDs returns the set of account ids covered by a resolution.
func resolutionAccountIDs(resolution AccountResolution) map[string]bool {
	accountIDs := make(map[string]bool)
	switch r := resolution.(type) {
	case SingleAccount:
		accountIDs[r.ID] = true
	case MultiAccount:
		for _, accountID := range r.IDByCurrency {
			accountIDs[accountID] = true
		}
	}
	return accountIDs
}

// sortedKeys returns the keys of a string-keyed map in sorted order, for
// deterministic iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
