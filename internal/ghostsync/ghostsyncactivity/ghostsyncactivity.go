// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ghostsyncactivity converts IBKR Flex trades into Ghostfolio
// activities and computes the set of activities not yet imported.
//
// This is the pure core of the sync pipeline: no I/O, no clients. The
// orchestrator in ghostsyncsync feeds it trades and existing activities
// and pushes its output through the Ghostfolio client.
package ghostsyncactivity

import (
	"fmt"
	"strings"
	"time"

	"github.com/bufdev/ghostsync/internal/pkg/ghostfolio"
	"github.com/bufdev/ghostsync/internal/pkg/ibkrflexquery"
	"github.com/shopspring/decimal"
)

// Activity types understood by Ghostfolio's import endpoint.
const (
	// TypeBuy is a buy activity.
	TypeBuy = "BUY"
	// TypeSell is a sell activity.
	TypeSell = "SELL"
)

// dateLayout is the ISO-8601 timestamp emitted for activities. Trade dates
// carry date-only precision, so the time component is always midnight.
const dateLayout = "2006-01-02T15:04:05"

// Activity is the canonical transformed unit of the sync pipeline.
//
// All fields are comparable, and two activities are duplicates iff every
// field compares equal. There is no tolerance and no identifier-based
// matching: a one-cent price difference is a different activity. The struct
// is deliberately usable as a map key for exactly this reason.
type Activity struct {
	// AccountID is the Ghostfolio account the activity belongs to.
	AccountID string
	// Currency is the ISO currency code of the trade.
	Currency string
	// DataSource is the market data source (always "YAHOO").
	DataSource string
	// Date is the trade date as an ISO-8601 timestamp at midnight.
	Date string
	// Fee is always zero; fees are not mirrored.
	Fee float64
	// Quantity is the absolute traded quantity.
	Quantity float64
	// Symbol is the remapped, hyphenated destination symbol.
	Symbol string
	// Type is TypeBuy or TypeSell.
	Type string
	// UnitPrice is the reported trade price.
	UnitPrice float64
}

// SymbolRule is one substring-replacement rule of the symbol remap table.
//
// If Match is a substring of the raw broker symbol, every occurrence of
// Match is removed and Replacement is appended. The first matching rule
// wins; later rules are not tried.
type SymbolRule struct {
	// Match is the substring to look for in the raw symbol.
	Match string
	// Replacement is appended to the symbol after removing Match.
	Replacement string
}

// DefaultSymbolRules is the built-in remap table translating IBKR ticker
// symbols into Ghostfolio's Yahoo symbol convention. Order is priority
// order: the first matching rule wins.
var DefaultSymbolRules = []SymbolRule{
	{Match: ".USD-PAXOS", Replacement: "USD"},
	{Match: "VUAA", Replacement: ".L"},
	{Match: "ENGI", Replacement: "ENGI.PA"},
	{Match: "ARRDd", Replacement: "MT.AS"},
	{Match: "AKZA", Replacement: "AKZA.AS"},
	{Match: "ALFEN", Replacement: "ALFEN.AS"},
}

// SkipReason explains why a trade record was not converted into an activity.
type SkipReason string

const (
	// SkipNone means the trade was converted.
	SkipNone SkipReason = ""
	// SkipNotClose means the trade has no open/close indicator or is not a closing leg.
	// Only closing legs mirror realized activity; opens are ignored.
	SkipNotClose SkipReason = "not a closing trade"
	// SkipCashCategory means the record is a cash movement, not a position event.
	SkipCashCategory SkipReason = "cash asset category"
	// SkipNoCurrency means the record has no currency and cannot be bucketed.
	SkipNoCurrency SkipReason = "missing currency"
	// SkipUnknownSide means the buy/sell field is neither BUY nor SELL.
	// Unknown classifications never default to either side.
	SkipUnknownSide SkipReason = "unknown buy/sell side"
)

// FromTrade converts one Flex trade record into an Activity.
//
// The returned Activity has no AccountID; attribution to a currency bucket
// is the caller's job once the record is known to qualify.
//
// The returned SkipReason is non-empty when the record does not qualify
// (not a closing leg, cash category, missing currency, unknown side).
// A non-nil error means the record is malformed (bad date or numeric field);
// callers log and drop it without aborting the batch.
func FromTrade(rules []SymbolRule, trade ibkrflexquery.XMLTrade) (Activity, SkipReason, error) {
	if trade.OpenCloseIndicator == "" || trade.AssetCategory == "CASH" {
		if trade.AssetCategory == "CASH" {
			return Activity{}, SkipCashCategory, nil
		}
		return Activity{}, SkipNotClose, nil
	}
	if trade.OpenCloseIndicator != ibkrflexquery.OpenCloseIndicatorClose {
		return Activity{}, SkipNotClose, nil
	}
	if trade.Currency == "" {
		return Activity{}, SkipNoCurrency, nil
	}
	var activityType string
	switch trade.BuySell {
	case TypeBuy:
		activityType = TypeBuy
	case TypeSell:
		activityType = TypeSell
	default:
		return Activity{}, SkipUnknownSide, nil
	}
	date, err := parseTradeDate(trade.TradeDate)
	if err != nil {
		return Activity{}, SkipNone, fmt.Errorf("parsing trade date %q: %w", trade.TradeDate, err)
	}
	// Quantity sign is directional metadata, not magnitude: sells report
	// negative quantities, but Ghostfolio expects the absolute value.
	quantity, err := decimal.NewFromString(trade.Quantity)
	if err != nil {
		return Activity{}, SkipNone, fmt.Errorf("parsing quantity %q: %w", trade.Quantity, err)
	}
	unitPrice, err := decimal.NewFromString(trade.TradePrice)
	if err != nil {
		return Activity{}, SkipNone, fmt.Errorf("parsing trade price %q: %w", trade.TradePrice, err)
	}
	return Activity{
		Currency:   trade.Currency,
		DataSource: ghostfolio.DataSourceYahoo,
		Date:       date.Format(dateLayout),
		Fee:        0,
		Quantity:   quantity.Abs().InexactFloat64(),
		Symbol:     RemapSymbol(rules, trade.Symbol),
		Type:       activityType,
		UnitPrice:  unitPrice.InexactFloat64(),
	}, SkipNone, nil
}

// RemapSymbol translates a raw broker symbol into the destination platform's
// symbol convention.
//
// The first rule whose Match is a substring of the raw symbol is applied:
// the substring is removed and the rule's Replacement appended. Remaining
// rules are not tried. Spaces in the final symbol become hyphens.
func RemapSymbol(rules []SymbolRule, rawSymbol string) string {
	symbol := rawSymbol
	for _, rule := range rules {
		if strings.Contains(rawSymbol, rule.Match) {
			symbol = strings.ReplaceAll(rawSymbol, rule.Match, "") + rule.Replacement
			break
		}
	}
	return strings.ReplaceAll(symbol, " ", "-")
}

// FromListed normalizes an activity listed by Ghostfolio into the canonical
// Activity shape so it can be compared against newly transformed candidates.
//
// Listed dates come back with full timestamp precision (e.g.,
// "2024-01-15T00:00:00.000Z"); only the date part is significant.
func FromListed(listed ghostfolio.Activity) Activity {
	return Activity{
		AccountID:  listed.AccountId,
		Currency:   listed.SymbolProfile.Currency,
		DataSource: listed.SymbolProfile.DataSource,
		Date:       normalizeDate(listed.Date),
		Fee:        listed.Fee,
		Quantity:   listed.Quantity,
		Symbol:     listed.SymbolProfile.Symbol,
		Type:       listed.Type,
		UnitPrice:  listed.UnitPrice,
	}
}

// ToImport converts a canonical Activity into the wire shape of the
// Ghostfolio bulk import endpoint. Comment is always null.
func ToImport(activity Activity) ghostfolio.ImportActivity {
	return ghostfolio.ImportActivity{
		AccountId:  activity.AccountID,
		Comment:    nil,
		Currency:   activity.Currency,
		DataSource: activity.DataSource,
		Date:       activity.Date,
		Fee:        activity.Fee,
		Quantity:   activity.Quantity,
		Symbol:     activity.Symbol,
		Type:       activity.Type,
		UnitPrice:  activity.UnitPrice,
	}
}

// Diff returns the candidates that do not already appear in existing,
// under full structural equality of every Activity field.
//
// Candidate order is preserved. Diff is pure: calling it twice with the
// same inputs returns the same result.
func Diff(existing []Activity, candidates []Activity) []Activity {
	existingSet := make(map[Activity]struct{}, len(existing))
	for _, activity := range existing {
		existingSet[activity] = struct{}{}
	}
	diff := make([]Activity, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := existingSet[candidate]; !ok {
			diff = append(diff, candidate)
		}
	}
	return diff
}

// Chunk splits values into consecutive groups of at most size elements.
// The last chunk may be smaller. A nil or empty input yields no chunks.
func Chunk[T any](values []T, size int) [][]T {
	if size <= 0 || len(values) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// parseTradeDate parses a Flex trade date, accepting both the ISO date
// format (2024-01-15) and the compact IBKR format (20240115).
func parseTradeDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("20060102", s)
}

// normalizeDate truncates an ISO-8601 timestamp to date-only precision
// re-emitted at midnight. Unparseable values pass through unchanged so the
// diff treats them as distinct rather than silently matching.
func normalizeDate(s string) string {
	if len(s) >= len("2006-01-02") {
		if t, err := time.Parse("2006-01-02", s[:len("2006-01-02")]); err == nil {
			return t.Format(dateLayout)
		}
	}
	return s
}
