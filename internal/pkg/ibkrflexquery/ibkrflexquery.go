// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkrflexquery provides an API client for the IBKR Flex Query Web Service.
//
// The Flex Query Web Service is a two-step REST API:
//  1. SendRequest: Submits a query and returns a reference code.
//  2. GetStatement: Polls with the reference code until the XML statement is ready.
//
// Both endpoints require a Flex Web Service token for authentication and
// a "Java" User-Agent header. Both endpoints may return transient errors
// (e.g., 1001 server busy, 1019 statement generating) which are retried
// with exponential backoff.
//
// The response contains one FlexStatement per IBKR account. Each statement
// includes the Trades and CashReport sections, parsed from the IBKR XML
// attribute-based format.
package ibkrflexquery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bufdev/ghostsync/internal/pkg/backoff"
)

const (
	// sendRequestURL is the IBKR Flex Web Service endpoint for initiating a query.
	sendRequestURL = "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService/SendRequest"
	// getStatementURL is the IBKR Flex Web Service endpoint for retrieving a statement.
	getStatementURL = "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService/GetStatement"
	// userAgent is the required User-Agent header for IBKR (IBKR expects "Java").
	userAgent = "Java"
	// maxAttempts is the maximum number of attempts for each API call.
	maxAttempts = 10
	// initialRetryDelay is the initial delay before the first retry.
	initialRetryDelay = 2 * time.Second
	// maxRetryDelay is the maximum delay between retries.
	maxRetryDelay = 30 * time.Second
)

// Open/close indicator values on a Flex trade record.
const (
	// OpenCloseIndicatorOpen marks a trade leg that opens a position.
	OpenCloseIndicatorOpen = "O"
	// OpenCloseIndicatorClose marks a trade leg that closes (realizes) a position.
	OpenCloseIndicatorClose = "C"
)

// Client is the interface for downloading Flex Query data from IBKR.
type Client interface {
	// Download fetches and parses a Flex Query statement.
	//
	// The token is the Flex Web Service token generated in the IBKR portal.
	// The queryID identifies which Flex Query to execute.
	//
	// The method performs the two-step API flow (SendRequest → GetStatement),
	// parses the XML response, and returns one FlexStatement per IBKR account.
	Download(ctx context.Context, token string, queryID string) ([]FlexStatement, error)
}

// NewClient creates a new Flex Query API client. The logger is required.
func NewClient(logger *slog.Logger) Client {
	return &client{
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// FlexStatement contains the data returned by a Flex Query for a single IBKR account.
type FlexStatement struct {
	// AccountId is the IBKR account identifier (e.g., "U1234567").
	AccountId string `xml:"accountId,attr"`
	// Trades is the list of trade executions.
	Trades []XMLTrade `xml:"Trades>Trade"`
	// CashReport is the cash balance report by currency.
	CashReport []XMLCashReportCurrency `xml:"CashReport>CashReportCurrency"`
}

// XMLTrade represents a trade in the IBKR Flex Query XML format.
// All fields are XML attributes.
type XMLTrade struct {
	TradeID       string `xml:"tradeID,attr"`
	TradeDate     string `xml:"tradeDate,attr"`
	Symbol        string `xml:"symbol,attr"`
	Description   string `xml:"description,attr"`
	AssetCategory string `xml:"assetCategory,attr"`
	BuySell       string `xml:"buySell,attr"`
	// OpenCloseIndicator is "O" for opening legs, "C" for closing legs,
	// and empty for records that are not position events.
	OpenCloseIndicator string `xml:"openCloseIndicator,attr"`
	Quantity           string `xml:"quantity,attr"`
	TradePrice         string `xml:"tradePrice,attr"`
	Currency           string `xml:"currency,attr"`
}

// XMLCashReportCurrency represents a cash balance for a single currency
// from the IBKR Flex Query Cash Report section.
type XMLCashReportCurrency struct {
	// Currency is the ISO currency code (e.g., "USD", "CAD").
	Currency string `xml:"currency,attr"`
	// EndingCash is the total cash balance including unsettled trades.
	EndingCash string `xml:"endingCash,attr"`
	// EndingSettledCash is the settled cash balance (actual available funds).
	EndingSettledCash string `xml:"endingSettledCash,attr"`
}

// *** PRIVATE ***

type client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// flexQueryResponse is the top-level XML structure of a Flex Query statement.
type flexQueryResponse struct {
	XMLName        xml.Name       `xml:"FlexQueryResponse"`
	FlexStatements flexStatements `xml:"FlexStatements"`
}

// flexStatements contains one FlexStatement per IBKR account.
type flexStatements struct {
	// Statements is the list of per-account statements.
	Statements []FlexStatement `xml:"FlexStatement"`
}

// sendResponse is the XML response from the SendRequest endpoint.
type sendResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Status        string   `xml:"Status"`
	ReferenceCode string   `xml:"ReferenceCode"`
	URL           string   `xml:"Url"`
	ErrorCode     string   `xml:"ErrorCode"`
	ErrorMessage  string   `xml:"ErrorMessage"`
}

// retryableErrorCodes are IBKR error codes that indicate a transient failure.
var retryableErrorCodes = map[string]bool{
	"1001": true, // Statement could not be generated at this time.
	"1019": true, // Statement is being generated, please try again shortly.
}

func (c *client) Download(ctx context.Context, token string, queryID string) ([]FlexStatement, error) {
	// Validate required parameters.
	if token == "" {
		return nil, errors.New("token is required")
	}
	if queryID == "" {
		return nil, errors.New("query ID is required")
	}
	// Step 1: Send the request to get a reference code, with backoff on transient errors.
	referenceCode, err := c.sendRequest(ctx, token, queryID)
	if err != nil {
		return nil, fmt.Errorf("sending flex query request: %w", err)
	}
	c.logger.Info("flex query request sent", "reference_code", referenceCode)
	// Step 2: Poll for the statement XML using the reference code, with backoff.
	xmlData, err := c.getStatement(ctx, token, referenceCode)
	if err != nil {
		return nil, fmt.Errorf("getting flex query statement: %w", err)
	}
	// Step 3: Parse the XML response into structured data.
	response, err := parseFlexQueryResponse(xmlData)
	if err != nil {
		return nil, fmt.Errorf("parsing flex query response: %w", err)
	}
	// Return all per-account statements.
	return response.FlexStatements.Statements, nil
}

// sendRequest initiates a Flex Query and returns the reference code.
// Retries on transient IBKR errors with exponential backoff.
func (c *client) sendRequest(ctx context.Context, token string, queryID string) (string, error) {
	// Build the request URL with query parameters.
	// Parameter order matches IBKR docs: t, q, v.
	reqURL := fmt.Sprintf("%s?t=%s&q=%s&v=3", sendRequestURL, token, queryID)
	return backoff.Retry(ctx, maxAttempts, initialRetryDelay, maxRetryDelay,
		func(ctx context.Context, attempt int) (string, bool, error) {
			if attempt > 0 {
				c.logger.Info("retrying send request", "attempt", attempt+1)
			}
			c.logger.Debug("send request", "query_id", queryID)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return "", false, err
			}
			// IBKR requires the "Java" User-Agent header.
			req.Header.Set("User-Agent", userAgent)
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return "", false, err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", false, err
			}
			if resp.StatusCode != http.StatusOK {
				return "", false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			}
			var sendResp sendResponse
			if err := xml.Unmarshal(body, &sendResp); err != nil {
				return "", false, fmt.Errorf("parsing send response: %w", err)
			}
			if sendResp.Status != "Success" {
				retryable := retryableErrorCodes[sendResp.ErrorCode]
				if retryable {
					c.logger.Warn("transient IBKR error, will retry", "code", sendResp.ErrorCode, "message", sendResp.ErrorMessage)
				}
				return "", retryable, fmt.Errorf("%s (code: %s)", sendResp.ErrorMessage, sendResp.ErrorCode)
			}
			return sendResp.ReferenceCode, false, nil
		},
	)
}

// getStatement polls the GetStatement endpoint until the data is ready.
// Retries on transient IBKR errors with exponential backoff.
func (c *client) getStatement(ctx context.Context, token string, referenceCode string) ([]byte, error) {
	return backoff.Retry(ctx, maxAttempts, initialRetryDelay, maxRetryDelay,
		func(ctx context.Context, attempt int) ([]byte, bool, error) {
			if attempt > 0 {
				c.logger.Info("waiting for flex query statement", "attempt", attempt+1)
			}
			// Build the request URL with query parameters.
			reqURL := fmt.Sprintf("%s?t=%s&q=%s&v=3", getStatementURL, token, referenceCode)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return nil, false, err
			}
			// IBKR requires the "Java" User-Agent header.
			req.Header.Set("User-Agent", userAgent)
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, false, err
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, false, err
			}
			if resp.StatusCode != http.StatusOK {
				return nil, false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			}
			// Check if the response is an XML error response (statement not ready yet).
			bodyStr := strings.TrimSpace(string(body))
			if strings.HasPrefix(bodyStr, "<FlexStatementResponse") {
				var getResp sendResponse
				if err := xml.Unmarshal(body, &getResp); err != nil {
					return nil, false, fmt.Errorf("parsing get response: %w", err)
				}
				retryable := retryableErrorCodes[getResp.ErrorCode]
				if retryable {
					c.logger.Warn("transient IBKR error, will retry", "code", getResp.ErrorCode, "message", getResp.ErrorMessage)
				}
				return nil, retryable, fmt.Errorf("%s (code: %s)", getResp.ErrorMessage, getResp.ErrorCode)
			}
			// If it's not an error response, it's the actual statement XML.
			return body, false, nil
		},
	)
}

// parseFlexQueryResponse parses the raw XML data into a flexQueryResponse.
func parseFlexQueryResponse(data []byte) (*flexQueryResponse, error) {
	var response flexQueryResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return &response, nil
}
