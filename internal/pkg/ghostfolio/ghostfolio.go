// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ghostfolio provides an API client for the Ghostfolio REST API.
//
// Ghostfolio exposes account CRUD under /api/v1/account, an activity listing
// and deletion surface under /api/v1/order, and a bulk activity import
// endpoint under /api/v1/import. All endpoints are bearer-token
// authenticated and exchange JSON bodies.
//
// Every call is a single best-effort attempt. Ghostfolio is the system of
// record for previously imported activities, so callers diff against
// ListActivities before importing rather than retrying blindly.
package ghostfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DataSourceYahoo is the market data source Ghostfolio uses to resolve
// imported symbols.
const DataSourceYahoo = "YAHOO"

// Client is the interface for talking to a Ghostfolio instance.
type Client interface {
	// ListAccounts fetches all accounts visible to the token.
	ListAccounts(ctx context.Context) ([]Account, error)
	// CreateAccount creates a new account and returns its id.
	CreateAccount(ctx context.Context, request CreateAccountRequest) (string, error)
	// UpdateAccount replaces the account record addressed by request.ID.
	UpdateAccount(ctx context.Context, request UpdateAccountRequest) error
	// ListActivities fetches all activities visible to the token.
	// Callers filter by account id client-side.
	ListActivities(ctx context.Context) ([]Activity, error)
	// DeleteActivity deletes a single activity by id.
	DeleteActivity(ctx context.Context, activityID string) error
	// ImportActivities bulk-creates the given activities in one call.
	ImportActivities(ctx context.Context, activities []ImportActivity) error
}

// NewClient creates a new Ghostfolio API client.
//
// The host is the base URL of the Ghostfolio instance (e.g.,
// "https://ghostfolio.example.com"), and the token is a bearer token
// obtained from the Ghostfolio auth endpoint.
func NewClient(logger *slog.Logger, host string, token string) Client {
	return &client{
		httpClient: http.DefaultClient,
		logger:     logger,
		host:       strings.TrimSuffix(host, "/"),
		token:      token,
	}
}

// Account is a Ghostfolio account record.
type Account struct {
	// Id is the account identifier assigned by Ghostfolio.
	Id string `json:"id"`
	// Name is the display name (the sync pipeline matches on this).
	Name string `json:"name"`
	// Currency is the ISO currency code of the account.
	Currency string `json:"currency"`
	// Balance is the current cash balance.
	Balance float64 `json:"balance"`
	// IsExcluded excludes the account from Ghostfolio analysis views.
	IsExcluded bool `json:"isExcluded"`
	// PlatformId is the Ghostfolio platform category the account belongs to.
	PlatformId string `json:"platformId"`
}

// CreateAccountRequest is the body for creating an account.
type CreateAccountRequest struct {
	Balance    float64 `json:"balance"`
	Currency   string  `json:"currency"`
	IsExcluded bool    `json:"isExcluded"`
	Name       string  `json:"name"`
	PlatformId string  `json:"platformId"`
}

// UpdateAccountRequest is the body for a full-replace account update.
type UpdateAccountRequest struct {
	Balance    float64 `json:"balance"`
	Id         string  `json:"id"`
	Currency   string  `json:"currency"`
	IsExcluded bool    `json:"isExcluded"`
	Name       string  `json:"name"`
	PlatformId string  `json:"platformId"`
}

// Activity is an activity as returned by the /api/v1/order listing.
//
// Ghostfolio nests the symbol, currency, and data source inside a
// SymbolProfile object on the way out; the flattened accessors below
// give diffing code a single shape to compare against.
type Activity struct {
	// Id is the activity identifier assigned by Ghostfolio.
	Id string `json:"id"`
	// AccountId is the id of the account the activity belongs to.
	AccountId string `json:"accountId"`
	// Date is the activity timestamp in ISO-8601 format.
	Date string `json:"date"`
	// Fee is the transaction fee.
	Fee float64 `json:"fee"`
	// Quantity is the traded quantity (always non-negative).
	Quantity float64 `json:"quantity"`
	// Type is the activity type ("BUY" or "SELL").
	Type string `json:"type"`
	// UnitPrice is the per-unit price.
	UnitPrice float64 `json:"unitPrice"`
	// SymbolProfile carries the symbol, currency, and data source.
	SymbolProfile SymbolProfile `json:"SymbolProfile"`
}

// SymbolProfile is the nested instrument descriptor on a listed activity.
type SymbolProfile struct {
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	DataSource string `json:"dataSource"`
}

// ImportActivity is an activity in the shape the bulk import endpoint expects.
type ImportActivity struct {
	AccountId string `json:"accountId"`
	// Comment is always null for synced activities.
	Comment    *string `json:"comment"`
	Currency   string  `json:"currency"`
	DataSource string  `json:"dataSource"`
	Date       string  `json:"date"`
	Fee        float64 `json:"fee"`
	Quantity   float64 `json:"quantity"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	UnitPrice  float64 `json:"unitPrice"`
}

// *** PRIVATE ***

type client struct {
	httpClient *http.Client
	logger     *slog.Logger
	host       string
	token      string
}

// accountsResponse is the JSON envelope of the account listing endpoint.
type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// activitiesResponse is the JSON envelope of the activity listing endpoint.
type activitiesResponse struct {
	Activities []Activity `json:"activities"`
}

// createAccountResponse is the JSON response of the account creation endpoint.
type createAccountResponse struct {
	Id string `json:"id"`
}

// importRequest is the JSON envelope of the bulk import endpoint.
type importRequest struct {
	Activities []ImportActivity `json:"activities"`
}

func (c *client) ListAccounts(ctx context.Context) ([]Account, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/account", nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	var resp accountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing accounts response: %w", err)
	}
	return resp.Accounts, nil
}

func (c *client) CreateAccount(ctx context.Context, request CreateAccountRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/account", request, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("creating account: %w", err)
	}
	var resp createAccountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing create account response: %w", err)
	}
	if resp.Id == "" {
		return "", fmt.Errorf("create account response has no id: %s", string(body))
	}
	return resp.Id, nil
}

func (c *client) UpdateAccount(ctx context.Context, request UpdateAccountRequest) error {
	if _, err := c.do(ctx, http.MethodPut, "/api/v1/account/"+request.Id, request, http.StatusOK); err != nil {
		return fmt.Errorf("updating account %s: %w", request.Id, err)
	}
	return nil
}

func (c *client) ListActivities(ctx context.Context) ([]Activity, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/order", nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	var resp activitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing activities response: %w", err)
	}
	return resp.Activities, nil
}

func (c *client) DeleteActivity(ctx context.Context, activityID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/v1/order/"+activityID, nil, http.StatusOK); err != nil {
		return fmt.Errorf("deleting activity %s: %w", activityID, err)
	}
	return nil
}

func (c *client) ImportActivities(ctx context.Context, activities []ImportActivity) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/import", importRequest{Activities: activities}, http.StatusCreated); err != nil {
		return fmt.Errorf("importing %d activities: %w", len(activities), err)
	}
	return nil
}

// do issues one authenticated request and returns the response body.
// A status other than expectedStatus is an error carrying the body text.
func (c *client) do(ctx context.Context, method string, path string, requestBody any, expectedStatus int) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		data, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.logger.Debug("ghostfolio request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != expectedStatus {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
