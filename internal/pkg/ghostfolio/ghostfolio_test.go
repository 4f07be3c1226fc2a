// Copyright 2026 Peter Edge
//
// All rights reserved.

package ghostfolio

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestClient starts an httptest server with the given handler and returns
// a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(slog.New(slog.DiscardHandler), server.URL, "test-token")
}

func TestListAccounts(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/account", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"accounts": [{"id": "a1", "name": "IBKR", "currency": "EUR", "balance": 100.5}]}`)
	})
	accounts, err := client.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "a1", accounts[0].Id)
	require.Equal(t, "IBKR", accounts[0].Name)
	require.Equal(t, "EUR", accounts[0].Currency)
	require.Equal(t, 100.5, accounts[0].Balance)
}

func TestListAccountsFailure(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	_, err := client.ListAccounts(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestCreateAccount(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/account", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "IBKR", body["name"])
		require.Equal(t, 0.0, body["balance"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "new-account"}`)
	})
	accountID, err := client.CreateAccount(context.Background(), CreateAccountRequest{
		Balance:  0,
		Currency: "EUR",
		Name:     "IBKR",
	})
	require.NoError(t, err)
	require.Equal(t, "new-account", accountID)
}

func TestCreateAccountMissingID(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{}`)
	})
	_, err := client.CreateAccount(context.Background(), CreateAccountRequest{Name: "IBKR"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no id")
}

func TestUpdateAccount(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v1/account/a1", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a1", body["id"])
		require.Equal(t, 125.0, body["balance"])
	})
	require.NoError(t, client.UpdateAccount(context.Background(), UpdateAccountRequest{
		Balance:  125,
		Id:       "a1",
		Currency: "EUR",
		Name:     "IBKR",
	}))
}

func TestListActivities(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/order", r.URL.Path)
		_, _ = io.WriteString(w, `{"activities": [{
			"id": "act-1",
			"accountId": "a1",
			"date": "2024-01-15T00:00:00.000Z",
			"fee": 0,
			"quantity": 10,
			"type": "BUY",
			"unitPrice": 50,
			"SymbolProfile": {"symbol": "ENGI.PA", "currency": "EUR", "dataSource": "YAHOO"}
		}]}`)
	})
	activities, err := client.ListActivities(context.Background())
	require.NoError(t, err)
	require.Len(t, activities, 1)
	require.Equal(t, "act-1", activities[0].Id)
	require.Equal(t, "a1", activities[0].AccountId)
	require.Equal(t, "ENGI.PA", activities[0].SymbolProfile.Symbol)
	require.Equal(t, "EUR", activities[0].SymbolProfile.Currency)
}

func TestDeleteActivity(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/v1/order/act-1", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
	})
	require.NoError(t, client.DeleteActivity(context.Background(), "act-1"))
}

func TestImportActivities(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/import", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var envelope map[string][]map[string]any
		require.NoError(t, json.Unmarshal(body, &envelope))
		activities := envelope["activities"]
		require.Len(t, activities, 1)
		// The comment field must be present and null on the wire.
		comment, ok := activities[0]["comment"]
		require.True(t, ok)
		require.Nil(t, comment)
		require.Equal(t, "YAHOO", activities[0]["dataSource"])
		require.Equal(t, 0.0, activities[0]["fee"])
		w.WriteHeader(http.StatusCreated)
	})
	require.NoError(t, client.ImportActivities(context.Background(), []ImportActivity{
		{
			AccountId:  "a1",
			Currency:   "EUR",
			DataSource: DataSourceYahoo,
			Date:       "2024-01-15T00:00:00",
			Fee:        0,
			Quantity:   10,
			Symbol:     "ENGI.PA",
			Type:       "BUY",
			UnitPrice:  50,
		},
	}))
}

func TestImportActivitiesFailure(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate activity", http.StatusBadRequest)
	})
	err := client.ImportActivities(context.Background(), []ImportActivity{{AccountId: "a1"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate activity")
}
