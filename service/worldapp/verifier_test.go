package worldapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/minikit/transaction/tx-1", r.URL.Path)
		assert.Equal(t, "app_123", r.URL.Query().Get("app_id"))
		assert.Equal(t, "payment", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"transactionId": "tx-1",
			"transactionStatus": "mined",
			"reference": "abc123",
			"miniappId": "app_123",
			"inputToken": "WLD",
			"inputTokenAmount": "10000000000000000000"
		}`))
	}))
	defer server.Close()

	v := NewVerifier(server.URL, "app_123", "secret", nil, nil, nil)
	tx, err := v.GetTransaction(context.Background(), "tx-1")
	require.NoError(t, err)

	assert.Equal(t, "abc123", tx.Reference)
	assert.Equal(t, "mined", tx.TransactionStatus)
	assert.False(t, tx.Failed())
}

func TestGetTransaction_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactionId":"tx-2","transactionStatus":"failed","reference":"r"}`))
	}))
	defer server.Close()

	tx, err := NewVerifier(server.URL, "app", "key", nil, nil, nil).GetTransaction(context.Background(), "tx-2")
	require.NoError(t, err)
	assert.True(t, tx.Failed())
}

func TestGetTransaction_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantNotFound bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `{}`, wantNotFound: true},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewVerifier(server.URL, "app", "key", nil, nil, nil).GetTransaction(context.Background(), "tx")
			require.Error(t, err)
			if tt.wantNotFound {
				assert.ErrorIs(t, err, ErrTransactionNotFound)
			} else {
				assert.NotErrorIs(t, err, ErrTransactionNotFound)
			}
		})
	}
}
