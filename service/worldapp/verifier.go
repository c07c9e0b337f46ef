// Package worldapp looks up MiniKit payment transactions in the World
// Developer Portal.
package worldapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/wldsell/service/metrics"
)

// TransactionStatusFailed marks a transaction that will never settle.
const TransactionStatusFailed = "failed"

// ErrTransactionNotFound is returned when the portal does not know the transaction.
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction is the Developer Portal view of a MiniKit payment.
type Transaction struct {
	TransactionID     string `json:"transactionId"`
	TransactionHash   string `json:"transactionHash"`
	TransactionStatus string `json:"transactionStatus"`
	Reference         string `json:"reference"`
	MiniAppID         string `json:"miniappId"`
	Network           string `json:"network"`
	FromWalletAddress string `json:"fromWalletAddress"`
	RecipientAddress  string `json:"recipientAddress"`
	InputToken        string `json:"inputToken"`
	InputTokenAmount  string `json:"inputTokenAmount"`
	UpdatedAt         string `json:"updatedAt"`
}

// Failed reports whether the portal marked the transaction as failed.
func (t Transaction) Failed() bool {
	return t.TransactionStatus == TransactionStatusFailed
}

// Verifier queries the Developer Portal.
type Verifier struct {
	baseURL    string
	appID      string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewVerifier creates a Verifier. A nil httpClient gets a 15s timeout.
func NewVerifier(baseURL, appID, apiKey string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Verifier{
		baseURL:    baseURL,
		appID:      appID,
		apiKey:     apiKey,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// GetTransaction fetches a payment transaction by its MiniKit transaction id.
func (v *Verifier) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	start := time.Now()
	tx, status, err := v.getTransaction(ctx, transactionID)
	if v.metrics != nil {
		v.metrics.RecordDevPortalCall(status, time.Since(start).Seconds())
	}
	return tx, err
}

func (v *Verifier) getTransaction(ctx context.Context, transactionID string) (*Transaction, string, error) {
	q := url.Values{}
	q.Set("app_id", v.appID)
	q.Set("type", "payment")
	u := fmt.Sprintf("%s/api/v2/minikit/transaction/%s?%s", v.baseURL, url.PathEscape(transactionID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, "error", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "not_found", ErrTransactionNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "error", fmt.Errorf("developer portal returned status %d: %s", resp.StatusCode, string(body))
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, "error", fmt.Errorf("failed to decode response: %w", err)
	}

	v.logger.DebugContext(ctx, "developer portal transaction",
		"transaction_id", transactionID,
		"reference", tx.Reference,
		"status", tx.TransactionStatus,
	)
	return &tx, "success", nil
}
