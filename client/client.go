package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/wldsell/service/sell"
	"github.com/shopspring/decimal"
)

// Price is the live WLD price served by the sell service.
type Price struct {
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
}

// Quote is the payout for selling Amount WLD at the live price.
type Quote struct {
	Amount               decimal.Decimal `json:"amount"`
	Price                decimal.Decimal `json:"price"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	Commission           decimal.Decimal `json:"commission"`
	NetTokens            decimal.Decimal `json:"net_tokens"`
	NetAmount            decimal.Decimal `json:"net_amount"`
	Currency             string          `json:"currency"`
	FetchedAt            time.Time       `json:"fetched_at"`
	Stale                bool            `json:"stale,omitempty"`
}

// ListOrdersOptions filters and pages an order listing.
type ListOrdersOptions struct {
	Status string
	Limit  int
	Offset int
}

// Client is the HTTP client for the WLD sell service. It backs the
// reference, confirmation and order steps of the sell orchestrator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ sell.ReferenceIssuer  = (*Client)(nil)
	_ sell.PaymentConfirmer = (*Client)(nil)
	_ sell.OrderRecorder    = (*Client)(nil)
)

// NewClient creates a new sell service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// InitiatePayment asks the server for a fresh single-use payment reference.
func (c *Client) InitiatePayment(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/initiate-payment", nil, http.StatusOK, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("server returned an empty payment reference")
	}

	c.logger.Debug("payment reference issued", "reference", resp.ID)
	return resp.ID, nil
}

// ConfirmPayment sends the wallet final payload to the server. It returns
// false when the server declined the payment and an error when the
// answer could not be obtained.
func (c *Client) ConfirmPayment(ctx context.Context, payload sell.FinalPayload) (bool, error) {
	var resp struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/confirm-payment", payload, http.StatusOK, &resp); err != nil {
		return false, err
	}

	if !resp.Success {
		c.logger.Info("payment not confirmed", "reference", payload.Reference, "reason", resp.Reason)
	}
	return resp.Success, nil
}

// CreateOrder records an order for a confirmed payment.
func (c *Client) CreateOrder(ctx context.Context, order sell.Order) (*sell.Order, error) {
	var created sell.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", order, http.StatusCreated, &created); err != nil {
		return nil, err
	}

	c.logger.Debug("order recorded", "order_id", created.ID, "reference", created.Reference)
	return &created, nil
}

// ListOrders lists a seller's orders, newest first.
func (c *Client) ListOrders(ctx context.Context, username string, opts ListOrdersOptions) ([]sell.Order, error) {
	q := url.Values{}
	q.Set("username", username)
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var resp struct {
		Orders []sell.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/orders?"+q.Encode(), nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// Price returns the current WLD price.
func (c *Client) Price(ctx context.Context) (*Price, error) {
	var p Price
	if err := c.do(ctx, http.MethodGet, "/api/price", nil, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Quote prices a sale of amount WLD.
func (c *Client) Quote(ctx context.Context, amount decimal.Decimal) (*Quote, error) {
	var q Quote
	if err := c.do(ctx, http.MethodGet, "/api/quote?amount="+url.QueryEscape(amount.String()), nil, http.StatusOK, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// StreamPrice follows the price SSE stream and calls fn for every tick
// until ctx is cancelled, the stream ends or fn returns an error.
func (c *Client) StreamPrice(ctx context.Context, fn func(Price) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream/price", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would cut the stream.
	stream := *c.httpClient
	stream.Timeout = 0
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "price" && data != "" {
				var p Price
				if err := json.Unmarshal([]byte(data), &p); err != nil {
					c.logger.Warn("failed to decode price event", "error", err)
				} else if err := fn(p); err != nil {
					return err
				}
			} else if event == "error" {
				return fmt.Errorf("server error: %s", data)
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return ctx.Err()
}

// do sends a JSON request and decodes the JSON response into out when
// the status matches want.
func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}
