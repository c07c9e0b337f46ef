package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/wldsell/service/sell"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiatePayment_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/initiate-payment", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "0123456789abcdef0123456789abcdef"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	id, err := client.InitiatePayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", id)
}

func TestInitiatePayment_EmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": ""})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).InitiatePayment(context.Background())
	assert.Error(t, err)
}

func TestInitiatePayment_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "failed to create payment reference"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).InitiatePayment(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create payment reference")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expected    bool
		expectError bool
	}{
		{name: "confirmed", status: http.StatusOK, body: `{"success":true}`, expected: true},
		{name: "declined", status: http.StatusOK, body: `{"success":false,"reason":"transaction failed"}`, expected: false},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"invalid request body"}`, expectError: true},
		{name: "portal down", status: http.StatusBadGateway, body: `{"error":"failed to verify transaction"}`, expectError: true},
		{name: "garbage", status: http.StatusOK, body: `not json`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/confirm-payment", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var payload sell.FinalPayload
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "success", payload.Status)
				assert.Equal(t, "ref-1", payload.Reference)
				assert.Equal(t, "tx-1", payload.TransactionID)

				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			ok, err := NewClient(server.URL, nil, nil).ConfirmPayment(context.Background(), sell.FinalPayload{
				Status:        "success",
				Reference:     "ref-1",
				TransactionID: "tx-1",
			})
			if tt.expectError {
				assert.Error(t, err)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestCreateOrder_Success(t *testing.T) {
	created := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-1", body["reference"])
		assert.Equal(t, "paypal", body["paymentmethod"])
		assert.Equal(t, "p@example.com", body["paypalemail"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":            7,
			"reference":     "ref-1",
			"username":      "maria",
			"amount":        10,
			"paymentmethod": "paypal",
			"paypalemail":   "p@example.com",
			"wldprice":      2,
			"commission":    1,
			"netamount":     18,
			"status":        "pendiente",
			"timestamp":     created,
		})
	}))
	defer server.Close()

	order, err := NewClient(server.URL, nil, nil).CreateOrder(context.Background(), sell.Order{
		Reference:     "ref-1",
		Username:      "maria",
		Amount:        decimal.NewFromInt(10),
		PaymentMethod: sell.MethodPayPal,
		PayPalEmail:   "p@example.com",
		WLDPrice:      decimal.NewFromInt(2),
		Status:        sell.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, sell.StatusPending, order.Status)
	assert.True(t, order.NetAmount.Equal(decimal.NewFromInt(18)))
	assert.True(t, created.Equal(order.Timestamp))
}

func TestCreateOrder_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "payment reference not confirmed"})
	}))
	defer server.Close()

	order, err := NewClient(server.URL, nil, nil).CreateOrder(context.Background(), sell.Order{Reference: "ref-1"})
	require.Error(t, err)
	assert.Nil(t, order)
	assert.Contains(t, err.Error(), "not confirmed")
}

func TestListOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "maria", r.URL.Query().Get("username"))
		assert.Equal(t, "pendiente", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"orders": []map[string]any{
				{"id": 2, "reference": "b", "username": "maria", "status": "pendiente"},
				{"id": 1, "reference": "a", "username": "maria", "status": "pendiente"},
			},
			"count": 2,
		})
	}))
	defer server.Close()

	orders, err := NewClient(server.URL, nil, nil).ListOrders(context.Background(), "maria", ListOrdersOptions{Status: "pendiente", Limit: 5})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "b", orders[0].Reference)
}

func TestPriceAndQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/price":
			fmt.Fprint(w, `{"symbol":"WLD","currency":"USD","price":2.5,"fetched_at":"2026-10-01T12:00:00Z"}`)
		case "/api/quote":
			assert.Equal(t, "100", r.URL.Query().Get("amount"))
			fmt.Fprint(w, `{"amount":100,"price":2.5,"commission_percentage":0.08,"commission":8,"net_tokens":92,"net_amount":230,"currency":"USD"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)

	p, err := client.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WLD", p.Symbol)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("2.5")))

	q, err := client.Quote(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, q.Commission.Equal(decimal.NewFromInt(8)))
	assert.True(t, q.NetAmount.Equal(decimal.NewFromInt(230)))
}

func TestPrice_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"price not available yet"}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Price(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price not available yet")
}

func TestHealth(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, nil)
	assert.NoError(t, client.Health(context.Background()))

	unhealthy.Store(true)
	assert.Error(t, client.Health(context.Background()))
}

func TestStreamPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stream/price", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		fmt.Fprint(w, "event: connected\ndata: {\"subject\":\"sell.price\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: price\ndata: {\"symbol\":\"WLD\",\"currency\":\"USD\",\"price\":2.1}\n\n")
		fmt.Fprint(w, "event: price\ndata: {\"symbol\":\"WLD\",\"currency\":\"USD\",\"price\":2.2}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	stop := errors.New("stop")
	err := NewClient(server.URL, nil, nil).StreamPrice(ctx, func(p Price) error {
		got = append(got, p.Price.String())
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"2.1", "2.2"}, got)
}

func TestStreamPrice_ServerErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"error\":\"failed to subscribe\"}\n\n")
	}))
	defer server.Close()

	err := NewClient(server.URL, nil, nil).StreamPrice(context.Background(), func(Price) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}
