package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/brojonat/wldsell/service/sell"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankOrderBody(ref string) map[string]any {
	return map[string]any{
		"reference":     ref,
		"username":      "maria",
		"email":         "maria@example.com",
		"amount":        100,
		"paymentmethod": "bank",
		"bankname":      "Banco Uno",
		"fullname":      "Maria Perez",
		"accountnumber": "ES7620770024003102575766",
		"paypalemail":   "",
		"wldprice":      2,
		"commission":    999,
		"netamount":     999,
		"status":        "pendiente",
	}
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	env.store.confirmRef("ref1", "tx-1")

	w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody("ref1")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order sell.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, "ref1", order.Reference)
	assert.Equal(t, sell.StatusPending, order.Status)
	assert.Equal(t, sell.MethodBankTransfer, order.PaymentMethod)
	assert.Empty(t, order.PayPalEmail)
	assert.False(t, order.Timestamp.IsZero())

	// 100 WLD at 8%: 8 WLD commission, 92 WLD * 2 = 184
	assert.True(t, order.Commission.Equal(decimal.NewFromInt(8)), order.Commission.String())
	assert.True(t, order.NetAmount.Equal(decimal.NewFromInt(184)), order.NetAmount.String())
	assert.True(t, order.WLDPrice.Equal(decimal.NewFromInt(2)))

	events := env.publisher.GetOrderEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "ref1", events[0].Reference)
}

func TestCreateOrder_PayPal(t *testing.T) {
	env := newTestEnv(t)
	env.store.confirmRef("ref1", "tx-1")

	w := env.do(t, http.MethodPost, "/api/orders", encode(t, map[string]any{
		"reference":     "ref1",
		"username":      "juan",
		"amount":        "10.5",
		"paymentmethod": "paypal",
		"paypalemail":   "juan@example.com",
		"wldprice":      "1.25",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order sell.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, "juan@example.com", order.PayPalEmail)
	assert.Empty(t, order.BankName)
	// 10.5 at 10%: 1.05 commission, 9.45 * 1.25 = 11.8125
	assert.True(t, order.Commission.Equal(decimal.RequireFromString("1.05")), order.Commission.String())
	assert.True(t, order.NetAmount.Equal(decimal.RequireFromString("11.8125")), order.NetAmount.String())
}

func TestCreateOrder_ZeroPrice(t *testing.T) {
	env := newTestEnv(t)
	env.store.confirmRef("ref1", "tx-1")
	body := bankOrderBody("ref1")
	body["wldprice"] = 0

	w := env.do(t, http.MethodPost, "/api/orders", encode(t, body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order sell.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.True(t, order.NetAmount.IsZero())
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(b map[string]any)
		contains string
	}{
		{name: "missing reference", mutate: func(b map[string]any) { b["reference"] = "" }, contains: "reference is required"},
		{name: "missing username", mutate: func(b map[string]any) { b["username"] = " " }, contains: "username is required"},
		{name: "bad email", mutate: func(b map[string]any) { b["email"] = "not-an-email" }, contains: "invalid email"},
		{name: "zero amount", mutate: func(b map[string]any) { b["amount"] = 0 }, contains: "amount must be positive"},
		{name: "negative amount", mutate: func(b map[string]any) { b["amount"] = -5 }, contains: "amount must be positive"},
		{name: "negative price", mutate: func(b map[string]any) { b["wldprice"] = -1 }, contains: "wldprice cannot be negative"},
		{name: "unknown method", mutate: func(b map[string]any) { b["paymentmethod"] = "crypto" }, contains: "invalid paymentmethod"},
		{name: "status other than pending", mutate: func(b map[string]any) { b["status"] = "confirmada" }, contains: "new orders must have status"},
		{name: "bank order missing account", mutate: func(b map[string]any) { b["accountnumber"] = "" }, contains: "payout details"},
		{name: "bank order with paypal email", mutate: func(b map[string]any) { b["paypalemail"] = "x@example.com" }, contains: "payout details"},
		{name: "paypal order with bank fields", mutate: func(b map[string]any) {
			b["paymentmethod"] = "paypal"
			b["paypalemail"] = "x@example.com"
		}, contains: "payout details"},
		{name: "control characters", mutate: func(b map[string]any) { b["fullname"] = "Maria\x00" }, contains: "control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.confirmRef("ref1", "tx-1")
			body := bankOrderBody("ref1")
			tt.mutate(body)

			w := env.do(t, http.MethodPost, "/api/orders", encode(t, body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			assert.Empty(t, env.store.orders)
		})
	}
}

func TestCreateOrder_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/orders", `{"reference":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateOrder_ReferenceStates(t *testing.T) {
	t.Run("unknown reference", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody("nope")))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("reference not confirmed", func(t *testing.T) {
		env := newTestEnv(t)
		ref := issueReference(t, env)
		w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody(ref)))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "not confirmed")
	})

	t.Run("second order for one payment", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.confirmRef("ref1", "tx-1")
		w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody("ref1")))
		require.Equal(t, http.StatusCreated, w.Code)

		w = env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody("ref1")))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "already recorded")
		assert.Len(t, env.publisher.GetOrderEvents(), 1)
	})
}

func TestCreateOrder_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.confirmRef("ref1", "tx-1")
	env.store.err = errors.New("disk full")

	w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody("ref1")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, env.publisher.GetOrderEvents())
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 3; i++ {
		ref := fmt.Sprintf("ref%d", i)
		env.store.confirmRef(ref, "tx-"+ref)
		w := env.do(t, http.MethodPost, "/api/orders", encode(t, bankOrderBody(ref)))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	env.store.confirmRef("other", "tx-other")
	other := bankOrderBody("other")
	other["username"] = "pedro"
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/orders", encode(t, other)).Code)

	w := env.do(t, http.MethodGet, "/api/orders?username=maria&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []sell.Order `json:"orders"`
		Count  int          `json:"count"`
		Limit  int          `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 2, resp.Limit)
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "ref3", resp.Orders[0].Reference)
	assert.Equal(t, "ref2", resp.Orders[1].Reference)
	for _, o := range resp.Orders {
		assert.Equal(t, "maria", o.Username)
	}
}

func TestListOrders_BadParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "missing username", query: ""},
		{name: "bad limit", query: "username=maria&limit=abc"},
		{name: "zero limit", query: "username=maria&limit=0"},
		{name: "limit too large", query: "username=maria&limit=100000"},
		{name: "negative offset", query: "username=maria&offset=-1"},
		{name: "unknown status", query: "username=maria&status=paid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodGet, "/api/orders?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
