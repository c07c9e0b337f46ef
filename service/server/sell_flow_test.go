package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/brojonat/wldsell/client"
	"github.com/brojonat/wldsell/service/commission"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/brojonat/wldsell/service/worldapp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settlingBridge pays every request and registers the transaction with
// the portal fake, as World App would.
type settlingBridge struct {
	mu       sync.Mutex
	verifier *fakeVerifier
	requests []sell.PayRequest
}

func (b *settlingBridge) IsInstalled() bool { return true }

func (b *settlingBridge) Pay(ctx context.Context, req sell.PayRequest) (sell.PayResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	txID := "tx-" + req.Reference
	b.verifier.mu.Lock()
	b.verifier.txs[txID] = &worldapp.Transaction{
		TransactionID:     txID,
		TransactionStatus: "mined",
		Reference:         req.Reference,
	}
	b.verifier.mu.Unlock()

	return sell.PayResponse{FinalPayload: sell.FinalPayload{
		Status:        sell.PayloadStatusSuccess,
		TransactionID: txID,
		Reference:     req.Reference,
		Chain:         "worldchain",
		Version:       1,
	}}, nil
}

func (b *settlingBridge) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newSellFlow(t *testing.T) (*testEnv, *settlingBridge, *sell.Orchestrator) {
	t.Helper()
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	api := client.NewClient(ts.URL, ts.Client(), nil)
	bridge := &settlingBridge{verifier: env.verifier}
	orch, err := sell.New(sell.Options{
		References:  api,
		Bridge:      bridge,
		Confirmer:   api,
		Recorder:    api,
		Schedule:    commission.DefaultSchedule(),
		Destination: "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
	})
	require.NoError(t, err)
	return env, bridge, orch
}

func payPalForm(email string) *sell.Form {
	return &sell.Form{
		Amount:        decimal.NewFromInt(10),
		PaymentMethod: sell.MethodPayPal,
		PayPalEmail:   email,
		WLDPrice:      decimal.NewFromInt(2),
	}
}

func TestSellFlow_RecordsOrder(t *testing.T) {
	env, bridge, orch := newSellFlow(t)

	out := orch.Submit(context.Background(), &sell.User{Username: "maria", Email: "maria@example.com"}, payPalForm("maria@example.com"))
	require.NoError(t, out.Err())
	assert.Equal(t, sell.ProfilePath, out.Redirect)
	assert.Equal(t, 1, bridge.calls())

	require.Len(t, env.store.orders, 1)
	assert.Equal(t, "maria@example.com", env.store.orders[0].PayPalEmail)
	assert.True(t, env.store.orders[0].NetAmount.Equal(decimal.NewFromInt(18)))
}

func TestSellFlow_RejectsOrderFieldsBeforePayment(t *testing.T) {
	seller := sell.User{Username: "maria", Email: "maria@example.com"}

	tests := []struct {
		name string
		user sell.User
		form func() *sell.Form
	}{
		{name: "malformed paypal email", user: seller, form: func() *sell.Form { return payPalForm("not-an-email") }},
		{name: "paypal email with display name", user: seller, form: func() *sell.Form { return payPalForm("Maria <maria@example.com>") }},
		{name: "malformed seller email", user: sell.User{Username: "maria", Email: "maria@"}, form: func() *sell.Form { return payPalForm("maria@example.com") }},
		{name: "username too long", user: sell.User{Username: strings.Repeat("m", sell.MaxUsernameLength+1)}, form: func() *sell.Form { return payPalForm("maria@example.com") }},
		{name: "full name too long", user: seller, form: func() *sell.Form {
			return &sell.Form{
				Amount:        decimal.NewFromInt(10),
				PaymentMethod: sell.MethodBankTransfer,
				BankName:      "Banco Uno",
				FullName:      strings.Repeat("a", sell.MaxFieldLength+1),
				AccountNumber: "ES7620770024003102575766",
				WLDPrice:      decimal.NewFromInt(2),
			}
		}},
		{name: "control characters in account number", user: seller, form: func() *sell.Form {
			return &sell.Form{
				Amount:        decimal.NewFromInt(10),
				PaymentMethod: sell.MethodBankTransfer,
				BankName:      "Banco Uno",
				FullName:      "Maria Perez",
				AccountNumber: "ES76\x07",
				WLDPrice:      decimal.NewFromInt(2),
			}
		}},
		{name: "amount beyond storage", user: seller, form: func() *sell.Form {
			f := payPalForm("maria@example.com")
			f.Amount = sell.MaxStoredValue
			return f
		}},
		{name: "net amount beyond storage", user: seller, form: func() *sell.Form {
			f := payPalForm("maria@example.com")
			f.Amount = decimal.New(1, 12)
			f.WLDPrice = decimal.New(1, 9)
			return f
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, bridge, orch := newSellFlow(t)
			user := tt.user

			out := orch.Submit(context.Background(), &user, tt.form())
			require.Error(t, out.Err())
			assert.ErrorIs(t, out.Err(), sell.ErrValidation)
			assert.Equal(t, sell.StateValidating, out.Final.Failure.Stage)
			assert.Equal(t, []sell.StateName{sell.StateIdle, sell.StateValidating, sell.StateDone}, out.Trace)
			assert.Equal(t, 0, bridge.calls())
			assert.Empty(t, env.store.refs, "no reference may be issued")
			assert.Empty(t, env.store.orders)
		})
	}
}

// Whatever the form accepts, the order endpoint accepts too.
func TestSellFlow_OrderEndpointAgreesWithForm(t *testing.T) {
	env := newTestEnv(t)
	env.store.confirmRef("ref1", "tx-1")

	body := bankOrderBody("ref1")
	body["fullname"] = strings.Repeat("a", sell.MaxFieldLength)
	w := env.do(t, http.MethodPost, "/api/orders", encode(t, body))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env.store.confirmRef("ref2", "tx-2")
	body = bankOrderBody("ref2")
	body["amount"] = sell.MaxStoredValue.String()
	w = env.do(t, http.MethodPost, "/api/orders", encode(t, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount too large")
}
