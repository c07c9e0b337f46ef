package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/price"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDBOrder(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := FromDBOrder(&db.Order{
		ID:            7,
		Reference:     "abc",
		Username:      "alice",
		Amount:        decimal.NewFromInt(10),
		PaymentMethod: "paypal",
		PayPalEmail:   "alice@example.com",
		WLDPrice:      decimal.NewFromInt(1),
		Commission:    decimal.NewFromInt(1),
		NetAmount:     decimal.NewFromInt(9),
		Status:        "pendiente",
		CreatedAt:     created,
	})

	assert.Equal(t, int64(7), event.OrderID)
	assert.Equal(t, "abc", event.Reference)
	assert.Equal(t, created, event.CreatedAt)
	assert.False(t, event.PublishedAt.IsZero())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "alice@example.com", "payout details must not be broadcast")
}

func TestFromDBReference(t *testing.T) {
	tx := "tx-1"
	confirmed := time.Now().UTC()
	event := FromDBReference(&db.Reference{ID: "ref", TransactionID: &tx, ConfirmedAt: &confirmed}, PaymentOrphaned)

	assert.Equal(t, "tx-1", event.TransactionID)
	assert.Equal(t, SubjectPaymentOrphaned, event.Subject())

	event = FromDBReference(&db.Reference{ID: "ref"}, PaymentConfirmed)
	assert.Empty(t, event.TransactionID)
	assert.Equal(t, SubjectPaymentConfirmed, event.Subject())
}

func TestFromPrice(t *testing.T) {
	event := FromPrice(price.Price{Symbol: "WLD", Currency: "USD", Price: decimal.RequireFromString("1.5")})
	assert.Equal(t, "WLD", event.Symbol)
	assert.True(t, event.Price.Equal(decimal.RequireFromString("1.5")))
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	m := NewMockPublisher()

	require.NoError(t, m.PublishOrder(ctx, &OrderEvent{OrderID: 1}))
	require.NoError(t, m.PublishPaymentBatch(ctx, []*PaymentEvent{
		{Reference: "a", Kind: PaymentConfirmed},
		{Reference: "b", Kind: PaymentOrphaned},
	}))

	assert.Len(t, m.GetOrderEvents(), 1)
	assert.Len(t, m.GetPaymentEvents(""), 2)
	assert.Len(t, m.GetPaymentEvents(PaymentOrphaned), 1)

	m.SetPublishError(errors.New("down"))
	assert.Error(t, m.PublishPrice(ctx, &PriceEvent{}))
	assert.Empty(t, m.GetPriceEvents())

	m.Reset()
	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
