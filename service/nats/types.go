package nats

import (
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/price"
	"github.com/shopspring/decimal"
)

// Subjects published on the SELL_EVENTS stream.
const (
	SubjectPrice            = "sell.price"
	SubjectOrderCreated     = "sell.orders.created"
	SubjectPaymentConfirmed = "sell.payments.confirmed"
	SubjectPaymentOrphaned  = "sell.payments.orphaned"
)

// PriceEvent is a live price tick.
type PriceEvent struct {
	Symbol      string          `json:"symbol"`
	Currency    string          `json:"currency"`
	Price       decimal.Decimal `json:"price"`
	FetchedAt   time.Time       `json:"fetched_at"`
	PublishedAt time.Time       `json:"published_at"`
}

// OrderEvent announces a recorded order. Payout details are left out.
type OrderEvent struct {
	OrderID       int64           `json:"order_id"`
	Reference     string          `json:"reference"`
	Username      string          `json:"username"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	WLDPrice      decimal.Decimal `json:"wld_price"`
	Commission    decimal.Decimal `json:"commission"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// PaymentEvent announces a confirmed or orphaned payment.
type PaymentEvent struct {
	Reference     string     `json:"reference"`
	TransactionID string     `json:"transaction_id"`
	Kind          string     `json:"kind"` // confirmed, orphaned
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	PublishedAt   time.Time  `json:"published_at"`
}

// Payment event kinds.
const (
	PaymentConfirmed = "confirmed"
	PaymentOrphaned  = "orphaned"
)

// Subject returns the subject a payment event is published on.
func (e *PaymentEvent) Subject() string {
	if e.Kind == PaymentOrphaned {
		return SubjectPaymentOrphaned
	}
	return SubjectPaymentConfirmed
}

// FromPrice converts a price observation to an event.
func FromPrice(p price.Price) *PriceEvent {
	return &PriceEvent{
		Symbol:      p.Symbol,
		Currency:    p.Currency,
		Price:       p.Price,
		FetchedAt:   p.FetchedAt,
		PublishedAt: time.Now().UTC(),
	}
}

// FromDBOrder converts a stored order to an event.
func FromDBOrder(o *db.Order) *OrderEvent {
	return &OrderEvent{
		OrderID:       o.ID,
		Reference:     o.Reference,
		Username:      o.Username,
		Amount:        o.Amount,
		PaymentMethod: o.PaymentMethod,
		WLDPrice:      o.WLDPrice,
		Commission:    o.Commission,
		NetAmount:     o.NetAmount,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	}
}

// FromDBReference converts a stored reference to a payment event of kind.
func FromDBReference(r *db.Reference, kind string) *PaymentEvent {
	event := &PaymentEvent{
		Reference:   r.ID,
		Kind:        kind,
		ConfirmedAt: r.ConfirmedAt,
		PublishedAt: time.Now().UTC(),
	}
	if r.TransactionID != nil {
		event.TransactionID = *r.TransactionID
	}
	return event
}
