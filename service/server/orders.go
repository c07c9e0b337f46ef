package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/wldsell/service/commission"
	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/brojonat/wldsell/service/sell"
)

// handleCreateOrder returns a handler that records an order for a confirmed payment.
// POST /api/orders
//
// Commission and net amount are recomputed from the amount and the price
// snapshot; values sent by the caller are ignored.
func handleCreateOrder(store Store, schedule commission.Schedule, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sell.Order
		if err := decodeJSON(w, r, &req); err != nil {
			logger.DebugContext(r.Context(), "failed to decode order", "error", err)
			writeDecodeError(w, err)
			return
		}

		params, err := orderParams(req, schedule)
		if err != nil {
			logger.DebugContext(r.Context(), "invalid order", "reference", req.Reference, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		order, err := store.CreateOrder(r.Context(), params)
		switch {
		case errors.Is(err, db.ErrReferenceNotFound):
			writeError(w, "payment reference not found", http.StatusNotFound)
			return
		case errors.Is(err, db.ErrReferenceNotConfirmed):
			writeError(w, "payment reference not confirmed", http.StatusConflict)
			return
		case errors.Is(err, db.ErrOrderExists):
			writeError(w, "order already recorded for this payment", http.StatusConflict)
			return
		case err != nil:
			logger.ErrorContext(r.Context(), "failed to create order",
				"reference", params.Reference,
				"username", params.Username,
				"error", err,
			)
			writeError(w, "failed to create order", http.StatusInternalServerError)
			return
		}

		if m != nil {
			m.RecordOrderCreated(order.PaymentMethod, order.Amount.InexactFloat64())
		}
		if publisher != nil {
			if err := publisher.PublishOrder(r.Context(), natspkg.FromDBOrder(order)); err != nil {
				logger.WarnContext(r.Context(), "failed to publish order event", "order_id", order.ID, "error", err)
			}
		}

		logger.InfoContext(r.Context(), "order recorded",
			"order_id", order.ID,
			"reference", order.Reference,
			"username", order.Username,
			"payment_method", order.PaymentMethod,
			"amount", order.Amount.String(),
			"net_amount", order.NetAmount.String(),
		)
		writeJSON(w, orderToResponse(order), http.StatusCreated)
	})
}

// orderParams validates an order request with the sell form rules and
// prices it with schedule.
func orderParams(req sell.Order, schedule commission.Schedule) (db.CreateOrderParams, error) {
	if err := validateReference(req.Reference); err != nil {
		return db.CreateOrderParams{}, err
	}
	if err := sell.ValidateSeller(sell.User{Username: req.Username, Email: req.Email}); err != nil {
		return db.CreateOrderParams{}, err
	}
	if err := sell.ValidateSale(req.Amount, req.WLDPrice); err != nil {
		return db.CreateOrderParams{}, err
	}
	if req.Status != "" && req.Status != sell.StatusPending {
		return db.CreateOrderParams{}, errorf("new orders must have status %q", sell.StatusPending)
	}

	dest := sell.Destination{
		BankName:      strings.TrimSpace(req.BankName),
		FullName:      strings.TrimSpace(req.FullName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		PayPalEmail:   strings.TrimSpace(req.PayPalEmail),
	}
	if err := dest.Validate(req.PaymentMethod); err != nil {
		return db.CreateOrderParams{}, err
	}

	quote := schedule.Calculate(req.Amount, req.WLDPrice)
	return db.CreateOrderParams{
		Reference:     req.Reference,
		Username:      strings.TrimSpace(req.Username),
		Email:         req.Email,
		Amount:        quote.Amount,
		PaymentMethod: string(req.PaymentMethod),
		BankName:      dest.BankName,
		FullName:      dest.FullName,
		AccountNumber: dest.AccountNumber,
		PayPalEmail:   dest.PayPalEmail,
		WLDPrice:      quote.Price,
		Commission:    quote.Commission,
		NetAmount:     quote.NetAmount,
	}, nil
}

// handleListOrders returns a handler that lists a seller's orders, newest first.
// GET /api/orders?username=NAME&status=S&limit=N&offset=N
func handleListOrders(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		username := query.Get("username")
		if err := validateUsername(username); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		status := query.Get("status")
		switch sell.OrderStatus(status) {
		case "", sell.StatusPending, sell.StatusConfirmed, sell.StatusFailed:
		default:
			writeError(w, "invalid status parameter", http.StatusBadRequest)
			return
		}

		limit, offset, err := parsePage(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		orders, err := store.ListOrders(r.Context(), db.ListOrdersParams{
			Username: username,
			Status:   status,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list orders", "username", username, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]sell.Order, len(orders))
		for i, o := range orders {
			resp[i] = orderToResponse(o)
		}

		writeJSON(w, map[string]interface{}{
			"orders": resp,
			"count":  len(resp),
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

// orderToResponse converts a stored order to its wire format.
func orderToResponse(o *db.Order) sell.Order {
	return sell.Order{
		ID:            o.ID,
		Reference:     o.Reference,
		Username:      o.Username,
		Email:         o.Email,
		Amount:        o.Amount,
		PaymentMethod: sell.PaymentMethod(o.PaymentMethod),
		BankName:      o.BankName,
		FullName:      o.FullName,
		AccountNumber: o.AccountNumber,
		PayPalEmail:   o.PayPalEmail,
		WLDPrice:      o.WLDPrice,
		Commission:    o.Commission,
		NetAmount:     o.NetAmount,
		Status:        sell.OrderStatus(o.Status),
		Timestamp:     o.CreatedAt,
	}
}
