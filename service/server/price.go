package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/wldsell/service/commission"
	"github.com/brojonat/wldsell/service/price"
	"github.com/shopspring/decimal"
)

type priceResponse struct {
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
}

type quoteResponse struct {
	commission.Quote
	Currency  string    `json:"currency"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale,omitempty"`
}

func priceToResponse(p price.Price) priceResponse {
	return priceResponse{
		Symbol:    p.Symbol,
		Currency:  p.Currency,
		Price:     p.Price,
		FetchedAt: p.FetchedAt,
		Stale:     p.Stale,
	}
}

// handleGetPrice returns a handler that serves the current WLD price.
// GET /api/price
func handleGetPrice(source price.Source, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := source.Current(r.Context())
		if err != nil {
			writePriceError(w, r, err, logger)
			return
		}
		writeJSON(w, priceToResponse(p), http.StatusOK)
	})
}

// handleGetQuote returns a handler that prices a sale with the live price.
// GET /api/quote?amount=N
func handleGetQuote(source price.Source, schedule commission.Schedule, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("amount")
		if raw == "" {
			writeError(w, "amount query parameter is required", http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, "invalid amount parameter: must be a number", http.StatusBadRequest)
			return
		}
		if amount.IsNegative() {
			writeError(w, "amount cannot be negative", http.StatusBadRequest)
			return
		}

		p, err := source.Current(r.Context())
		if err != nil {
			writePriceError(w, r, err, logger)
			return
		}

		writeJSON(w, quoteResponse{
			Quote:     schedule.Calculate(amount, p.Price),
			Currency:  p.Currency,
			FetchedAt: p.FetchedAt,
			Stale:     p.Stale,
		}, http.StatusOK)
	})
}

func writePriceError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if errors.Is(err, price.ErrNoPrice) {
		writeError(w, "price not available yet", http.StatusServiceUnavailable)
		return
	}
	logger.ErrorContext(r.Context(), "failed to get price", "error", err)
	writeError(w, "failed to get price", http.StatusBadGateway)
}
