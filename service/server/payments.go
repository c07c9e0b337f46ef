package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/brojonat/wldsell/service/worldapp"
	"github.com/google/uuid"
)

// Confirmation results, also used as the metrics label.
const (
	confirmSuccess          = "success"
	confirmNotSuccess       = "payload_not_success"
	confirmUnknownReference = "unknown_reference"
	confirmReferenceUsed    = "reference_used"
	confirmReferenceExpired = "reference_expired"
	confirmTxNotFound       = "transaction_not_found"
	confirmTxUsed           = "transaction_used"
	confirmMismatch         = "reference_mismatch"
	confirmTxFailed         = "transaction_failed"
	confirmError            = "error"
)

type confirmResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// newReferenceID returns a random 32-character hex id.
func newReferenceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// handleInitiatePayment returns a handler that issues a single-use payment reference.
// POST /api/initiate-payment
func handleInitiatePayment(store Store, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newReferenceID()

		ref, err := store.CreateReference(r.Context(), id, ttl)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create payment reference", "error", err)
			writeError(w, "failed to create payment reference", http.StatusInternalServerError)
			return
		}
		if m != nil {
			m.RecordReferenceIssued()
		}

		logger.InfoContext(r.Context(), "payment reference issued",
			"reference", ref.ID,
			"expires_at", ref.ExpiresAt,
		)
		writeJSON(w, map[string]string{"id": ref.ID}, http.StatusOK)
	})
}

// handleConfirmPayment returns a handler that checks a wallet final payload
// against the Developer Portal and consumes its reference.
// POST /api/confirm-payment
func handleConfirmPayment(store Store, verifier TransactionVerifier, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload sell.FinalPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			logger.DebugContext(r.Context(), "failed to decode confirm payload", "error", err)
			writeDecodeError(w, err)
			return
		}

		ctx := r.Context()
		log := logger.With("reference", payload.Reference, "transaction_id", payload.TransactionID)

		reject := func(result, reason string) {
			if m != nil {
				m.RecordConfirmation(result)
			}
			log.InfoContext(ctx, "payment not confirmed", "result", result)
			writeJSON(w, confirmResponse{Success: false, Reason: reason}, http.StatusOK)
		}
		fail := func(msg string, err error, status int) {
			if m != nil {
				m.RecordConfirmation(confirmError)
			}
			log.ErrorContext(ctx, msg, "error", err)
			writeError(w, msg, status)
		}

		if !payload.Succeeded() {
			reject(confirmNotSuccess, "payment status is not success")
			return
		}
		if err := validateReference(payload.Reference); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload.TransactionID == "" {
			writeError(w, "transaction_id is required", http.StatusBadRequest)
			return
		}

		ref, err := store.GetReference(ctx, payload.Reference)
		if errors.Is(err, db.ErrReferenceNotFound) {
			reject(confirmUnknownReference, "unknown payment reference")
			return
		}
		if err != nil {
			fail("failed to load payment reference", err, http.StatusInternalServerError)
			return
		}
		if ok, result, reason := referenceUsable(ref, time.Now()); !ok {
			reject(result, reason)
			return
		}

		tx, err := verifier.GetTransaction(ctx, payload.TransactionID)
		if errors.Is(err, worldapp.ErrTransactionNotFound) {
			reject(confirmTxNotFound, "transaction not found")
			return
		}
		if err != nil {
			fail("failed to verify transaction", err, http.StatusBadGateway)
			return
		}
		if tx.Reference != payload.Reference {
			log.WarnContext(ctx, "transaction reference mismatch", "transaction_reference", tx.Reference)
			reject(confirmMismatch, "transaction does not match reference")
			return
		}
		if tx.Failed() {
			reject(confirmTxFailed, "transaction failed")
			return
		}

		confirmed, err := store.ConfirmReference(ctx, payload.Reference, payload.TransactionID)
		switch {
		case errors.Is(err, db.ErrReferenceConsumed):
			reject(confirmReferenceUsed, "payment reference already used")
			return
		case errors.Is(err, db.ErrReferenceExpired):
			reject(confirmReferenceExpired, "payment reference expired")
			return
		case errors.Is(err, db.ErrReferenceNotFound):
			reject(confirmUnknownReference, "unknown payment reference")
			return
		case errors.Is(err, db.ErrTransactionUsed):
			reject(confirmTxUsed, "transaction already used")
			return
		case err != nil:
			fail("failed to confirm payment reference", err, http.StatusInternalServerError)
			return
		}

		if m != nil {
			m.RecordConfirmation(confirmSuccess)
		}
		publishPayment(ctx, publisher, confirmed, log)

		log.InfoContext(ctx, "payment confirmed", "transaction_status", tx.TransactionStatus)
		writeJSON(w, confirmResponse{Success: true}, http.StatusOK)
	})
}

// referenceUsable reports whether ref can still be confirmed at now.
func referenceUsable(ref *db.Reference, now time.Time) (ok bool, result, reason string) {
	switch {
	case ref.Status == db.ReferenceConfirmed:
		return false, confirmReferenceUsed, "payment reference already used"
	case ref.Status == db.ReferenceExpired || !now.Before(ref.ExpiresAt):
		return false, confirmReferenceExpired, "payment reference expired"
	}
	return true, "", ""
}

func publishPayment(ctx context.Context, publisher natspkg.Publisher, ref *db.Reference, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	// The reference is already consumed; a lost event is logged, not fatal.
	if err := publisher.PublishPayment(ctx, natspkg.FromDBReference(ref, natspkg.PaymentConfirmed)); err != nil {
		logger.WarnContext(ctx, "failed to publish payment event", "error", err)
	}
}
