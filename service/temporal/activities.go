package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
)

const defaultSweepBatchSize = 100

// SweepInput configures one sweep run.
type SweepInput struct {
	OrphanGracePeriod time.Duration `json:"orphan_grace_period"`
	BatchSize         int32         `json:"batch_size"`
}

func (in SweepInput) batchSize() int32 {
	if in.BatchSize <= 0 {
		return defaultSweepBatchSize
	}
	return in.BatchSize
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Expired  int64     `json:"expired"`
	Orphaned int       `json:"orphaned"`
	Reported int64     `json:"reported"`
	SweptAt  time.Time `json:"swept_at"`
}

// ExpireReferencesResult contains the result of the ExpireReferences activity.
type ExpireReferencesResult struct {
	Expired int64 `json:"expired"`
}

// FindOrphanedPaymentsInput contains parameters for the FindOrphanedPayments activity.
type FindOrphanedPaymentsInput struct {
	GracePeriod time.Duration `json:"grace_period"`
	Limit       int32         `json:"limit"`
}

// OrphanedPayment is a confirmed payment that never got an order.
type OrphanedPayment struct {
	Reference     string     `json:"reference"`
	TransactionID string     `json:"transaction_id"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// FindOrphanedPaymentsResult contains the result of the FindOrphanedPayments activity.
type FindOrphanedPaymentsResult struct {
	Payments []OrphanedPayment `json:"payments"`
}

// ReportOrphanedPaymentsInput contains parameters for the ReportOrphanedPayments activity.
type ReportOrphanedPaymentsInput struct {
	Payments []OrphanedPayment `json:"payments"`
}

// ReportOrphanedPaymentsResult contains the result of the ReportOrphanedPayments activity.
type ReportOrphanedPaymentsResult struct {
	Reported int64 `json:"reported"`
}

// Sweep run statuses reported by RecordSweep.
const (
	SweepStatusSuccess = "success"
	SweepStatusError   = "error"
)

// RecordSweepInput contains parameters for the RecordSweep activity.
type RecordSweepInput struct {
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	ExpireReferences(ctx context.Context) (int64, error)
	ListOrphanedReferences(ctx context.Context, grace time.Duration, limit int32) ([]*db.Reference, error)
	MarkOrphansReported(ctx context.Context, ids []string) (int64, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishPaymentBatch(ctx context.Context, events []*natspkg.PaymentEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(store StoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// ExpireReferences marks issued references past their expiry as expired.
func (a *Activities) ExpireReferences(ctx context.Context) (*ExpireReferencesResult, error) {
	defer a.observe("ExpireReferences", time.Now())

	n, err := a.store.ExpireReferences(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to expire references", "error", err)
		return nil, fmt.Errorf("failed to expire references: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordReferencesExpired(int(n))
	}

	a.logger.DebugContext(ctx, "expired references", "count", n)
	return &ExpireReferencesResult{Expired: n}, nil
}

// FindOrphanedPayments lists confirmed references older than the grace
// period that have no order and were not reported yet.
func (a *Activities) FindOrphanedPayments(ctx context.Context, input FindOrphanedPaymentsInput) (*FindOrphanedPaymentsResult, error) {
	defer a.observe("FindOrphanedPayments", time.Now())

	refs, err := a.store.ListOrphanedReferences(ctx, input.GracePeriod, input.Limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list orphaned references", "error", err)
		return nil, fmt.Errorf("failed to list orphaned references: %w", err)
	}

	payments := make([]OrphanedPayment, 0, len(refs))
	for _, r := range refs {
		p := OrphanedPayment{Reference: r.ID, ConfirmedAt: r.ConfirmedAt}
		if r.TransactionID != nil {
			p.TransactionID = *r.TransactionID
		}
		payments = append(payments, p)
	}

	return &FindOrphanedPaymentsResult{Payments: payments}, nil
}

// ReportOrphanedPayments publishes one sell.payments.orphaned event per
// payment and stamps the references so they are reported once.
func (a *Activities) ReportOrphanedPayments(ctx context.Context, input ReportOrphanedPaymentsInput) (*ReportOrphanedPaymentsResult, error) {
	defer a.observe("ReportOrphanedPayments", time.Now())

	if len(input.Payments) == 0 {
		return &ReportOrphanedPaymentsResult{}, nil
	}

	events := make([]*natspkg.PaymentEvent, 0, len(input.Payments))
	ids := make([]string, 0, len(input.Payments))
	now := time.Now().UTC()
	for _, p := range input.Payments {
		a.logger.WarnContext(ctx, "confirmed payment has no order",
			"reference", p.Reference,
			"transaction_id", p.TransactionID,
			"confirmed_at", p.ConfirmedAt,
		)
		events = append(events, &natspkg.PaymentEvent{
			Reference:     p.Reference,
			TransactionID: p.TransactionID,
			Kind:          natspkg.PaymentOrphaned,
			ConfirmedAt:   p.ConfirmedAt,
			PublishedAt:   now,
		})
		ids = append(ids, p.Reference)
	}

	if a.publisher != nil {
		if err := a.publisher.PublishPaymentBatch(ctx, events); err != nil {
			return nil, fmt.Errorf("failed to publish orphaned payments: %w", err)
		}
	}

	n, err := a.store.MarkOrphansReported(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to mark orphans reported: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordOrphanedPayments(int(n))
	}

	return &ReportOrphanedPaymentsResult{Reported: n}, nil
}

// RecordSweep records the duration of one sweep run.
func (a *Activities) RecordSweep(ctx context.Context, input RecordSweepInput) error {
	if a.metrics != nil {
		a.metrics.RecordSweepDuration(input.Status, input.Duration.Seconds())
	}
	a.logger.DebugContext(ctx, "sweep finished", "status", input.Status, "duration", input.Duration)
	return nil
}
