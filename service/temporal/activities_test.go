package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ExpireReferences(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) ListOrphanedReferences(ctx context.Context, grace time.Duration, limit int32) ([]*db.Reference, error) {
	args := m.Called(ctx, grace, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Reference), args.Error(1)
}

func (m *MockStore) MarkOrphansReported(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func TestActivities_ExpireReferences(t *testing.T) {
	store := new(MockStore)
	store.On("ExpireReferences", mock.Anything).Return(int64(4), nil)

	acts := NewActivities(store, nil, nil, slog.Default())
	result, err := acts.ExpireReferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Expired)

	store.AssertExpectations(t)
}

func TestActivities_ExpireReferences_Error(t *testing.T) {
	store := new(MockStore)
	store.On("ExpireReferences", mock.Anything).Return(int64(0), errors.New("db down"))

	_, err := NewActivities(store, nil, nil, nil).ExpireReferences(context.Background())
	assert.Error(t, err)
}

func TestActivities_FindOrphanedPayments(t *testing.T) {
	tx := "tx-1"
	confirmed := time.Now().Add(-time.Hour)

	store := new(MockStore)
	store.On("ListOrphanedReferences", mock.Anything, 15*time.Minute, int32(50)).Return([]*db.Reference{
		{ID: "ref-1", Status: db.ReferenceConfirmed, TransactionID: &tx, ConfirmedAt: &confirmed},
		{ID: "ref-2", Status: db.ReferenceConfirmed},
	}, nil)

	acts := NewActivities(store, nil, nil, nil)
	result, err := acts.FindOrphanedPayments(context.Background(), FindOrphanedPaymentsInput{
		GracePeriod: 15 * time.Minute,
		Limit:       50,
	})
	require.NoError(t, err)
	require.Len(t, result.Payments, 2)
	assert.Equal(t, "tx-1", result.Payments[0].TransactionID)
	assert.Empty(t, result.Payments[1].TransactionID)

	store.AssertExpectations(t)
}

func TestActivities_ReportOrphanedPayments(t *testing.T) {
	store := new(MockStore)
	store.On("MarkOrphansReported", mock.Anything, []string{"ref-1", "ref-2"}).Return(int64(2), nil)
	publisher := natspkg.NewMockPublisher()

	acts := NewActivities(store, publisher, nil, nil)
	result, err := acts.ReportOrphanedPayments(context.Background(), ReportOrphanedPaymentsInput{
		Payments: []OrphanedPayment{
			{Reference: "ref-1", TransactionID: "tx-1"},
			{Reference: "ref-2", TransactionID: "tx-2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Reported)

	events := publisher.GetPaymentEvents(natspkg.PaymentOrphaned)
	require.Len(t, events, 2)
	assert.Equal(t, natspkg.SubjectPaymentOrphaned, events[0].Subject())

	store.AssertExpectations(t)
}

func TestActivities_ReportOrphanedPayments_PublishFails(t *testing.T) {
	store := new(MockStore)
	publisher := natspkg.NewMockPublisher()
	publisher.SetPublishError(errors.New("nats down"))

	acts := NewActivities(store, publisher, nil, nil)
	_, err := acts.ReportOrphanedPayments(context.Background(), ReportOrphanedPaymentsInput{
		Payments: []OrphanedPayment{{Reference: "ref-1"}},
	})
	assert.Error(t, err)

	// Not marked, so the next sweep reports it again.
	store.AssertNotCalled(t, "MarkOrphansReported", mock.Anything, mock.Anything)
}

func TestActivities_ReportOrphanedPayments_Empty(t *testing.T) {
	store := new(MockStore)
	result, err := NewActivities(store, nil, nil, nil).ReportOrphanedPayments(context.Background(), ReportOrphanedPaymentsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Reported)
	store.AssertNotCalled(t, "MarkOrphansReported", mock.Anything, mock.Anything)
}

func TestActivities_RecordSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	acts := NewActivities(new(MockStore), nil, metrics.NewMetrics(reg), slog.Default())

	require.NoError(t, acts.RecordSweep(context.Background(), RecordSweepInput{Status: SweepStatusSuccess, Duration: 2 * time.Second}))
	require.NoError(t, acts.RecordSweep(context.Background(), RecordSweepInput{Status: SweepStatusError, Duration: time.Second}))

	families, err := reg.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, mf := range families {
		if mf.GetName() != "sweep_workflow_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			observed += m.GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), observed)

	// Without a collector the activity is a no-op.
	assert.NoError(t, NewActivities(nil, nil, nil, nil).RecordSweep(context.Background(), RecordSweepInput{Status: SweepStatusSuccess}))
}

func TestMockScheduler(t *testing.T) {
	s := NewMockScheduler()
	require.NoError(t, s.EnsureSweepSchedule(context.Background(), 5*time.Minute, SweepInput{OrphanGracePeriod: time.Minute}))

	interval, input, ok := s.Schedule()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, interval)
	assert.Equal(t, time.Minute, input.OrphanGracePeriod)

	s.SetEnsureError(errors.New("temporal down"))
	assert.Error(t, s.EnsureSweepSchedule(context.Background(), time.Minute, SweepInput{}))
	assert.Equal(t, 2, s.Calls())
}
