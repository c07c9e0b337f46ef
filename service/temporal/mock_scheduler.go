package temporal

import (
	"context"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	exists    bool
	interval  time.Duration
	input     SweepInput
	calls     int
	ensureErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// EnsureSweepSchedule records the requested schedule.
func (m *MockScheduler) EnsureSweepSchedule(ctx context.Context, interval time.Duration, input SweepInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.ensureErr != nil {
		return m.ensureErr
	}
	m.exists = true
	m.interval = interval
	m.input = input
	return nil
}

// SetEnsureError makes EnsureSweepSchedule return an error.
func (m *MockScheduler) SetEnsureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureErr = err
}

// Schedule returns the recorded schedule and whether one exists.
func (m *MockScheduler) Schedule() (time.Duration, SweepInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.input, m.exists
}

// Calls returns how many times EnsureSweepSchedule was called.
func (m *MockScheduler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
