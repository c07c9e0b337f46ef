package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	prices       []*PriceEvent
	orders       []*OrderEvent
	payments     []*PaymentEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishPrice records the event and returns any configured error.
func (m *MockPublisher) PublishPrice(ctx context.Context, event *PriceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.prices = append(m.prices, event)
	return nil
}

// PublishOrder records the event and returns any configured error.
func (m *MockPublisher) PublishOrder(ctx context.Context, event *OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.orders = append(m.orders, event)
	return nil
}

// PublishPayment records the event and returns any configured error.
func (m *MockPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.payments = append(m.payments, event)
	return nil
}

// PublishPaymentBatch records the events and returns any configured error.
func (m *MockPublisher) PublishPaymentBatch(ctx context.Context, events []*PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.payments = append(m.payments, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPriceEvents returns a copy of the published price events.
func (m *MockPublisher) GetPriceEvents() []*PriceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*PriceEvent, len(m.prices))
	copy(events, m.prices)
	return events
}

// GetOrderEvents returns a copy of the published order events.
func (m *MockPublisher) GetOrderEvents() []*OrderEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*OrderEvent, len(m.orders))
	copy(events, m.orders)
	return events
}

// GetPaymentEvents returns published payment events of kind, or all when kind is empty.
func (m *MockPublisher) GetPaymentEvents(kind string) []*PaymentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*PaymentEvent, 0, len(m.payments))
	for _, event := range m.payments {
		if kind == "" || event.Kind == kind {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = nil
	m.orders = nil
	m.payments = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
