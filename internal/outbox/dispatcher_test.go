package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flanux/ledger-core/internal/core/domain"
)

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockOutboxRepository) RecordFailure(ctx context.Context, eventID string, lastError string) error {
	args := m.Called(ctx, eventID, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, eventID string, lastError string) error {
	args := m.Called(ctx, eventID, lastError)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt domain.OutboxEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func newTestDispatcher(repo *MockOutboxRepository, pub *MockPublisher) *Dispatcher {
	d := NewDispatcher(repo, pub, Options{
		Interval:    10 * time.Millisecond,
		BatchSize:   10,
		MaxAttempts: 3,
	}, slog.Default())
	d.sleep = func(ctx context.Context, delay time.Duration) {}
	return d
}

func pendingEvent(id string, attempts int) domain.OutboxEvent {
	return domain.OutboxEvent{
		EventID:   id,
		EventType: domain.EventTransactionCompleted,
		Payload:   []byte(`{}`),
		Status:    domain.OutboxStatusPending,
		Attempts:  attempts,
	}
}

func TestDrainPublishesInCommitOrder(t *testing.T) {
	repo := new(MockOutboxRepository)
	pub := new(MockPublisher)
	d := newTestDispatcher(repo, pub)

	first := pendingEvent("evt-1", 0)
	second := pendingEvent("evt-2", 0)

	repo.On("ListPending", mock.Anything, 10).Return([]domain.OutboxEvent{first, second}, nil)
	pub.On("Publish", mock.Anything, first).Return(nil)
	pub.On("Publish", mock.Anything, second).Return(nil)
	repo.On("MarkPublished", mock.Anything, "evt-1").Return(nil)
	repo.On("MarkPublished", mock.Anything, "evt-2").Return(nil)

	err := d.Drain(context.Background())

	require.NoError(t, err)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	repo := new(MockOutboxRepository)
	pub := new(MockPublisher)
	d := newTestDispatcher(repo, pub)

	first := pendingEvent("evt-1", 0)
	second := pendingEvent("evt-2", 0)

	repo.On("ListPending", mock.Anything, 10).Return([]domain.OutboxEvent{first, second}, nil)
	pub.On("Publish", mock.Anything, first).Return(errors.New("broker down"))
	repo.On("RecordFailure", mock.Anything, "evt-1", "broker down").Return(nil)

	err := d.Drain(context.Background())

	require.NoError(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, second)
	repo.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestDrainParksEventAfterRetryBudget(t *testing.T) {
	repo := new(MockOutboxRepository)
	pub := new(MockPublisher)
	d := newTestDispatcher(repo, pub)

	exhausted := pendingEvent("evt-1", 2)

	repo.On("ListPending", mock.Anything, 10).Return([]domain.OutboxEvent{exhausted}, nil)
	pub.On("Publish", mock.Anything, exhausted).Return(errors.New("broker down"))
	repo.On("MarkFailed", mock.Anything, "evt-1", "broker down").Return(nil)

	err := d.Drain(context.Background())

	require.NoError(t, err)
	repo.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestDrainPropagatesListError(t *testing.T) {
	repo := new(MockOutboxRepository)
	pub := new(MockPublisher)
	d := newTestDispatcher(repo, pub)

	repo.On("ListPending", mock.Anything, 10).Return(nil, errors.New("db gone"))

	err := d.Drain(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}
