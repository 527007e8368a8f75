package consumers

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flanux/ledger-core/internal/core/domain"
)

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Record(ctx context.Context, evt domain.TransactionEvent) (bool, error) {
	args := m.Called(ctx, evt)
	return args.Bool(0), args.Error(1)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Record(ctx context.Context, evt domain.TransactionEvent, message string) (bool, error) {
	args := m.Called(ctx, evt, message)
	return args.Bool(0), args.Error(1)
}

func completedEvent() domain.TransactionEvent {
	return domain.TransactionEvent{
		EventID:           "evt-1",
		EventType:         domain.EventTransactionCompleted,
		TransactionID:     "txn-1",
		TransactionNumber: "TXN17000000000001",
		Type:              domain.Transfer,
		Status:            domain.StatusCompleted,
		Amount:            decimal.NewFromInt(50),
		CurrencyCode:      "USD",
	}
}

func TestAuditConsumerRecordsEvent(t *testing.T) {
	repo := new(MockAuditRepository)
	consumer := NewAuditConsumer(repo)
	evt := completedEvent()

	repo.On("Record", mock.Anything, evt).Return(true, nil)

	err := consumer.HandleEvent(context.Background(), evt)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuditConsumerSkipsDuplicateDelivery(t *testing.T) {
	repo := new(MockAuditRepository)
	consumer := NewAuditConsumer(repo)
	evt := completedEvent()

	repo.On("Record", mock.Anything, evt).Return(false, nil)

	err := consumer.HandleEvent(context.Background(), evt)

	require.NoError(t, err)
}

func TestAuditConsumerPropagatesRepositoryError(t *testing.T) {
	repo := new(MockAuditRepository)
	consumer := NewAuditConsumer(repo)
	evt := completedEvent()

	repo.On("Record", mock.Anything, evt).Return(false, errors.New("db gone"))

	err := consumer.HandleEvent(context.Background(), evt)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestNotificationConsumerCompletedMessage(t *testing.T) {
	repo := new(MockNotificationRepository)
	consumer := NewNotificationConsumer(repo)
	evt := completedEvent()

	var captured string
	repo.On("Record", mock.Anything, evt, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { captured = args.String(2) }).
		Return(true, nil)

	err := consumer.HandleEvent(context.Background(), evt)

	require.NoError(t, err)
	assert.Contains(t, captured, "has completed")
	assert.Contains(t, captured, "50 USD")
	assert.Contains(t, captured, evt.TransactionNumber)
}

func TestNotificationConsumerFailedMessageIncludesReason(t *testing.T) {
	repo := new(MockNotificationRepository)
	consumer := NewNotificationConsumer(repo)

	evt := completedEvent()
	evt.EventType = domain.EventTransactionFailed
	evt.Status = domain.StatusFailed
	evt.FailureReason = "insufficient funds"

	var captured string
	repo.On("Record", mock.Anything, evt, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { captured = args.String(2) }).
		Return(true, nil)

	err := consumer.HandleEvent(context.Background(), evt)

	require.NoError(t, err)
	assert.Contains(t, captured, "failed: insufficient funds")
}

func TestNotificationConsumerSkipsDuplicateDelivery(t *testing.T) {
	repo := new(MockNotificationRepository)
	consumer := NewNotificationConsumer(repo)
	evt := completedEvent()

	repo.On("Record", mock.Anything, evt, mock.AnythingOfType("string")).Return(false, nil)

	err := consumer.HandleEvent(context.Background(), evt)

	require.NoError(t, err)
}
