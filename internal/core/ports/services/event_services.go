package services

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// EventPublisher delivers one staged event to the broker. A nil return means
// the broker durably accepted the message (confirm received). The publisher
// must not reorder same-key events; retry policy lives with the caller.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.OutboxEvent) error
}
