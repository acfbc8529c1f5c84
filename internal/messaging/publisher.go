package messaging

import (
	"context"

	"github.com/feral-file/launch-ledger/internal/domain"
)

// Publisher defines the interface for publishing ledger events to the
// message broker. Events are emitted after the ledger transaction commits;
// a publish failure is logged, never propagated to the caller.
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishEvent publishes a ledger event to the message broker
	PublishEvent(ctx context.Context, event *domain.LedgerEvent) error
	// Close closes the connection
	Close()
}
