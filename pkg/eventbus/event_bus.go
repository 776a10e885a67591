// Package eventbus publishes execution events and fans them out to listeners.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/flowrun/pkg/events"
)

var ErrClosed = errors.New("event bus is closed")

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type EventSubscriber interface {
	// Subscribe returns the events of one execution, or of every execution when
	// executionID is empty. The channel is closed when ctx is done or the bus closes.
	Subscribe(ctx context.Context, executionID string) (<-chan events.Event, error)
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
