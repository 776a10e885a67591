package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowrun/pkg/events"
)

// ListenerBuffer is how many events a slow listener may lag behind before
// events for it are dropped.
const ListenerBuffer = 64

type listener struct {
	executionID string
	ch          chan events.Event
}

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]*listener
	nextID    uint64
	started   bool
	closed    bool
	cancel    context.CancelFunc
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
		listeners:  make(map[uint64]*listener),
	}
}

func (eb *WatermillEventBus) Publish(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, event.GetExecutionID())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.Metadata.Set(events.ExecutionIDMetadataKey, event.GetExecutionID())

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, executionID string) (<-chan events.Event, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil, ErrClosed
	}

	if !eb.started {
		if err := eb.start(); err != nil {
			return nil, err
		}
	}

	id := eb.nextID
	eb.nextID++

	l := &listener{executionID: executionID, ch: make(chan events.Event, ListenerBuffer)}
	eb.listeners[id] = l

	go func() {
		<-ctx.Done()
		eb.remove(id)
	}()

	return l.ch, nil
}

// start opens the single topic subscription shared by all listeners. Callers hold mu.
func (eb *WatermillEventBus) start() error {
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		cancel()

		return err
	}

	eb.cancel = cancel
	eb.started = true

	go func() {
		for msg := range messages {
			eb.dispatch(msg)
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	event, ok := events.New(eventType)
	if !ok {
		eb.logger.Warn("dropping event of unknown type", "event_type", eventType)

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.logger.Warn("dropping malformed event", "event_type", eventType, "error", err)

		return
	}

	executionID := msg.Metadata.Get(events.ExecutionIDMetadataKey)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, l := range eb.listeners {
		if l.executionID != "" && l.executionID != executionID {
			continue
		}

		select {
		case l.ch <- event:
		default:
			eb.logger.Warn("listener is lagging, event dropped", "execution_id", executionID, "event_type", eventType)
		}
	}
}

func (eb *WatermillEventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if l, ok := eb.listeners[id]; ok {
		delete(eb.listeners, id)
		close(l.ch)
	}
}

func (eb *WatermillEventBus) Close() error {
	eb.mu.Lock()

	if eb.closed {
		eb.mu.Unlock()

		return nil
	}

	eb.closed = true

	if eb.cancel != nil {
		eb.cancel()
	}

	for id, l := range eb.listeners {
		delete(eb.listeners, id)
		close(l.ch)
	}

	eb.mu.Unlock()

	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
