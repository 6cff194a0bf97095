package capability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"meatycapture/internal/logger"
)

type Event struct {
	Type      string
	Timestamp time.Time
	Data      map[string]interface{}
}

type EventHandler interface {
	Handle(event Event)
	GetID() string
}

type handlerFunc struct {
	id string
	fn func(Event)
}

func (h handlerFunc) Handle(event Event) { h.fn(event) }
func (h handlerFunc) GetID() string      { return h.id }

// HandlerFunc adapts fn to an EventHandler with a fresh id.
func HandlerFunc(fn func(Event)) EventHandler {
	return handlerFunc{id: uuid.NewString(), fn: fn}
}

// Events delivers plugin notifications to frontend subscribers on a single
// worker goroutine. Publish never blocks; events are dropped when the
// buffer is full or the bus is stopped; drops are logged and counted.
type Events struct {
	subscribers map[string][]EventHandler
	logger      logger.Logger
	dropped     atomic.Uint64
	mu          sync.RWMutex
	buffer      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewEvents(bufferSize int, log logger.Logger) *Events {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &Events{
		subscribers: make(map[string][]EventHandler),
		logger:      log,
		buffer:      make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	bus.startWorker()
	return bus
}

func (b *Events) Publish(event Event) {
	event.Timestamp = time.Now()

	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.buffer <- event:
	default:
		total := b.dropped.Add(1)
		b.logger.Warning("Events", "event dropped, buffer full", map[string]interface{}{
			"type":    event.Type,
			"dropped": total,
		})
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *Events) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Events) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

func (b *Events) Unsubscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[eventType]
	for i, h := range handlers {
		if h.GetID() == handler.GetID() {
			b.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
}

func (b *Events) Shutdown() {
	b.cancel()
	b.wg.Wait()
}

func (b *Events) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case event := <-b.buffer:
				b.dispatch(event)
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

func (b *Events) dispatch(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			// a misbehaving subscriber must not stop delivery
			defer func() { _ = recover() }()
			handler.Handle(event)
		}()
	}
}
