// Package bus provides the asynchronous hand-off between pipeline stages.
//
// The bus is in-process but keeps the delivery contract a durable
// transport would give the pipeline: publishing never blocks or fails
// the caller, delivery is at-least-once with bounded redelivery, and a
// handler failure or panic is isolated to that one delivery. Causal
// ordering per interaction is structural rather than enforced here: the
// only producer of reflection.complete for an id is the consumer of
// interaction.complete for the same id.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is a named payload delivered to subscribers. Events are immutable
// once published.
type Event struct {
	Name    string
	Payload any
}

// Handler processes one delivered event. A non-nil error triggers
// redelivery until the attempt budget is exhausted.
type Handler func(ctx context.Context, evt Event) error

// Config tunes delivery behaviour.
type Config struct {
	// Workers is the number of concurrent deliveries per subscription.
	Workers int

	// MaxAttempts bounds deliveries of a single event to a single
	// subscriber. Exhaustion is a terminal, non-fatal drop.
	MaxAttempts int

	// RetryBase is the backoff unit; attempt n waits RetryBase * 2^(n-1).
	RetryBase time.Duration

	// QueueSize is the per-subscription buffer. Publishes that find the
	// buffer full hand the send to a goroutine so the caller never waits.
	QueueSize int
}

// DefaultConfig returns delivery settings suitable for a single process.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		MaxAttempts: 3,
		RetryBase:   250 * time.Millisecond,
		QueueSize:   64,
	}
}

type delivery struct {
	evt     Event
	attempt int
}

type subscription struct {
	name    string
	handler Handler
	queue   chan delivery
}

// Bus is an explicitly constructed, injectable event bus. It owns its
// worker goroutines; Close tears them down. There is no package-level
// instance.
type Bus struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	subs map[string][]*subscription

	wg sync.WaitGroup
}

// New creates a Bus with the given config. Zero-value config fields fall
// back to DefaultConfig.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string][]*subscription),
	}
}

// Subscribe registers a handler for an event name and starts its workers.
// Each subscription consumes independently; a slow or failing handler
// never affects other subscribers.
func (b *Bus) Subscribe(name string, handler Handler) {
	s := &subscription{
		name:    name,
		handler: handler,
		queue:   make(chan delivery, b.cfg.QueueSize),
	}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], s)
	b.mu.Unlock()

	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(s)
	}
}

// Publish delivers the event to every subscription of its name. It is
// fire-and-forget: the caller never blocks on, and never observes the
// outcome of, delivery. Publishing to a name with no subscribers is a
// logged no-op.
func (b *Bus) Publish(name string, payload any) {
	if b.ctx.Err() != nil {
		log.Printf("[BUS] Dropping %s: bus closed", name)
		return
	}

	b.mu.RLock()
	subs := b.subs[name]
	b.mu.RUnlock()

	if len(subs) == 0 {
		log.Printf("[BUS] No subscribers for %s", name)
		return
	}

	evt := Event{Name: name, Payload: payload}
	for _, s := range subs {
		b.enqueue(s, delivery{evt: evt, attempt: 1})
	}
}

// enqueue hands a delivery to a subscription without ever blocking the
// caller. A full buffer spills the send into a goroutine.
func (b *Bus) enqueue(s *subscription, d delivery) {
	select {
	case s.queue <- d:
	default:
		go func() {
			select {
			case s.queue <- d:
			case <-b.ctx.Done():
			}
		}()
	}
}

func (b *Bus) worker(s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case d := <-s.queue:
			b.deliver(s, d)
		}
	}
}

func (b *Bus) deliver(s *subscription, d delivery) {
	err := safeInvoke(b.ctx, s.handler, d.evt)
	if err == nil {
		return
	}

	if d.attempt >= b.cfg.MaxAttempts {
		log.Printf("[BUS] %s delivery failed after %d attempts, dropping: %v", s.name, d.attempt, err)
		return
	}

	backoff := b.cfg.RetryBase << (d.attempt - 1)
	log.Printf("[BUS] %s delivery attempt %d failed, retrying in %s: %v", s.name, d.attempt, backoff, err)

	next := delivery{evt: d.evt, attempt: d.attempt + 1}
	time.AfterFunc(backoff, func() {
		if b.ctx.Err() != nil {
			return
		}
		b.enqueue(s, next)
	})
}

// safeInvoke runs the handler with a panic boundary so a broken handler
// cannot take down the bus or its sibling subscriptions.
func safeInvoke(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

// Close stops delivery and waits for in-flight handlers to return.
// Queued and retry-pending deliveries are discarded.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
