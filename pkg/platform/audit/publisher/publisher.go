// Package publisher emits audit events to a store, synchronously by default
// or through a buffered channel when configured for async mode.
package publisher

import (
	"context"
	"sync"
	"time"

	id "civreg/pkg/domain"
	audit "civreg/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store audit.Store

	inbox chan audit.Event
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous emission through a
// buffered channel. Emission never blocks the request path; a full buffer
// falls back to a synchronous append.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records one audit event. A zero timestamp is stamped here so call
// sites stay lean.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		// Buffer full: degrade to synchronous rather than dropping the event.
		return p.store.Append(ctx, event)
	}
}

// List returns the audit trail of one identity.
func (p *Publisher) List(ctx context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	return p.store.ListByIdentity(ctx, identityID)
}

// Close stops the async drain goroutine after flushing buffered events.
// Safe to call on a synchronous publisher and safe to call twice.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		// Best effort: the store is the durability boundary, not the channel.
		_ = p.store.Append(context.Background(), event)
	}
}
