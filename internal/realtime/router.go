// Package realtime fans conversation events out from the broker to
// in-process listeners. One consumer goroutine per conversation keeps
// delivery ordered; listeners attach and detach through handles.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"teamchat/internal/models"
	"teamchat/internal/observability"
)

// Stream is the broker side of the router. Subscribe opens a consumer for
// one conversation key; the returned channel closes when the consumer dies.
type Stream interface {
	Subscribe(ctx context.Context, key string) (<-chan models.Event, func() error, error)
}

// Listener receives every event for a subscribed conversation, in order.
type Listener func(models.Event)

// Handle identifies one listener registration. Returned by Subscribe,
// consumed by Unsubscribe.
type Handle struct {
	key string
	id  string
}

type subscription struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	cancel    context.CancelFunc
}

// deliver snapshots the listener set and invokes callbacks with no lock
// held: a listener may re-enter the router, e.g. unsubscribing its room
// after pruning a dead connection.
func (s *subscription) deliver(event models.Event) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Router multiplexes broker subscriptions across listeners. The first
// listener for a conversation opens the broker consumer, the last one out
// closes it.
type Router struct {
	stream     Stream
	retryDelay time.Duration
	maxRetries int

	mu   sync.Mutex
	subs map[string]*subscription
	ctx  context.Context
	stop context.CancelFunc

	log *logrus.Entry
}

// NewRouter builds a Router with the given reconnect policy.
func NewRouter(stream Stream, retryDelay time.Duration, maxRetries int) *Router {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 12
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		stream:     stream,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		subs:       map[string]*subscription{},
		ctx:        ctx,
		stop:       cancel,
		log:        logrus.WithField("component", "realtime"),
	}
}

// Subscribe registers a listener for a conversation key. Subscriptions are
// deduplicated per key: concurrent listeners share one broker consumer.
func (r *Router) Subscribe(key string, listener Listener) Handle {
	handle := Handle{key: key, id: uuid.NewString()}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		subCtx, cancel := context.WithCancel(r.ctx)
		sub = &subscription{listeners: map[string]Listener{}, cancel: cancel}
		r.subs[key] = sub
		go r.run(subCtx, key, sub)
	}

	sub.mu.Lock()
	sub.listeners[handle.id] = listener
	sub.mu.Unlock()
	return handle
}

// Unsubscribe detaches a listener. The broker consumer is released when the
// last listener for the conversation leaves.
func (r *Router) Unsubscribe(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[handle.key]
	if !ok {
		return
	}

	sub.mu.Lock()
	delete(sub.listeners, handle.id)
	remaining := len(sub.listeners)
	sub.mu.Unlock()

	if remaining == 0 {
		sub.cancel()
		delete(r.subs, handle.key)
	}
}

// Close tears down every subscription.
func (r *Router) Close() {
	r.stop()
	r.mu.Lock()
	r.subs = map[string]*subscription{}
	r.mu.Unlock()
}

// run owns the broker consumer for one conversation. It resubscribes with a
// fixed delay after failures; after maxRetries consecutive failures it
// delivers a terminal subscription_failed event and exits.
func (r *Router) run(ctx context.Context, key string, sub *subscription) {
	log := r.log.WithField("conversation", key)
	retries := 0

	for {
		if ctx.Err() != nil {
			return
		}

		events, release, err := r.stream.Subscribe(ctx, key)
		if err != nil {
			retries++
			observability.IncSubscriptionRetry()
			if retries > r.maxRetries {
				log.WithError(err).Error("subscription abandoned after retries exhausted")
				sub.deliver(models.Event{
					Type:         models.EventSubscriptionFailed,
					Conversation: key,
					Reason:       fmt.Sprintf("subscription failed after %d retries", r.maxRetries),
				})
				r.drop(key, sub)
				return
			}
			log.WithError(err).WithField("retry", retries).Warn("subscribe failed, retrying")
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		retries = 0
		r.consume(ctx, events, sub)
		_ = release()

		if ctx.Err() != nil {
			return
		}
		log.Warn("consumer closed, resubscribing")
	}
}

func (r *Router) consume(ctx context.Context, events <-chan models.Event, sub *subscription) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			sub.deliver(event)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) drop(key string, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.subs[key]; ok && current == sub {
		sub.cancel()
		delete(r.subs, key)
	}
}
