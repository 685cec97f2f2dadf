package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrQueueClosed = errors.New("event queue is closed")

// Queue hands events to a single worker so they reach the underlying
// publisher in commit order. Publish only blocks while the buffer is full.
type Queue struct {
	pub     Publisher
	timeout time.Duration
	ch      chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewQueue(pub Publisher, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		pub:     pub,
		timeout: 5 * time.Second,
		ch:      make(chan Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for evt := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.pub.Publish(ctx, evt); err != nil {
			log.Error().Err(err).Str("event", evt.Type).Uint("entity_id", evt.EntityID).Msg("failed to publish event")
		}
		cancel()
	}
}

func (q *Queue) Publish(ctx context.Context, evt Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until the queued ones are published.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	<-q.done
}
