// Package events ingests "review submitted" notifications from the ledger
// feed and drives cache invalidation and recomputation.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// ErrQueueFull is returned when the event queue is saturated. The feed is
// at-least-once, so a dropped event is repaired by the next one for the same
// subject or by cache expiry.
var ErrQueueFull = errors.New("event queue full")

// Handler processes one validated review event.
type Handler func(ctx context.Context, event domain.ReviewEvent)

// Listener owns the bounded event queue between the feed bindings (Kafka,
// webhook) and the recomputation pipeline. Events are handed to the handler
// concurrently; per-subject serialization happens downstream in the
// singleflight coordinator.
type Listener struct {
	queue    chan domain.ReviewEvent
	handler  Handler
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	inflight sync.WaitGroup
}

func NewListener(queueSize int, handler Handler) *Listener {
	return &Listener{
		queue:   make(chan domain.ReviewEvent, queueSize),
		handler: handler,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Submit validates and enqueues an event. Validation failures are the
// caller's to report (the webhook returns 400); a full queue drops the
// event.
func (l *Listener) Submit(event domain.ReviewEvent) error {
	if err := event.Validate(); err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("invalid").Inc()
		return err
	}

	select {
	case l.queue <- event:
		metrics.EventQueueDepth.Set(float64(len(l.queue)))
		return nil
	default:
		metrics.EventsDroppedTotal.WithLabelValues("queue_full").Inc()
		slog.Warn("Event queue full, dropping review event",
			"subjectId", event.SubjectID,
			"reviewerId", event.ReviewerID,
		)
		return ErrQueueFull
	}
}

// Start launches the dispatch loop. Each event runs in its own goroutine so
// a slow recomputation for one subject cannot stall the queue.
func (l *Listener) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		for {
			select {
			case event := <-l.queue:
				metrics.EventQueueDepth.Set(float64(len(l.queue)))
				l.inflight.Add(1)
				go func() {
					defer l.inflight.Done()
					l.handler(ctx, event)
					metrics.EventsProcessedTotal.Inc()
				}()
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts dispatch and waits for in-flight handlers to finish.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
	l.inflight.Wait()
}
