package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// ErrStreamClosed is returned by Emit once the consumer has gone away or the
// producer has finished.
var ErrStreamClosed = errors.New("event stream closed")

const defaultStreamBuffer = 16

// Stream is a single-producer, single-consumer channel of run events that
// preserves production order. The producer blocks when the buffer is full,
// which applies transport backpressure to the run.
type Stream struct {
	events    chan crawler.Event
	done      chan struct{}
	closeOnce sync.Once
	abandon   sync.Once
	mu        sync.RWMutex
	finished  bool
}

// NewStream creates a Stream with the given buffer (16 when non-positive).
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Stream{
		events: make(chan crawler.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Emit implements crawler.Emitter. It blocks until the consumer has room,
// ctx is done, or the consumer abandons the stream.
func (s *Stream) Emit(ctx context.Context, evt crawler.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finished {
		return ErrStreamClosed
	}
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.events <- evt:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return fmt.Errorf("emit %s: %w", evt.Type, ctx.Err())
	}
}

// Events is the consumer side; it is closed after Close.
func (s *Stream) Events() <-chan crawler.Event {
	return s.events
}

// Close is called by the producer once it will emit nothing further.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		close(s.events)
		s.mu.Unlock()
	})
}

// Abandon is called by the consumer when it stops reading. Pending and
// future Emit calls return ErrStreamClosed.
func (s *Stream) Abandon() {
	s.abandon.Do(func() { close(s.done) })
}
