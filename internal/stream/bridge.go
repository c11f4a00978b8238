package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrDetached is returned by Recv after the consumer closed the bridge
var ErrDetached = errors.New("stream detached")

// Options configures a Bridge
type Options struct {
	// BufferLimit bounds the queue; the producer blocks while it is full.
	// Zero or negative means unbounded.
	BufferLimit int
}

// Bridge hands events from a producer goroutine to a pulling consumer.
// Exactly one terminal event is delivered. Closing the bridge before that
// releases the source and discards everything not yet received.
type Bridge struct {
	mu        sync.Mutex
	queue     *eventRing
	limit     int
	terminal  bool // terminal event accepted from the producer
	delivered bool // terminal event handed to the consumer
	detached  bool
	highWater int

	notify chan struct{} // producer -> consumer
	space  chan struct{} // consumer -> producer
	closed chan struct{}
	done   chan struct{}

	release     func() error
	releaseOnce sync.Once
}

// NewBridge creates a bridge. release is invoked once, when the terminal event
// is delivered, when the bridge is closed, or when the producer finishes.
func NewBridge(opts Options, release func() error) *Bridge {
	return &Bridge{
		queue:   newEventRing(opts.BufferLimit),
		limit:   opts.BufferLimit,
		notify:  make(chan struct{}, 1),
		space:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
		release: release,
	}
}

// Open starts decoding src on a new goroutine and returns the consuming side
func Open(src Source, opts Options) *Bridge {
	b := NewBridge(opts, src.Close)
	go func() {
		defer close(b.done)
		defer b.releaseSource()
		NewDecoder(src).Run(b.Emit)
	}()
	return b
}

// Emit queues an event for the consumer. It returns false once the consumer has
// detached or a terminal event was already accepted; the producer should stop.
// With a buffer limit, Emit blocks until there is room.
func (b *Bridge) Emit(e Event) bool {
	b.mu.Lock()
	for {
		if b.detached || b.terminal {
			b.mu.Unlock()
			return false
		}
		if b.limit <= 0 || b.queue.Len() < b.limit {
			break
		}
		b.mu.Unlock()
		select {
		case <-b.space:
		case <-b.closed:
		}
		b.mu.Lock()
	}

	b.queue.Push(e)
	if e.Terminal() {
		b.terminal = true
	}
	if depth := b.queue.Len(); depth > b.highWater {
		b.highWater = depth
	}
	b.mu.Unlock()

	signal(b.notify)
	return true
}

// Recv returns the next event. After the terminal event it returns io.EOF.
// After Close it returns ErrDetached. Cancelling ctx detaches the bridge.
func (b *Bridge) Recv(ctx context.Context) (Event, error) {
	for {
		b.mu.Lock()
		if b.delivered {
			b.mu.Unlock()
			return Event{}, io.EOF
		}
		if b.detached {
			b.mu.Unlock()
			return Event{}, ErrDetached
		}
		if e, ok := b.queue.Pop(); ok {
			if e.Terminal() {
				b.delivered = true
			}
			b.mu.Unlock()

			signal(b.space)
			if e.Terminal() {
				b.releaseSource()
			}
			return e, nil
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-b.closed:
		case <-ctx.Done():
			b.Close()
			return Event{}, ctx.Err()
		}
	}
}

// Close detaches the consumer. Pending events are discarded and the source is
// released, which unblocks a producer waiting on the network. Idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.detached {
		b.detached = true
		b.queue.Clear()
		close(b.closed)
	}
	b.mu.Unlock()

	b.releaseSource()
	return nil
}

// Done is closed when the producer goroutine started by Open has exited
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// HighWater returns the largest queue depth observed
func (b *Bridge) HighWater() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWater
}

func (b *Bridge) releaseSource() {
	b.releaseOnce.Do(func() {
		if b.release != nil {
			_ = b.release()
		}
	})
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
