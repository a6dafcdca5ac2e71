// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used to feed discovery events to the presentation layer without
// ever blocking ingestion.
package ringchan

import "sync"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. Producers never block: if the buffer is full, the oldest
// element is discarded to make room.
//
// Readers consume through C(), which behaves like a normal receive-only Go
// channel and is closed by Close.
type RingChannel[T any] struct {
	ch        chan T
	closeOnce sync.Once
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over it
// until Close is called.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered item if the channel
// is full. It never blocks indefinitely.
func (rc *RingChannel[T]) Send(v T) {
	for {
		select {
		case rc.ch <- v:
			return
		default:
			// Full: drop the oldest and retry. The drain may lose the race
			// against a concurrent reader, hence the loop.
			select {
			case <-rc.ch:
			default:
			}
		}
	}
}

// TrySend inserts an item only if buffer space is available and reports
// whether the item was accepted.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		return true
	default:
		return false
	}
}

// Close closes the channel. Idempotent. Senders must not be active once
// Close is called.
func (rc *RingChannel[T]) Close() {
	rc.closeOnce.Do(func() { close(rc.ch) })
}
