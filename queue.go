// Copyright 2022 MaoLongLong. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lockfreequeue implements a concurrent, unbounded, FIFO queue of
// opaque byte payloads, built on a non-blocking compare-and-swap linked-list
// protocol in the style of Michael & Scott's "Simple, Fast, and Practical
// Non-Blocking and Blocking Concurrent Queue Algorithms" (PODC96). Unlike
// the singly-linked pointer/count variant described there, this queue keeps
// a doubly-linked list anchored by two immortal sentinel nodes and uses a
// per-node lock as a reclamation aid rather than a tagged pointer, following
// the structure of the C implementation this package was ported from.
//
// Enqueue copies its argument; Dequeue hands the copy's ownership to the
// caller. Any number of goroutines may call Enqueue and Dequeue concurrently
// without additional synchronization.
package lockfreequeue

import (
	"sync/atomic"

	"github.com/chensl/lockfreequeue/internal/qlog"
	"go.uber.org/zap"
)

func logger() *zap.Logger {
	return qlog.L()
}

// Queue is a lock-free, multi-producer/multi-consumer FIFO queue of byte
// slices. The zero value is not usable; construct one with New.
type Queue struct {
	head *node // sentinel; head.prev is always nil
	tail *node // sentinel; tail.next is always nil

	size    atomic.Uint64
	maxSize atomic.Uint64

	enqOK      atomic.Uint64
	deqOK      atomic.Uint64
	enqRetries atomic.Uint64
	deqRetries atomic.Uint64
}

// Stats is a snapshot of a Queue's monotonic counters, used to observe
// contention and throughput. It carries no synchronization of its own: it
// is a point-in-time readout, not a consistent cross-counter view.
type Stats struct {
	Size       uint64
	MaxSize    uint64
	EnqOK      uint64
	DeqOK      uint64
	EnqRetries uint64
	DeqRetries uint64
}

// logContentionThreshold gates how often the retry loops emit a debug log
// line: the queue-wide enqueue or dequeue retry counter is logged each time
// it reaches a power of two at or above this threshold, so pathological
// contention is visible without flooding the log.
const logContentionThreshold = 64

func logIfContended(op string, retries uint64) {
	if retries < logContentionThreshold || retries&(retries-1) != 0 {
		return
	}
	logger().Debug("sustained CAS contention", zap.String("op", op), zap.Uint64("retries", retries))
}

// New constructs an empty queue. The two sentinel nodes are linked to each
// other with release stores so that a goroutine observing the head sentinel
// afterward always sees a well-formed, empty skeleton.
func New() *Queue {
	head := newNode(nil)
	tail := newNode(nil)
	head.next.Store(tail)
	tail.prev.Store(head)

	q := &Queue{head: head, tail: tail}
	logger().Debug("queue constructed")
	return q
}

// Close drains the queue and releases its sentinels. It is idempotent on a
// nil receiver and expects no concurrent Enqueue/Dequeue calls in flight.
// Any payload still queued when Close is called is discarded.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
	}
	logger().Debug("queue closed",
		zap.Uint64("final_enq_ok", q.enqOK.Load()),
		zap.Uint64("final_deq_ok", q.deqOK.Load()))
}

// Enqueue appends a private copy of data to the logical end of the queue.
// It returns false only if q is nil (or if the freshly allocated node
// cannot be locked, which cannot happen in practice); a nil or empty data
// is a valid zero-length payload. Enqueue is lock-free: some goroutine always
// makes progress, though any individual caller's retry loop is unbounded
// under pathological contention.
func (q *Queue) Enqueue(data []byte) bool {
	if q == nil {
		return false
	}

	n := newNode(data)
	if !n.tryLock() {
		// Unreachable in practice: n is freshly allocated and not yet
		// visible to any other goroutine.
		return false
	}

	tail := q.tail
	for {
		prevTail := tail.prev.Load() // acquire

		// Stage n's links locally; n is not yet published so these can be
		// relaxed writes.
		n.next.Store(tail)
		n.prev.Store(prevTail)

		// Go's sync/atomic operations are themselves the publication fence:
		// the CAS below is a release operation, so everything staged into n
		// above becomes visible to any goroutine whose subsequent acquire
		// load observes the new pointer.
		if prevTail.next.CompareAndSwap(tail, n) {
			// Linearization point: n is now reachable from prevTail.
			tail.prev.Store(n) // release; optimization hint, not authoritative

			newSize := q.size.Add(1)
			for {
				cur := q.maxSize.Load()
				if newSize <= cur {
					break
				}
				if q.maxSize.CompareAndSwap(cur, newSize) {
					break
				}
			}
			q.enqOK.Add(1)
			n.unlock()
			return true
		}

		logIfContended("enqueue", q.enqRetries.Add(1))
	}
}

// Dequeue removes and returns the payload at the logical front of the
// queue. It returns (nil, false) immediately if the queue is observed
// empty, without any other side effect. Dequeue is lock-free but not
// wait-free.
func (q *Queue) Dequeue() ([]byte, bool) {
	if q == nil {
		return nil, false
	}

	head := q.head
	for {
		front := head.next.Load() // acquire
		if front == q.tail {
			return nil, false // observed empty
		}

		if !front.tryLock() {
			logIfContended("dequeue", q.deqRetries.Add(1))
			continue
		}

		next := front.next.Load() // acquire

		if head.next.CompareAndSwap(front, next) {
			// Linearization point: front is unlinked from the list.
			data := front.data

			if next != q.tail {
				next.prev.Store(head)
			} else {
				q.tail.prev.Store(head)
			}

			q.size.Add(^uint64(0)) // decrement
			q.deqOK.Add(1)

			front.unlock()
			front.destroy()
			return data, true
		}

		front.unlock()
		logIfContended("dequeue", q.deqRetries.Add(1))
	}
}

// IsEmpty reports whether the queue currently holds no payload nodes. It
// checks both head.next==tail and tail.prev==head, so it never reports
// empty while either link still shows a payload node -- tail.prev is only a
// hint that Enqueue and Dequeue refresh after their CAS. This is the
// structural-only predicate; it does not consult Size. Because Dequeue
// refreshes tail.prev after unlinking the last node, IsEmpty may very
// briefly report non-empty immediately after the structure has in fact
// emptied.
func (q *Queue) IsEmpty() bool {
	if q == nil {
		return true
	}
	return q.head.next.Load() == q.tail && q.tail.prev.Load() == q.head
}

// Size returns a relaxed-acquire snapshot of the number of live payload
// nodes. It is an instantaneous approximation and must not be used as a
// synchronization primitive.
func (q *Queue) Size() uint64 {
	if q == nil {
		return 0
	}
	return q.size.Load()
}

// MaxSize returns the high-water mark Size has ever reached. It never
// resets for the lifetime of the queue.
func (q *Queue) MaxSize() uint64 {
	if q == nil {
		return 0
	}
	return q.maxSize.Load()
}

// Stats snapshots all six counters.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	return Stats{
		Size:       q.size.Load(),
		MaxSize:    q.maxSize.Load(),
		EnqOK:      q.enqOK.Load(),
		DeqOK:      q.deqOK.Load(),
		EnqRetries: q.enqRetries.Load(),
		DeqRetries: q.deqRetries.Load(),
	}
}

// Walk invokes fn once per live payload node, walking from the logical
// front to the logical back. It is a diagnostic: the walk is not
// linearized against concurrent Enqueue/Dequeue calls, so it may skip or
// repeat nodes, or observe a payload mid-transfer, if the queue mutates
// while it runs.
func (q *Queue) Walk(fn func(data []byte)) {
	if q == nil || fn == nil {
		return
	}
	for cur := q.head.next.Load(); cur != nil && cur != q.tail; cur = cur.next.Load() {
		fn(cur.data)
	}
}
