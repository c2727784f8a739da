// Copyright 2022 MaoLongLong. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lockfreequeue

import "sync/atomic"

// node is a single cell of the queue's doubly-linked list. Every node but
// the two sentinels carries a private copy of a payload; sentinels carry
// none and are never unlinked.
//
// lock is not a mutual-exclusion primitive for the algorithm as a whole --
// it is only ever taken by Enqueue on its own fresh node and by dequeuers
// competing for the current front node, and no goroutine waits on it: a
// dequeuer that fails to acquire it counts a retry and reloads the front.
// It exists purely as a reclamation aid: it lets a dequeuer that loses a
// race discover that another goroutine has already committed to unlinking
// the node, instead of freeing data a concurrent reader might still be
// inspecting.
type node struct {
	data   []byte
	length int

	prev atomic.Pointer[node]
	next atomic.Pointer[node]

	lock atomic.Bool
}

// newNode allocates a node carrying a private copy of data[0:length]. A nil
// data with a zero length produces a node with a nil payload, matching the
// sentinel and zero-length-enqueue cases.
func newNode(data []byte) *node {
	n := &node{}
	if len(data) > 0 {
		n.data = make([]byte, len(data))
		copy(n.data, data)
		n.length = len(data)
	}
	return n
}

// tryLock attempts to acquire n's lock, returning true iff this call
// obtained it. Acquire ordering on success so the caller's subsequent reads
// of n's fields cannot be reordered before the lock is observed held.
func (n *node) tryLock() bool {
	return n.lock.CompareAndSwap(false, true)
}

// unlock releases a lock the caller must currently hold. Release ordering
// so all of the caller's writes to n are visible to whichever goroutine
// next observes lock==false.
func (n *node) unlock() {
	n.lock.Store(false)
}

// destroy is a no-op placeholder for an explicit free in a garbage-collected
// runtime: the node becomes eligible for collection once nothing reachable
// references it. It exists so callers can express the original algorithm's
// "unlock, then free" sequencing, and as an always-on assertion point: it
// panics if the node is still locked.
func (n *node) destroy() {
	if n.lock.Load() {
		// Reachable only under an implementation bug: destroy must never be
		// called while a goroutine still holds the lock.
		panic("lockfreequeue: destroy called on a locked node")
	}
}
