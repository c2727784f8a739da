// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package lockfreequeue

import "github.com/chensl/lockfreequeue/internal/qerr"

// EnqueueErr is Enqueue with an error return for callers that want to
// distinguish invalid-argument and resource-exhaustion failures from a
// plain bool. It never returns ErrEmpty -- that outcome belongs to
// DequeueErr -- and otherwise has identical side effects to Enqueue.
func (q *Queue) EnqueueErr(data []byte) error {
	if q == nil {
		return qerr.ErrNilQueue
	}
	if q.Enqueue(data) {
		return nil
	}
	// The only other failure mode in this implementation is the
	// unreachable fresh-node tryLock failure, which mirrors the C API's
	// allocation-failure path.
	return qerr.ErrAllocFailed
}

// DequeueErr is Dequeue with an error return. It returns qerr.ErrEmpty --
// not a bool -- when the queue was observed empty, distinguishing that
// expected outcome from a nil queue.
func (q *Queue) DequeueErr() ([]byte, error) {
	if q == nil {
		return nil, qerr.ErrNilQueue
	}
	data, ok := q.Dequeue()
	if !ok {
		return nil, qerr.ErrEmpty
	}
	return data, nil
}
