// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package lockfreequeue_test

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chensl/lockfreequeue"
	"github.com/stretchr/testify/require"
)

// TestConcurrentProducersConsumers is concrete scenario 5/6 from the
// specification: ten producer/consumer threads, each enqueueing 100
// distinct values tid*1000+i, then collectively dequeuing until empty.
// Conservation is checked per value (not just by count) so a duplicate or
// dropped delivery is caught even if the totals happen to match.
func TestConcurrentProducersConsumers(t *testing.T) {
	const (
		numThreads     = 10
		itemsPerThread = 100
	)

	q := lockfreequeue.New()
	defer q.Close()

	received := make([]atomic.Int32, numThreads*itemsPerThread)

	var producers sync.WaitGroup
	producers.Add(numThreads)
	for tid := 0; tid < numThreads; tid++ {
		tid := tid
		go func() {
			defer producers.Done()
			for i := 0; i < itemsPerThread; i++ {
				v := int32(tid*1000 + i)
				b := make([]byte, 4)
				binary.LittleEndian.PutUint32(b, uint32(v))
				for !q.Enqueue(b) {
					runtime.Gosched()
				}
			}
		}()
	}
	producers.Wait()

	require.EqualValues(t, numThreads*itemsPerThread, q.Stats().EnqOK)

	var consumers sync.WaitGroup
	var consumed atomic.Int64
	consumers.Add(numThreads)
	for c := 0; c < numThreads; c++ {
		go func() {
			defer consumers.Done()
			for {
				data, ok := q.Dequeue()
				if !ok {
					if q.IsEmpty() {
						return
					}
					runtime.Gosched()
					continue
				}
				v := binary.LittleEndian.Uint32(data)
				tid := int(v) / 1000
				i := int(v) % 1000
				require.GreaterOrEqual(t, tid, 0)
				require.Less(t, tid, numThreads)
				require.Less(t, i, itemsPerThread)
				received[tid*itemsPerThread+i].Add(1)
				consumed.Add(1)
			}
		}()
	}
	consumers.Wait()

	require.EqualValues(t, numThreads*itemsPerThread, consumed.Load())
	for idx := range received {
		require.EqualValues(t, 1, received[idx].Load(), "value at index %d delivered a number of times other than exactly once", idx)
	}

	stats := q.Stats()
	require.Zero(t, q.Size())
	require.EqualValues(t, numThreads*itemsPerThread, stats.EnqOK)
	require.EqualValues(t, numThreads*itemsPerThread, stats.DeqOK)
	require.LessOrEqual(t, stats.MaxSize, uint64(numThreads*itemsPerThread))

	// Contention counters are evidence, not a correctness requirement: a
	// single-core CI runner may never observe a failed CAS.
	if runtime.NumCPU() > 1 && (stats.EnqRetries > 0 || stats.DeqRetries > 0) {
		t.Logf("observed contention: enq_retries=%d deq_retries=%d", stats.EnqRetries, stats.DeqRetries)
	}
}

// TestConcurrentRaceStress runs a looser, higher-volume race-detector
// workout: many goroutines hammering the same queue with no coordination
// beyond a final WaitGroup, checking only that the counter invariants
// (size == enq_ok - deq_ok, max_size >= size) hold at the end.
func TestConcurrentRaceStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}

	q := lockfreequeue.New()
	defer q.Close()

	numGoroutines := max(2, runtime.NumCPU())
	const perGoroutine = 2000

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			buf := make([]byte, 8)
			for j := 0; j < perGoroutine; j++ {
				q.Enqueue(buf)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				q.Dequeue()
			}
		}()
	}
	wg.Wait()

	for !q.IsEmpty() {
		q.Dequeue()
	}

	stats := q.Stats()
	require.Zero(t, q.Size())
	require.EqualValues(t, stats.EnqOK-stats.DeqOK, stats.Size)
	require.GreaterOrEqual(t, stats.MaxSize, stats.Size)
}
