// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package qstats publishes a lockfreequeue.Queue's six counters through
// OpenTelemetry, the way otpsg's MetricsTask/MetricsGather/MetricsCombiner
// wrappers publish psg-go's task and gather timing. Unlike those wrappers,
// which record a counter per call, the queue's counters are themselves
// already monotonic atomics, so qstats observes them rather than
// duplicating the bookkeeping: it registers observable instruments that
// read a StatsSource snapshot on every collection.
package qstats

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// StatsSource is the subset of lockfreequeue.Queue's surface qstats needs.
// *lockfreequeue.Queue does not satisfy it directly, because its Stats
// method returns lockfreequeue.Stats; callers wrap the queue in a small
// adapter that converts the snapshot (cmd/queuedemo's statsAdapter). The
// interface exists so qstats has no import-time dependency on the root
// package.
type StatsSource interface {
	Stats() Stats
}

// Stats mirrors lockfreequeue.Stats's shape without importing the root
// package, so qstats stays independent of lockfreequeue.
type Stats struct {
	Size       uint64
	MaxSize    uint64
	EnqOK      uint64
	DeqOK      uint64
	EnqRetries uint64
	DeqRetries uint64
}

// Recorder registers a queue's counters as OpenTelemetry instruments under
// the meter named by NewRecorder's meterName ("lockfreequeue" when empty).
// The registration is revoked by calling Close.
type Recorder struct {
	registration metric.Registration
}

// NewRecorder builds and registers the observable instruments for src.
// Counters are exposed as asynchronous (observable) gauges because the
// queue tracks them itself -- qstats reports the current value rather than
// accumulating deltas, which would double-count across collections.
func NewRecorder(meterName string, src StatsSource) (*Recorder, error) {
	if meterName == "" {
		meterName = "lockfreequeue"
	}
	meter := otel.GetMeterProvider().Meter(meterName)

	size, err := meter.Int64ObservableGauge("lockfreequeue.size",
		metric.WithDescription("current number of live payload nodes"))
	if err != nil {
		return nil, err
	}
	maxSize, err := meter.Int64ObservableGauge("lockfreequeue.max_size",
		metric.WithDescription("high-water mark of size over the queue's lifetime"))
	if err != nil {
		return nil, err
	}
	enqOK, err := meter.Int64ObservableGauge("lockfreequeue.enq_ok",
		metric.WithDescription("successful enqueue operations"))
	if err != nil {
		return nil, err
	}
	deqOK, err := meter.Int64ObservableGauge("lockfreequeue.deq_ok",
		metric.WithDescription("successful dequeue operations"))
	if err != nil {
		return nil, err
	}
	enqRetries, err := meter.Int64ObservableGauge("lockfreequeue.enq_retries",
		metric.WithDescription("failed enqueue CAS attempts"))
	if err != nil {
		return nil, err
	}
	deqRetries, err := meter.Int64ObservableGauge("lockfreequeue.deq_retries",
		metric.WithDescription("failed dequeue CAS or node-lock attempts"))
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			s := src.Stats()
			o.ObserveInt64(size, int64(s.Size))
			o.ObserveInt64(maxSize, int64(s.MaxSize))
			o.ObserveInt64(enqOK, int64(s.EnqOK))
			o.ObserveInt64(deqOK, int64(s.DeqOK))
			o.ObserveInt64(enqRetries, int64(s.EnqRetries))
			o.ObserveInt64(deqRetries, int64(s.DeqRetries))
			return nil
		},
		size, maxSize, enqOK, deqOK, enqRetries, deqRetries,
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{registration: reg}, nil
}

// Close unregisters the instruments. Safe to call on a nil Recorder.
func (r *Recorder) Close() error {
	if r == nil || r.registration == nil {
		return nil
	}
	return r.registration.Unregister()
}
