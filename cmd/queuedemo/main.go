// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command queuedemo is the CLI harness boundary described in the
// lockfreequeue specification: a positional-argument driver that exercises
// New, Enqueue, Dequeue, Stats, and Walk under concurrent load. It is a
// thin external collaborator -- all queue logic lives in the root package;
// this command only wires logging, metrics, and a producer/consumer
// workload around it.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chensl/lockfreequeue"
	"github.com/chensl/lockfreequeue/internal/qlog"
	"github.com/chensl/lockfreequeue/internal/qstats"
)

const (
	defaultNumThreads     = 10
	defaultItemsPerThread = 100
	defaultMutexTimeout   = 30
)

var helpAliases = map[string]bool{
	"?": true, "help": true, "-h": true, "--help": true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, a := range args {
		if helpAliases[a] {
			printUsage(os.Stdout)
			return 0
		}
	}

	numThreads, itemsPerThread, mutexTimeoutSec, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "queuedemo: %v\n\n", err)
		printUsage(os.Stderr)
		return 1
	}

	logger := newLogger()
	defer logger.Sync() //nolint:errcheck
	qlog.SetLogger(logger)

	shutdownMetrics := setupMetrics(logger)
	defer shutdownMetrics()

	q := lockfreequeue.New()
	defer q.Close()

	rec, err := qstats.NewRecorder("queuedemo", statsAdapter{q})
	if err != nil {
		logger.Warn("failed to register stats recorder", zap.Error(err))
	} else {
		defer rec.Close() //nolint:errcheck
	}

	logger.Info("starting demo",
		zap.Int("num_threads", numThreads),
		zap.Int("items_per_thread", itemsPerThread),
		zap.Int("mutex_timeout_sec", mutexTimeoutSec))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(mutexTimeoutSec)*time.Second)
	defer cancel()

	runWorkload(ctx, logger, q, numThreads, itemsPerThread)

	stats := q.Stats()
	logger.Info("final stats",
		zap.Uint64("size", stats.Size),
		zap.Uint64("max_size", stats.MaxSize),
		zap.Uint64("enq_ok", stats.EnqOK),
		zap.Uint64("deq_ok", stats.DeqOK),
		zap.Uint64("enq_retries", stats.EnqRetries),
		zap.Uint64("deq_retries", stats.DeqRetries))

	remaining := 0
	q.Walk(func([]byte) { remaining++ })
	if remaining > 0 {
		logger.Warn("queue non-empty after workload", zap.Int("remaining", remaining))
		return 1
	}
	return 0
}

func parseArgs(args []string) (numThreads, itemsPerThread, mutexTimeoutSec int, err error) {
	numThreads, itemsPerThread, mutexTimeoutSec = defaultNumThreads, defaultItemsPerThread, defaultMutexTimeout

	positional := make([]string, 0, 3)
	for _, a := range args {
		if len(a) > 0 && a[0] == '-' {
			return 0, 0, 0, fmt.Errorf("unrecognized flag %q", a)
		}
		positional = append(positional, a)
	}
	if len(positional) > 3 {
		return 0, 0, 0, fmt.Errorf("too many arguments (got %d, want at most 3)", len(positional))
	}

	parsePositive := func(s, name string) (int, error) {
		v, convErr := strconv.Atoi(s)
		if convErr != nil || v <= 0 {
			return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
		}
		return v, nil
	}

	if len(positional) > 0 {
		if numThreads, err = parsePositive(positional[0], "num_threads"); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(positional) > 1 {
		if itemsPerThread, err = parsePositive(positional[1], "items_per_thread"); err != nil {
			return 0, 0, 0, err
		}
	}
	if len(positional) > 2 {
		if mutexTimeoutSec, err = parsePositive(positional[2], "mutex_timeout_sec"); err != nil {
			return 0, 0, 0, err
		}
	}
	return numThreads, itemsPerThread, mutexTimeoutSec, nil
}

func printUsage(w *os.File) {
	fmt.Fprintf(w, "usage: queuedemo [num_threads] [items_per_thread] [mutex_timeout_sec]\n")
	fmt.Fprintf(w, "  defaults: %d %d %d\n", defaultNumThreads, defaultItemsPerThread, defaultMutexTimeout)
	fmt.Fprintf(w, "  aliases: ? help -h --help\n")
}

// newLogger mirrors the original harness's "HH:MM:SS.mmm"-prefixed
// timestamped output using zap's ISO8601 millisecond time encoder instead
// of a hand-rolled tprintf wrapper.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return zap.New(core)
}

func setupMetrics(logger *zap.Logger) (shutdown func()) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	if err != nil {
		logger.Warn("failed to build metrics exporter", zap.Error(err))
		return func() {}
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("metrics shutdown failed", zap.Error(err))
		}
	}
}

// statsAdapter bridges lockfreequeue.Queue.Stats to qstats.StatsSource,
// converting lockfreequeue.Stats into qstats.Stats so that qstats does not
// need to import lockfreequeue.
type statsAdapter struct {
	q *lockfreequeue.Queue
}

func (a statsAdapter) Stats() qstats.Stats {
	s := a.q.Stats()
	return qstats.Stats{
		Size:       s.Size,
		MaxSize:    s.MaxSize,
		EnqOK:      s.EnqOK,
		DeqOK:      s.DeqOK,
		EnqRetries: s.EnqRetries,
		DeqRetries: s.DeqRetries,
	}
}

// runWorkload spawns numThreads producers, each enqueuing itemsPerThread
// distinct values tid*1000+i (concrete scenario 5 in the specification),
// and numThreads consumers draining the queue until every produced value
// has been accounted for or ctx expires.
func runWorkload(ctx context.Context, logger *zap.Logger, q *lockfreequeue.Queue, numThreads, itemsPerThread int) {
	total := numThreads * itemsPerThread

	var producers sync.WaitGroup
	producers.Add(numThreads)
	for tid := 0; tid < numThreads; tid++ {
		tid := tid
		go func() {
			defer producers.Done()
			for i := 0; i < itemsPerThread; i++ {
				b := make([]byte, 4)
				binary.LittleEndian.PutUint32(b, uint32(tid*1000+i))
				q.Enqueue(b)
			}
			logger.Debug("producer finished", zap.Int("thread_id", tid))
		}()
	}

	done := make(chan struct{})
	go func() {
		producers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("producers did not finish before mutex_timeout_sec elapsed")
	}

	var consumed int
	var consumers sync.WaitGroup
	var mu sync.Mutex
	consumers.Add(numThreads)
	for c := 0; c < numThreads; c++ {
		go func() {
			defer consumers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if _, ok := q.Dequeue(); ok {
					mu.Lock()
					consumed++
					done := consumed >= total
					mu.Unlock()
					if done {
						return
					}
				} else if q.IsEmpty() {
					return
				}
			}
		}()
	}
	consumers.Wait()
}
