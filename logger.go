// logger.go: public Logger facade
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package ringlog

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"

	"github.com/nyxlog/ringlog/internal/bufpool"
	"github.com/nyxlog/ringlog/internal/ioring"
	"github.com/nyxlog/ringlog/internal/rotate"
)

// ringDepth is derived from QueueDepth: the write ring's submission
// channel capacity stands in for the kernel ring's submission queue
// depth, so the two share a configuration knob.
func ringDepth(queueDepth int) int {
	if queueDepth <= 0 {
		return 1
	}
	return queueDepth
}

// Logger is the asynchronous, ring-backed application logger. One Logger
// owns one consumer goroutine, one write ring, one buffer pool, and one
// rotating file sink. All exported methods are safe to call from any
// number of goroutines.
type Logger struct {
	cfg      Config
	queue    HandoffQueue
	pool     *bufpool.Pool
	ring     *ioring.Ring
	sink     *rotate.Sink
	rotater  *rotate.Rotater
	loop     *consumerLoop
	seq      *SequenceCounter
	clock    *timecache.TimeCache
	diag     *slog.Logger
	reporter ErrorReporter

	closeOnce sync.Once
	closed    atomic.Bool
}

// New validates cfg, wires the pipeline together, and starts the consumer
// goroutine. The returned Logger must eventually be Close'd to release its
// file handle and stop its goroutines.
func New(cfg Config) (*Logger, error) {
	res, err := validateAndResolve(cfg)
	if err != nil {
		return nil, err
	}
	rc := res.cfg

	pool := bufpool.New(bufpool.Sizes{
		SmallSlots:  rc.SmallBufferPoolSize,
		MediumSlots: rc.MediumBufferPoolSize,
		LargeSlots:  rc.LargeBufferPoolSize,
		SmallBytes:  rc.SmallBufferSize,
		MediumBytes: rc.MediumBufferSize,
		LargeBytes:  rc.LargeBufferSize,
	})

	var sink *rotate.Sink
	openErr := RetryFileOperation(func() error {
		s, err := rotate.Open(rc.LogFileName, rc.FileMode)
		if err != nil {
			return err
		}
		sink = s
		return nil
	}, rc.RetryCount, rc.RetryDelay)
	if openErr != nil {
		return nil, newError(KindConfig, "open_sink", fmt.Errorf("open %s: %w", rc.LogFileName, openErr))
	}

	rotater := rotate.New(sink, rc.LogFileName, rc.MaxLogSizeBytes)

	var background *rotate.Background
	if rc.Compress || rc.Checksum || rc.MaxBackups > 0 || rc.MaxFileAge > 0 {
		ext := filepath.Ext(rc.LogFileName)
		background = rotate.NewBackground(2, rotate.Config{
			BaseName:   strings.TrimSuffix(rc.LogFileName, ext),
			Ext:        ext,
			Compress:   rc.Compress,
			Checksum:   rc.Checksum,
			MaxBackups: rc.MaxBackups,
			MaxFileAge: rc.MaxFileAge,
			OnError: func(op string, err error) {
				reportError(rc.ErrorReporter, KindTransientIO, "background_"+op, err)
			},
		})
	}

	var seq *SequenceCounter
	if rc.SequenceMode {
		seq = &SequenceCounter{}
	}
	queue := newHandoffQueue(rc, seq)

	prep := newPreparer(pool, rc.Format, rc.SequenceMode, rc.CoalesceSize, rc.MediumBufferSize)

	ring := ioring.New(ringDepth(rc.QueueDepth))

	loop := newConsumerLoop(res, queue, prep, pool, ring, sink, rotater, background)

	l := &Logger{
		cfg:      rc,
		queue:    queue,
		pool:     pool,
		ring:     ring,
		sink:     sink,
		rotater:  rotater,
		loop:     loop,
		seq:      seq,
		clock:    timecache.NewWithResolution(time.Millisecond),
		diag:     rc.Logger,
		reporter: rc.ErrorReporter,
	}

	for _, w := range res.warnings {
		l.diag.Warn("ringlog configuration warning", "detail", w)
	}

	go loop.run()
	return l, nil
}

// Log builds a Record from sev and payload, stamps producer tag and
// timestamp, and pushes it onto the hand-off queue. It never returns an
// error to the caller; failures are routed to the configured
// ErrorReporter.
func (l *Logger) Log(sev Severity, payload []byte) {
	if l.closed.Load() {
		l.report(KindTransientIO, "log", fmt.Errorf("record dropped: logger closed"))
		return
	}
	r := Record{
		Severity:    sev,
		Payload:     payload,
		ProducerTag: currentGoroutineTag(),
		Timestamp:   l.clock.CachedTime(),
	}
	if !l.queue.Push(r) {
		l.report(KindTransientIO, "log", fmt.Errorf("record dropped: queue shut down"))
	}
}

// Info logs payload at Info severity.
func (l *Logger) Info(payload []byte) { l.Log(Info, payload) }

// Warn logs payload at Warn severity.
func (l *Logger) Warn(payload []byte) { l.Log(Warn, payload) }

// Error logs payload at Error severity.
func (l *Logger) Error(payload []byte) { l.Log(Error, payload) }

// Write implements io.Writer, so a Logger drops into log.SetOutput,
// slog.NewTextHandler, or any io.Writer-based framework. The trailing
// newline, if present, is stripped before formatting adds its own.
func (l *Logger) Write(p []byte) (int, error) {
	trimmed := bytes.TrimSuffix(p, []byte("\n"))
	owned := make([]byte, len(trimmed))
	copy(owned, trimmed)
	l.Log(Info, owned)
	return len(p), nil
}

// Flush blocks until every record pushed before this call has been
// written and the active task count has returned to zero. It is safe to
// call concurrently from any number of goroutines.
func (l *Logger) Flush() {
	l.loop.waitForDrain()
}

// SequenceCounter returns the counter backing Config.SequenceMode, or nil
// if sequence mode is disabled. Tests use this to Reset() between runs.
func (l *Logger) SequenceCounter() *SequenceCounter { return l.seq }

// Stats is a best-effort snapshot of the logger's internal state, for
// diagnostics and tests.
type Stats struct {
	QueueSize   int
	ActiveTasks int64
	Operational bool
	CurrentSize int64
}

// Stats returns a best-effort snapshot; the individual fields are not
// captured atomically with respect to each other.
func (l *Logger) Stats() Stats {
	return Stats{
		QueueSize:   l.queue.Size(),
		ActiveTasks: l.loop.activeTasks.Load(),
		Operational: l.ring.Operational(),
		CurrentSize: l.rotater.CurrentBytes(),
	}
}

// Close shuts the queue down, requests the consumer loop to stop, and
// joins it with a bounded timeout. On timeout the loop is abandoned
// (reported, not fatal) since the process is expected to be terminating.
// Close is idempotent.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.queue.Shutdown()
		l.loop.requestStop()

		select {
		case <-l.loop.done:
		case <-time.After(l.cfg.ShutdownTimeout):
			l.report(KindTransientIO, "close", fmt.Errorf("consumer loop did not exit within %s; abandoning", l.cfg.ShutdownTimeout))
		}

		l.clock.Stop()
		if l.loop.background != nil {
			l.loop.background.Stop()
		}
		l.ring.Close()
		if cerr := l.sink.Close(); cerr != nil {
			err = cerr
		}
	})
	return err
}

func (l *Logger) report(kind Kind, op string, cause error) {
	reportError(l.reporter, kind, op, cause)
}
