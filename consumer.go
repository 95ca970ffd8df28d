// consumer.go: single-threaded drain/prepare/submit/reap event loop
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package ringlog

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nyxlog/ringlog/internal/bufpool"
	"github.com/nyxlog/ringlog/internal/ioring"
	"github.com/nyxlog/ringlog/internal/rotate"
)

// consumerIdle is how long the loop parks when it has nothing to drain and
// no in-flight writes to wait on. It trades a small worst-case latency for
// not spinning a core when the logger is quiet.
const consumerIdle = 10 * time.Microsecond

// completionPoll bounds how long the loop waits for at least one
// completion when the queue is empty but writes are still outstanding.
const completionPoll = 200 * time.Microsecond

// consumerLoop is the single-threaded event loop that owns the pooled
// buffers, the write ring, and the rotating sink for the lifetime of one
// Logger. Every method here runs exclusively on the loop's own goroutine
// except where noted; nothing outside this file drives ring, tasks, prep,
// or rotater. Logger only reads ring and rotater state for Stats and
// closes the ring in Close.
type consumerLoop struct {
	queue HandoffQueue
	prep  *preparer
	pool  *bufpool.Pool
	ring  *ioring.Ring

	sink       *rotate.Sink
	rotater    *rotate.Rotater
	background *rotate.Background

	tasks     map[ioring.Token]*ioring.Task
	nextToken uint64

	// resubmit holds buffers whose submission was rejected because the
	// ring's submission channel was momentarily full (transient
	// backpressure, not failure). They are retried, in order, before any
	// new record is popped off the queue.
	resubmit []*bufpool.Buffer

	activeTasks atomic.Int64
	stopping    atomic.Bool
	done        chan struct{}

	flushMu   sync.Mutex
	flushCond *sync.Cond

	batchSize       int
	maxPerIteration int

	reporter ErrorReporter
}

func newConsumerLoop(cfg resolved, queue HandoffQueue, prep *preparer, pool *bufpool.Pool, ring *ioring.Ring, sink *rotate.Sink, rotater *rotate.Rotater, background *rotate.Background) *consumerLoop {
	l := &consumerLoop{
		queue:           queue,
		prep:            prep,
		pool:            pool,
		ring:            ring,
		sink:            sink,
		rotater:         rotater,
		background:      background,
		tasks:           make(map[ioring.Token]*ioring.Task),
		done:            make(chan struct{}),
		batchSize:       cfg.cfg.BatchSize,
		maxPerIteration: derivedMaxPerIteration(cfg.cfg.BatchSize, cfg.cfg.QueueDepth),
		reporter:        cfg.cfg.ErrorReporter,
	}
	l.flushCond = sync.NewCond(&l.flushMu)
	if rotater != nil {
		rotater.OnRotated(func(path string) {
			if background != nil {
				background.OnRotated(path)
			}
		})
	}
	return l
}

// derivedMaxPerIteration bounds how many records the loop drains before it
// must service completions and rotation, so a large burst never delays
// reaping indefinitely: clamp(batch_size * sqrt(queue_depth/batch_size),
// batch_size*2, queue_depth/2).
func derivedMaxPerIteration(batchSize, queueDepth int) int {
	if batchSize <= 0 {
		batchSize = 1
	}
	if queueDepth <= 0 {
		queueDepth = batchSize
	}
	raw := float64(batchSize) * math.Sqrt(float64(queueDepth)/float64(batchSize))
	n := int(raw)
	lo, hi := batchSize*2, queueDepth/2
	if hi < lo {
		hi = lo
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}

// run is the loop's body. It returns when requestStop has been called and
// the queue and in-flight task set have both drained, or immediately if
// the ring has gone permanently non-operational.
func (l *consumerLoop) run() {
	defer func() {
		close(l.done)
		l.broadcastFlush()
	}()
	for {
		if !l.ring.Operational() {
			l.drainAndDiscard()
			return
		}

		processed := l.drainOnce()
		l.reapCompletions()
		l.sweepTasks()
		l.broadcastFlush()

		if l.stopping.Load() && l.queue.Empty() && l.activeTasks.Load() == 0 {
			return
		}
		l.idle(processed)
	}
}

// drainOnce pops and prepares up to maxPerIteration records, spawning a
// write task for every buffer the preparer produces (including the extra
// buffers a coalescing overflow can yield) and submitting the batch once
// batchSize writes have accumulated or the preparer demands an immediate
// flush. Any content still sitting in the staging region at the end of
// the pass is flushed too, so a quiet period never leaves records
// unwritten indefinitely.
func (l *consumerLoop) drainOnce() int {
	pending := l.drainResubmit()
	n := 0
	for n < l.maxPerIteration {
		r, ok := l.queue.TryPop()
		if !ok {
			break
		}
		n++

		result := l.prep.prepare(r)
		if result.buffer != nil {
			l.spawnTask(result.buffer)
			pending++
		}
		for _, extra := range l.prep.drainReady() {
			l.spawnTask(extra)
			pending++
		}

		if result.flushNow || pending >= l.batchSize {
			l.submitBatch()
			pending = 0
		}
	}

	if buf := l.prep.flushStaged(); buf != nil {
		l.spawnTask(buf)
		pending++
	}
	if pending > 0 {
		l.submitBatch()
	}
	return n
}

func (l *consumerLoop) submitBatch() {
	if !l.ring.SubmitPending() {
		l.ring.MarkFailed()
		l.report(KindPermanentIO, "submit_pending", fmt.Errorf("write ring reported non-operational during batch submit"))
	}
}

// spawnTask checks the rotation threshold, rotates if crossed, then
// attempts to submit buf's contents as one write. Rotation is checked
// here, in the loop, immediately before each new write is submitted —
// not inside task completion — so a threshold crossing is acted on
// exactly once regardless of how many writes are in flight when it
// happens. Before renaming and reopening the active file, it calls
// Barrier so every write submitted before this point has already had
// its Write call return; the ring's single writer goroutine then has no
// stale reference to the old file, and every write submitted after
// rotation targets the new one. Barrier is given the same reap
// function reapCompletions uses, since this loop is the ring's only
// reaper: without draining completions while waiting, a full
// completion channel would block the writer goroutine before it ever
// reaches the barrier. If submission is momentarily rejected while the
// ring is still operational, buf is queued for retry rather than
// failed outright.
func (l *consumerLoop) spawnTask(buf *bufpool.Buffer) {
	if l.rotater != nil && l.rotater.ShouldRotate() {
		l.ring.Barrier(l.resumeTask)
		if _, err := l.rotater.Rotate(); err != nil {
			l.report(KindPermanentIO, "rotate", err)
		}
	}

	if l.trySubmit(buf) {
		return
	}
	if !l.ring.Operational() {
		token := ioring.Token(atomic.AddUint64(&l.nextToken, 1))
		l.tasks[token] = ioring.NewTask(token, buf, fmt.Errorf("write submission rejected: ring non-operational"))
		l.activeTasks.Add(1)
		return
	}
	l.resubmit = append(l.resubmit, buf)
	l.report(KindTransientIO, "submit_write", fmt.Errorf("write ring submission queue full; buffer queued for retry"))
}

// trySubmit submits buf as one write and registers its task, returning
// true on success.
func (l *consumerLoop) trySubmit(buf *bufpool.Buffer) bool {
	token := ioring.Token(atomic.AddUint64(&l.nextToken, 1))
	if !l.ring.SubmitWrite(l.sink.File(), buf.Bytes(), token) {
		return false
	}
	l.tasks[token] = ioring.NewTask(token, buf, nil)
	l.activeTasks.Add(1)
	return true
}

// drainResubmit retries buffers held back by earlier transient submission
// failures, in order, stopping at the first one that still doesn't fit.
// It returns the number successfully resubmitted.
func (l *consumerLoop) drainResubmit() int {
	n := 0
	for len(l.resubmit) > 0 {
		if !l.trySubmit(l.resubmit[0]) {
			break
		}
		l.resubmit = l.resubmit[1:]
		n++
	}
	return n
}

// resumeTask feeds a reaped completion to its owning task, if the task is
// still outstanding. It is also handed to Barrier as its drain callback,
// since this loop is the ring's only reaper.
func (l *consumerLoop) resumeTask(c ioring.Completion) {
	if t, ok := l.tasks[c.Token]; ok {
		t.Resume(c)
	}
}

func (l *consumerLoop) reapCompletions() {
	l.ring.ReapCompletions(l.resumeTask)
}

// sweepTasks releases every Done task's buffer back to the pool, feeds
// successful byte counts to the rotater, reports failures, and drops the
// task from the outstanding set.
func (l *consumerLoop) sweepTasks() {
	for token, t := range l.tasks {
		if t.State != ioring.Done {
			continue
		}
		if buf, ok := t.Payload.(*bufpool.Buffer); ok {
			l.pool.Release(buf)
		}
		if t.Err != nil {
			l.report(KindTask, "write", t.Err)
		} else if l.rotater != nil {
			l.rotater.Advance(int64(t.Result))
		}
		delete(l.tasks, token)
		l.activeTasks.Add(-1)
	}
}

// idle parks the loop briefly when there is nothing productive to do:
// waiting on a completion if writes are outstanding, a short sleep
// otherwise, and no wait at all if the last pass processed anything (the
// queue may already have more work).
func (l *consumerLoop) idle(processed int) {
	if processed > 0 {
		return
	}
	if l.queue.Empty() && l.activeTasks.Load() > 0 {
		l.ring.WaitCompletion(completionPoll, l.resumeTask)
		return
	}
	if l.queue.Empty() {
		time.Sleep(consumerIdle)
	}
}

// drainAndDiscard is the ring-failure exit path: queued records that
// never made it to a write task are dropped, in-flight tasks are
// abandoned without being reaped, and one summary error is reported.
func (l *consumerLoop) drainAndDiscard() {
	var dropped uint64
	for {
		if _, ok := l.queue.TryPop(); !ok {
			break
		}
		dropped++
	}
	for _, buf := range l.resubmit {
		l.pool.Release(buf)
	}
	l.resubmit = nil
	l.report(KindPermanentIO, "ring_failure", fmt.Errorf("write ring non-operational: dropped %d queued records, abandoned %d in-flight writes", dropped, l.activeTasks.Load()))
}

func (l *consumerLoop) broadcastFlush() {
	l.flushMu.Lock()
	l.flushCond.Broadcast()
	l.flushMu.Unlock()
}

// waitForDrain blocks until the queue is empty and no task is in flight,
// or the loop has exited. Logger.Flush calls this.
func (l *consumerLoop) waitForDrain() {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	for !l.drained() {
		select {
		case <-l.done:
			return
		default:
		}
		l.flushCond.Wait()
	}
}

func (l *consumerLoop) drained() bool {
	return l.queue.Empty() && l.activeTasks.Load() == 0
}

// requestStop tells the loop to exit once it next observes an empty queue
// and no outstanding tasks. It does not itself unblock a Pop-based queue;
// callers shut the queue down separately.
func (l *consumerLoop) requestStop() { l.stopping.Store(true) }

func (l *consumerLoop) report(kind Kind, op string, err error) {
	reportError(l.reporter, kind, op, err)
}
