// preparer.go: record formatting and write coalescing
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package ringlog

import (
	"fmt"
	"time"

	"github.com/nyxlog/ringlog/internal/bufpool"
)

// LineFormatter renders one record as a formatted, newline-terminated
// line. The default matches the on-disk grammar documented for records;
// callers may supply their own to generalize the formatting concern.
type LineFormatter func(r Record, seqMode bool) []byte

const timestampLayout = "2006-01-02T15:04:05.000Z0700"

// defaultLineFormatter renders:
//
//	[<timestamp>] [<LEVEL>] [Thread: <tag>](optional [Seq: <n>]): <payload>\n
func defaultLineFormatter(r Record, seqMode bool) []byte {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if seqMode {
		return fmt.Appendf(nil, "[%s] [%s] [Thread: %s] [Seq: %d]: %s\n",
			ts.Format(timestampLayout), r.Severity, r.ProducerTag, r.Sequence, r.Payload)
	}
	return fmt.Appendf(nil, "[%s] [%s] [Thread: %s]: %s\n",
		ts.Format(timestampLayout), r.Severity, r.ProducerTag, r.Payload)
}

// prepared is the result of Preparer.prepare: an optional buffer ready
// to submit, and whether it must be flushed immediately.
type prepared struct {
	buffer   *bufpool.Buffer
	flushNow bool
}

// preparer formats records into pooled buffers, optionally coalescing
// several records into one staging region before copying them out as a
// single write.
type preparer struct {
	pool         *bufpool.Pool
	format       LineFormatter
	seqMode      bool
	coalesceSize int // <= 1 disables coalescing

	staging        []byte
	stagedLen      int
	messagesStaged int

	// ready holds extra buffers produced by a single prepare() call
	// beyond the one it returns directly — only possible on the
	// staging-overflow path, where a flush of already-staged content
	// and the individual write for the overflowing record both become
	// ready at once. The consumer loop drains this after every
	// prepare() via drainReady.
	ready []*bufpool.Buffer
}

func newPreparer(pool *bufpool.Pool, format LineFormatter, seqMode bool, coalesceSize, stagingCapacity int) *preparer {
	if format == nil {
		format = defaultLineFormatter
	}
	return &preparer{
		pool:         pool,
		format:       format,
		seqMode:      seqMode,
		coalesceSize: coalesceSize,
		staging:      make([]byte, stagingCapacity),
	}
}

// prepare formats r and returns a buffer ready for submission, per the
// coalescing/non-coalescing rules.
func (p *preparer) prepare(r Record) prepared {
	if p.coalesceSize <= 1 {
		return p.prepareIndividual(r)
	}
	return p.prepareCoalesced(r)
}

func (p *preparer) prepareIndividual(r Record) prepared {
	line := p.format(r, p.seqMode)
	buf := p.pool.Acquire(len(line) + 256)
	buf.Append(line)
	return prepared{buffer: buf}
}

func (p *preparer) prepareCoalesced(r Record) prepared {
	line := p.format(r, p.seqMode)

	if p.stagedLen+len(line) > len(p.staging) {
		return p.prepareOverflow(r, line)
	}

	n := copy(p.staging[p.stagedLen:], line)
	p.stagedLen += n
	p.messagesStaged++

	full := p.messagesStaged >= p.coalesceSize
	over90 := float64(p.stagedLen) > 0.9*float64(len(p.staging))
	if full || over90 {
		buf := p.pool.Acquire(p.stagedLen)
		buf.Append(p.staging[:p.stagedLen])
		p.resetStaging()
		return prepared{buffer: buf, flushNow: true}
	}
	return prepared{}
}

// prepareOverflow handles a record whose formatted line does not fit in
// the remaining staging capacity: flush whatever is already staged,
// then prepare the overflowing record on the individual-write path.
func (p *preparer) prepareOverflow(r Record, line []byte) prepared {
	flushed := p.flushLocked()

	var result prepared
	if len(line) > len(p.staging) {
		result = p.prepareIndividual(r)
	} else {
		copy(p.staging, line)
		p.stagedLen = len(line)
		p.messagesStaged = 1
		result = prepared{}
	}

	if flushed != nil {
		if result.buffer != nil {
			p.ready = append(p.ready, result.buffer)
		}
		return prepared{buffer: flushed, flushNow: true}
	}
	return result
}

// drainReady returns and clears any extra ready buffers accumulated by
// the last prepare() call.
func (p *preparer) drainReady() []*bufpool.Buffer {
	if len(p.ready) == 0 {
		return nil
	}
	out := p.ready
	p.ready = nil
	return out
}

// flushLocked copies any staged content into a pooled buffer and resets
// staging. Returns nil if nothing was staged.
func (p *preparer) flushLocked() *bufpool.Buffer {
	if p.stagedLen == 0 {
		return nil
	}
	buf := p.pool.Acquire(p.stagedLen)
	buf.Append(p.staging[:p.stagedLen])
	p.resetStaging()
	return buf
}

func (p *preparer) resetStaging() {
	p.stagedLen = 0
	p.messagesStaged = 0
}

// flushStaged copies out and resets any content sitting in the staging
// region. Called by the consumer loop once per drain pass.
func (p *preparer) flushStaged() *bufpool.Buffer {
	return p.flushLocked()
}
