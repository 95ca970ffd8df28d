// record.go: log record value type and producer tag capture
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package ringlog

import (
	"runtime"
	"strings"
	"time"
)

// Severity identifies the level of a log record.
type Severity int

const (
	// Info marks routine, expected events.
	Info Severity = iota
	// Warn marks unexpected but recoverable events.
	Warn
	// Error marks failures requiring attention.
	Error
)

// String returns the on-disk level token for s.
func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Record is an immutable value carried from a producer through the
// pipeline to the file. It is never mutated after Logger.Log builds it.
type Record struct {
	Severity    Severity
	Payload     []byte
	ProducerTag string
	Timestamp   time.Time
	Sequence    uint64
	hasSeq      bool
}

// HasSequence reports whether Sequence was assigned (Config.SequenceMode).
func (r Record) HasSequence() bool { return r.hasSeq }

// currentGoroutineTag returns an opaque identifier for the calling
// goroutine, used as the ProducerTag that Logger.Log stamps on every
// record; Log takes no tag from its caller. It is intentionally cheap and approximate: the
// goroutine identity is treated as an injected metadata source, not a
// component under test.
func currentGoroutineTag() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := string(buf[:n])
	field = strings.TrimPrefix(field, "goroutine ")
	if idx := strings.IndexByte(field, ' '); idx >= 0 {
		field = field[:idx]
	}
	return field
}
