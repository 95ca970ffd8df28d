// buffer.go: pooled buffer type
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

// Package bufpool implements a size-classed buffer pool that eliminates
// per-message allocation on the logger's hot path.
package bufpool

// Buffer is an owned, heap-backed byte region. Ownership is unique at
// all times: a Buffer sitting in a pool slot is idle (size 0); a Buffer
// handed out by Acquire belongs exclusively to its caller until Release.
type Buffer struct {
	data []byte
	size int
}

// newBuffer allocates a Buffer with the given capacity.
func newBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Capacity is fixed for the lifetime of the Buffer.
func (b *Buffer) Capacity() int { return cap(b.data) }

// Size is the number of valid bytes currently written into the buffer.
func (b *Buffer) Size() int { return b.size }

// Bytes returns the valid portion of the buffer (b.data[:b.size]).
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// Reset marks the buffer empty without releasing its backing array.
func (b *Buffer) Reset() { b.size = 0 }

// Append copies p onto the end of the buffer, growing size but never
// capacity; it panics if p does not fit, since callers are expected to
// have sized the buffer via Acquire(n) before writing.
func (b *Buffer) Append(p []byte) {
	if b.size+len(p) > cap(b.data) {
		panic("bufpool: append exceeds buffer capacity")
	}
	n := copy(b.data[b.size:cap(b.data)], p)
	b.size += n
}

// SetSize truncates or extends the valid region to n bytes, without
// touching contents. n must not exceed Capacity.
func (b *Buffer) SetSize(n int) {
	if n < 0 || n > cap(b.data) {
		panic("bufpool: SetSize out of range")
	}
	b.size = n
}
