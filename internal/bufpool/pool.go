// pool.go: size-classed buffer pool
//
// Copyright (c) 2026 ringlog contributors
// SPDX-License-Identifier: MPL-2.0

package bufpool

// Pool is three size-classed sizedPools (small/medium/large) plus an
// oversize fallback. Acquire always returns a buffer with capacity >= n;
// Release returns pooled buffers to their class and lets oversize
// buffers be collected by the GC.
type Pool struct {
	small, medium, large *sizedPool
}

// Sizes bundles per-class slot counts and buffer capacities.
type Sizes struct {
	SmallSlots, MediumSlots, LargeSlots int
	SmallBytes, MediumBytes, LargeBytes int
}

// New builds a Pool pre-warmed per s.
func New(s Sizes) *Pool {
	return &Pool{
		small:  newSizedPool(s.SmallSlots, s.SmallBytes),
		medium: newSizedPool(s.MediumSlots, s.MediumBytes),
		large:  newSizedPool(s.LargeSlots, s.LargeBytes),
	}
}

// Acquire returns a Buffer with Capacity() >= n and Size() == 0, chosen
// from the smallest class that fits. If the chosen class is exhausted or
// n exceeds every class, an ad-hoc buffer sized exactly n is allocated;
// releasing it destroys it rather than returning it to a pool.
func (p *Pool) Acquire(n int) *Buffer {
	for _, sp := range []*sizedPool{p.small, p.medium, p.large} {
		if n <= sp.slotCapacity {
			if b := sp.acquire(); b != nil {
				return b
			}
			return newBuffer(n)
		}
	}
	return newBuffer(n)
}

// Release returns b to the pool of matching class, or drops it if it is
// an oversize (ad-hoc) buffer.
func (p *Pool) Release(b *Buffer) {
	switch b.Capacity() {
	case p.small.slotCapacity:
		p.small.release(b)
	case p.medium.slotCapacity:
		p.medium.release(b)
	case p.large.slotCapacity:
		p.large.release(b)
	default:
		// Oversize buffer: destroyed, not pooled.
	}
}
