// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "sync/atomic"

// Position is a wait-free 64-bit monotonic cell. It models the memory-mapped
// position counters exposed to external processes by the real driver: a
// single writer advances it with SetOrdered or ProposeMaxOrdered, and any
// number of readers observe it with Get or GetVolatile.
//
// The zero value is not ready for use; construct with NewPosition.
type Position struct {
	v atomic.Int64

	closed atomic.Bool
}

// NewPosition returns a Position initialized to initial.
func NewPosition(initial int64) *Position {
	p := &Position{}
	p.v.Store(initial)
	return p
}

// Get returns the current value. On the single writer's own goroutine this
// is equivalent to GetVolatile; it exists as a separate name to mirror the
// plain-load/volatile-load distinction the rest of the design relies on.
func (p *Position) Get() int64 {
	return p.v.Load()
}

// GetVolatile returns the current value with acquire semantics, safe to call
// from any goroutine that is not the sole writer.
func (p *Position) GetVolatile() int64 {
	return p.v.Load()
}

// SetOrdered stores v with release semantics.
func (p *Position) SetOrdered(v int64) {
	p.v.Store(v)
}

// ProposeMaxOrdered stores v with release semantics iff v is greater than the
// current value, and reports whether it did so. Only the sole writer may
// call this; concurrent callers would race on the compare.
func (p *Position) ProposeMaxOrdered(v int64) bool {
	if v > p.v.Load() {
		p.v.Store(v)
		return true
	}
	return false
}

// Close marks the counter closed. It is idempotent; callers must not use the
// counter afterward.
func (p *Position) Close() {
	p.closed.Store(true)
}

// Closed reports whether Close has been called.
func (p *Position) Closed() bool {
	return p.closed.Load()
}
