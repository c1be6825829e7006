// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "sync/atomic"

// subscriberSet holds the current set of tracked subscriber positions as a
// copy-on-write snapshot: Add and Remove (conductor thread only) build a
// fresh slice and swap it in atomically, so Snapshot (also conductor
// thread, but a different call site, trackRebuild vs isDrained) always
// observes a consistent, unchanging slice for the duration of one call
// without taking a lock.
type subscriberSet struct {
	snapshot atomic.Pointer[[]*Position]
}

func newSubscriberSet() *subscriberSet {
	s := &subscriberSet{}
	empty := make([]*Position, 0)
	s.snapshot.Store(&empty)
	return s
}

// Snapshot returns the current slice of subscriber positions. The caller
// must not mutate it; Add/Remove never mutate a published slice in place.
func (s *subscriberSet) Snapshot() []*Position {
	return *s.snapshot.Load()
}

// Add appends pos to the tracked set, publishing a new snapshot.
func (s *subscriberSet) Add(pos *Position) {
	old := *s.snapshot.Load()
	next := make([]*Position, len(old)+1)
	copy(next, old)
	next[len(old)] = pos
	s.snapshot.Store(&next)
}

// Remove drops pos from the tracked set, publishing a new snapshot. It is a
// no-op if pos is not present.
func (s *subscriberSet) Remove(pos *Position) {
	old := *s.snapshot.Load()
	idx := -1
	for i, p := range old {
		if p == pos {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	next := make([]*Position, 0, len(old)-1)
	next = append(next, old[:idx]...)
	next = append(next, old[idx+1:]...)
	s.snapshot.Store(&next)
}

// Count returns the number of tracked subscribers.
func (s *subscriberSet) Count() int {
	return len(*s.snapshot.Load())
}
