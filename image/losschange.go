// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "sync/atomic"

// lossChange is a seqlock with a version tail only: the conductor
// publishes a gap descriptor without ever blocking the receiver, and the
// receiver reads a consistent snapshot without ever blocking the
// conductor. The conductor never observes the receiver.
//
// Publish sequence (conductor, onLossDetected):
//  1. n = beginLossChange + 1
//  2. store beginLossChange = n (ordered)
//  3. write the plain payload fields
//  4. store endLossChange = n (ordered)
//
// Read sequence (receiver, processPendingLoss):
//  1. change = load endLossChange (acquire)
//  2. if change == lastChangeNumber, nothing new
//  3. snapshot the plain payload fields
//  4. acquire fence
//  5. if load beginLossChange == change, the snapshot from step 3 is
//     consistent; otherwise the conductor is mid-publish and this attempt
//     is abandoned (the next tick retries)
type lossChange struct {
	beginChange atomic.Int64
	endChange   atomic.Int64

	termId     int32
	termOffset int32
	length     int32
}

// publish is called from the conductor thread when the loss detector
// reports an actionable gap.
func (lc *lossChange) publish(termId, termOffset, length int32) {
	n := lc.beginChange.Load() + 1
	lc.beginChange.Store(n)

	lc.termId = termId
	lc.termOffset = termOffset
	lc.length = length

	lc.endChange.Store(n)
}

// read is called from the receiver thread. changeNumber is the version
// observed (always read via endChange first); ok reports whether the
// snapshot is a consistent, not-mid-publish one.
func (lc *lossChange) read() (changeNumber int64, termId, termOffset, length int32, ok bool) {
	changeNumber = lc.endChange.Load()

	termId = lc.termId
	termOffset = lc.termOffset
	length = lc.length

	// The beginChange load below is itself an acquire operation: it
	// establishes happens-before with the conductor's ordered store in
	// publish, which is what guards the plain loads above against
	// observing a torn, mid-publish write.
	ok = lc.beginChange.Load() == changeNumber
	return
}
