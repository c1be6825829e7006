// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

// ConductorClock is implemented by whatever owns the conductor's tick
// loop and the reaper, so an image can request image-transition and
// cleanup callbacks without importing the conductor package itself.
type ConductorClock interface {
	ImageTransitionToLinger(img *Image)
	CleanupImage(img *Image)
}

// TrackRebuild folds subscriber positions, advances the published status
// position once the slowest subscriber has gained enough to cross the
// hysteresis threshold, cleans trailing buffer memory behind it, and
// drives the loss detector's scan over the contiguous-prefix boundary.
func (img *Image) TrackRebuild(now int64) int32 {
	minSub, maxSub, any := img.foldSubscriberPositions()
	if !any {
		minSub = img.rebuildPosition.Get()
		maxSub = img.rebuildPosition.Get()
	}

	if minSub > img.pub.newStatusMessagePosition.Load()+int64(img.currentGain) {
		img.pub.newStatusMessagePosition.Store(minSub)
		img.cleanBufferTo(minSub - int64(img.rawLog.TermLength()))
	}

	rebuildPos := img.rebuildPosition.Get()
	if maxSub > rebuildPos {
		rebuildPos = maxSub
	}

	termIndex := IndexByPosition(rebuildPos, img.positionBitsToShift)
	outcome := img.lossDetector.Scan(
		img.rawLog.Buffers[termIndex],
		rebuildPos,
		img.hwmPosition.GetVolatile(),
		now,
		img.termLengthMask,
		img.positionBitsToShift,
		img.initialTermId,
	)

	rebuildTermOffset := rebuildPos & img.termLengthMask
	newRebuildPosition := (rebuildPos - rebuildTermOffset) + int64(outcome.RebuildOffset)
	img.rebuildPosition.ProposeMaxOrdered(newRebuildPosition)

	return outcome.WorkCount
}

// foldSubscriberPositions reduces the current subscriber snapshot to its
// min and max. any is false if there are no subscribers.
func (img *Image) foldSubscriberPositions() (min, max int64, any bool) {
	snapshot := img.subscribers.Snapshot()
	if len(snapshot) == 0 {
		return 0, 0, false
	}
	min = snapshot[0].GetVolatile()
	max = min
	for _, p := range snapshot[1:] {
		v := p.GetVolatile()
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

// cleanBufferTo zeroes trailing term memory up to target, bounded to a
// single term buffer per call so steady-state zeroing is bounded work per
// tick. It advances cleanPosition by the bytes actually zeroed.
func (img *Image) cleanBufferTo(target int64) {
	cleanPos := img.cond.cleanPosition.Load()
	bytesForCleaning := target - cleanPos
	if bytesForCleaning <= 0 {
		return
	}

	termIndex := IndexByPosition(cleanPos, img.positionBitsToShift)
	dirtyTerm := img.rawLog.Buffers[termIndex]
	termOffset := TermOffset(cleanPos, img.termLengthMask)

	remaining := int64(dirtyTerm.Capacity() - termOffset)
	length := bytesForCleaning
	if remaining < length {
		length = remaining
	}

	if length > 0 {
		dirtyTerm.Zero(termOffset, int32(length))
		img.cond.cleanPosition.Store(cleanPos + length)
	}
}

// AddSubscriber tracks pos for flow control, conductor thread only.
func (img *Image) AddSubscriber(pos *Position) {
	img.subscribers.Add(pos)
}

// RemoveSubscriber stops tracking pos, closing it. Conductor thread only.
func (img *Image) RemoveSubscriber(pos *Position) {
	img.subscribers.Remove(pos)
	pos.Close()
}

// IsDrained reports whether every subscriber has consumed up to the
// rebuild position.
func (img *Image) IsDrained() bool {
	min, _, any := img.foldSubscriberPositions()
	if !any {
		return true
	}
	return min >= img.rebuildPosition.Get()
}

// OnLossDetected is the GapHandler the loss detector invokes, on the
// conductor thread, when it discovers (or re-confirms) an actionable gap.
// It publishes the descriptor through the loss-change seqlock for the
// receiver to pick up in ProcessPendingLoss.
func (img *Image) OnLossDetected(termId, termOffset, length int32) {
	img.loss.publish(termId, termOffset, length)
}

// OnTimeEvent drives the INACTIVE->LINGER and LINGER->end-of-life
// transitions. It is called once per conductor tick.
func (img *Image) OnTimeEvent(now int64, cc ConductorClock) {
	switch img.Status() {
	case StatusInactive:
		if img.IsDrained() || now > img.TimeOfLastStateChange()+img.livenessTimeoutNs {
			img.SetStatus(StatusLinger, now)
			if cc != nil {
				cc.ImageTransitionToLinger(img)
			}
		}
	case StatusLinger:
		if now > img.TimeOfLastStateChange()+img.livenessTimeoutNs {
			img.reachedEndOfLife.Store(true)
			img.logf("pubimage: session %d stream %d: end of life", img.sessionId, img.streamId)
			if cc != nil {
				cc.CleanupImage(img)
			}
		}
	}
}
