// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package losscan implements the gap-scanning policy the image's
// conductor path consumes as its LossDetector collaborator: given a term
// buffer and a reconstruction window, find the first gap in the
// contiguous prefix, and — once a gap has persisted past a configurable
// feedback delay — notify the image so it can dispatch a NAK.
package losscan

import (
	"github.com/corenet/pubimage/image"
	"github.com/corenet/pubimage/internal/tslogger"
)

// FrameAlignment is the byte boundary every frame (and therefore every
// gap) is aligned to within a term buffer.
const FrameAlignment = 32

// FeedbackDelayGenerator decides how long to wait, after first observing
// a gap, before asking the image to NAK it, and how long to wait before
// retrying if the gap is still unresolved. Randomized policies help
// multicast receivers avoid NAK storms; this package only consumes the
// policy, it does not define one beyond ConstantDelay.
type FeedbackDelayGenerator func(termId, termOffset, length int32) int64

// ConstantDelay returns a FeedbackDelayGenerator that always waits d
// nanoseconds, a reasonable default absent a more specific policy.
func ConstantDelay(d int64) FeedbackDelayGenerator {
	return func(int32, int32, int32) int64 { return d }
}

// Detector is the default LossDetector implementation.
type Detector struct {
	handler image.GapHandler
	delayFn FeedbackDelayGenerator
	logf    tslogger.Logf

	// gap tracking state, conductor-thread-only (Scan is only ever called
	// from the conductor tick).
	tracking     bool
	gapTermId    int32
	gapOffset    int32
	gapLength    int32
	firstSeenAt  int64
	nextNotifyAt int64
}

// New returns a LossDetectorFactory binding logf and delayFn; the factory
// hands each detector the image it scans for as its gap-handler callback
// target. A nil logf discards diagnostics.
func New(logf tslogger.Logf, delayFn FeedbackDelayGenerator) image.LossDetectorFactory {
	if logf == nil {
		logf = tslogger.Discard
	}
	if delayFn == nil {
		delayFn = ConstantDelay(10_000_000) // 10ms
	}
	return func(handler image.GapHandler) image.LossDetector {
		return &Detector{handler: handler, delayFn: delayFn, logf: logf}
	}
}

// Scan implements image.LossDetector.
func (d *Detector) Scan(term *image.TermBuffer, rebuildPos, hwmPos int64, now int64, termLengthMask int64, shift uint32, initialTermId int32) image.ScanOutcome {
	termOffset := int32(rebuildPos & termLengthMask)

	limitOffset := term.Capacity()
	if sameTerm := (rebuildPos >> shift) == (hwmPos >> shift); sameTerm {
		if hwmOffset := int32(hwmPos & termLengthMask); hwmOffset < limitOffset {
			limitOffset = hwmOffset
		}
	}

	offset := termOffset
	var workCount int32
	for offset < limitOffset {
		frameLength := term.FrameLengthAt(offset)
		if frameLength <= 0 {
			break
		}
		offset += alignedLength(frameLength)
		workCount++
	}

	if offset >= limitOffset {
		// Fully contiguous up to the window; nothing pending.
		d.tracking = false
		return image.ScanOutcome{RebuildOffset: offset, WorkCount: workCount}
	}

	gapLength := d.measureGap(term, offset, limitOffset)
	termId := initialTermId + int32(rebuildPos>>shift)
	d.considerGap(termId, offset, gapLength, now)

	return image.ScanOutcome{RebuildOffset: offset, WorkCount: workCount}
}

// considerGap tracks the currently-open gap and notifies the handler at
// most once per feedback-delay window, so repeated scans of an
// unresolved gap don't each produce a fresh NAK.
func (d *Detector) considerGap(termId, termOffset, length int32, now int64) {
	sameGap := d.tracking && d.gapTermId == termId && d.gapOffset == termOffset && d.gapLength == length
	if !sameGap {
		d.tracking = true
		d.gapTermId = termId
		d.gapOffset = termOffset
		d.gapLength = length
		d.firstSeenAt = now
		d.nextNotifyAt = now + d.delayFn(termId, termOffset, length)
		return
	}

	if now < d.nextNotifyAt {
		return
	}

	d.logf("losscan: gap term %d offset %d length %d, notifying", termId, termOffset, length)
	d.handler.OnLossDetected(termId, termOffset, length)
	d.nextNotifyAt = now + d.delayFn(termId, termOffset, length)
}

// measureGap walks forward from offset, in frame-aligned steps, until it
// finds a published frame header or reaches limitOffset.
func (d *Detector) measureGap(term *image.TermBuffer, offset, limitOffset int32) int32 {
	cursor := offset
	for cursor < limitOffset {
		if term.FrameLengthAt(cursor) != 0 {
			break
		}
		cursor += FrameAlignment
	}
	return cursor - offset
}

func alignedLength(length int32) int32 {
	return (length + FrameAlignment - 1) &^ (FrameAlignment - 1)
}
