// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

// InsertPacket applies one received data frame to the image. It never
// blocks and never allocates; the return value is always length — the
// sender's accounting is based on frame length, not acceptance.
// Acceptance is observable only through the counters and through position
// advance.
func (img *Image) InsertPacket(termId, termOffset int32, srcBytes []byte, length int32) int32 {
	heartbeat := isHeartbeat(srcBytes, length)
	packetPosition := ComputePosition(termId, termOffset, img.positionBitsToShift, img.initialTermId)

	var proposedPosition int64
	if heartbeat {
		proposedPosition = packetPosition
	} else {
		proposedPosition = packetPosition + int64(length)
	}

	windowPosition := img.recv.lastStatusMessagePosition.Load()

	if img.isFlowControlUnderRun(windowPosition, packetPosition) {
		return length
	}
	if img.isFlowControlOverRun(windowPosition, proposedPosition) {
		return length
	}

	if heartbeat {
		img.counters.HeartbeatsReceived()
	} else {
		termIndex := IndexByPosition(packetPosition, img.positionBitsToShift)
		TermRebuilderInsert(img.rawLog.Buffers[termIndex], termOffset, srcBytes, length)
	}

	img.hwmCandidate(proposedPosition)

	return length
}

func (img *Image) isFlowControlUnderRun(windowPosition, packetPosition int64) bool {
	underrun := packetPosition < windowPosition
	if underrun {
		img.counters.FlowControlUnderRuns()
		img.logf("pubimage: session %d stream %d: under-run drop, packet position %d behind window %d",
			img.sessionId, img.streamId, packetPosition, windowPosition)
	}
	return underrun
}

func (img *Image) isFlowControlOverRun(windowPosition, proposedPosition int64) bool {
	overrun := proposedPosition > windowPosition+int64(img.currentWindowLength)
	if overrun {
		img.counters.FlowControlOverRuns()
		img.logf("pubimage: session %d stream %d: over-run drop, proposed position %d beyond window %d+%d",
			img.sessionId, img.streamId, proposedPosition, windowPosition, img.currentWindowLength)
	}
	return overrun
}

// hwmCandidate records packet arrival and proposes the new high-water
// mark, using the image's own clock for the acceptance timestamp.
func (img *Image) hwmCandidate(proposedPosition int64) {
	img.recv.lastPacketTimestamp.Store(img.clock())
	img.hwmPosition.ProposeMaxOrdered(proposedPosition)
}

// SendPendingStatusMessage emits a status message if the published
// position has moved since the last one sent, or if the periodic
// keepalive timeout has elapsed. It only does anything while the image is
// ACTIVE.
func (img *Image) SendPendingStatusMessage(now int64, smTimeout int64) int32 {
	if img.Status() != StatusActive {
		return 0
	}

	smPos := img.pub.newStatusMessagePosition.Load()
	lastSent := img.recv.lastStatusMessagePosition.Load()
	lastSentAt := img.recv.lastStatusMessageTimestamp.Load()

	if smPos == lastSent && now <= lastSentAt+smTimeout {
		return 0
	}

	termId := ComputeTermIdFromPosition(smPos, img.positionBitsToShift, img.initialTermId)
	termOffset := TermOffset(smPos, img.termLengthMask)

	img.endpoint.SendStatusMessage(img.controlAddress, img.sessionId, img.streamId, termId, termOffset, img.currentWindowLength, 0)

	img.recv.lastStatusMessageTimestamp.Store(now)
	img.recv.lastStatusMessagePosition.Store(smPos)
	img.counters.StatusMessagesSent()
	img.logf("pubimage: session %d stream %d: status message, position %d window %d",
		img.sessionId, img.streamId, smPos, img.currentWindowLength)

	return 1
}

// ProcessPendingLoss drains one pending loss descriptor, if any, and
// issues a NAK. It is a seqlock read: see lossChange for the protocol.
func (img *Image) ProcessPendingLoss() int32 {
	changeNumber, termId, termOffset, length, ok := img.loss.read()

	if changeNumber == img.lastChangeNumber {
		return 0
	}
	if !ok {
		// The conductor is mid-publish; abandon this attempt, the next
		// call retries.
		return 0
	}

	img.endpoint.SendNakMessage(img.controlAddress, img.sessionId, img.streamId, termId, termOffset, length)
	img.lastChangeNumber = changeNumber
	img.counters.NakMessagesSent()
	img.logf("pubimage: session %d stream %d: nak, term %d offset %d length %d",
		img.sessionId, img.streamId, termId, termOffset, length)

	return 1
}

// CheckForActivity reports whether the image has received a packet within
// its liveness timeout as of now.
func (img *Image) CheckForActivity(now int64) bool {
	return now <= img.recv.lastPacketTimestamp.Load()+img.livenessTimeoutNs
}

// IfActiveGoInactive transitions ACTIVE -> INACTIVE, if currently ACTIVE.
// Called by the receiver once CheckForActivity reports false.
func (img *Image) IfActiveGoInactive(now int64) {
	if img.Status() == StatusActive {
		img.SetStatus(StatusInactive, now)
		img.counters.ImagesInactive()
	}
}

// OnRttMeasurement is a reserved hook for a future congestion-control
// policy. It takes no action.
func (img *Image) OnRttMeasurement(rttNanos int64, srcAddress string) {
	_ = rttNanos
	_ = srcAddress
}
