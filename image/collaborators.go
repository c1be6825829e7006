// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "net/netip"

// ChannelEndpoint is the UDP channel endpoint collaborator: the transport
// surface an image sends feedback through and detaches itself from at
// end of life. A concrete implementation lives outside this package
// (internal/udpendpoint in this module); the image only depends on this
// interface.
type ChannelEndpoint interface {
	SendStatusMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, receiverWindowLength int32, flags byte)
	SendNakMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, length int32)
	RemovePublicationImage(img *Image)
	OriginalUriString() string
}

// RawLog is the mmap-backed term-buffer-trio collaborator.
type RawLog struct {
	Buffers    [TermCount]*TermBuffer
	termLength int32
	closeFn    func() error
}

// NewRawLog wraps three equally sized, power-of-two term buffers as one
// rotating log.
func NewRawLog(buffers [TermCount][]byte, closeFn func() error) *RawLog {
	rl := &RawLog{termLength: int32(len(buffers[0])), closeFn: closeFn}
	for i := range buffers {
		rl.Buffers[i] = NewTermBuffer(buffers[i])
	}
	return rl
}

// TermLength returns the power-of-two length of each term buffer.
func (r *RawLog) TermLength() int32 { return r.termLength }

// Close releases the backing memory. Call it at most once per image
// lifecycle; Image.Close calls it and does not guard against being
// called twice itself.
func (r *RawLog) Close() error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

// ScanOutcome is what the loss detector returns from one scan: the new
// rebuild offset within the scanned term, and how much work (gap
// inspection, feedback dispatch) the scan performed.
type ScanOutcome struct {
	RebuildOffset int32
	WorkCount     int32
}

// LossDetector identifies the first gap in a term buffer's reconstructed
// prefix and, on discovering a gap older than its feedback-delay policy,
// invokes the GapHandler it was constructed with. It is specified and
// owned elsewhere; the image only drives scanning and consumes the
// outcome.
type LossDetector interface {
	Scan(term *TermBuffer, rebuildPos, hwmPos int64, now int64, termLengthMask int64, shift uint32, initialTermId int32) ScanOutcome
}

// GapHandler is notified when a loss detector discovers, or re-confirms,
// an actionable gap. Image implements this via OnLossDetected.
type GapHandler interface {
	OnLossDetected(termId, termOffset, length int32)
}

// LossDetectorFactory constructs a LossDetector bound to handler. NewImage
// takes a factory rather than a ready LossDetector because the detector
// must be handed a reference to the image being constructed.
type LossDetectorFactory func(handler GapHandler) LossDetector

// noopLossDetector is the fallback when no factory is supplied: it holds
// the rebuild offset where it is and never reports gaps.
type noopLossDetector struct{}

func (noopLossDetector) Scan(_ *TermBuffer, rebuildPos, _ int64, _ int64, termLengthMask int64, _ uint32, _ int32) ScanOutcome {
	return ScanOutcome{RebuildOffset: int32(rebuildPos & termLengthMask)}
}

// SystemCounters is the system-wide counter registry collaborator. Every
// method is an ordered (atomic) increment.
type SystemCounters interface {
	HeartbeatsReceived()
	StatusMessagesSent()
	NakMessagesSent()
	FlowControlUnderRuns()
	FlowControlOverRuns()
	ImagesInactive()
}

// NoopSystemCounters discards all increments. Useful for tests and for
// callers that don't need metrics wired up.
type NoopSystemCounters struct{}

func (NoopSystemCounters) HeartbeatsReceived()   {}
func (NoopSystemCounters) StatusMessagesSent()   {}
func (NoopSystemCounters) NakMessagesSent()      {}
func (NoopSystemCounters) FlowControlUnderRuns() {}
func (NoopSystemCounters) FlowControlOverRuns()  {}
func (NoopSystemCounters) ImagesInactive()       {}
