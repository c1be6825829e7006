// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/corenet/pubimage/internal/tslogger"
)

// Status is the image's lifecycle state, from first packet to reaping.
type Status int32

const (
	StatusInit Status = iota
	StatusActive
	StatusInactive
	StatusLinger
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusLinger:
		return "LINGER"
	default:
		return "UNKNOWN"
	}
}

// cacheLinePad is sized to push neighbouring fields onto distinct
// cachelines, so a write by one actor (receiver, conductor, or the
// cross-thread status publish) never evicts another actor's hot fields.
// Mixing, say, lastPacketTimestamp with cleanPosition measurably hurts
// throughput under contention.
type cacheLinePad [64]byte

// receiverHotFields is written only by the receiver thread.
type receiverHotFields struct {
	_                          cacheLinePad
	lastPacketTimestamp        atomic.Int64
	lastStatusMessageTimestamp atomic.Int64
	lastStatusMessagePosition  atomic.Int64
	_                          cacheLinePad
}

// conductorHotFields is written only by the conductor thread.
type conductorHotFields struct {
	_             cacheLinePad
	cleanPosition atomic.Int64
	_             cacheLinePad
}

// statusPublishedField is written by the conductor and read by the
// receiver: the conductor computes it from the slowest subscriber, the
// receiver reads it when emitting status messages.
type statusPublishedField struct {
	_                        cacheLinePad
	newStatusMessagePosition atomic.Int64
	_                        cacheLinePad
}

// Config carries the construction-time parameters a caller supplies; it is
// the image's analogue of the driver's per-channel/stream tunables.
type Config struct {
	CorrelationId     uint64
	SessionId         int32
	StreamId          int32
	InitialTermId     int32
	ActiveTermId      int32
	InitialTermOffset int32
	InitialWindow     int32
	LivenessTimeoutNs int64
	ControlAddress    netip.AddrPort
	SourceAddress     netip.AddrPort

	// Logf receives the image's diagnostics: drop reasons, status
	// transitions, NAK and status-message emission. nil discards them.
	// Hot-path callers should pass a rate-limited func.
	Logf tslogger.Logf
}

// Image is the receiver-side reception state for one publisher's flow
// within a channel: one (session, stream) publication image.
//
// Construction preconditions (the caller's responsibility; violating them
// leaves the image's arithmetic undefined): termLength must be a positive
// power of two, and the configured window must fit within it.
type Image struct {
	// Immutable identity, set once at construction.
	correlationId       uint64
	sessionId           int32
	streamId            int32
	initialTermId       int32
	positionBitsToShift uint32
	termLengthMask      int64
	currentWindowLength int32
	currentGain         int32
	livenessTimeoutNs   int64
	controlAddress      netip.AddrPort
	sourceAddress       netip.AddrPort

	rawLog       *RawLog
	endpoint     ChannelEndpoint
	lossDetector LossDetector
	counters     SystemCounters
	clock        NanoClock
	logf         tslogger.Logf

	recv receiverHotFields
	cond conductorHotFields
	pub  statusPublishedField
	loss lossChange

	lastChangeNumber int64 // receiver-local, not shared

	hwmPosition     *Position
	rebuildPosition *Position
	subscribers     *subscriberSet

	// status and lifecycle bookkeeping. status transitions INIT->ACTIVE
	// happen on the receiver thread; ACTIVE->INACTIVE on the receiver
	// thread; INACTIVE->LINGER and LINGER->end-of-life on the conductor
	// thread. timeOfLastStatusChange and reachedEndOfLife are therefore
	// touched by whichever thread is driving the current transition, never
	// concurrently, so plain atomics (not a mutex) are enough.
	status                 atomic.Int32
	timeOfLastStatusChange atomic.Int64
	reachedEndOfLife       atomic.Bool
}

// NewImage constructs an image and seeds its positions from cfg and now
// (nanoseconds, monotonic). termLength is recovered from rawLog.
//
// The initial newStatusMessagePosition is seeded to initialPosition -
// gain - 1, which puts the advance threshold (seed + gain) one below
// initialPosition: the first TrackRebuild that sees the slowest
// subscriber at initialPosition or beyond advances it. If the receiver
// promotes the image to ACTIVE before the conductor's first tick, the
// very first status message announces the seeded position itself.
func NewImage(cfg Config, rawLog *RawLog, endpoint ChannelEndpoint, newLossDetector LossDetectorFactory, counters SystemCounters, clock NanoClock, now int64) (*Image, error) {
	termLength := rawLog.TermLength()
	if termLength <= 0 || termLength&(termLength-1) != 0 {
		return nil, fmt.Errorf("pubimage: term length %d is not a positive power of two", termLength)
	}
	if counters == nil {
		counters = NoopSystemCounters{}
	}
	if clock == nil {
		clock = defaultNanoClock
	}
	logf := cfg.Logf
	if logf == nil {
		logf = tslogger.Discard
	}

	windowLength := WindowLength(termLength, cfg.InitialWindow)
	gain := Gain(windowLength)
	shift := PositionBitsToShift(termLength)

	img := &Image{
		correlationId:       cfg.CorrelationId,
		sessionId:           cfg.SessionId,
		streamId:            cfg.StreamId,
		initialTermId:       cfg.InitialTermId,
		positionBitsToShift: shift,
		termLengthMask:      int64(termLength - 1),
		currentWindowLength: windowLength,
		currentGain:         gain,
		livenessTimeoutNs:   cfg.LivenessTimeoutNs,
		controlAddress:      cfg.ControlAddress,
		sourceAddress:       cfg.SourceAddress,
		rawLog:              rawLog,
		endpoint:            endpoint,
		counters:            counters,
		subscribers:         newSubscriberSet(),
		lastChangeNumber:    -1,
		clock:               clock,
		logf:                logf,
	}
	img.loss.beginChange.Store(-1)
	img.loss.endChange.Store(-1)
	if newLossDetector != nil {
		img.lossDetector = newLossDetector(img)
	} else {
		img.lossDetector = noopLossDetector{}
	}

	initialPosition := ComputePosition(cfg.ActiveTermId, cfg.InitialTermOffset, shift, cfg.InitialTermId)
	lastSMPosition := initialPosition - int64(gain) - 1
	if int64(gain) >= initialPosition {
		// Seeding, not a correction: the first status message announces
		// this negative position as-is.
		logf("pubimage: session %d stream %d: gain %d >= initial position %d, initial status position seeds to %d",
			cfg.SessionId, cfg.StreamId, gain, initialPosition, lastSMPosition)
	}

	img.recv.lastPacketTimestamp.Store(now)
	img.recv.lastStatusMessageTimestamp.Store(now)
	img.recv.lastStatusMessagePosition.Store(lastSMPosition)
	img.pub.newStatusMessagePosition.Store(lastSMPosition)
	img.cond.cleanPosition.Store(initialPosition)

	img.hwmPosition = NewPosition(initialPosition)
	img.rebuildPosition = NewPosition(initialPosition)

	img.status.Store(int32(StatusInit))
	img.timeOfLastStatusChange.Store(now)

	return img, nil
}

// CorrelationId returns the identifier this image was registered under.
func (img *Image) CorrelationId() uint64 { return img.correlationId }

// SessionId is the session id of the channel from the publisher.
func (img *Image) SessionId() int32 { return img.sessionId }

// StreamId is the stream id of this image within the channel.
func (img *Image) StreamId() int32 { return img.streamId }

// ChannelURI returns the channel endpoint's original URI string, used only
// for log context.
func (img *Image) ChannelURI() string {
	if img.endpoint == nil {
		return ""
	}
	return img.endpoint.OriginalUriString()
}

// SourceAddress is the address the publisher's packets arrive from.
func (img *Image) SourceAddress() netip.AddrPort { return img.sourceAddress }

// Matches reports whether this image belongs to endpoint and streamId.
func (img *Image) Matches(endpoint ChannelEndpoint, streamId int32) bool {
	return img.streamId == streamId && img.endpoint == endpoint
}

// Status returns the current lifecycle status.
func (img *Image) Status() Status {
	return Status(img.status.Load())
}

// SetStatus transitions the image to status, stamping the transition time.
func (img *Image) SetStatus(status Status, now int64) {
	old := Status(img.status.Load())
	img.timeOfLastStatusChange.Store(now)
	img.status.Store(int32(status))
	img.logf("pubimage: session %d stream %d: %v -> %v", img.sessionId, img.streamId, old, status)
}

// Activate promotes the image from INIT to ACTIVE, once the receiver
// considers connection setup complete. It is idempotent: calling it again
// after the image has already left INIT does nothing and reports false.
func (img *Image) Activate(now int64) bool {
	if !img.status.CompareAndSwap(int32(StatusInit), int32(StatusActive)) {
		return false
	}
	img.timeOfLastStatusChange.Store(now)
	img.logf("pubimage: session %d stream %d: %v -> %v", img.sessionId, img.streamId, StatusInit, StatusActive)
	return true
}

// TimeOfLastStateChange returns the time of the last status transition.
// It is read-only by design; the matching setter,
// SetTimeOfLastStateChange, is a historical no-op.
func (img *Image) TimeOfLastStateChange() int64 {
	return img.timeOfLastStatusChange.Load()
}

// SetTimeOfLastStateChange is deliberately a no-op. The transition time
// is only ever stamped by the image's own state changes; this setter
// exists for interface symmetry with the getter and intentionally does
// not let callers rewrite the timestamp.
func (img *Image) SetTimeOfLastStateChange(int64) {}

// HasReachedEndOfLife reports whether the conductor's reaper may close
// this image.
func (img *Image) HasReachedEndOfLife() bool {
	return img.reachedEndOfLife.Load()
}

// RebuildPosition returns the end of the contiguous reconstructed prefix.
func (img *Image) RebuildPosition() int64 {
	return img.rebuildPosition.Get()
}

// SubscriberCount returns the number of subscribers currently tracked for
// flow control.
func (img *Image) SubscriberCount() int {
	return img.subscribers.Count()
}

// RemoveFromDispatcher detaches this image from the channel endpoint's
// receive dispatch fan-out, so no further network delivery reaches it.
// Called once, from the conductor, ahead of Close.
func (img *Image) RemoveFromDispatcher() {
	if img.endpoint != nil {
		img.endpoint.RemovePublicationImage(img)
	}
}

// Close releases the position counters and the raw log. It must be called
// exactly once per image, from the conductor, after HasReachedEndOfLife is
// true; it is not safe to call twice.
func (img *Image) Close() error {
	img.hwmPosition.Close()
	img.rebuildPosition.Close()
	for _, p := range img.subscribers.Snapshot() {
		p.Close()
	}
	return img.rawLog.Close()
}

// Delete is an alias for Close, matching the conductor-facing vocabulary
// used elsewhere in the lifecycle (AddSubscriber/RemoveSubscriber/Delete).
func (img *Image) Delete() error {
	return img.Close()
}
