// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"
)

const testTermLength = 1 << 16 // 64KiB, small enough for fast tests

func newTestRawLog(t *testing.T) *RawLog {
	t.Helper()
	var buffers [TermCount][]byte
	for i := range buffers {
		buffers[i] = make([]byte, testTermLength)
	}
	return NewRawLog(buffers, func() error { return nil })
}

type fakeEndpoint struct {
	statusMessages []fakeStatusMessage
	naks           []fakeNak
	removed        bool
}

type fakeStatusMessage struct {
	addr                                         netip.AddrPort
	sessionId, streamId, termId, termOffset, win int32
}

type fakeNak struct {
	addr                                            netip.AddrPort
	sessionId, streamId, termId, termOffset, length int32
}

func (f *fakeEndpoint) SendStatusMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, win int32, flags byte) {
	f.statusMessages = append(f.statusMessages, fakeStatusMessage{addr, sessionId, streamId, termId, termOffset, win})
}

func (f *fakeEndpoint) SendNakMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, length int32) {
	f.naks = append(f.naks, fakeNak{addr, sessionId, streamId, termId, termOffset, length})
}

func (f *fakeEndpoint) RemovePublicationImage(img *Image) { f.removed = true }
func (f *fakeEndpoint) OriginalUriString() string         { return "udp://test" }

// countingCounters tallies increments in plain ints; tests are
// single-goroutine so no atomics are needed.
type countingCounters struct {
	heartbeats, statusMessages, naks, underRuns, overRuns, inactive int
}

func (c *countingCounters) HeartbeatsReceived()   { c.heartbeats++ }
func (c *countingCounters) StatusMessagesSent()   { c.statusMessages++ }
func (c *countingCounters) NakMessagesSent()      { c.naks++ }
func (c *countingCounters) FlowControlUnderRuns() { c.underRuns++ }
func (c *countingCounters) FlowControlOverRuns()  { c.overRuns++ }
func (c *countingCounters) ImagesInactive()       { c.inactive++ }

func newTestImage(t *testing.T) (*Image, *fakeEndpoint) {
	t.Helper()
	ep := &fakeEndpoint{}
	cfg := Config{
		CorrelationId:     1,
		SessionId:         10,
		StreamId:          20,
		InitialTermId:     0,
		ActiveTermId:      0,
		InitialTermOffset: 0,
		InitialWindow:     1 << 12,
		LivenessTimeoutNs: int64(1e9),
		ControlAddress:    netip.MustParseAddrPort("127.0.0.1:9999"),
	}
	img, err := NewImage(cfg, newTestRawLog(t), ep, nil, nil, func() int64 { return 0 }, 0)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img, ep
}

func newTestImageWithCounters(t *testing.T) (*Image, *countingCounters) {
	t.Helper()
	counters := &countingCounters{}
	cfg := Config{
		SessionId:         10,
		StreamId:          20,
		InitialTermId:     0,
		ActiveTermId:      0,
		InitialTermOffset: 0,
		InitialWindow:     1 << 12,
		LivenessTimeoutNs: int64(1e9),
		ControlAddress:    netip.MustParseAddrPort("127.0.0.1:9999"),
	}
	img, err := NewImage(cfg, newTestRawLog(t), &fakeEndpoint{}, nil, counters, func() int64 { return 0 }, 0)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img, counters
}

func TestNewImageSeedsStatusMessagePositionBelowInitial(t *testing.T) {
	img, _ := newTestImage(t)

	// Constructed with ActiveTermId=0, InitialTermOffset=0, InitialTermId=0.
	initialPosition := ComputePosition(0, 0, img.positionBitsToShift, img.initialTermId)
	want := initialPosition - int64(img.currentGain) - 1

	if got := img.pub.newStatusMessagePosition.Load(); got != want {
		t.Errorf("newStatusMessagePosition = %d, want %d (initialPosition - gain - 1)", got, want)
	}
	if got := img.recv.lastStatusMessagePosition.Load(); got != want {
		t.Errorf("lastStatusMessagePosition = %d, want %d", got, want)
	}
}

func TestNewImageLogsWhenGainSwallowsInitialPosition(t *testing.T) {
	var lines []string
	logf := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	cfg := Config{
		SessionId:         10,
		StreamId:          20,
		InitialWindow:     1 << 12,
		LivenessTimeoutNs: int64(1e9),
		ControlAddress:    netip.MustParseAddrPort("127.0.0.1:9999"),
		Logf:              logf,
	}

	// Starting at position zero, the gain always exceeds the initial
	// position and the seeded status position goes negative; that gets one
	// diagnostic line, and the seeding itself is untouched.
	img, err := NewImage(cfg, newTestRawLog(t), &fakeEndpoint{}, nil, nil, func() int64 { return 0 }, 0)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	found := false
	for _, l := range lines {
		if strings.Contains(l, "gain") {
			found = true
		}
	}
	if !found {
		t.Errorf("no gain diagnostic logged at construction; lines = %q", lines)
	}
	if got := img.pub.newStatusMessagePosition.Load(); got >= 0 {
		t.Errorf("newStatusMessagePosition = %d, want negative seed preserved", got)
	}

	// Starting a term in, the initial position clears the gain and nothing
	// is logged.
	lines = nil
	cfg.ActiveTermId = 1
	if _, err := NewImage(cfg, newTestRawLog(t), &fakeEndpoint{}, nil, nil, func() int64 { return 0 }, 0); err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("unexpected construction diagnostics: %q", lines)
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	img, _ := newTestImage(t)

	if img.Status() != StatusInit {
		t.Fatalf("Status() = %v, want INIT", img.Status())
	}
	if !img.Activate(1) {
		t.Fatal("first Activate() = false, want true")
	}
	if img.Status() != StatusActive {
		t.Fatalf("Status() = %v, want ACTIVE", img.Status())
	}
	if img.Activate(2) {
		t.Fatal("second Activate() = true, want false (already left INIT)")
	}
}

func TestLifecycleInactiveLingerEndOfLife(t *testing.T) {
	img, _ := newTestImage(t)
	img.Activate(0)

	if img.CheckForActivity(0) != true {
		t.Fatal("CheckForActivity(0) immediately after construction should be true")
	}

	past := img.livenessTimeoutNs + 1
	if img.CheckForActivity(past) {
		t.Fatal("CheckForActivity should report false once the liveness timeout has elapsed")
	}
	img.IfActiveGoInactive(past)
	if img.Status() != StatusInactive {
		t.Fatalf("Status() = %v, want INACTIVE", img.Status())
	}

	// No subscribers were ever added, so IsDrained is vacuously true and
	// the very next tick moves INACTIVE -> LINGER.
	img.OnTimeEvent(past, nil)
	if img.Status() != StatusLinger {
		t.Fatalf("Status() = %v, want LINGER", img.Status())
	}

	img.OnTimeEvent(past+img.livenessTimeoutNs+1, nil)
	if !img.HasReachedEndOfLife() {
		t.Fatal("HasReachedEndOfLife() = false after the liveness timeout elapsed in LINGER")
	}
}

func TestMatches(t *testing.T) {
	img, ep := newTestImage(t)
	if !img.Matches(ep, img.StreamId()) {
		t.Fatal("Matches(own endpoint, own streamId) = false")
	}
	if img.Matches(ep, img.StreamId()+1) {
		t.Fatal("Matches(own endpoint, other streamId) = true")
	}
	other := &fakeEndpoint{}
	if img.Matches(other, img.StreamId()) {
		t.Fatal("Matches(other endpoint, own streamId) = true")
	}
}

func TestRemoveFromDispatcher(t *testing.T) {
	img, ep := newTestImage(t)
	img.RemoveFromDispatcher()
	if !ep.removed {
		t.Fatal("RemoveFromDispatcher did not call endpoint.RemovePublicationImage")
	}
}
