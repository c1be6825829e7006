// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"sync/atomic"
	"unsafe"

	"go4.org/mem"
)

// HeaderLength is the fixed size, in bytes, of a data frame header
// (status message and NAK frames are shorter). A received data frame whose
// length equals HeaderLength and whose first four bytes are zero is a
// heartbeat: a zero-length data frame that advertises position without
// payload.
const HeaderLength = 32

// Frame type identifiers, stored in the header's type field. These must
// stay byte-exact with the wire protocol other implementations speak.
const (
	FrameTypePad    uint16 = 0x00
	FrameTypeData   uint16 = 0x01
	FrameTypeNak    uint16 = 0x02
	FrameTypeStatus uint16 = 0x03
	FrameTypeRttm   uint16 = 0x06
)

// TermCount is the number of term buffers making up the rotating log for
// one image. Position arithmetic throughout this package assumes exactly
// three.
const TermCount = 3

// TermBuffer is one segment of the three-buffer rotating log backing an
// image. It is owned by the RawLog collaborator (mmap-backed in
// production); this type only describes the access pattern the image
// needs from it.
type TermBuffer struct {
	data []byte
}

// NewTermBuffer wraps buf, which must have power-of-two length, as a term
// buffer. Callers own the backing memory; NewTermBuffer does not copy it.
func NewTermBuffer(buf []byte) *TermBuffer {
	return &TermBuffer{data: buf}
}

// Capacity returns the term length in bytes.
func (t *TermBuffer) Capacity() int32 {
	return int32(len(t.data))
}

// Bytes exposes the raw backing slice, for the loss detector's scan and for
// tests. Callers downstream of the receiver must only read it.
func (t *TermBuffer) Bytes() []byte {
	return t.data
}

// Zero clears length bytes starting at offset. Only the conductor's buffer
// hygiene path calls this, well behind the writer's position.
func (t *TermBuffer) Zero(offset, length int32) {
	clear(t.data[offset : offset+length])
}

// frameLengthWord returns an atomic view of the 4-byte frame-length header
// field at offset, so it can be published (Store) or observed (Load) with
// release/acquire ordering independent of the plain byte-slice writes
// around it. offset must be frame-aligned (a multiple of 4), which every
// term offset in this protocol is by construction.
func (t *TermBuffer) frameLengthWord(offset int32) *atomic.Int32 {
	return (*atomic.Int32)(unsafe.Pointer(&t.data[offset]))
}

// FrameLengthAt performs an acquire load of the frame-length header word at
// offset. A non-zero result means a writer has published a complete frame
// there, so any reader observing it is guaranteed to see the payload that
// TermRebuilderInsert wrote before the release store of this word.
func (t *TermBuffer) FrameLengthAt(offset int32) int32 {
	return t.frameLengthWord(offset).Load()
}

// TermRebuilderInsert writes the remainder of the frame header and the
// frame's payload into term at termOffset, then publishes the frame by
// storing its length into the header's first word last, with release
// semantics — so a reader observing a non-zero frame length at termOffset
// is guaranteed to see the complete frame that precedes it.
func TermRebuilderInsert(term *TermBuffer, termOffset int32, srcBytes []byte, length int32) {
	if length > 4 {
		copy(term.data[termOffset+4:termOffset+length], srcBytes[4:length])
	}
	term.frameLengthWord(termOffset).Store(length)
}

var zeroFrameLengthWord = make([]byte, 4)

// isHeartbeat reports whether a received data frame of the given length is
// a heartbeat: a zero-length data frame that carries position but no
// payload. The comparison is zero-copy.
func isHeartbeat(srcBytes []byte, length int32) bool {
	if length != HeaderLength || len(srcBytes) < 4 {
		return false
	}
	return mem.B(srcBytes[0:4]).Equal(mem.B(zeroFrameLengthWord))
}
