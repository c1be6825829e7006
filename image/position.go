// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "math/bits"

// PositionBitsToShift returns the number of bits a term offset occupies
// within a stream position, for a power-of-two termLength.
func PositionBitsToShift(termLength int32) uint32 {
	return uint32(bits.TrailingZeros32(uint32(termLength)))
}

// ComputePosition maps a (termId, termOffset) pair onto the 64-bit
// monotonic stream position space, relative to initialTermId.
func ComputePosition(termId, termOffset int32, shift uint32, initialTermId int32) int64 {
	termCount := int64(termId - initialTermId)
	return (termCount << shift) + int64(termOffset)
}

// ComputeTermIdFromPosition recovers the term id a position falls within.
func ComputeTermIdFromPosition(pos int64, shift uint32, initialTermId int32) int32 {
	return int32(pos>>shift) + initialTermId
}

// TermOffset recovers the byte offset within a term that pos encodes.
func TermOffset(pos int64, termLengthMask int64) int32 {
	return int32(pos & termLengthMask)
}

// IndexByPosition maps a position onto one of the three term buffers in
// the rotating log.
func IndexByPosition(pos int64, shift uint32) int {
	return int((pos >> shift) % 3)
}

// IndexByTermCount maps a term count (termId - initialTermId) onto one of
// the three term buffers, for callers that already have a term id rather
// than a position.
func IndexByTermCount(termCount int64) int {
	return int(termCount % 3)
}
