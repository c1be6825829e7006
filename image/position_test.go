// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "testing"

func TestPositionBitsToShift(t *testing.T) {
	cases := []struct {
		termLength int32
		want       uint32
	}{
		{1 << 16, 16},
		{1 << 20, 20},
		{1 << 24, 24},
	}
	for _, c := range cases {
		if got := PositionBitsToShift(c.termLength); got != c.want {
			t.Errorf("PositionBitsToShift(%d) = %d, want %d", c.termLength, got, c.want)
		}
	}
}

func TestComputePositionRoundTrip(t *testing.T) {
	const shift = 16
	const initialTermId = 7

	cases := []struct {
		termId, offset int32
		want           int64
	}{
		{7, 0, 0},
		{7, 100, 100},
		{8, 0, 1 << 16},
		{9, 42, 2<<16 + 42},
	}
	for _, c := range cases {
		got := ComputePosition(c.termId, c.offset, shift, initialTermId)
		if got != c.want {
			t.Errorf("ComputePosition(%d, %d) = %d, want %d", c.termId, c.offset, got, c.want)
		}
		gotTermId := ComputeTermIdFromPosition(got, shift, initialTermId)
		if gotTermId != c.termId {
			t.Errorf("ComputeTermIdFromPosition(%d) = %d, want %d", got, gotTermId, c.termId)
		}
		gotOffset := TermOffset(got, (1<<shift)-1)
		if gotOffset != c.offset {
			t.Errorf("TermOffset(%d) = %d, want %d", got, gotOffset, c.offset)
		}
	}
}

func TestIndexByPosition(t *testing.T) {
	const shift = 16
	for i := 0; i < 8; i++ {
		pos := int64(i) << shift
		idx := IndexByPosition(pos, shift)
		want := IndexByTermCount(int64(i))
		if idx != want {
			t.Errorf("IndexByPosition(%d) = %d, want %d", pos, idx, want)
		}
		if idx < 0 || idx >= TermCount {
			t.Errorf("IndexByPosition(%d) = %d out of range", pos, idx)
		}
	}
}
