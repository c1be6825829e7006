// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package udpendpoint

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeStatusMessageLayout(t *testing.T) {
	b := EncodeStatusMessage(0x11223344, 0x55667788, 7, 4096, 32768, 0x01)

	if len(b) != StatusMessageLength {
		t.Fatalf("len = %d, want %d", len(b), StatusMessageLength)
	}
	if got := int32(binary.LittleEndian.Uint32(b[0:4])); got != StatusMessageLength {
		t.Errorf("frameLength = %d, want %d", got, StatusMessageLength)
	}
	if b[4] != 0 {
		t.Errorf("version = %d, want 0", b[4])
	}
	if b[5] != 0x01 {
		t.Errorf("flags = %#x, want 0x01", b[5])
	}
	if got := binary.LittleEndian.Uint16(b[6:8]); got != frameTypeStatus {
		t.Errorf("type = %#x, want %#x", got, frameTypeStatus)
	}
	if got := binary.LittleEndian.Uint32(b[8:12]); got != 0x11223344 {
		t.Errorf("sessionId = %#x, want 0x11223344", got)
	}
	if got := binary.LittleEndian.Uint32(b[16:20]); got != 7 {
		t.Errorf("consumptionTermId = %d, want 7", got)
	}
	if got := binary.LittleEndian.Uint32(b[20:24]); got != 4096 {
		t.Errorf("consumptionTermOffset = %d, want 4096", got)
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 32768 {
		t.Errorf("receiverWindowLength = %d, want 32768", got)
	}
}

func TestEncodeNakLayout(t *testing.T) {
	b := EncodeNak(1, 1001, 7, 4096, 512)

	if len(b) != NakMessageLength {
		t.Fatalf("len = %d, want %d", len(b), NakMessageLength)
	}
	if got := binary.LittleEndian.Uint16(b[6:8]); got != frameTypeNak {
		t.Errorf("type = %#x, want %#x", got, frameTypeNak)
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 512 {
		t.Errorf("length = %d, want 512", got)
	}
}

func TestDecodeDataHeader(t *testing.T) {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:4], 1056)
	b[4] = 0
	b[5] = 0xC0 // begin and end fragment flags
	binary.LittleEndian.PutUint16(b[6:8], frameTypeData)
	binary.LittleEndian.PutUint32(b[8:12], 8192)        // termOffset
	binary.LittleEndian.PutUint32(b[12:16], 42)         // sessionId
	binary.LittleEndian.PutUint32(b[16:20], 1001)       // streamId
	binary.LittleEndian.PutUint32(b[20:24], 7)          // termId
	binary.LittleEndian.PutUint64(b[24:32], 0xDEADBEEF) // reservedValue

	got := DecodeDataHeader(b)
	want := DataHeaderFields{
		FrameLength:   1056,
		Flags:         0xC0,
		TermOffset:    8192,
		SessionId:     42,
		StreamId:      1001,
		TermId:        7,
		ReservedValue: 0xDEADBEEF,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeDataHeader mismatch (-want +got):\n%s", diff)
	}
}
