// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package udpendpoint implements the image package's ChannelEndpoint
// collaborator over real UDP sockets, using golang.org/x/net's ipv4/ipv6
// PacketConn for batched reads, and encodes/decodes frames as
// fixed-offset, little-endian flyweights over the raw datagram bytes.
package udpendpoint

import "encoding/binary"

// Frame type identifiers, mirrored from the image package's FrameType
// constants.
const (
	frameTypeData   uint16 = 0x01
	frameTypeNak    uint16 = 0x02
	frameTypeStatus uint16 = 0x03
)

// Status message and NAK frames are 28 bytes; data frame headers are 32 —
// both fixed, wire-exact layouts.
const (
	StatusMessageLength = 28
	NakMessageLength    = 28
)

var (
	get32 = binary.LittleEndian.Uint32
	get64 = binary.LittleEndian.Uint64
	put32 = binary.LittleEndian.PutUint32
	put64 = binary.LittleEndian.PutUint64
)

// encodeCommonHeader writes the frame-length, version, flags and type
// fields shared by every frame kind.
func encodeCommonHeader(b []byte, frameLength int32, flags byte, frameType uint16) {
	put32(b[0:4], uint32(frameLength))
	b[4] = 0 // version
	b[5] = flags
	binary.LittleEndian.PutUint16(b[6:8], frameType)
}

// EncodeStatusMessage renders a Status Message frame: (sessionId, streamId,
// termId, termOffset, receiverWindowLength, flags). Byte layout:
//
//	0:4   frameLength
//	4     version
//	5     flags
//	6:8   type
//	8:12  sessionId
//	12:16 streamId
//	16:20 consumptionTermId
//	20:24 consumptionTermOffset
//	24:28 receiverWindowLength
func EncodeStatusMessage(sessionId, streamId, termId, termOffset, receiverWindowLength int32, flags byte) []byte {
	b := make([]byte, StatusMessageLength)
	encodeCommonHeader(b, StatusMessageLength, flags, frameTypeStatus)
	put32(b[8:12], uint32(sessionId))
	put32(b[12:16], uint32(streamId))
	put32(b[16:20], uint32(termId))
	put32(b[20:24], uint32(termOffset))
	put32(b[24:28], uint32(receiverWindowLength))
	return b
}

// EncodeNak renders a NAK frame: (sessionId, streamId, termId, termOffset,
// length). Byte layout matches EncodeStatusMessage's, with the last word
// holding the requested retransmission length instead of a window.
func EncodeNak(sessionId, streamId, termId, termOffset, length int32) []byte {
	b := make([]byte, NakMessageLength)
	encodeCommonHeader(b, NakMessageLength, 0, frameTypeNak)
	put32(b[8:12], uint32(sessionId))
	put32(b[12:16], uint32(streamId))
	put32(b[16:20], uint32(termId))
	put32(b[20:24], uint32(termOffset))
	put32(b[24:28], uint32(length))
	return b
}

// DataHeaderFields is the decoded view of a received data frame header,
// used by callers that read raw UDP datagrams off the wire before handing
// them to Image.InsertPacket.
type DataHeaderFields struct {
	FrameLength   int32
	Flags         byte
	TermOffset    int32
	SessionId     int32
	StreamId      int32
	TermId        int32
	ReservedValue uint64
}

// DecodeDataHeader parses the fixed 32-byte data frame header out of b.
// b must be at least image.HeaderLength bytes.
func DecodeDataHeader(b []byte) DataHeaderFields {
	return DataHeaderFields{
		FrameLength:   int32(get32(b[0:4])),
		Flags:         b[5],
		TermOffset:    int32(get32(b[8:12])),
		SessionId:     int32(get32(b[12:16])),
		StreamId:      int32(get32(b[16:20])),
		TermId:        int32(get32(b[20:24])),
		ReservedValue: get64(b[24:32]),
	}
}
