// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package udpendpoint

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"unsafe"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/corenet/pubimage/image"
	"github.com/corenet/pubimage/internal/tslogger"
)

// batchSize caps how many messages one ReadBatch/WriteBatch call handles.
// A fixed conservative ceiling, rather than chasing the kernel's actual
// GSO/GRO segment limits.
const batchSize = 64

// batchConn is the subset of ipv4.PacketConn / ipv6.PacketConn this package
// needs; both satisfy it without modification.
type batchConn interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
	Close() error
}

// Endpoint is the concrete image.ChannelEndpoint: one bound UDP socket
// shared by every publication image on a channel, dispatching inbound
// datagrams to the image whose (sessionId, streamId) they carry and
// sending outbound status/NAK frames on behalf of each image.
type Endpoint struct {
	uri  string
	conn batchConn
	pc   net.PacketConn // underlying conn, for WriteTo/Close symmetry
	logf tslogger.Logf

	mu     sync.Mutex
	images map[imageKey]*image.Image
}

type imageKey struct {
	sessionId int32
	streamId  int32
}

// NewEndpoint binds a UDP socket at laddr and wraps it as a batching
// ChannelEndpoint. uri is retained only for OriginalUriString/log context.
func NewEndpoint(uri string, laddr *net.UDPAddr, logf tslogger.Logf) (*Endpoint, error) {
	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("pubimage: listen %v: %w", laddr, err)
	}
	if logf == nil {
		logf = tslogger.Discard
	}

	var bc batchConn
	if laddr.IP.To4() != nil {
		bc = ipv4.NewPacketConn(pc)
	} else {
		bc = ipv6BatchAdapter{ipv6.NewPacketConn(pc)}
	}

	return &Endpoint{
		uri:    uri,
		conn:   bc,
		pc:     pc,
		logf:   logf,
		images: make(map[imageKey]*image.Image),
	}, nil
}

// ipv6BatchAdapter reconciles ipv6.PacketConn's ipv6.Message-typed batch
// methods with the ipv4.Message-typed batchConn interface; the two message
// types are identical in memory layout, only their package differs.
type ipv6BatchAdapter struct{ pc *ipv6.PacketConn }

func (a ipv6BatchAdapter) ReadBatch(ms []ipv4.Message, flags int) (int, error) {
	v6ms := *(*[]ipv6.Message)(unsafe.Pointer(&ms))
	return a.pc.ReadBatch(v6ms, flags)
}

func (a ipv6BatchAdapter) WriteBatch(ms []ipv4.Message, flags int) (int, error) {
	v6ms := *(*[]ipv6.Message)(unsafe.Pointer(&ms))
	return a.pc.WriteBatch(v6ms, flags)
}

func (a ipv6BatchAdapter) Close() error { return a.pc.Close() }

// OriginalUriString implements image.ChannelEndpoint.
func (e *Endpoint) OriginalUriString() string { return e.uri }

// RegisterPublicationImage adds img to the dispatch table keyed by its
// (sessionId, streamId) pair. Called by the conductor once an image is
// created, mirroring RemovePublicationImage's symmetric removal.
func (e *Endpoint) RegisterPublicationImage(img *image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[imageKey{img.SessionId(), img.StreamId()}] = img
}

// RemovePublicationImage implements image.ChannelEndpoint.
func (e *Endpoint) RemovePublicationImage(img *image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.images, imageKey{img.SessionId(), img.StreamId()})
}

// SendStatusMessage implements image.ChannelEndpoint.
func (e *Endpoint) SendStatusMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, receiverWindowLength int32, flags byte) {
	b := EncodeStatusMessage(sessionId, streamId, termId, termOffset, receiverWindowLength, flags)
	if _, err := e.pc.WriteTo(b, net.UDPAddrFromAddrPort(addr)); err != nil {
		e.logf("pubimage: status message to %v: %v", addr, err)
	}
}

// SendNakMessage implements image.ChannelEndpoint.
func (e *Endpoint) SendNakMessage(addr netip.AddrPort, sessionId, streamId, termId, termOffset, length int32) {
	b := EncodeNak(sessionId, streamId, termId, termOffset, length)
	if _, err := e.pc.WriteTo(b, net.UDPAddrFromAddrPort(addr)); err != nil {
		e.logf("pubimage: nak message to %v: %v", addr, err)
	}
}

// Close shuts down the underlying socket.
func (e *Endpoint) Close() error { return e.pc.Close() }

// ReceiveLoop reads batches of inbound datagrams and dispatches data frames
// to the matching registered image's InsertPacket, until the socket closes.
// It is meant to run on its own goroutine, one per Endpoint.
func (e *Endpoint) ReceiveLoop() error {
	bufs := make([][]byte, batchSize)
	msgs := make([]ipv4.Message, batchSize)
	for i := range bufs {
		bufs[i] = make([]byte, 64*1024)
		msgs[i].Buffers = [][]byte{bufs[i]}
	}

	for {
		n, err := e.conn.ReadBatch(msgs, 0)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			e.dispatch(msgs[i].Buffers[0][:msgs[i].N])
		}
	}
}

func (e *Endpoint) dispatch(b []byte) {
	if len(b) < 8 {
		return
	}
	frameType := uint16(b[6]) | uint16(b[7])<<8
	if frameType != frameTypeData {
		return // status/NAK frames loop back to the publisher, not a receiver concern
	}
	if len(b) < image.HeaderLength {
		return
	}
	hdr := DecodeDataHeader(b)

	e.mu.Lock()
	img := e.images[imageKey{hdr.SessionId, hdr.StreamId}]
	e.mu.Unlock()
	if img == nil {
		return
	}
	img.InsertPacket(hdr.TermId, hdr.TermOffset, b, int32(len(b)))
}
