// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package image holds the receiver-side reception state for a single
// publisher's flow within a channel: one (session, stream) publication
// image. An image reassembles an ordered byte-stream out of unreliable
// datagrams, tracks a flow-control window across local subscribers,
// requests retransmission of lost ranges, and runs through a lifecycle
// from first packet to reaping.
//
// The type is driven by two cooperative, allocation-free call paths that
// never block: the receiver path (network ingress and periodic status
// feedback) and the conductor path (lifecycle, loss dispatch, buffer
// hygiene). Subscribers are external consumers that only advance their
// own read position.
package image
