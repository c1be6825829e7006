// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package imagemetrics implements the image package's SystemCounters
// collaborator, the system-wide counter registry for heartbeats, status
// messages, NAKs, and flow-control drops, backed by a Prometheus
// registry: a standalone receiver process benefits from a scrape
// endpoint more than from shared-memory introspection.
package imagemetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a prometheus.Registry with the counter families the
// image increments, each labeled by session and stream so that counts for
// one image don't clobber another's.
type Registry struct {
	reg *prometheus.Registry

	heartbeatsReceived   *prometheus.CounterVec
	statusMessagesSent   *prometheus.CounterVec
	nakMessagesSent      *prometheus.CounterVec
	flowControlUnderRuns *prometheus.CounterVec
	flowControlOverRuns  *prometheus.CounterVec
	imagesInactive       *prometheus.CounterVec
}

// NewRegistry creates and registers the counter families.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	labels := []string{"session_id", "stream_id"}
	mk := func(name, help string) *prometheus.CounterVec {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, labels)
		r.reg.MustRegister(cv)
		return cv
	}

	r.heartbeatsReceived = mk("pubimage_heartbeats_received_total", "Heartbeat (zero-length) data frames received")
	r.statusMessagesSent = mk("pubimage_status_messages_sent_total", "Status messages sent to the publisher")
	r.nakMessagesSent = mk("pubimage_nak_messages_sent_total", "NAK messages sent requesting retransmission")
	r.flowControlUnderRuns = mk("pubimage_flow_control_under_runs_total", "Packets dropped for arriving below the receiver window")
	r.flowControlOverRuns = mk("pubimage_flow_control_over_runs_total", "Packets dropped for arriving above the receiver window")
	r.imagesInactive = mk("pubimage_images_inactive_total", "Images transitioned from ACTIVE to INACTIVE")

	return r
}

// Gatherer exposes the underlying registry for an HTTP scrape handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ForImage returns a per-image counter set bound to sessionId/streamId,
// satisfying image.SystemCounters.
func (r *Registry) ForImage(sessionId, streamId int32) *ImageCounters {
	labels := prometheus.Labels{
		"session_id": strconv.Itoa(int(sessionId)),
		"stream_id":  strconv.Itoa(int(streamId)),
	}
	return &ImageCounters{
		heartbeatsReceived:   r.heartbeatsReceived.With(labels),
		statusMessagesSent:   r.statusMessagesSent.With(labels),
		nakMessagesSent:      r.nakMessagesSent.With(labels),
		flowControlUnderRuns: r.flowControlUnderRuns.With(labels),
		flowControlOverRuns:  r.flowControlOverRuns.With(labels),
		imagesInactive:       r.imagesInactive.With(labels),
	}
}

// ImageCounters implements image.SystemCounters for one image.
type ImageCounters struct {
	heartbeatsReceived   prometheus.Counter
	statusMessagesSent   prometheus.Counter
	nakMessagesSent      prometheus.Counter
	flowControlUnderRuns prometheus.Counter
	flowControlOverRuns  prometheus.Counter
	imagesInactive       prometheus.Counter
}

func (c *ImageCounters) HeartbeatsReceived()   { c.heartbeatsReceived.Inc() }
func (c *ImageCounters) StatusMessagesSent()   { c.statusMessagesSent.Inc() }
func (c *ImageCounters) NakMessagesSent()      { c.nakMessagesSent.Inc() }
func (c *ImageCounters) FlowControlUnderRuns() { c.flowControlUnderRuns.Inc() }
func (c *ImageCounters) FlowControlOverRuns()  { c.flowControlOverRuns.Inc() }
func (c *ImageCounters) ImagesInactive()       { c.imagesInactive.Inc() }
