// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// The imaged command is a minimal demo driver wiring one publication image
// to a real UDP socket: it runs the receiver's status/loss feedback loop
// and the conductor's rebuild/lifecycle loop side by side, as separate
// agents sharing one image.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corenet/pubimage/image"
	"github.com/corenet/pubimage/internal/imagemetrics"
	"github.com/corenet/pubimage/internal/losscan"
	"github.com/corenet/pubimage/internal/tslogger"
	"github.com/corenet/pubimage/internal/udpendpoint"
)

func main() {
	var (
		listenAddr   = flag.String("listen", ":20121", "UDP address to receive publication data on")
		controlAddr  = flag.String("control", "127.0.0.1:20122", "address to send status/NAK feedback to")
		metricsAddr  = flag.String("metrics", ":9464", "address to serve Prometheus metrics on")
		termLength   = flag.Int("term-length", 1<<20, "length of each of the three term buffers, must be a power of two")
		sessionId    = flag.Int("session-id", 1, "publisher session id this image tracks")
		streamId     = flag.Int("stream-id", 1001, "stream id this image tracks")
		livenessSecs = flag.Int("liveness-seconds", 10, "image liveness timeout")
	)
	flag.Parse()

	logf := tslogger.RateLimited(log.Printf, 1, 5)

	if err := run(*listenAddr, *controlAddr, *metricsAddr, int32(*termLength), int32(*sessionId), int32(*streamId), *livenessSecs, logf); err != nil {
		log.Fatal(err)
	}
}

func run(listenAddr, controlAddr, metricsAddr string, termLength, sessionId, streamId int32, livenessSecs int, logf tslogger.Logf) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return err
	}
	endpoint, err := udpendpoint.NewEndpoint("udp://"+listenAddr, laddr, logf)
	if err != nil {
		return err
	}
	defer endpoint.Close()

	control, err := netip.ParseAddrPort(controlAddr)
	if err != nil {
		return err
	}

	registry := imagemetrics.NewRegistry()
	counters := registry.ForImage(sessionId, streamId)

	rawLog, err := newMemoryRawLog(termLength)
	if err != nil {
		return err
	}

	correlationId := uuid.New().ID() // first 32 bits of a random UUID, good enough as a demo correlation id
	cfg := image.Config{
		CorrelationId:     uint64(correlationId),
		SessionId:         sessionId,
		StreamId:          streamId,
		InitialTermId:     0,
		ActiveTermId:      0,
		InitialTermOffset: 0,
		InitialWindow:     termLength / 8, // a conservative default fraction of the term, capped further by WindowLength
		LivenessTimeoutNs: int64(livenessSecs) * int64(time.Second),
		ControlAddress:    control,
		Logf:              logf,
	}

	// The loops below pass time.Now().UnixNano() as now, so the image's
	// packet-arrival clock reads on the same time base.
	clock := func() int64 { return time.Now().UnixNano() }
	img, err := image.NewImage(cfg, rawLog, endpoint, losscan.New(logf, losscan.ConstantDelay(10*int64(time.Millisecond))), counters, clock, time.Now().UnixNano())
	if err != nil {
		return err
	}
	endpoint.RegisterPublicationImage(img)
	img.Activate(time.Now().UnixNano())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return endpoint.ReceiveLoop()
	})

	g.Go(func() error {
		<-ctx.Done()
		return endpoint.Close()
	})

	g.Go(func() error {
		return metricsSrv.ListenAndServe()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runConductorLoop(ctx, img, logf)
	})

	g.Go(func() error {
		return runReceiverFeedbackLoop(ctx, img)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil // clean shutdown via signal
	}
	return err
}

// runConductorLoop drives TrackRebuild and OnTimeEvent on a fixed tick,
// the conductor agent's half of the image's concurrency model.
func runConductorLoop(ctx context.Context, img *image.Image, logf tslogger.Logf) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().UnixNano()
			img.TrackRebuild(now)
			img.OnTimeEvent(now, nil)
			if img.HasReachedEndOfLife() {
				if err := img.Close(); err != nil {
					logf("pubimage: closing image: %v", err)
				}
				return nil
			}
		}
	}
}

// runReceiverFeedbackLoop drives the periodic status-message and
// loss-NAK dispatch, plus the liveness check, the receiver agent's half
// of the image's concurrency model.
func runReceiverFeedbackLoop(ctx context.Context, img *image.Image) error {
	const statusMessageTimeout = int64(200 * time.Millisecond)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().UnixNano()
			img.SendPendingStatusMessage(now, statusMessageTimeout)
			img.ProcessPendingLoss()
			if !img.CheckForActivity(now) {
				img.IfActiveGoInactive(now)
			}
		}
	}
}
