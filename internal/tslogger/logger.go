// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package tslogger defines a printf-like logging function type so that
// components pass a single value around instead of verbose func(...)
// signatures.
package tslogger

import (
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// Logf is the basic logger type: a printf-like func. Like log.Printf, the
// format need not end in a newline. Logf functions must be safe for
// concurrent use.
type Logf func(format string, args ...any)

// WithPrefix wraps f, prefixing each format with prefix.
func WithPrefix(f Logf, prefix string) Logf {
	return func(format string, args ...any) {
		f(prefix+format, args...)
	}
}

// Discard throws away everything logged to it.
func Discard(string, ...any) {}

// FuncWriter returns an io.Writer that writes to f.
func FuncWriter(f Logf) io.Writer {
	return funcWriter{f}
}

type funcWriter struct{ f Logf }

func (w funcWriter) Write(p []byte) (int, error) {
	w.f("%s", p)
	return len(p), nil
}

// StdLogger returns a standard library *log.Logger backed by f.
func StdLogger(f Logf) *log.Logger {
	return log.New(FuncWriter(f), "", 0)
}

// RateLimited returns a Logf wrapping logf that allows each format string
// at most every messages per second, in bursts of up to burst; messages
// over that limit are dropped.
// Repeated drops (flow-control under/overruns, a gap that keeps
// re-scanning before its feedback delay elapses) are exactly the sort of
// noisy, repetitive logging this exists to tame.
func RateLimited(logf Logf, every rate.Limit, burst int) Logf {
	var (
		mu    sync.Mutex
		limit = make(map[string]*rate.Limiter)
	)

	return func(format string, args ...any) {
		mu.Lock()
		lim, ok := limit[format]
		if !ok {
			lim = rate.NewLimiter(every, burst)
			limit[format] = lim
		}
		allow := lim.Allow()
		mu.Unlock()

		if !allow {
			return
		}
		logf(format, args...)
	}
}

// ArgWriter is a fmt.Formatter that can be passed to any Logf func to
// write a %v argument without an intermediate allocation.
type ArgWriter func(io.Writer)

func (fn ArgWriter) Format(f fmt.State, _ rune) {
	fn(f)
}
