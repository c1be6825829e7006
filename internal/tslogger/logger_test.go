// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package tslogger

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestWithPrefix(t *testing.T) {
	var got string
	base := func(format string, args ...any) { got = format }
	WithPrefix(base, "[image] ")("hello %d", 1)
	if got != "[image] hello %d" {
		t.Errorf("got %q, want prefixed format", got)
	}
}

func TestFuncWriterWritesThroughLogf(t *testing.T) {
	var sb strings.Builder
	logf := func(format string, args ...any) {
		sb.WriteString(fmt.Sprintf(format, args...))
	}
	w := FuncWriter(logf)
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sb.String() != "abc" {
		t.Errorf("sb.String() = %q, want %q", sb.String(), "abc")
	}
}

func TestRateLimitedDropsBurstOverflowPerFormat(t *testing.T) {
	var n int
	base := func(format string, args ...any) { n++ }
	limited := RateLimited(base, rate.Every(time.Hour), 1)

	// With a burst of one and an hour between refills, the first "a" and
	// the first "b" each use their own format's token, and the second "a"
	// overflows its burst and is dropped.
	limited("a")
	limited("b")
	limited("a")
	if n != 2 {
		t.Errorf("n = %d, want 2 (second \"a\" dropped, \"b\" tracked separately)", n)
	}
}

func TestDiscard(t *testing.T) {
	// Mostly exercising that Discard satisfies Logf's signature and never
	// panics.
	Discard("anything %d", 1)
}
