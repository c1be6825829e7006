// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import "time"

// NanoClock returns a nanosecond reading. The image uses it to stamp
// packet arrival in InsertPacket; the liveness check and status-message
// pacing take now from their caller and compare it against that stamp,
// so the clock must share the callers' time base. It is injected at
// construction so tests can supply a fake one; the default counts
// monotonic nanoseconds since process start.
type NanoClock func() int64

var processStart = time.Now()

func defaultNanoClock() int64 {
	return int64(time.Since(processStart))
}
