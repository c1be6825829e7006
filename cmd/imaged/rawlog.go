// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"math/bits"

	"github.com/corenet/pubimage/image"
)

// newMemoryRawLog allocates three plain in-memory term buffers of
// termLength bytes each. Production deployments would mmap a pre-allocated
// log file per channel/stream; this demo keeps the log entirely in the
// process's heap since it isn't shared with any other process.
func newMemoryRawLog(termLength int32) (*image.RawLog, error) {
	if termLength <= 0 || bits.OnesCount32(uint32(termLength)) != 1 {
		return nil, fmt.Errorf("imaged: term length %d is not a positive power of two", termLength)
	}

	var buffers [image.TermCount][]byte
	for i := range buffers {
		buffers[i] = make([]byte, termLength)
	}
	return image.NewRawLog(buffers, func() error { return nil }), nil
}
