// Copyright (c) Corenet Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

// WindowLength derives the advertised receiver window from the term
// length and a configured window, capped at half a term so a single
// status message never advertises more than the writer can safely get
// ahead of a subscriber within one term.
func WindowLength(termLength, configuredWindow int32) int32 {
	half := termLength / 2
	if configuredWindow < half {
		return configuredWindow
	}
	return half
}

// Gain derives the status-message hysteresis threshold from a window
// length: status messages only advance once the slowest subscriber has
// gained this many bytes, to avoid chattering on every byte of progress.
func Gain(windowLength int32) int32 {
	return windowLength / 4
}
