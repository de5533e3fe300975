// Package mono provides a monotonic clock reading used throughout the
// dispatcher and runtime to measure command age and wait durations without
// being affected by wall-clock adjustments.
/*
 * Copyright (c) 2024, argussight authors.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start, monotonic.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the monotonic duration elapsed since a NanoTime reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
