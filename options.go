// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

// ReadOption configures a read operation.
type ReadOption func(cfg *readConfig)

type readConfig struct {
	format TimestampFormat

	// time range, in seconds since recording start.
	hasRange bool
	beg      float64
	end      float64
	hasEnd   bool

	// sweep selection.
	sweep    int
	hasSweep bool
	first    uint64
	max      uint64 // zero means all samples
}

func newReadConfig(opts []ReadOption) readConfig {
	cfg := readConfig{
		format: TimestampSeconds,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTimestamps selects the format of the returned timestamps.
func WithTimestamps(tf TimestampFormat) ReadOption {
	return func(cfg *readConfig) {
		cfg.format = tf
	}
}

// WithTimeRange restricts a frame read to the inclusive [beg, end] range,
// in seconds since the recording start.
func WithTimeRange(beg, end float64) ReadOption {
	return func(cfg *readConfig) {
		cfg.hasRange = true
		cfg.beg = beg
		cfg.end = end
		cfg.hasEnd = true
	}
}

// WithStart restricts a frame read to samples at or after beg seconds.
func WithStart(beg float64) ReadOption {
	return func(cfg *readConfig) {
		cfg.hasRange = true
		cfg.beg = beg
	}
}

// WithEnd restricts a frame read to samples at or before end seconds.
func WithEnd(end float64) ReadOption {
	return func(cfg *readConfig) {
		cfg.hasRange = true
		cfg.end = end
		cfg.hasEnd = true
	}
}

// WithSweep restricts an array read to the i-th data sweep.
func WithSweep(i int) ReadOption {
	return func(cfg *readConfig) {
		cfg.sweep = i
		cfg.hasSweep = true
	}
}

// WithFirstSample skips the first n samples of the selected sweep.
func WithFirstSample(n uint64) ReadOption {
	return func(cfg *readConfig) {
		cfg.first = n
	}
}

// WithMaxSamples limits the number of samples read from the selected sweep.
func WithMaxSamples(n uint64) ReadOption {
	return func(cfg *readConfig) {
		cfg.max = n
	}
}
