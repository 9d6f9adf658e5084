// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
	"iter"
)

// Sample is a scalar sample of a channel.
// Time is expressed in seconds since the recording start.
type Sample struct {
	Time  float64
	Value float64
}

// streamSize is the number of samples requested per native call when
// streaming.
const streamSize = 64 * 1024

// Samples iterates over all the samples of a scalar channel.
// Digital values are converted to float64.
func (r *Reader) Samples(ch *Channel) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		var fetch func(first, n uint64) ([]Sample, uint64, error)
		switch ch.RawType {
		case SampleDouble:
			buf := make([]ScaledSample, streamSize)
			out := make([]Sample, streamSize)
			fetch = func(first, n uint64) ([]Sample, uint64, error) {
				got, next, err := r.api.ScaledSamplesWithTS(ch.handle, first, buf[:n])
				if err != nil {
					return nil, 0, err
				}
				for i, v := range buf[:got] {
					out[i] = Sample{Time: v.Time, Value: v.Value}
				}
				return out[:got], next, nil
			}
		case SampleSInt32:
			buf := make([]DigitalSample, streamSize)
			out := make([]Sample, streamSize)
			fetch = func(first, n uint64) ([]Sample, uint64, error) {
				got, next, err := r.api.DigitalSamplesWithTS(ch.handle, first, buf[:n])
				if err != nil {
					return nil, 0, err
				}
				for i, v := range buf[:got] {
					out[i] = Sample{Time: v.Time, Value: float64(v.Value)}
				}
				return out[:got], next, nil
			}
		default:
			yield(Sample{}, fmt.Errorf("could not stream %v samples of %q: %w",
				ch.RawType, ch.Name, ErrUnsupportedSampleType,
			))
			return
		}

		for v, err := range stream(r, ch.Name, ch.Sweeps, fetch) {
			if !yield(v, err) {
				return
			}
		}
	}
}

// ReducedSamples iterates over all the reduced samples of a channel.
func (r *Reader) ReducedSamples(ch *Channel) iter.Seq2[ReducedSample, error] {
	return func(yield func(ReducedSample, error) bool) {
		if ch.ReducedType != SampleReduced {
			if ch.ReducedType != SampleInvalid {
				yield(ReducedSample{}, fmt.Errorf("could not stream reduced samples of %q (%v): %w",
					ch.Name, ch.ReducedType, ErrUnsupportedSampleType,
				))
			}
			return
		}

		buf := make([]ReducedSample, streamSize)
		fetch := func(first, n uint64) ([]ReducedSample, uint64, error) {
			got, next, err := r.api.ReducedSamplesWithTS(ch.handle, first, buf[:n])
			if err != nil {
				return nil, 0, err
			}
			return buf[:got], next, nil
		}

		for v, err := range stream(r, ch.Name, ch.ReducedSweeps, fetch) {
			if !yield(v, err) {
				return
			}
		}
	}
}

// stream walks the provided sweeps, block by block.
func stream[T any](r *Reader, name string, sweeps []Sweep, fetch func(first, n uint64) ([]T, uint64, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for _, sw := range sweeps {
			if sw.Len() == 0 {
				continue
			}
			cur := sw.First
			for cur <= sw.Last {
				if err := r.ok(); err != nil {
					yield(zero, err)
					return
				}
				n := min(streamSize, sw.Last-cur+1)
				vs, next, err := fetch(cur, n)
				if err != nil {
					yield(zero, fmt.Errorf("could not read samples [%d, %d) of %q: %w", cur, cur+n, name, err))
					return
				}
				for _, v := range vs {
					if !yield(v, nil) {
						return
					}
				}
				if len(vs) == 0 || next <= cur {
					break
				}
				cur = next
			}
		}
	}
}
