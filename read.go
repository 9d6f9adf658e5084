// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
	"slices"
)

// blockSize is the maximum number of samples requested per native call.
const blockSize = 1_000_000

// series holds the samples of one channel.
// Vector values are interleaved: sample i of element j is at i*dim+j.
type series struct {
	ch  *Channel
	ts  []float64
	f64 []float64
	i32 []int32
	c   []complex128
}

func (s *series) len() int { return len(s.ts) }

// column returns element j of every sample of a vector series.
func (s *series) column(j int) Column {
	var (
		dim  = s.ch.dim()
		n    = s.len()
		name = s.ch.columns()[j]
	)
	switch s.ch.Kind() {
	case KindInt32:
		return Column{Name: name, Kind: KindInt32, Int32: s.i32}
	case KindComplex128:
		vs := make([]complex128, n)
		for i := range vs {
			vs[i] = s.c[i*dim+j]
		}
		return Column{Name: name, Kind: KindComplex128, Complex128: vs}
	default:
		if dim == 1 {
			return Column{Name: name, Kind: KindFloat64, Float64: s.f64}
		}
		vs := make([]float64, n)
		for i := range vs {
			vs[i] = s.f64[i*dim+j]
		}
		return Column{Name: name, Kind: KindFloat64, Float64: vs}
	}
}

// usable drops channels without raw data and checks that the remaining
// ones share a sample rate.
func usable(chans []*Channel) ([]*Channel, error) {
	out := make([]*Channel, 0, len(chans))
	for _, ch := range chans {
		if ch == nil {
			return nil, ErrNoChannel
		}
		if ch.RawType == SampleInvalid {
			continue
		}
		out = append(out, ch)
	}
	for _, ch := range out[min(1, len(out)):] {
		if ch.SampleRate != out[0].SampleRate {
			return nil, fmt.Errorf(
				"could not combine channels %q (%v Hz) and %q (%v Hz): %w",
				out[0].Name, out[0].SampleRate, ch.Name, ch.SampleRate,
				ErrSampleRateMismatch,
			)
		}
	}
	return out, nil
}

// readAll reads every data sweep of the channel.
func (r *Reader) readAll(ch *Channel) (*series, error) {
	s := &series{ch: ch}
	for _, sw := range ch.Sweeps {
		err := r.readSamples(s, sw.First, sw.Len())
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// readRange reads the samples of the channel within [beg, end] seconds.
func (r *Reader) readRange(ch *Channel, beg, end float64, hasEnd bool) (*series, error) {
	s := &series{ch: ch}
	if len(ch.Sweeps) == 0 {
		return s, nil
	}
	if !hasEnd {
		end = ch.Sweeps[len(ch.Sweeps)-1].End
	}

	for _, sw := range ch.Sweeps {
		if sw.Start > end || sw.End < beg {
			continue
		}
		if sw.Freq == 0 {
			err := r.readAsync(s, sw, beg, end)
			if err != nil {
				return nil, err
			}
			continue
		}
		first, n, ok := window(sw, int64(beg*sw.Freq), int64(end*sw.Freq))
		if !ok {
			continue
		}
		err := r.readSamples(s, first, n)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// readAsync reads a whole asynchronous sweep and keeps the samples
// timestamped within [beg, end].
func (r *Reader) readAsync(s *series, sw Sweep, beg, end float64) error {
	all := &series{ch: s.ch}
	err := r.readSamples(all, sw.First, sw.Len())
	if err != nil {
		return err
	}
	dim := s.ch.dim()
	for i, t := range all.ts {
		if t < beg || t > end {
			continue
		}
		s.ts = append(s.ts, t)
		switch s.ch.Kind() {
		case KindInt32:
			s.i32 = append(s.i32, all.i32[i])
		case KindComplex128:
			s.c = append(s.c, all.c[i*dim:(i+1)*dim]...)
		default:
			s.f64 = append(s.f64, all.f64[i*dim:(i+1)*dim]...)
		}
	}
	return nil
}

// readSweep reads samples of a single synchronous sweep, starting at the
// provided offset inside the sweep. A zero limit reads the rest of the sweep.
func (r *Reader) readSweep(ch *Channel, i int, offset, limit uint64) (*series, error) {
	if i < 0 || i >= len(ch.Sweeps) {
		return nil, fmt.Errorf(
			"could not select sweep %d of %q (valid range: [0, %d)): %w",
			i, ch.Name, len(ch.Sweeps), ErrSweepRange,
		)
	}
	if ch.IsAsync() {
		return nil, fmt.Errorf("could not read sweep %d of %q: %w", i, ch.Name, ErrAsyncChannel)
	}

	var (
		sw = ch.Sweeps[i]
		s  = &series{ch: ch}
		n  = sw.Len()
	)
	if offset >= n {
		return s, nil
	}
	n -= offset
	if limit > 0 {
		n = min(n, limit)
	}
	err := r.readSamples(s, sw.First+offset, n)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// window converts a [beg, end] sample range expressed from the recording
// start into native sample indices of the sweep, accounting for the offset
// between the sweep start time and its first sample index.
// It returns the first sample and the number of samples to read.
func window(sw Sweep, beg, end int64) (first, n uint64, ok bool) {
	offset := int64(float64(sw.First) - sw.Start*sw.Freq)
	beg += offset
	end += offset
	beg = max(beg, int64(sw.First))
	end = min(end, int64(sw.Last))
	if end < beg {
		return 0, 0, false
	}
	return uint64(beg), uint64(end - beg + 1), true
}

// readSamples appends n samples starting at first to s, in blocks,
// following the next-sample cursor of the reader library.
func (r *Reader) readSamples(s *series, first, n uint64) error {
	if err := r.ok(); err != nil {
		return err
	}
	var (
		ch   = s.ch
		last = first + n - 1
		cur  = first
	)
	for n > 0 && cur <= last {
		size := min(blockSize, last-cur+1)
		got, next, err := r.fetch(s, cur, size)
		if err != nil {
			return fmt.Errorf("could not read samples [%d, %d) of %q: %w", cur, cur+size, ch.Name, err)
		}
		if got == 0 || next <= cur {
			break
		}
		cur = next
	}
	return nil
}

func (r *Reader) fetch(s *series, first, size uint64) (uint64, uint64, error) {
	var (
		ch  = s.ch
		h   = ch.handle
		dim = ch.dim()
		ts  = make([]float64, size)
	)
	switch ch.RawType {
	case SampleDouble:
		vs := make([]float64, size)
		n, next, err := r.api.ScaledSamples(h, first, vs, ts)
		if err != nil {
			return 0, 0, err
		}
		s.f64 = append(s.f64, vs[:n]...)
		s.ts = append(s.ts, ts[:n]...)
		return n, next, nil

	case SampleSInt32:
		vs := make([]int32, size)
		n, next, err := r.api.DigitalSamples(h, first, vs, ts)
		if err != nil {
			return 0, 0, err
		}
		s.i32 = append(s.i32, vs[:n]...)
		s.ts = append(s.ts, ts[:n]...)
		return n, next, nil

	case SampleDoubleVector:
		vs := make([]float64, int(size)*dim)
		n, next, err := r.api.ScalarVectorSamples(h, first, uint32(dim), vs, ts)
		if err != nil {
			return 0, 0, err
		}
		s.f64 = append(s.f64, vs[:int(n)*dim]...)
		s.ts = append(s.ts, ts[:n]...)
		return n, next, nil

	case SampleComplexVector:
		vs := make([]complex128, int(size)*dim)
		n, next, err := r.api.ComplexVectorSamples(h, first, uint32(dim), vs, ts)
		if err != nil {
			return 0, 0, err
		}
		s.c = append(s.c, vs[:int(n)*dim]...)
		s.ts = append(s.ts, ts[:n]...)
		return n, next, nil
	}

	return 0, 0, fmt.Errorf("could not read %v samples: %w", ch.RawType, ErrUnsupportedSampleType)
}

// sameTimes reports whether two series share their timestamps.
func sameTimes(a, b *series) bool {
	return slices.Equal(a.ts, b.ts)
}
