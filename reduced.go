// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
)

// Column names of reduced frames.
const (
	ReducedMin = "MIN"
	ReducedMax = "MAX"
	ReducedAvg = "AVG"
	ReducedRMS = "RMS"
)

// ReadReduced reads the reduced data of the named channel.
// The returned frame holds the MIN, MAX, AVG and RMS columns, and is empty
// when the channel has no reduced data.
func (r *Reader) ReadReduced(name string, opts ...ReadOption) (*Frame, error) {
	ch, err := r.Channel(name)
	if err != nil {
		return nil, err
	}
	return r.ReadReducedOf(ch, opts...)
}

// ReadReducedOf reads the reduced data of the provided channel.
// A time range option keeps the reduced values timestamped within that range.
func (r *Reader) ReadReducedOf(ch *Channel, opts ...ReadOption) (*Frame, error) {
	if err := r.ok(); err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("could not read reduced data: %w", ErrNoChannel)
	}
	cfg := newReadConfig(opts)
	frame := &Frame{Format: cfg.format}

	switch ch.ReducedType {
	case SampleInvalid:
		return frame, nil
	case SampleReduced:
		// ok.
	default:
		return nil, fmt.Errorf("could not read reduced data of %q (%v): %w",
			ch.Name, ch.ReducedType, ErrUnsupportedSampleType,
		)
	}

	var (
		ts []float64
		vs []ReducedValue
	)
	for _, sw := range ch.ReducedSweeps {
		var err error
		ts, vs, err = r.readReduced(ch, sw, ts, vs)
		if err != nil {
			return nil, err
		}
	}
	if cfg.hasRange {
		ts, vs = inRange(ts, vs, cfg)
	}

	var (
		n    = len(vs)
		vmin = make([]float64, n)
		vmax = make([]float64, n)
		vavg = make([]float64, n)
		vrms = make([]float64, n)
	)
	for i, v := range vs {
		vmin[i] = v.Min
		vmax[i] = v.Max
		vavg[i] = v.Avg
		vrms[i] = v.RMS
	}
	frame.Columns = []Column{
		{Name: ReducedMin, Kind: KindFloat64, Float64: vmin},
		{Name: ReducedMax, Kind: KindFloat64, Float64: vmax},
		{Name: ReducedAvg, Kind: KindFloat64, Float64: vavg},
		{Name: ReducedRMS, Kind: KindFloat64, Float64: vrms},
	}

	switch {
	case cfg.format == TimestampSeconds:
		frame.Seconds = ts
	case cfg.format.absolute():
		frame.Times = r.abs(cfg.format, ts)
	}

	return frame, nil
}

func (r *Reader) readReduced(ch *Channel, sw Sweep, ts []float64, vs []ReducedValue) ([]float64, []ReducedValue, error) {
	var (
		cur  = sw.First
		last = sw.Last
	)
	for sw.Len() > 0 && cur <= last {
		size := min(blockSize, last-cur+1)
		bts := make([]float64, size)
		bvs := make([]ReducedValue, size)
		n, next, err := r.api.ReducedSamples(ch.handle, cur, bvs, bts)
		if err != nil {
			return nil, nil, fmt.Errorf("could not read reduced samples [%d, %d) of %q: %w",
				cur, cur+size, ch.Name, err,
			)
		}
		ts = append(ts, bts[:n]...)
		vs = append(vs, bvs[:n]...)
		if n == 0 || next <= cur {
			break
		}
		cur = next
	}
	return ts, vs, nil
}

// inRange keeps the values whose timestamp lies within the configured range.
func inRange(ts []float64, vs []ReducedValue, cfg readConfig) ([]float64, []ReducedValue) {
	n := 0
	for i, t := range ts {
		if t < cfg.beg || (cfg.hasEnd && t > cfg.end) {
			continue
		}
		ts[n] = t
		vs[n] = vs[i]
		n++
	}
	return ts[:n], vs[:n]
}
