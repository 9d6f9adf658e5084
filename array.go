// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Array holds samples with one row per scalar channel and one row per
// element of vector channels.
//
// Real holds the values when no complex channel was read, Complex
// otherwise (real rows are then promoted to complex values).
// Both are nil when no sample was read.
type Array struct {
	Format  TimestampFormat
	Rows    []string // row names
	Real    *mat.Dense
	Complex *mat.CDense
	Seconds []float64
	Times   []time.Time
}

// Dims returns the number of rows and samples of the array.
func (arr *Array) Dims() (int, int) {
	switch {
	case arr.Real != nil:
		return arr.Real.Dims()
	case arr.Complex != nil:
		return arr.Complex.Dims()
	}
	return len(arr.Rows), 0
}

// IsComplex reports whether the array holds complex values.
func (arr *Array) IsComplex() bool {
	return arr.Complex != nil
}

// ReadArray reads the samples of the named channels into an array.
//
// By default all sweeps are read. WithSweep selects a single sweep, further
// restricted with WithFirstSample and WithMaxSamples.
func (r *Reader) ReadArray(names []string, opts ...ReadOption) (*Array, error) {
	chans, err := r.Lookup(names...)
	if err != nil {
		return nil, err
	}
	return r.ReadArrayOf(chans, opts...)
}

// ReadArrayIDs is like ReadArray but selects channels by ID.
func (r *Reader) ReadArrayIDs(ids []ChannelID, opts ...ReadOption) (*Array, error) {
	chans, err := r.LookupIDs(ids...)
	if err != nil {
		return nil, err
	}
	return r.ReadArrayOf(chans, opts...)
}

// ReadArrayOf reads the samples of the provided channels into an array.
func (r *Reader) ReadArrayOf(chans []*Channel, opts ...ReadOption) (*Array, error) {
	if err := r.ok(); err != nil {
		return nil, err
	}
	cfg := newReadConfig(opts)

	chans, err := usable(chans)
	if err != nil {
		return nil, err
	}

	arr := &Array{Format: cfg.format}
	if len(chans) == 0 {
		return arr, nil
	}

	var (
		ref     *series
		rows    []*series
		cplx    bool
		nsample int
	)
	for _, ch := range chans {
		var s *series
		switch {
		case cfg.hasSweep:
			s, err = r.readSweep(ch, cfg.sweep, cfg.first, cfg.max)
		default:
			s, err = r.readAll(ch)
		}
		if err != nil {
			return nil, fmt.Errorf("could not read channel %q: %w", ch.Name, err)
		}

		switch {
		case ref == nil:
			ref = s
			nsample = s.len()
		case s.len() != nsample:
			return nil, fmt.Errorf(
				"could not combine channels %q (%d samples) and %q (%d samples): %w",
				ref.ch.Name, nsample, ch.Name, s.len(), ErrTimestampMismatch,
			)
		case cfg.format != TimestampNone && !sameTimes(ref, s):
			return nil, fmt.Errorf(
				"could not combine channels %q and %q, fetch them individually: %w",
				ref.ch.Name, ch.Name, ErrTimestampMismatch,
			)
		}

		rows = append(rows, s)
		arr.Rows = append(arr.Rows, ch.columns()...)
		cplx = cplx || ch.Kind() == KindComplex128
	}

	switch {
	case cfg.format == TimestampSeconds:
		arr.Seconds = ref.ts
	case cfg.format.absolute():
		arr.Times = r.abs(cfg.format, ref.ts)
	}

	if nsample == 0 {
		return arr, nil
	}

	var (
		nrows = len(arr.Rows)
		irow  = 0
	)
	switch {
	case cplx:
		arr.Complex = mat.NewCDense(nrows, nsample, nil)
		for _, s := range rows {
			for j := range s.ch.dim() {
				col := s.column(j)
				for i := range nsample {
					arr.Complex.Set(irow, i, col.complex(i))
				}
				irow++
			}
		}
	default:
		arr.Real = mat.NewDense(nrows, nsample, nil)
		for _, s := range rows {
			for j := range s.ch.dim() {
				col := s.column(j)
				switch col.Kind {
				case KindFloat64:
					arr.Real.SetRow(irow, col.Float64)
				default:
					for i := range nsample {
						arr.Real.Set(irow, i, col.float(i))
					}
				}
				irow++
			}
		}
	}

	return arr, nil
}

func (col Column) float(i int) float64 {
	switch col.Kind {
	case KindFloat64:
		return col.Float64[i]
	case KindInt32:
		return float64(col.Int32[i])
	case KindComplex128:
		return real(col.Complex128[i])
	}
	return 0
}

func (col Column) complex(i int) complex128 {
	switch col.Kind {
	case KindComplex128:
		return col.Complex128[i]
	default:
		return complex(col.float(i), 0)
	}
}
