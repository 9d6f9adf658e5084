// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Column is a named column of a Frame.
// Exactly one of the value slices is populated, according to Kind.
type Column struct {
	Name       string
	Kind       Kind
	Float64    []float64
	Int32      []int32
	Complex128 []complex128
}

// Len returns the number of rows of the column.
func (col Column) Len() int {
	switch col.Kind {
	case KindFloat64:
		return len(col.Float64)
	case KindInt32:
		return len(col.Int32)
	case KindComplex128:
		return len(col.Complex128)
	}
	return 0
}

func (col Column) format(i int) string {
	switch col.Kind {
	case KindFloat64:
		return strconv.FormatFloat(col.Float64[i], 'g', -1, 64)
	case KindInt32:
		return strconv.FormatInt(int64(col.Int32[i]), 10)
	case KindComplex128:
		return strconv.FormatComplex(col.Complex128[i], 'g', -1, 128)
	}
	return ""
}

// Frame is a table of samples sharing a common time index.
//
// Seconds holds the timestamps relative to the recording start when the
// frame format is TimestampSeconds; Times holds absolute timestamps for
// the TimestampLocal and TimestampUTC formats.
type Frame struct {
	Format  TimestampFormat
	Seconds []float64
	Times   []time.Time
	Columns []Column
}

// Len returns the number of rows of the frame.
func (f *Frame) Len() int {
	switch {
	case len(f.Columns) > 0:
		return f.Columns[0].Len()
	case f.Format.absolute():
		return len(f.Times)
	default:
		return len(f.Seconds)
	}
}

// Empty reports whether the frame has no column.
func (f *Frame) Empty() bool {
	return len(f.Columns) == 0
}

// Names returns the column names.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, col := range f.Columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the first column with the provided name.
func (f *Frame) Column(name string) (Column, bool) {
	for _, col := range f.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// WriteCSV writes the frame as comma separated values, with a header row.
// The time index, if any, is written as the first column.
func (f *Frame) WriteCSV(w io.Writer) error {
	var (
		cw  = csv.NewWriter(w)
		hdr = make([]string, 0, len(f.Columns)+1)
	)
	switch {
	case f.Format == TimestampSeconds:
		hdr = append(hdr, "time")
	case f.Format.absolute():
		hdr = append(hdr, "timestamp")
	}
	hdr = append(hdr, f.Names()...)

	err := cw.Write(hdr)
	if err != nil {
		return fmt.Errorf("could not write CSV header: %w", err)
	}

	row := make([]string, len(hdr))
	for i := range f.Len() {
		row = row[:0]
		switch {
		case f.Format == TimestampSeconds:
			row = append(row, strconv.FormatFloat(f.Seconds[i], 'g', -1, 64))
		case f.Format.absolute():
			row = append(row, f.Times[i].Format(time.RFC3339Nano))
		}
		for _, col := range f.Columns {
			row = append(row, col.format(i))
		}
		err = cw.Write(row)
		if err != nil {
			return fmt.Errorf("could not write CSV row %d: %w", i, err)
		}
	}

	cw.Flush()
	err = cw.Error()
	if err != nil {
		return fmt.Errorf("could not flush CSV writer: %w", err)
	}
	return nil
}

// ReadFrame reads the samples of the named channels into a frame.
//
// Channels without raw data are ignored; the remaining ones must share
// their sample rate and, unless the TimestampNone format is selected,
// their timestamps.
// By default, all sweeps are read and timestamps are reported in seconds
// since the recording start. WithTimeRange, WithStart and WithEnd restrict
// the read to a time range.
func (r *Reader) ReadFrame(names []string, opts ...ReadOption) (*Frame, error) {
	chans, err := r.Lookup(names...)
	if err != nil {
		return nil, err
	}
	return r.ReadFrameOf(chans, opts...)
}

// ReadFrameIDs is like ReadFrame but selects channels by ID.
func (r *Reader) ReadFrameIDs(ids []ChannelID, opts ...ReadOption) (*Frame, error) {
	chans, err := r.LookupIDs(ids...)
	if err != nil {
		return nil, err
	}
	return r.ReadFrameOf(chans, opts...)
}

// ReadFrameOf reads the samples of the provided channels into a frame.
func (r *Reader) ReadFrameOf(chans []*Channel, opts ...ReadOption) (*Frame, error) {
	if err := r.ok(); err != nil {
		return nil, err
	}
	cfg := newReadConfig(opts)

	chans, err := usable(chans)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Format: cfg.format}
	if len(chans) == 0 {
		return frame, nil
	}

	var ref *series
	for _, ch := range chans {
		var s *series
		switch {
		case cfg.hasRange:
			s, err = r.readRange(ch, cfg.beg, cfg.end, cfg.hasEnd)
		default:
			s, err = r.readAll(ch)
		}
		if err != nil {
			return nil, fmt.Errorf("could not read channel %q: %w", ch.Name, err)
		}

		switch {
		case ref == nil:
			ref = s
		case cfg.format == TimestampNone:
			if s.len() != ref.len() {
				return nil, fmt.Errorf(
					"could not combine channels %q (%d samples) and %q (%d samples): %w",
					ref.ch.Name, ref.len(), ch.Name, s.len(), ErrTimestampMismatch,
				)
			}
		default:
			if !sameTimes(ref, s) {
				return nil, fmt.Errorf(
					"could not combine channels %q and %q, fetch them individually: %w",
					ref.ch.Name, ch.Name, ErrTimestampMismatch,
				)
			}
		}

		for j := range ch.dim() {
			frame.Columns = append(frame.Columns, s.column(j))
		}
	}

	switch {
	case cfg.format == TimestampSeconds:
		frame.Seconds = ref.ts
	case cfg.format.absolute():
		frame.Times = r.abs(cfg.format, ref.ts)
	}

	return frame, nil
}
