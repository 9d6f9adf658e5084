// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
)

// ChannelID uniquely identifies a channel within a recording.
type ChannelID uint64

// Kind is the Go type of the values of a channel.
type Kind int

const (
	KindInvalid Kind = iota
	KindFloat64
	KindInt32
	KindComplex128
)

func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindInt32:
		return "int32"
	case KindComplex128:
		return "complex128"
	}
	return "invalid"
}

// Channel describes a recorded channel.
type Channel struct {
	ID          ChannelID
	Name        string
	Unit        string
	Description string
	SampleRate  float64 // Hz, zero for asynchronous channels
	Type        ChannelType
	Duration    float64 // measurement duration, in seconds
	RangeMin    float64
	RangeMax    float64

	RawType     SampleType
	ReducedType SampleType
	Dim         uint32 // maximum sample dimension

	Sweeps        []Sweep
	ReducedSweeps []Sweep

	handle ChannelHandle
}

// Kind returns the Go type of the channel values.
func (ch *Channel) Kind() Kind {
	switch ch.RawType {
	case SampleDouble, SampleDoubleVector:
		return KindFloat64
	case SampleSInt32:
		return KindInt32
	case SampleComplexVector:
		return KindComplex128
	}
	return KindInvalid
}

// IsAsync reports whether the channel is asynchronous.
func (ch *Channel) IsAsync() bool {
	return ch.SampleRate == 0
}

// IsScalar reports whether the channel holds one value per sample.
func (ch *Channel) IsScalar() bool {
	return ch.RawType == SampleDouble || ch.RawType == SampleSInt32
}

// dim returns the number of values per sample.
func (ch *Channel) dim() int {
	if ch.Dim == 0 {
		return 1
	}
	return int(ch.Dim)
}

// Len returns the number of samples of the channel over all sweeps.
func (ch *Channel) Len() uint64 {
	var n uint64
	for _, sw := range ch.Sweeps {
		n += sw.Len()
	}
	return n
}

// columns returns the column names of the channel values.
func (ch *Channel) columns() []string {
	dim := ch.dim()
	if dim == 1 {
		return []string{ch.Name}
	}
	names := make([]string, dim)
	for i := range names {
		names[i] = fmt.Sprintf("%s[%d]", ch.Name, i)
	}
	return names
}

func (ch *Channel) String() string {
	return fmt.Sprintf("%s (%v Hz) - %v", ch.Name, ch.SampleRate, ch.Type)
}
