// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SampleType describes the layout of the samples stored in a channel.
type SampleType int32

const (
	SampleInvalid       SampleType = 0
	SampleDouble        SampleType = 1
	SampleReduced       SampleType = 2
	SampleSInt32        SampleType = 3
	SampleDoubleVector  SampleType = 100
	SampleComplexVector SampleType = 101
)

func (st SampleType) String() string {
	switch st {
	case SampleInvalid:
		return "invalid"
	case SampleDouble:
		return "double"
	case SampleReduced:
		return "reduced"
	case SampleSInt32:
		return "sint32"
	case SampleDoubleVector:
		return "double-vector"
	case SampleComplexVector:
		return "complex-vector"
	}
	return fmt.Sprintf("SampleType(%d)", int32(st))
}

// ChannelType is the kind of a recorded channel.
type ChannelType int32

const (
	AllChannels    ChannelType = 0
	AnalogChannel  ChannelType = 1
	CounterChannel ChannelType = 2
	DigitalChannel ChannelType = 3
)

func (ct ChannelType) String() string {
	switch ct {
	case AllChannels:
		return "all"
	case AnalogChannel:
		return "analog"
	case CounterChannel:
		return "counter"
	case DigitalChannel:
		return "digital"
	}
	return fmt.Sprintf("ChannelType(%d)", int32(ct))
}

// MarkerSource is the origin of a marker event.
type MarkerSource int32

const (
	SourceTrigger MarkerSource = iota
	SourceApplication
	SourceManual
	SourceExternal
	SourceSync
	SourceTopology
)

var markerSourceNames = [...]string{
	"trigger", "application", "manual", "external", "sync", "topology",
}

func (src MarkerSource) String() string {
	if src >= 0 && int(src) < len(markerSourceNames) {
		return markerSourceNames[src]
	}
	return fmt.Sprintf("MarkerSource(%d)", int32(src))
}

// MarkerType is the type of a marker event.
type MarkerType int32

const (
	MarkerMarker MarkerType = iota
	MarkerStart
	MarkerStop
	MarkerNodeRecordingStop
	MarkerPretimeStart
	MarkerPosttimeStop
	MarkerSyncSignalLost
	MarkerSyncTimeError
	MarkerSyncSyncLost
	MarkerSyncSyncError
	MarkerSyncResynced
	MarkerTopologyNodeFound
	MarkerTopologyNodeLost
	MarkerAlarm
	MarkerAlarmAck
	MarkerTypeEvent
	MarkerSplitStart
	MarkerSplitStop
	MarkerDataDelayNormal
	MarkerDataDelayWarning
	MarkerDataDelayError
)

var markerTypeNames = [...]string{
	"marker", "start", "stop", "node-recording-stop", "pretime-start",
	"posttime-stop", "sync-signal-lost", "sync-time-error", "sync-sync-lost",
	"sync-sync-error", "sync-resynced", "topology-node-found",
	"topology-node-lost", "alarm", "alarm-ack", "event", "split-start",
	"split-stop", "data-delay-normal", "data-delay-warning", "data-delay-error",
}

func (typ MarkerType) String() string {
	if typ >= 0 && int(typ) < len(markerTypeNames) {
		return markerTypeNames[typ]
	}
	return fmt.Sprintf("MarkerType(%d)", int32(typ))
}

// Version is a major.minor[.micro] version number.
type Version struct {
	Major uint32
	Minor uint32
	Micro uint32
}

// ParseVersion parses strings of the form "1.2" or "1.2.3".
func ParseVersion(s string) (Version, error) {
	var (
		v    Version
		toks = strings.Split(strings.TrimSpace(s), ".")
	)
	if len(toks) < 2 || len(toks) > 3 {
		return v, fmt.Errorf("dmd: invalid version %q", s)
	}
	dst := []*uint32{&v.Major, &v.Minor, &v.Micro}
	for i, tok := range toks {
		n, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return v, fmt.Errorf("dmd: invalid version %q: %w", s, err)
		}
		*dst[i] = uint32(n)
	}
	return v, nil
}

// Supports reports whether v implements the interface version major.minor.
func (v Version) Supports(major, minor uint32) bool {
	return v.Major == major && v.Minor >= minor
}

// Less reports whether v precedes o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Micro < o.Micro
}

func (v Version) String() string {
	if v.Micro > 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Timestamp is the start time of a recording as stored by the reader library.
type Timestamp struct {
	Year      int32
	DayOfYear int32   // 1-based
	TimeOfDay float64 // seconds since midnight
	Offset    int32   // time zone offset in minutes
	Valid     bool
}

// Time returns the timestamp in its own fixed time zone.
func (ts Timestamp) Time() time.Time {
	var loc *time.Location
	switch ts.Offset {
	case 0:
		loc = time.UTC
	default:
		loc = time.FixedZone(zoneName(ts.Offset), int(ts.Offset)*60)
	}
	t := time.Date(int(ts.Year), time.January, 1, 0, 0, 0, 0, loc)
	t = t.AddDate(0, 0, int(ts.DayOfYear)-1)
	return t.Add(seconds(ts.TimeOfDay))
}

func zoneName(offset int32) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offset/60, offset%60)
}

// seconds converts a floating point number of seconds to a duration,
// rounded to the nanosecond.
func seconds(s float64) time.Duration {
	return time.Duration(s*1e9 + copysign(0.5, s))
}

func copysign(v, s float64) float64 {
	if s < 0 {
		return -v
	}
	return v
}

// HeaderField is a global name/value entry of a recording header.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (hdr HeaderField) String() string {
	return hdr.Name + "=" + hdr.Value
}

// MarkerEvent is an event recorded alongside the measurement.
type MarkerEvent struct {
	Source MarkerSource
	Type   MarkerType
	Time   float64 // seconds since recording start
	Text   string
}

func (m MarkerEvent) String() string {
	return fmt.Sprintf("%.4fs [%v/%v] %s", m.Time, m.Source, m.Type, m.Text)
}

// Sweep is a contiguous run of samples of a channel.
// A zero Freq denotes an asynchronous sweep.
type Sweep struct {
	First uint64  // index of the first sample
	Last  uint64  // index of the last sample (inclusive)
	Start float64 // start time in seconds
	End   float64 // end time in seconds
	Freq  float64 // sample frequency in Hz
}

// Len returns the number of samples of the sweep.
func (sw Sweep) Len() uint64 {
	if sw.Last < sw.First {
		return 0
	}
	return sw.Last - sw.First + 1
}

// ChannelInfo is the channel information returned by the reader library.
type ChannelInfo struct {
	SampleRate  float64 // Hz, zero for asynchronous channels
	Type        ChannelType
	Name        string
	Unit        string
	Description string
	Duration    float64 // measurement duration, in seconds
	RangeMin    float64 // in the physical unit of the channel
	RangeMax    float64 // in the physical unit of the channel
}

// ReducedValue is a reduced (statistical) sample.
type ReducedValue struct {
	Min float64
	Max float64
	Avg float64
	RMS float64
}

// ScaledSample is a scaled sample value with its timestamp.
type ScaledSample struct {
	Value float64
	Time  float64
}

// ReducedSample is a reduced sample value with its timestamp.
type ReducedSample struct {
	Value ReducedValue
	Time  float64
}

// DigitalSample is a digital sample value with its timestamp.
type DigitalSample struct {
	Value int32
	Time  float64
}

// TimestampFormat selects how sample times are reported.
type TimestampFormat int

const (
	TimestampNone     TimestampFormat = iota // no timestamps
	TimestampSeconds                         // seconds since recording start
	TimestampLocal                           // absolute, recording time zone
	TimestampUTC                             // absolute, UTC
)

func (tf TimestampFormat) String() string {
	switch tf {
	case TimestampNone:
		return "none"
	case TimestampSeconds:
		return "seconds"
	case TimestampLocal:
		return "local"
	case TimestampUTC:
		return "utc"
	}
	return fmt.Sprintf("TimestampFormat(%d)", int(tf))
}

// ParseTimestampFormat parses the names returned by TimestampFormat.String.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	switch strings.ToLower(s) {
	case "none":
		return TimestampNone, nil
	case "seconds", "":
		return TimestampSeconds, nil
	case "local":
		return TimestampLocal, nil
	case "utc":
		return TimestampUTC, nil
	}
	return 0, fmt.Errorf("dmd: invalid timestamp format %q", s)
}

func (tf TimestampFormat) absolute() bool {
	return tf == TimestampLocal || tf == TimestampUTC
}
