// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	for _, tc := range []struct {
		str  string
		want Version
		err  bool
	}{
		{str: "1.0", want: Version{1, 0, 0}},
		{str: "1.3", want: Version{1, 3, 0}},
		{str: " 7.1.2 ", want: Version{7, 1, 2}},
		{str: "1", err: true},
		{str: "1.2.3.4", err: true},
		{str: "1.x", err: true},
		{str: "", err: true},
	} {
		t.Run(tc.str, func(t *testing.T) {
			got, err := ParseVersion(tc.str)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	v := Version{1, 3, 0}
	assert.True(t, v.Supports(1, 0))
	assert.True(t, v.Supports(1, 3))
	assert.False(t, v.Supports(1, 4))
	assert.False(t, v.Supports(2, 0))
	assert.Equal(t, "1.3", v.String())
	assert.Equal(t, "1.3.1", Version{1, 3, 1}.String())

	assert.True(t, Version{1, 2, 0}.Less(Version{1, 3, 0}))
	assert.True(t, Version{1, 3, 0}.Less(Version{1, 3, 1}))
	assert.True(t, Version{1, 9, 9}.Less(Version{2, 0, 0}))
	assert.False(t, Version{1, 3, 0}.Less(Version{1, 3, 0}))
}

func TestTimestamp(t *testing.T) {
	ts := Timestamp{Year: 2021, DayOfYear: 217, TimeOfDay: 12*3600 + 21*60 + 27.5, Offset: 120, Valid: true}
	got := ts.Time()
	assert.Equal(t, "2021-08-05T12:21:27.5+02:00", got.Format(time.RFC3339Nano))
	assert.Equal(t, "UTC+02:00", got.Location().String())

	ts = Timestamp{Year: 2020, DayOfYear: 366, TimeOfDay: 0, Offset: -330}
	got = ts.Time()
	assert.Equal(t, "2020-12-31T00:00:00-05:30", got.Format(time.RFC3339Nano))
	assert.Equal(t, "UTC-05:30", got.Location().String())

	ts = Timestamp{Year: 2024, DayOfYear: 1, TimeOfDay: 1.25}
	assert.True(t, time.Date(2024, time.January, 1, 0, 0, 1, 250000000, time.UTC).Equal(ts.Time()))

	assert.Equal(t, time.Duration(0), seconds(0))
	assert.Equal(t, 1500*time.Millisecond, seconds(1.5))
	assert.Equal(t, -1500*time.Millisecond, seconds(-1.5))
	assert.Equal(t, time.Millisecond, seconds(0.001))
}

func TestTimestampFormat(t *testing.T) {
	for _, tf := range []TimestampFormat{TimestampNone, TimestampSeconds, TimestampLocal, TimestampUTC} {
		got, err := ParseTimestampFormat(tf.String())
		require.NoError(t, err)
		assert.Equal(t, tf, got)
	}

	got, err := ParseTimestampFormat("")
	require.NoError(t, err)
	assert.Equal(t, TimestampSeconds, got)

	_, err = ParseTimestampFormat("julian")
	require.Error(t, err)

	assert.False(t, TimestampNone.absolute())
	assert.False(t, TimestampSeconds.absolute())
	assert.True(t, TimestampLocal.absolute())
	assert.True(t, TimestampUTC.absolute())
}

func TestErrorCode(t *testing.T) {
	assert.NoError(t, check(0))

	err := check(-5001)
	require.Error(t, err)
	assert.Equal(t, "dmd reader: file does not exist (-5001)", err.Error())
	assert.True(t, errors.Is(fmt.Errorf("could not open: %w", err), CodeFileDoesNotExist))
	assert.False(t, errors.Is(err, CodeFileInvalid))

	var code ErrorCode
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &code))
	assert.Equal(t, CodeFileDoesNotExist, code)

	assert.Equal(t, "dmd reader: error code -42", check(-42).Error())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "complex-vector", SampleComplexVector.String())
	assert.Equal(t, "SampleType(42)", SampleType(42).String())
	assert.Equal(t, "digital", DigitalChannel.String())
	assert.Equal(t, "topology", SourceTopology.String())
	assert.Equal(t, "MarkerSource(9)", MarkerSource(9).String())
	assert.Equal(t, "data-delay-error", MarkerDataDelayError.String())
	assert.Equal(t, "event", MarkerTypeEvent.String())
	assert.Equal(t, "1.5000s [manual/event] hello",
		MarkerEvent{Source: SourceManual, Type: MarkerTypeEvent, Time: 1.5, Text: "hello"}.String(),
	)
	assert.Equal(t, "Title=demo", HeaderField{Name: "Title", Value: "demo"}.String())
	assert.Equal(t, "complex128", KindComplex128.String())
	assert.Equal(t, uint64(0), Sweep{First: 10, Last: 9}.Len())
	assert.Equal(t, uint64(11), Sweep{First: 10, Last: 20}.Len())
}

func TestWindow(t *testing.T) {
	sw := Sweep{First: 50000, Last: 80000, Start: 5, End: 8, Freq: 10e3}
	for _, tc := range []struct {
		beg, end int64
		first, n uint64
		ok       bool
	}{
		{beg: 30000, end: 80000, first: 50000, n: 30001, ok: true},
		{beg: 60000, end: 90000, first: 60000, n: 20001, ok: true},
		{beg: 0, end: 50000, first: 50000, n: 1, ok: true},
		{beg: 0, end: 40000, ok: false},
		{beg: 81000, end: 90000, ok: false},
	} {
		t.Run(fmt.Sprintf("[%d,%d]", tc.beg, tc.end), func(t *testing.T) {
			first, n, ok := window(sw, tc.beg, tc.end)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.first, first)
			assert.Equal(t, tc.n, n)
		})
	}

	// recording offset between acquisition and sweep start.
	sw = Sweep{First: 1234, Last: 1234 + 6330, Start: 0, End: 0.633, Freq: 10e3}
	first, n, ok := window(sw, 1000, 4000)
	require.True(t, ok)
	assert.Equal(t, uint64(2234), first)
	assert.Equal(t, uint64(3001), n)
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "run-42#3", ChannelKey("/data/runs/run-42.dmd", 3))
	assert.Equal(t, "demo#0", ChannelKey("demo", 0))
}

func TestChannelColumns(t *testing.T) {
	ch := &Channel{Name: "VS", Dim: 3}
	assert.Equal(t, []string{"VS[0]", "VS[1]", "VS[2]"}, ch.columns())

	ch = &Channel{Name: "AI", Dim: 0}
	assert.Equal(t, []string{"AI"}, ch.columns())
	assert.Equal(t, 1, ch.dim())
}

func TestUsable(t *testing.T) {
	var (
		a = &Channel{Name: "a", RawType: SampleDouble, SampleRate: 10}
		b = &Channel{Name: "b", RawType: SampleInvalid, SampleRate: 20}
		c = &Channel{Name: "c", RawType: SampleSInt32, SampleRate: 10}
		d = &Channel{Name: "d", RawType: SampleDouble, SampleRate: 0}
	)

	got, err := usable([]*Channel{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []*Channel{a, c}, got)

	got, err = usable([]*Channel{b})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = usable([]*Channel{a, d})
	assert.ErrorIs(t, err, ErrSampleRateMismatch)
}
