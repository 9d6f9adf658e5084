// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdplot_test

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"git.sr.ht/~sbinet/epok"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/dmdplot"
	"sbinet.org/x/dmd/internal/dmdfake"
)

func open(t *testing.T) *dmd.Reader {
	t.Helper()
	api := dmdfake.New(map[string]*dmdfake.File{"demo.dmd": dmdfake.Demo()})
	r, err := dmd.OpenWith(api, "demo.dmd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRead(t *testing.T) {
	r := open(t)

	ai, err := r.Channel("AI 1/1")
	require.NoError(t, err)

	ser, err := dmdplot.Read(r, ai, false)
	require.NoError(t, err)
	assert.Equal(t, "AI 1/1", ser.Title)
	assert.Equal(t, "AI 1/1 [V]", ser.Label)
	assert.False(t, ser.Time)
	require.Len(t, ser.Xs, 40002)
	require.Len(t, ser.Ys, 40002)
	assert.Equal(t, 1.0, ser.Xs[0])
	assert.Equal(t, 10000.0, ser.Ys[0])

	ser, err = dmdplot.Read(r, ai, true, dmd.WithTimeRange(5, 6))
	require.NoError(t, err)
	assert.True(t, ser.Time)
	require.Len(t, ser.Xs, 10001)
	var tcnv epok.UTCUnixTimeConverter
	assert.WithinDuration(t, r.StartUTC().Add(5*time.Second), tcnv.ToTime(ser.Xs[0]), time.Millisecond)

	cnt, err := r.Channel("CNT 1/1")
	require.NoError(t, err)
	ser, err = dmdplot.Read(r, cnt, false, dmd.WithTimeRange(1, 1.00055))
	require.NoError(t, err)
	assert.Equal(t, "CNT 1/1", ser.Label)
	assert.Equal(t, []float64{10000, 10001, 10002, 10003, 10004, 10005}, ser.Ys)

	empty, err := r.Channel("Empty")
	require.NoError(t, err)
	ser, err = dmdplot.Read(r, empty, false)
	require.NoError(t, err)
	assert.Empty(t, ser.Xs)

	vs, err := r.Channel("VS 1/1")
	require.NoError(t, err)
	_, err = dmdplot.Read(r, vs, false)
	assert.ErrorIs(t, err, dmd.ErrUnsupportedSampleType)
}

func TestDecimate(t *testing.T) {
	ser := dmdplot.Series{
		Xs: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Ys: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
	}

	got := ser.Decimate(3)
	assert.Equal(t, []float64{0, 4, 8, 9}, got.Xs)
	assert.Equal(t, []float64{0, 40, 80, 90}, got.Ys)

	got = ser.Decimate(5)
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 9}, got.Xs)

	assert.Equal(t, ser, ser.Decimate(0))
	assert.Equal(t, ser, ser.Decimate(10))
	assert.Len(t, ser.Xs, 10)
}

func TestDraw(t *testing.T) {
	r := open(t)
	ai, err := r.Channel("AI 1/2")
	require.NoError(t, err)

	for _, abs := range []bool{false, true} {
		ser, err := dmdplot.Read(r, ai, abs)
		require.NoError(t, err)

		buf := new(bytes.Buffer)
		err = dmdplot.Draw(buf, ser.Decimate(1000), 4*vg.Inch, 3*vg.Inch, dmdplot.Color(1))
		require.NoError(t, err)

		img, err := png.Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, 4*96, img.Bounds().Dx())
		assert.Equal(t, 3*96, img.Bounds().Dy())
	}

	buf := new(bytes.Buffer)
	err = dmdplot.Draw(buf, dmdplot.Series{Title: "empty"}, 0, 0, dmdplot.Color(0))
	require.NoError(t, err)
	_, err = png.Decode(buf)
	require.NoError(t, err)
}

func TestColor(t *testing.T) {
	assert.Equal(t, dmdplot.Colors[0], dmdplot.Color(0))
	assert.Equal(t, dmdplot.Colors[1], dmdplot.Color(len(dmdplot.Colors)+1))
}
