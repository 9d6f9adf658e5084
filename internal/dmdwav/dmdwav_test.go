// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdwav_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/internal/dmdfake"
	"sbinet.org/x/dmd/internal/dmdwav"
)

func TestScale(t *testing.T) {
	got := dmdwav.Scale(nil, []float64{-10, 0, 10, 20, -20, 5}, -10, 10)
	assert.Equal(t, []int{-32767, 0, 32767, 32767, -32767, 16384}, got)

	got = dmdwav.Scale(got[:0], []float64{1, 1}, 1, 1)
	assert.Equal(t, []int{0, 0}, got)
}

func TestWrite(t *testing.T) {
	ai := dmdfake.Sync("AI", 8000, [2]float64{0, 0.999})
	ai.Info.RangeMin = 0
	ai.Info.RangeMax = 0

	cnt := dmdfake.Sync("CNT", 8000, [2]float64{0, 0.999})
	cnt.Data = dmd.SampleSInt32

	api := dmdfake.New(map[string]*dmdfake.File{
		"run.dmd": {Channels: []*dmdfake.Channel{ai, cnt, dmdfake.Async("Async", 10)}},
	})
	r, err := dmd.OpenWith(api, "run.dmd")
	require.NoError(t, err)
	defer r.Close()

	for _, tc := range []struct {
		name  string
		opts  []dmd.ReadOption
		n     int
		first int
		last  int
	}{
		{name: "AI", n: 7993, first: -32767, last: +32767},
		{name: "AI", opts: []dmd.ReadOption{dmd.WithTimeRange(0, 0.5)}, n: 4001, first: -32767, last: +32767},
		{name: "AI", opts: []dmd.ReadOption{dmd.WithTimeRange(5, 6)}, n: 0},
		// CNT values are clipped to its [-10, 10] range.
		{name: "CNT", n: 7993, first: 0, last: +32767},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ch, err := r.Channel(tc.name)
			require.NoError(t, err)

			fname := filepath.Join(t.TempDir(), "out.wav")
			f, err := os.Create(fname)
			require.NoError(t, err)
			defer f.Close()

			require.NoError(t, dmdwav.Write(f, r, ch, tc.opts...))
			require.NoError(t, f.Close())

			f, err = os.Open(fname)
			require.NoError(t, err)
			defer f.Close()

			dec := wav.NewDecoder(f)
			require.True(t, dec.IsValidFile())
			buf, err := dec.FullPCMBuffer()
			require.NoError(t, err)

			assert.Equal(t, uint32(8000), dec.SampleRate)
			assert.Equal(t, uint16(dmdwav.BitDepth), dec.BitDepth)
			assert.Equal(t, uint16(1), dec.NumChans)
			require.Len(t, buf.Data, tc.n)
			if tc.n == 0 {
				return
			}
			assert.Equal(t, tc.first, buf.Data[0])
			assert.Equal(t, tc.last, buf.Data[tc.n-1])
		})
	}
}

func TestWriteErrors(t *testing.T) {
	odd := dmdfake.Sync("Odd", 10.5, [2]float64{0, 1})
	api := dmdfake.New(map[string]*dmdfake.File{
		"run.dmd":  {Channels: []*dmdfake.Channel{odd}},
		"demo.dmd": dmdfake.Demo(),
	})

	for _, tc := range []struct {
		file string
		name string
		err  error
	}{
		{file: "demo.dmd", name: "VS 1/1", err: dmd.ErrUnsupportedSampleType},
		{file: "demo.dmd", name: "Async 1", err: dmd.ErrAsyncChannel},
		{file: "run.dmd", name: "Odd"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, err := dmd.OpenWith(api, tc.file)
			require.NoError(t, err)
			defer r.Close()

			ch, err := r.Channel(tc.name)
			require.NoError(t, err)

			f, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
			require.NoError(t, err)
			defer f.Close()

			err = dmdwav.Write(f, r, ch)
			require.Error(t, err)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}
