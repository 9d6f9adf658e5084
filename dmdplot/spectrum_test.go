// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdplot_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/dmdplot"
)

func TestSpectrum(t *testing.T) {
	const (
		n    = 1000
		rate = 1000.0
	)
	ser := dmdplot.Series{Title: "sine", Label: "AI [V]"}
	for i := range n {
		x := float64(i) / rate
		ser.Xs = append(ser.Xs, x)
		ser.Ys = append(ser.Ys, 1+3*math.Sin(2*math.Pi*50*x))
	}

	amp, err := dmdplot.Spectrum(ser, rate)
	require.NoError(t, err)
	require.Len(t, amp.Xs, n/2+1)
	require.Len(t, amp.Ys, n/2+1)
	assert.Equal(t, "frequency [Hz]", amp.XLabel)
	assert.Equal(t, "AI [V]", amp.Label)
	assert.Equal(t, 0.0, amp.Xs[0])
	assert.InDelta(t, 500, amp.Xs[n/2], 1e-9)

	peak := 1
	for i := 1; i < len(amp.Ys); i++ {
		if amp.Ys[i] > amp.Ys[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 50, amp.Xs[peak], 1e-9)
	assert.InDelta(t, 3, amp.Ys[peak], 0.1)
	assert.InDelta(t, 1, amp.Ys[0], 0.05)
	assert.Less(t, amp.Ys[200], 0.01)

	var buf bytes.Buffer
	err = dmdplot.Draw(&buf, amp, 0, 0, dmdplot.Color(1))
	require.NoError(t, err)

	empty, err := dmdplot.Spectrum(dmdplot.Series{Title: "one", Ys: []float64{1}}, rate)
	require.NoError(t, err)
	assert.Empty(t, empty.Ys)

	_, err = dmdplot.Spectrum(ser, 0)
	assert.ErrorIs(t, err, dmd.ErrAsyncChannel)
}
