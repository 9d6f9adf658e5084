// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdplot

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"sbinet.org/x/dmd"
)

// Spectrum returns the single-sided amplitude spectrum of the values of ser,
// sampled at rate Hz. A Hann window is applied before the transform and
// amplitudes are corrected for its gain.
func Spectrum(ser Series, rate float64) (Series, error) {
	out := Series{
		Title:  ser.Title,
		Label:  ser.Label,
		XLabel: "frequency [Hz]",
	}
	if rate <= 0 {
		return out, fmt.Errorf("could not compute spectrum of %q: %w", ser.Title, dmd.ErrAsyncChannel)
	}

	n := len(ser.Ys)
	if n < 2 {
		return out, nil
	}

	var (
		buf  = make([]float64, n)
		gain = 0.0
	)
	for i, v := range ser.Ys {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		buf[i] = v * w
		gain += w
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, buf)

	out.Xs = make([]float64, len(coeffs))
	out.Ys = make([]float64, len(coeffs))
	for i, c := range coeffs {
		amp := cmplx.Abs(c) / gain
		if i > 0 && 2*i != n {
			amp *= 2
		}
		out.Xs[i] = fft.Freq(i) * rate
		out.Ys[i] = amp
	}
	return out, nil
}
