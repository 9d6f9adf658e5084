// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdwav exports scalar DMD channels as PCM WAV audio.
package dmdwav // import "sbinet.org/x/dmd/internal/dmdwav"

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"sbinet.org/x/dmd"
)

const (
	BitDepth = 16
	pcm      = 1 // WAVE_FORMAT_PCM
	chunk    = 64 * 1024
)

// Write reads the samples of the scalar synchronous channel ch and writes
// them to w as mono 16-bit PCM, at the channel sample rate.
//
// Values are scaled from the channel measurement range, or from the
// extrema of the data when that range is empty.
func Write(w io.WriteSeeker, r *dmd.Reader, ch *dmd.Channel, opts ...dmd.ReadOption) error {
	switch {
	case !ch.IsScalar():
		return fmt.Errorf("dmdwav: could not export channel %q (%v): %w", ch.Name, ch.RawType, dmd.ErrUnsupportedSampleType)
	case ch.IsAsync():
		return fmt.Errorf("dmdwav: could not export channel %q: %w", ch.Name, dmd.ErrAsyncChannel)
	}

	rate := int(math.Round(ch.SampleRate))
	if rate <= 0 || float64(rate) != ch.SampleRate {
		return fmt.Errorf("dmdwav: channel %q has a non-integral sample rate (%v Hz)", ch.Name, ch.SampleRate)
	}

	opts = append(opts[:len(opts):len(opts)], dmd.WithTimestamps(dmd.TimestampNone))
	frame, err := r.ReadFrameOf([]*dmd.Channel{ch}, opts...)
	if err != nil {
		return fmt.Errorf("dmdwav: could not read channel %q: %w", ch.Name, err)
	}

	var vs []float64
	if !frame.Empty() {
		col := frame.Columns[0]
		switch col.Kind {
		case dmd.KindInt32:
			vs = make([]float64, len(col.Int32))
			for i, v := range col.Int32 {
				vs[i] = float64(v)
			}
		default:
			vs = col.Float64
		}
	}

	lo, hi := ch.RangeMin, ch.RangeMax
	if !(hi > lo) {
		lo, hi = extrema(vs)
	}

	enc := wav.NewEncoder(w, rate, BitDepth, 1, pcm)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: BitDepth,
	}
	// an empty recording still gets a valid header.
	for beg := 0; beg == 0 || beg < len(vs); beg += chunk {
		end := min(beg+chunk, len(vs))
		buf.Data = Scale(buf.Data[:0], vs[beg:end], lo, hi)
		err = enc.Write(buf)
		if err != nil {
			return fmt.Errorf("dmdwav: could not write samples: %w", err)
		}
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("dmdwav: could not close WAV encoder: %w", err)
	}
	return nil
}

// Scale appends to dst the values of src mapped linearly from [lo, hi]
// onto the signed 16-bit range. Values outside [lo, hi] are clipped.
func Scale(dst []int, src []float64, lo, hi float64) []int {
	amp := float64(audio.IntMaxSignedValue(BitDepth))
	for _, v := range src {
		x := 0.0
		if hi > lo {
			x = 2*(v-lo)/(hi-lo) - 1
		}
		x = max(-1, min(+1, x))
		dst = append(dst, int(math.Round(x*amp)))
	}
	return dst
}

func extrema(vs []float64) (lo, hi float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	lo, hi = vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
