// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdplot draws DMD channels as PNG plots.
package dmdplot // import "sbinet.org/x/dmd/dmdplot"

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"git.sr.ht/~sbinet/epok"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"sbinet.org/x/dmd"
)

var (
	tcnv epok.UTCUnixTimeConverter
)

// Series holds the points of a channel plot.
type Series struct {
	Title  string
	Label  string // y-axis label
	XLabel string // x-axis label, "time [s]" if empty
	Time   bool   // whether Xs are UTC unix times
	Xs     []float64
	Ys     []float64
}

// Read reads the samples of the scalar channel ch.
// The x axis holds absolute UTC times when abs is true, seconds since the
// recording start otherwise.
func Read(r *dmd.Reader, ch *dmd.Channel, abs bool, opts ...dmd.ReadOption) (Series, error) {
	ser := Series{
		Title: ch.Name,
		Label: ch.Name,
		Time:  abs,
	}
	if ch.Unit != "" {
		ser.Label = fmt.Sprintf("%s [%s]", ch.Name, ch.Unit)
	}
	if !ch.IsScalar() {
		return ser, fmt.Errorf("could not plot channel %q (%v): %w", ch.Name, ch.RawType, dmd.ErrUnsupportedSampleType)
	}

	tf := dmd.TimestampSeconds
	if abs {
		tf = dmd.TimestampUTC
	}
	opts = append(opts[:len(opts):len(opts)], dmd.WithTimestamps(tf))
	frame, err := r.ReadFrameOf([]*dmd.Channel{ch}, opts...)
	if err != nil {
		return ser, fmt.Errorf("could not read channel %q: %w", ch.Name, err)
	}
	if frame.Empty() {
		return ser, nil
	}

	col := frame.Columns[0]
	ser.Ys = make([]float64, 0, col.Len())
	switch col.Kind {
	case dmd.KindInt32:
		for _, v := range col.Int32 {
			ser.Ys = append(ser.Ys, float64(v))
		}
	default:
		ser.Ys = append(ser.Ys, col.Float64...)
	}

	switch {
	case abs:
		ser.Xs = make([]float64, 0, len(frame.Times))
		for _, t := range frame.Times {
			ser.Xs = append(ser.Xs, tcnv.FromTime(t))
		}
	default:
		ser.Xs = frame.Seconds
	}

	return ser, nil
}

// Decimate returns a series of at most n+1 points, keeping every k-th point
// and the last one. n <= 0 keeps all points.
func (ser Series) Decimate(n int) Series {
	if n <= 0 || len(ser.Xs) <= n {
		return ser
	}
	step := (len(ser.Xs) + n - 1) / n
	out := ser
	out.Xs = make([]float64, 0, n+1)
	out.Ys = make([]float64, 0, n+1)
	for i := 0; i < len(ser.Xs); i += step {
		out.Xs = append(out.Xs, ser.Xs[i])
		out.Ys = append(out.Ys, ser.Ys[i])
	}
	if last := len(ser.Xs) - 1; last%step != 0 {
		out.Xs = append(out.Xs, ser.Xs[last])
		out.Ys = append(out.Ys, ser.Ys[last])
	}
	return out
}

// Colors is the palette of channel plots.
var Colors = []color.NRGBA{
	{B: 255, A: 255},
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, G: 255, A: 255},
}

// Color returns the i-th color of the palette.
func Color(i int) color.NRGBA {
	return Colors[i%len(Colors)]
}

// Size is the default size of a plot.
const Size = 20 * vg.Centimeter

// Draw writes the series as a PNG image of the provided size to w.
func Draw(w io.Writer, ser Series, width, height vg.Length, c color.NRGBA) error {
	if width <= 0 {
		width = vg.Length(math.Phi) * Size
	}
	if height <= 0 {
		height = Size
	}

	plt := hplot.New()
	plt.Title.Text = ser.Title
	plt.Y.Label.Text = ser.Label
	switch {
	case ser.Time:
		plt.X.Tick.Marker = epok.Ticks{
			Converter: tcnv,
			Format:    "2006-01-02\n15:04:05",
		}
	case ser.XLabel != "":
		plt.X.Label.Text = ser.XLabel
	default:
		plt.X.Label.Text = "time [s]"
	}

	sca, err := hplot.NewScatter(hplot.ZipXY(ser.Xs, ser.Ys))
	if err != nil {
		return fmt.Errorf("could not create scatter plot of %q: %w", ser.Title, err)
	}

	c1 := c
	c2 := c
	c2.A = 38

	sca.GlyphStyle.Color = c1
	sca.GlyphStyle.Radius = 2
	sca.GlyphStyle.Shape = draw.CircleGlyph{}

	lin, err := hplot.NewLine(hplot.ZipXY(ser.Xs, ser.Ys))
	if err != nil {
		return fmt.Errorf("could not create line plot of %q: %w", ser.Title, err)
	}
	lin.LineStyle.Color = c1
	lin.FillColor = c2

	plt.Add(hplot.NewGrid(), lin, sca)

	cnv := vgimg.PngCanvas{
		Canvas: vgimg.New(width, height),
	}
	plt.Draw(draw.New(cnv))
	_, err = cnv.WriteTo(w)
	if err != nil {
		return fmt.Errorf("could not write plot of %q: %w", ser.Title, err)
	}

	return nil
}
