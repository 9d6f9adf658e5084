// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"gonum.org/v1/plot/vg"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/dmdplot"
	"sbinet.org/x/dmd/internal/codec"
	"sbinet.org/x/dmd/internal/dmdbolt"
	"sbinet.org/x/dmd/internal/dmdsqlite"
	"sbinet.org/x/dmd/internal/dmdwav"
)

type exportCmd struct {
	File     string          `arg:"" help:"DMD file."`
	Channels []string        `arg:"" optional:"" help:"Channel names (default: all scalar channels)."`
	IDs      []dmd.ChannelID `name:"id" help:"Channel IDs (repeatable)." placeholder:"ID"`
	DB       string          `short:"d" required:"" help:"Output samples database." type:"path"`
	Store    string          `default:"bolt" enum:"bolt,sqlite" help:"Database backend (${enum})."`
	Codec    string          `default:"zstd" enum:"none,zstd,lz4,s2" help:"Block compression of the bolt backend (${enum})."`
}

func (cmd *exportCmd) Run(g *Globals) error {
	kind, err := codec.Parse(cmd.Codec)
	if err != nil {
		return err
	}

	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	var chans []*dmd.Channel
	switch {
	case len(cmd.Channels) == 0 && len(cmd.IDs) == 0:
		for _, ch := range r.Channels() {
			if ch.IsScalar() {
				chans = append(chans, ch)
			}
		}
	default:
		chans, err = r.Lookup(cmd.Channels...)
		if err != nil {
			return err
		}
		ids, err := r.LookupIDs(cmd.IDs...)
		if err != nil {
			return err
		}
		chans = append(chans, ids...)
	}

	db, err := openDB(cmd.Store, cmd.DB, kind)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = dmd.Export(ctx, r, db, chans)
	if err != nil {
		return fmt.Errorf("could not export %q: %w", cmd.File, err)
	}

	for _, ch := range chans {
		key := dmd.ChannelKey(r.Name(), ch.ID)
		last, err := db.Last(key)
		switch {
		case errors.Is(err, dmd.ErrNoData):
			fmt.Fprintf(g.out, "%s: %q (no data)\n", key, ch.Name)
		case err != nil:
			return fmt.Errorf("could not read last sample of %q: %w", key, err)
		default:
			fmt.Fprintf(g.out, "%s: %q last=%g@%gs\n", key, ch.Name, last.Value, last.Time)
		}
	}

	err = db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	return r.Close()
}

func openDB(store, fname string, kind codec.Kind) (dmd.DB, error) {
	switch store {
	case "bolt":
		db, err := dmdbolt.Open(fname, dmdbolt.WithCompression(kind))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := dmdsqlite.Open(fname)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown database backend %q", store)
}

type wavCmd struct {
	rangeFlags

	File string `arg:"" help:"DMD file."`
	chanFlag
	Output string `short:"o" required:"" help:"Output WAV file." type:"path"`
}

func (cmd *wavCmd) Run(g *Globals) error {
	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	ch, err := cmd.channel(r)
	if err != nil {
		return err
	}

	f, err := os.Create(cmd.Output)
	if err != nil {
		return fmt.Errorf("could not create WAV file: %w", err)
	}
	defer f.Close()

	err = dmdwav.Write(f, r, ch, cmd.options()...)
	if err != nil {
		return fmt.Errorf("could not write WAV file: %w", err)
	}
	if g.Verbose {
		log.Printf("wrote %q (%g Hz, %d bits)", cmd.Output, ch.SampleRate, dmdwav.BitDepth)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close WAV file: %w", err)
	}
	return r.Close()
}

type plotCmd struct {
	rangeFlags

	File string `arg:"" help:"DMD file."`
	chanFlag
	Output    string  `short:"o" required:"" help:"Output PNG file." type:"path"`
	Abs       bool    `help:"Use absolute (UTC) times on the X axis."`
	FFT       bool    `name:"fft" help:"Plot the amplitude spectrum of the channel."`
	Width     float64 `default:"32.36" help:"Plot width (in cm)."`
	Height    float64 `default:"20" help:"Plot height (in cm)."`
	MaxPoints int     `default:"20000" help:"Maximum number of plotted points (0: all)."`
}

func (cmd *plotCmd) Run(g *Globals) error {
	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	ch, err := cmd.channel(r)
	if err != nil {
		return err
	}

	ser, err := dmdplot.Read(r, ch, cmd.Abs && !cmd.FFT, cmd.options()...)
	if err != nil {
		return fmt.Errorf("could not read channel %q: %w", ch.Name, err)
	}
	if cmd.FFT {
		ser, err = dmdplot.Spectrum(ser, ch.SampleRate)
		if err != nil {
			return err
		}
	}
	if cmd.MaxPoints > 0 {
		ser = ser.Decimate(cmd.MaxPoints)
	}

	f, err := os.Create(cmd.Output)
	if err != nil {
		return fmt.Errorf("could not create plot file: %w", err)
	}
	defer f.Close()

	err = dmdplot.Draw(
		f, ser,
		vg.Length(cmd.Width)*vg.Centimeter,
		vg.Length(cmd.Height)*vg.Centimeter,
		dmdplot.Color(int(ch.ID)),
	)
	if err != nil {
		return fmt.Errorf("could not draw channel %q: %w", ch.Name, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close plot file: %w", err)
	}
	return r.Close()
}
