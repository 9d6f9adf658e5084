// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"log"
	"text/tabwriter"
	"time"

	"sbinet.org/x/dmd"
)

type lsCmd struct {
	File string `arg:"" help:"DMD file."`
}

func (cmd *lsCmd) Run(g *Globals) error {
	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	w := tabwriter.NewWriter(g.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tUNIT\tRATE\tTYPE\tKIND\tDIM\tSAMPLES\tSWEEPS\n")
	for _, ch := range r.Channels() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%g\t%v\t%v\t%d\t%d\t%d\n",
			ch.ID, ch.Name, ch.Unit, ch.SampleRate, ch.Type, ch.Kind(),
			max(ch.Dim, 1), ch.Len(), len(ch.Sweeps),
		)
	}
	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not write channels list: %w", err)
	}

	return r.Close()
}

type infoCmd struct {
	File string `arg:"" help:"DMD file."`
	XML  bool   `help:"Display the recording configuration as XML."`
}

func (cmd *infoCmd) Run(g *Globals) error {
	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	vers, err := r.Version()
	if err != nil {
		return err
	}
	hdrs, err := r.Headers()
	if err != nil {
		return err
	}
	markers, err := r.Markers()
	if err != nil {
		return err
	}

	o := g.out
	fmt.Fprintf(o, "file:      %s\n", r.Name())
	fmt.Fprintf(o, "interface: %v\n", vers)
	fmt.Fprintf(o, "start:     %s\n", r.StartLocal().Format(time.RFC3339Nano))
	fmt.Fprintf(o, "start-utc: %s\n", r.StartUTC().Format(time.RFC3339Nano))
	fmt.Fprintf(o, "duration:  %gs\n", r.MeasurementDuration())
	fmt.Fprintf(o, "channels:  %d\n", len(r.Channels()))
	if len(hdrs) > 0 {
		fmt.Fprintf(o, "headers:\n")
		for _, hdr := range hdrs {
			fmt.Fprintf(o, "  %v\n", hdr)
		}
	}
	if len(markers) > 0 {
		fmt.Fprintf(o, "markers:\n")
		for _, m := range markers {
			fmt.Fprintf(o, "  %v\n", m)
		}
	}

	if cmd.XML {
		xml, err := r.ConfigurationXML()
		switch {
		case errors.Is(err, dmd.ErrNotSupported):
			return fmt.Errorf("reader interface %v can not export configuration: %w", vers, err)
		case err != nil:
			return err
		}
		fmt.Fprintf(o, "%s\n", xml)
	}

	return r.Close()
}

type dumpCmd struct {
	rangeFlags

	File     string          `arg:"" help:"DMD file."`
	Channels []string        `arg:"" optional:"" help:"Channel names."`
	IDs      []dmd.ChannelID `name:"id" help:"Channel IDs (repeatable)." placeholder:"ID"`
	Format   string          `default:"seconds" enum:"none,seconds,local,utc" help:"Timestamps format (${enum})."`
	Reduced  bool            `help:"Dump the reduced data of a single channel."`
	Output   string          `short:"o" default:"-" help:"Output CSV file." type:"path"`
}

func (cmd *dumpCmd) Run(g *Globals) error {
	if len(cmd.Channels) == 0 && len(cmd.IDs) == 0 {
		return fmt.Errorf("no channel selected: %w", dmd.ErrNoChannel)
	}

	tf, err := dmd.ParseTimestampFormat(cmd.Format)
	if err != nil {
		return err
	}
	opts := append(cmd.options(), dmd.WithTimestamps(tf))

	r, err := g.open(cmd.File)
	if err != nil {
		return err
	}
	defer r.Close()

	chans, err := r.Lookup(cmd.Channels...)
	if err != nil {
		return err
	}
	ids, err := r.LookupIDs(cmd.IDs...)
	if err != nil {
		return err
	}
	chans = append(chans, ids...)

	var frame *dmd.Frame
	switch {
	case cmd.Reduced:
		if len(chans) != 1 {
			return fmt.Errorf("reduced data needs exactly one channel (got %d)", len(chans))
		}
		frame, err = r.ReadReducedOf(chans[0], opts...)
	default:
		frame, err = r.ReadFrameOf(chans, opts...)
	}
	if err != nil {
		return fmt.Errorf("could not read samples: %w", err)
	}
	if g.Verbose {
		log.Printf("read %d rows from %d channels", frame.Len(), len(chans))
	}

	o, err := g.create(cmd.Output)
	if err != nil {
		return err
	}
	defer o.Close()

	err = frame.WriteCSV(o)
	if err != nil {
		return fmt.Errorf("could not write CSV: %w", err)
	}

	err = o.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return r.Close()
}
