// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dmd inspects, dumps and serves DMD measurement files.
//
// Usage:
//
//	$> dmd ls ./data/run.dmd
//	$> dmd info ./data/run.dmd
//	$> dmd dump -o out.csv --from=1 --to=2 ./data/run.dmd "AI 1/1" "AI 1/2"
//	$> dmd export --db=run.db ./data/run.dmd
//	$> dmd wav -o ai.wav ./data/run.dmd "AI 1/1"
//	$> dmd plot -o ai.png ./data/run.dmd "AI 1/1"
//	$> dmd serve --config=dmd.yaml
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kong"
	"sbinet.org/x/dmd"
)

var version = "dev"

// Globals are the flags shared by all commands.
type Globals struct {
	Lib     string           `help:"Path to the DMD reader library." type:"path" placeholder:"PATH"`
	Verbose bool             `short:"v" help:"Enable verbose mode."`
	Version kong.VersionFlag `help:"Show version and exit."`

	api dmd.API   // reader API, loaded on first use
	lib *dmd.Lib  // library loaded from Lib, if any
	out io.Writer // standard output
}

// CLI is the dmd command line.
type CLI struct {
	Globals

	Ls     lsCmd     `cmd:"" help:"List the channels of a recording."`
	Info   infoCmd   `cmd:"" help:"Display the metadata of a recording."`
	Dump   dumpCmd   `cmd:"" help:"Dump channel samples as CSV."`
	Export exportCmd `cmd:"" help:"Export scalar channels into a samples database."`
	Wav    wavCmd    `cmd:"" help:"Convert a scalar channel into a WAV file."`
	Plot   plotCmd   `cmd:"" help:"Plot a scalar channel as PNG."`
	Serve  serveCmd  `cmd:"" help:"Serve recordings over HTTP."`
}

func main() {
	log.SetPrefix("dmd: ")
	log.SetFlags(0)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("dmd"),
		kong.Description("Inspect, dump and serve DMD measurement files."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	cli.out = os.Stdout

	err := run(ctx, &cli.Globals)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx *kong.Context, g *Globals) error {
	err := ctx.Run(g)
	return errors.Join(err, g.close())
}

// reader returns the reader API, loading the library on first use.
func (g *Globals) reader() (dmd.API, error) {
	if g.api != nil {
		return g.api, nil
	}

	var (
		lib *dmd.Lib
		err error
	)
	switch g.Lib {
	case "":
		lib, err = dmd.Default()
	default:
		lib, err = dmd.Load(g.Lib)
		g.lib = lib
	}
	if err != nil {
		return nil, fmt.Errorf("could not load DMD reader library: %w", err)
	}
	if g.Verbose {
		log.Printf("library: %s (interface %v, reader %v)", lib.Path(), lib.InterfaceVersion(), lib.ReaderVersion())
	}
	g.api = lib
	return lib, nil
}

func (g *Globals) open(fname string) (*dmd.Reader, error) {
	api, err := g.reader()
	if err != nil {
		return nil, err
	}
	return dmd.OpenWith(api, fname)
}

func (g *Globals) close() error {
	if g.lib != nil {
		err := g.lib.Close()
		g.lib = nil
		return err
	}
	return dmd.Dispose()
}

// rangeFlags selects a time range, in seconds since the recording start.
type rangeFlags struct {
	From *float64 `help:"Start of the time range (in seconds)." placeholder:"SECONDS"`
	To   *float64 `help:"End of the time range (in seconds)." placeholder:"SECONDS"`
}

func (f rangeFlags) options() []dmd.ReadOption {
	var opts []dmd.ReadOption
	if f.From != nil {
		opts = append(opts, dmd.WithStart(*f.From))
	}
	if f.To != nil {
		opts = append(opts, dmd.WithEnd(*f.To))
	}
	return opts
}

// chanFlag selects a single channel, by name or by ID.
type chanFlag struct {
	Channel string         `arg:"" optional:"" help:"Channel name."`
	ID      *dmd.ChannelID `name:"id" help:"Channel ID, for channels sharing a name." placeholder:"ID"`
}

func (f chanFlag) channel(r *dmd.Reader) (*dmd.Channel, error) {
	switch {
	case f.ID != nil && f.Channel != "":
		return nil, fmt.Errorf("channel name %q and ID %d are mutually exclusive", f.Channel, *f.ID)
	case f.ID != nil:
		return r.ChannelByID(*f.ID)
	case f.Channel != "":
		return r.Channel(f.Channel)
	}
	return nil, fmt.Errorf("no channel selected: %w", dmd.ErrNoChannel)
}

// create creates the named output file, or returns stdout for "-".
func (g *Globals) create(fname string) (io.WriteCloser, error) {
	if fname == "" || fname == "-" {
		return nopCloser{g.out}, nil
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
