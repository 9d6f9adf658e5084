// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmd reads DMD measurement recordings through the vendor-supplied
// DMD reader library.
//
// A recording is opened with Open (or OpenWith, to use a given API
// implementation) and must be closed after use.
// Its channels are identified by name or, when names are not unique, by
// their ID. Samples can be retrieved as a Frame (one column per channel,
// optionally restricted to a time range), as an Array (one row per channel
// and vector element) or streamed with Reader.Samples.
package dmd // import "sbinet.org/x/dmd"

import (
	"fmt"
	"sort"
	"time"
)

// Reader is an opened DMD recording.
type Reader struct {
	api API
	fh  FileHandle

	name  string
	utc   time.Time // measurement start time, UTC
	local time.Time // measurement start time, recording time zone

	chans []*Channel
	names map[string][]*Channel
}

// Open opens the named DMD file with the process-wide reader library.
func Open(fname string) (*Reader, error) {
	lib, err := Default()
	if err != nil {
		return nil, err
	}
	return OpenWith(lib, fname)
}

// OpenWith opens the named DMD file with the provided API.
func OpenWith(api API, fname string) (*Reader, error) {
	fh, err := api.OpenFile(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open DMD file %q: %w", fname, err)
	}

	r := &Reader{
		api:   api,
		fh:    fh,
		name:  fname,
		names: make(map[string][]*Channel),
	}

	err = r.init()
	if err != nil {
		_ = api.CloseFile(fh)
		return nil, fmt.Errorf("could not read DMD file %q: %w", fname, err)
	}

	return r, nil
}

func (r *Reader) init() error {
	utc, err := r.api.MeasurementStartTime(r.fh, true)
	if err != nil {
		return fmt.Errorf("could not read UTC start time: %w", err)
	}
	r.utc = utc.Time()

	local, err := r.api.MeasurementStartTime(r.fh, false)
	if err != nil {
		return fmt.Errorf("could not read local start time: %w", err)
	}
	r.local = local.Time()

	n, err := r.api.NumChannels(r.fh, AllChannels)
	if err != nil {
		return fmt.Errorf("could not read number of channels: %w", err)
	}

	r.chans = make([]*Channel, 0, n)
	for i := uint64(0); i < n; i++ {
		ch, err := r.channel(i)
		if err != nil {
			return fmt.Errorf("could not read channel %d: %w", i, err)
		}
		r.chans = append(r.chans, ch)
		r.names[ch.Name] = append(r.names[ch.Name], ch)
	}

	return nil
}

func (r *Reader) channel(i uint64) (*Channel, error) {
	h, _, err := r.api.Channels(r.fh, AllChannels, i, 1)
	if err != nil {
		return nil, fmt.Errorf("could not get channel handle: %w", err)
	}

	info, err := r.api.ChannelInfo(h)
	if err != nil {
		return nil, fmt.Errorf("could not get channel information: %w", err)
	}

	ch := &Channel{
		ID:          ChannelID(i),
		Name:        info.Name,
		Unit:        info.Unit,
		Description: info.Description,
		SampleRate:  info.SampleRate,
		Type:        info.Type,
		Duration:    info.Duration,
		RangeMin:    info.RangeMin,
		RangeMax:    info.RangeMax,
		handle:      h,
	}

	ch.RawType, ch.ReducedType, ch.Dim, err = r.api.VectorSampleType(h)
	if err != nil {
		return nil, fmt.Errorf("could not get sample types of %q: %w", ch.Name, err)
	}

	nsweeps, err := r.api.NumDataSweeps(h)
	if err != nil {
		return nil, fmt.Errorf("could not get number of sweeps of %q: %w", ch.Name, err)
	}
	if nsweeps > 0 {
		ch.Sweeps, err = r.api.DataSweeps(h, 0, nsweeps)
		if err != nil {
			return nil, fmt.Errorf("could not get sweeps of %q: %w", ch.Name, err)
		}
	}

	nreduced, err := r.api.NumReducedSweeps(h)
	if err != nil {
		return nil, fmt.Errorf("could not get number of reduced sweeps of %q: %w", ch.Name, err)
	}
	if nreduced > 0 {
		ch.ReducedSweeps, err = r.api.ReducedSweeps(h, 0, nreduced)
		if err != nil {
			return nil, fmt.Errorf("could not get reduced sweeps of %q: %w", ch.Name, err)
		}
	}

	return ch, nil
}

// Close closes the recording. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.api == nil {
		return nil
	}
	err := r.api.CloseFile(r.fh)
	r.api = nil
	if err != nil {
		return fmt.Errorf("could not close DMD file %q: %w", r.name, err)
	}
	return nil
}

func (r *Reader) ok() error {
	if r.api == nil {
		return ErrClosed
	}
	return nil
}

// Name returns the name of the opened file.
func (r *Reader) Name() string { return r.name }

// StartUTC returns the measurement start time, in UTC.
func (r *Reader) StartUTC() time.Time { return r.utc }

// StartLocal returns the measurement start time, in the time zone of the
// recording.
func (r *Reader) StartLocal() time.Time { return r.local }

// Version returns the interface version of the reader library.
func (r *Reader) Version() (Version, error) {
	if err := r.ok(); err != nil {
		return Version{}, err
	}
	return r.api.Version()
}

// MeasurementDuration returns the duration of the measurement, in seconds.
func (r *Reader) MeasurementDuration() float64 {
	var dur float64
	for _, ch := range r.chans {
		dur = max(dur, ch.Duration)
	}
	return dur
}

// Channels returns all channels, ordered by ID.
func (r *Reader) Channels() []*Channel {
	return r.chans
}

// ChannelIDs returns the IDs of all channels.
func (r *Reader) ChannelIDs() []ChannelID {
	ids := make([]ChannelID, len(r.chans))
	for i, ch := range r.chans {
		ids[i] = ch.ID
	}
	return ids
}

// ChannelNames returns the alphabetically sorted channel names.
// Duplicate names are reported once per channel.
func (r *Reader) ChannelNames() []string {
	names := make([]string, len(r.chans))
	for i, ch := range r.chans {
		names[i] = ch.Name
	}
	sort.Strings(names)
	return names
}

// Channel returns the channel with the provided name.
// Channel fails with ErrDuplicateName when the name is not unique.
func (r *Reader) Channel(name string) (*Channel, error) {
	chans := r.names[name]
	switch len(chans) {
	case 0:
		return nil, fmt.Errorf("could not find channel %q: %w", name, ErrNoChannel)
	case 1:
		return chans[0], nil
	default:
		return nil, fmt.Errorf("could not select channel %q (%d channels share that name, use IDs): %w",
			name, len(chans), ErrDuplicateName,
		)
	}
}

// ChannelByID returns the channel with the provided ID.
func (r *Reader) ChannelByID(id ChannelID) (*Channel, error) {
	if uint64(id) >= uint64(len(r.chans)) {
		return nil, fmt.Errorf("could not find channel id=%d: %w", id, ErrNoChannel)
	}
	return r.chans[id], nil
}

// Lookup returns the channels with the provided names.
func (r *Reader) Lookup(names ...string) ([]*Channel, error) {
	chans := make([]*Channel, 0, len(names))
	for _, name := range names {
		ch, err := r.Channel(name)
		if err != nil {
			return nil, err
		}
		chans = append(chans, ch)
	}
	return chans, nil
}

// LookupIDs returns the channels with the provided IDs.
func (r *Reader) LookupIDs(ids ...ChannelID) ([]*Channel, error) {
	chans := make([]*Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := r.ChannelByID(id)
		if err != nil {
			return nil, err
		}
		chans = append(chans, ch)
	}
	return chans, nil
}

// Headers returns the global header fields of the recording.
func (r *Reader) Headers() ([]HeaderField, error) {
	if err := r.ok(); err != nil {
		return nil, err
	}
	n, err := r.api.NumHeaderFields(r.fh)
	if err != nil {
		return nil, fmt.Errorf("could not read number of header fields: %w", err)
	}
	hdrs, err := r.api.HeaderFields(r.fh, 0, n)
	if err != nil {
		return nil, fmt.Errorf("could not read header fields: %w", err)
	}
	return hdrs, nil
}

// Markers returns the marker events of the recording.
func (r *Reader) Markers() ([]MarkerEvent, error) {
	if err := r.ok(); err != nil {
		return nil, err
	}
	n, err := r.api.NumMarkers(r.fh)
	if err != nil {
		return nil, fmt.Errorf("could not read number of markers: %w", err)
	}
	markers, err := r.api.Markers(r.fh, 0, n)
	if err != nil {
		return nil, fmt.Errorf("could not read markers: %w", err)
	}
	return markers, nil
}

// ConfigurationXML returns the setup of the recording, as XML.
// It fails with ErrNotSupported when the reader library is too old.
func (r *Reader) ConfigurationXML() (string, error) {
	if err := r.ok(); err != nil {
		return "", err
	}
	xml, err := r.api.ConfigurationXML(r.fh)
	if err != nil {
		return "", fmt.Errorf("could not read configuration: %w", err)
	}
	return xml, nil
}

// abs converts seconds since the measurement start into absolute times.
func (r *Reader) abs(tf TimestampFormat, secs []float64) []time.Time {
	beg := r.local
	if tf == TimestampUTC {
		beg = r.utc
	}
	out := make([]time.Time, len(secs))
	for i, s := range secs {
		out[i] = beg.Add(seconds(s))
	}
	return out
}
