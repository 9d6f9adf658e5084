// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdsrv // import "sbinet.org/x/dmd/dmdsrv"

import (
	"fmt"
	"time"

	"sbinet.org/x/dmd"
)

// manager serves one recording.
type manager struct {
	id string
	r  *dmd.Reader
}

func newManager(id string, r *dmd.Reader) *manager {
	return &manager{id: id, r: r}
}

// selection holds the channels requested by name (ch) and by ID (cid).
// Channels sharing a name can only be selected by ID.
type selection struct {
	names []string
	ids   []dmd.ChannelID
}

func (sel selection) len() int { return len(sel.names) + len(sel.ids) }

// lookup returns the selected channels, those selected by name first.
func (mgr *manager) lookup(sel selection) ([]*dmd.Channel, error) {
	if sel.len() == 0 {
		return nil, fmt.Errorf("no channel requested for recording=%q: %w", mgr.id, dmd.ErrNoChannel)
	}
	chans, err := mgr.r.Lookup(sel.names...)
	if err != nil {
		return nil, fmt.Errorf("could not find channels of recording=%q: %w", mgr.id, err)
	}
	ids, err := mgr.r.LookupIDs(sel.ids...)
	if err != nil {
		return nil, fmt.Errorf("could not find channels of recording=%q: %w", mgr.id, err)
	}
	return append(chans, ids...), nil
}

// Info describes a recording.
type Info struct {
	ID       string            `json:"id"`
	File     string            `json:"file"`
	Start    time.Time         `json:"start"`
	StartUTC time.Time         `json:"start_utc"`
	Duration float64           `json:"duration"` // seconds
	Headers  []dmd.HeaderField `json:"headers"`
	Markers  []Marker          `json:"markers"`
	Channels []ChannelInfo     `json:"channels"`
}

type Marker struct {
	Time   float64 `json:"time"`
	Source string  `json:"source"`
	Type   string  `json:"type"`
	Text   string  `json:"text"`
}

type ChannelInfo struct {
	ID          dmd.ChannelID `json:"id"`
	Name        string        `json:"name"`
	Unit        string        `json:"unit"`
	Description string        `json:"description"`
	SampleRate  float64       `json:"rate"`
	Kind        string        `json:"kind"`
	Dim         int           `json:"dim"`
	Samples     uint64        `json:"samples"`
	Sweeps      int           `json:"sweeps"`
	Reduced     bool          `json:"reduced"`
}

func (mgr *manager) info() (Info, error) {
	info := Info{
		ID:       mgr.id,
		File:     mgr.r.Name(),
		Start:    mgr.r.StartLocal(),
		StartUTC: mgr.r.StartUTC(),
		Duration: mgr.r.MeasurementDuration(),
	}

	hdrs, err := mgr.r.Headers()
	if err != nil {
		return info, fmt.Errorf("could not read headers of recording=%q: %w", mgr.id, err)
	}
	info.Headers = hdrs

	evts, err := mgr.r.Markers()
	if err != nil {
		return info, fmt.Errorf("could not read markers of recording=%q: %w", mgr.id, err)
	}
	info.Markers = make([]Marker, 0, len(evts))
	for _, evt := range evts {
		info.Markers = append(info.Markers, Marker{
			Time:   evt.Time,
			Source: evt.Source.String(),
			Type:   evt.Type.String(),
			Text:   evt.Text,
		})
	}

	chans := mgr.r.Channels()
	info.Channels = make([]ChannelInfo, 0, len(chans))
	for _, ch := range chans {
		info.Channels = append(info.Channels, ChannelInfo{
			ID:          ch.ID,
			Name:        ch.Name,
			Unit:        ch.Unit,
			Description: ch.Description,
			SampleRate:  ch.SampleRate,
			Kind:        ch.Kind().String(),
			Dim:         max(1, int(ch.Dim)),
			Samples:     ch.Len(),
			Sweeps:      len(ch.Sweeps),
			Reduced:     ch.ReducedType == dmd.SampleReduced,
		})
	}

	return info, nil
}

// Data is the JSON form of a frame.
type Data struct {
	ID      string      `json:"id"`
	Format  string      `json:"format"`
	Seconds []float64   `json:"seconds,omitempty"`
	Times   []time.Time `json:"times,omitempty"`
	Columns []Column    `json:"columns"`
}

// Column holds the values of a frame column.
// Complex values are encoded as [real, imag] pairs.
type Column struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Values any    `json:"values"`
}

func newData(id string, frame *dmd.Frame) Data {
	data := Data{
		ID:      id,
		Format:  frame.Format.String(),
		Seconds: frame.Seconds,
		Times:   frame.Times,
		Columns: make([]Column, 0, len(frame.Columns)),
	}
	for _, col := range frame.Columns {
		v := Column{Name: col.Name, Kind: col.Kind.String()}
		switch col.Kind {
		case dmd.KindFloat64:
			v.Values = nonNil(col.Float64)
		case dmd.KindInt32:
			v.Values = nonNil(col.Int32)
		case dmd.KindComplex128:
			vs := make([][2]float64, len(col.Complex128))
			for i, c := range col.Complex128 {
				vs[i] = [2]float64{real(c), imag(c)}
			}
			v.Values = vs
		}
		data.Columns = append(data.Columns, v)
	}
	return data
}

func nonNil[T any](vs []T) []T {
	if vs == nil {
		return []T{}
	}
	return vs
}

func (mgr *manager) data(sel selection, opts ...dmd.ReadOption) (Data, error) {
	chans, err := mgr.lookup(sel)
	if err != nil {
		return Data{}, err
	}
	frame, err := mgr.r.ReadFrameOf(chans, opts...)
	if err != nil {
		return Data{}, fmt.Errorf("could not read data of recording=%q: %w", mgr.id, err)
	}
	return newData(mgr.id, frame), nil
}

func (mgr *manager) reduced(sel selection, opts ...dmd.ReadOption) (Data, error) {
	chans, err := mgr.lookup(sel)
	if err != nil {
		return Data{}, err
	}
	if len(chans) != 1 {
		return Data{}, fmt.Errorf("could not read reduced data of recording=%q: %w", mgr.id, errOneChannel)
	}
	frame, err := mgr.r.ReadReducedOf(chans[0], opts...)
	if err != nil {
		return Data{}, fmt.Errorf("could not read reduced data of recording=%q: %w", mgr.id, err)
	}
	return newData(mgr.id, frame), nil
}
