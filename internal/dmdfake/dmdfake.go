// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdfake provides an in-memory implementation of the DMD reader API.
package dmdfake // import "sbinet.org/x/dmd/internal/dmdfake"

import (
	"fmt"
	"math"
	"sync"

	"sbinet.org/x/dmd"
)

// Channel is an in-memory channel.
//
// The value of element j of sample i is Offset+i+j/100 (truncated for
// digital channels, with an imaginary part j for complex channels).
type Channel struct {
	Info    dmd.ChannelInfo
	Data    dmd.SampleType
	Reduced dmd.SampleType
	Dim     uint32

	Sweeps        []dmd.Sweep
	ReducedSweeps []dmd.Sweep

	Offset float64

	// Time returns the timestamp of sample i of an asynchronous sweep.
	Time func(i uint64) float64
}

func (ch *Channel) value(i uint64, j int) float64 {
	return ch.Offset + float64(i) + float64(j)/100
}

func (ch *Channel) time(sweeps []dmd.Sweep, sw int, i uint64) float64 {
	s := sweeps[sw]
	if s.Freq == 0 {
		if ch.Time != nil {
			return ch.Time(i)
		}
		return s.Start
	}
	return s.Start + float64(i-s.First)/s.Freq
}

// File is an in-memory DMD recording.
type File struct {
	Local    dmd.Timestamp
	UTC      dmd.Timestamp
	Headers  []dmd.HeaderField
	Markers  []dmd.MarkerEvent
	Config   string
	Channels []*Channel
}

// API is an in-memory implementation of dmd.API.
type API struct {
	Vers  dmd.Version
	Block uint64 // maximum number of samples returned per call, if non-zero

	mu    sync.Mutex
	files map[string]*File
	fhs   map[dmd.FileHandle]*File
	chs   map[dmd.ChannelHandle]*Channel
	next  uintptr
	calls int
}

var _ dmd.API = (*API)(nil)

// New returns an API serving the provided files, keyed by name.
func New(files map[string]*File) *API {
	return &API{
		Vers:  dmd.Version{Major: 1, Minor: 3},
		files: files,
		fhs:   make(map[dmd.FileHandle]*File),
		chs:   make(map[dmd.ChannelHandle]*Channel),
	}
}

// Open returns the number of currently opened files.
func (api *API) Open() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return len(api.fhs)
}

// Calls returns the number of sample retrieval calls issued so far.
func (api *API) Calls() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.calls
}

func (api *API) Version() (dmd.Version, error) { return api.Vers, nil }

func (api *API) OpenFile(name string) (dmd.FileHandle, error) {
	api.mu.Lock()
	defer api.mu.Unlock()

	f, ok := api.files[name]
	if !ok {
		return 0, dmd.CodeFileDoesNotExist
	}
	api.next++
	fh := dmd.FileHandle(api.next)
	api.fhs[fh] = f
	return fh, nil
}

func (api *API) CloseFile(fh dmd.FileHandle) error {
	api.mu.Lock()
	defer api.mu.Unlock()

	if _, ok := api.fhs[fh]; !ok {
		return dmd.CodeInvalidFileHandle
	}
	delete(api.fhs, fh)
	return nil
}

func (api *API) file(fh dmd.FileHandle) (*File, error) {
	api.mu.Lock()
	defer api.mu.Unlock()

	f, ok := api.fhs[fh]
	if !ok {
		return nil, dmd.CodeInvalidFileHandle
	}
	return f, nil
}

func (api *API) channel(h dmd.ChannelHandle) (*Channel, error) {
	api.mu.Lock()
	defer api.mu.Unlock()

	ch, ok := api.chs[h]
	if !ok {
		return nil, dmd.CodeInvalidChannelHandle
	}
	return ch, nil
}

func (api *API) NumChannels(fh dmd.FileHandle, typ dmd.ChannelType) (uint64, error) {
	f, err := api.file(fh)
	if err != nil {
		return 0, err
	}
	return uint64(len(filter(f.Channels, typ))), nil
}

func filter(chans []*Channel, typ dmd.ChannelType) []*Channel {
	if typ == dmd.AllChannels {
		return chans
	}
	var out []*Channel
	for _, ch := range chans {
		if ch.Info.Type == typ {
			out = append(out, ch)
		}
	}
	return out
}

func (api *API) Channels(fh dmd.FileHandle, typ dmd.ChannelType, first, max uint64) (dmd.ChannelHandle, uint64, error) {
	f, err := api.file(fh)
	if err != nil {
		return 0, 0, err
	}
	chans := filter(f.Channels, typ)
	if first >= uint64(len(chans)) || max == 0 {
		return 0, 0, dmd.CodeInvalidArgument
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	api.next++
	h := dmd.ChannelHandle(api.next)
	api.chs[h] = chans[first]
	return h, 1, nil
}

func (api *API) VectorSampleType(h dmd.ChannelHandle) (dmd.SampleType, dmd.SampleType, uint32, error) {
	ch, err := api.channel(h)
	if err != nil {
		return 0, 0, 0, err
	}
	return ch.Data, ch.Reduced, max(ch.Dim, 1), nil
}

func (api *API) ChannelInfo(h dmd.ChannelHandle) (dmd.ChannelInfo, error) {
	ch, err := api.channel(h)
	if err != nil {
		return dmd.ChannelInfo{}, err
	}
	return ch.Info, nil
}

// span locates the samples [first, first+n) within sweeps.
// It returns the sweep index, the number of available samples and the next
// sample to request.
func (api *API) span(sweeps []dmd.Sweep, first, n uint64) (int, uint64, uint64, error) {
	api.mu.Lock()
	api.calls++
	api.mu.Unlock()

	if n == 0 {
		return 0, 0, first, dmd.CodeInvalidArgument
	}
	for i, sw := range sweeps {
		switch {
		case first < sw.First:
			return i, 0, sw.First, nil
		case first > sw.Last:
			continue
		}
		m := min(n, sw.Last-first+1)
		if api.Block > 0 {
			m = min(m, api.Block)
		}
		next := first + m
		if next > sw.Last && i+1 < len(sweeps) {
			next = sweeps[i+1].First
		}
		return i, m, next, nil
	}
	return 0, 0, first, nil
}

func (api *API) samples(h dmd.ChannelHandle, want dmd.SampleType, first, n uint64, fill func(ch *Channel, sw int, k int, i uint64)) (uint64, uint64, error) {
	ch, err := api.channel(h)
	if err != nil {
		return 0, 0, err
	}
	if ch.Data != want {
		return 0, 0, dmd.CodeChannelDataTypeMismatch
	}
	sw, m, next, err := api.span(ch.Sweeps, first, n)
	if err != nil {
		return 0, 0, err
	}
	for k := range int(m) {
		fill(ch, sw, k, first+uint64(k))
	}
	return m, next, nil
}

func (api *API) ScaledSamplesWithTS(h dmd.ChannelHandle, first uint64, dst []dmd.ScaledSample) (uint64, uint64, error) {
	return api.samples(h, dmd.SampleDouble, first, uint64(len(dst)), func(ch *Channel, sw, k int, i uint64) {
		dst[k] = dmd.ScaledSample{Value: ch.value(i, 0), Time: ch.time(ch.Sweeps, sw, i)}
	})
}

func (api *API) ScaledSamples(h dmd.ChannelHandle, first uint64, vs, ts []float64) (uint64, uint64, error) {
	return api.samples(h, dmd.SampleDouble, first, uint64(len(ts)), func(ch *Channel, sw, k int, i uint64) {
		vs[k] = ch.value(i, 0)
		ts[k] = ch.time(ch.Sweeps, sw, i)
	})
}

func (api *API) DigitalSamplesWithTS(h dmd.ChannelHandle, first uint64, dst []dmd.DigitalSample) (uint64, uint64, error) {
	return api.samples(h, dmd.SampleSInt32, first, uint64(len(dst)), func(ch *Channel, sw, k int, i uint64) {
		dst[k] = dmd.DigitalSample{Value: int32(ch.value(i, 0)), Time: ch.time(ch.Sweeps, sw, i)}
	})
}

func (api *API) DigitalSamples(h dmd.ChannelHandle, first uint64, vs []int32, ts []float64) (uint64, uint64, error) {
	return api.samples(h, dmd.SampleSInt32, first, uint64(len(ts)), func(ch *Channel, sw, k int, i uint64) {
		vs[k] = int32(ch.value(i, 0))
		ts[k] = ch.time(ch.Sweeps, sw, i)
	})
}

func (api *API) ScalarVectorSamples(h dmd.ChannelHandle, first uint64, dim uint32, vs, ts []float64) (uint64, uint64, error) {
	if uint64(len(vs)) < uint64(len(ts))*uint64(dim) {
		return 0, 0, dmd.CodeInvalidMemorySize
	}
	return api.samples(h, dmd.SampleDoubleVector, first, uint64(len(ts)), func(ch *Channel, sw, k int, i uint64) {
		for j := range int(dim) {
			vs[k*int(dim)+j] = ch.value(i, j)
		}
		ts[k] = ch.time(ch.Sweeps, sw, i)
	})
}

func (api *API) ComplexVectorSamples(h dmd.ChannelHandle, first uint64, dim uint32, vs []complex128, ts []float64) (uint64, uint64, error) {
	if uint64(len(vs)) < uint64(len(ts))*uint64(dim) {
		return 0, 0, dmd.CodeInvalidMemorySize
	}
	return api.samples(h, dmd.SampleComplexVector, first, uint64(len(ts)), func(ch *Channel, sw, k int, i uint64) {
		for j := range int(dim) {
			vs[k*int(dim)+j] = complex(ch.value(i, 0), float64(j))
		}
		ts[k] = ch.time(ch.Sweeps, sw, i)
	})
}

// ReducedValue returns the reduced value stored at index i.
func (ch *Channel) ReducedValue(i uint64) dmd.ReducedValue {
	v := ch.value(i, 0)
	return dmd.ReducedValue{Min: v - 1, Max: v + 1, Avg: v, RMS: math.Abs(v)}
}

func (api *API) reduced(h dmd.ChannelHandle, first, n uint64, fill func(ch *Channel, k int, i uint64, t float64)) (uint64, uint64, error) {
	ch, err := api.channel(h)
	if err != nil {
		return 0, 0, err
	}
	if ch.Reduced != dmd.SampleReduced {
		return 0, 0, dmd.CodeChannelDataTypeMismatch
	}
	sw, m, next, err := api.span(ch.ReducedSweeps, first, n)
	if err != nil {
		return 0, 0, err
	}
	for k := range int(m) {
		i := first + uint64(k)
		fill(ch, k, i, ch.time(ch.ReducedSweeps, sw, i))
	}
	return m, next, nil
}

func (api *API) ReducedSamplesWithTS(h dmd.ChannelHandle, first uint64, dst []dmd.ReducedSample) (uint64, uint64, error) {
	return api.reduced(h, first, uint64(len(dst)), func(ch *Channel, k int, i uint64, t float64) {
		dst[k] = dmd.ReducedSample{Value: ch.ReducedValue(i), Time: t}
	})
}

func (api *API) ReducedSamples(h dmd.ChannelHandle, first uint64, vs []dmd.ReducedValue, ts []float64) (uint64, uint64, error) {
	return api.reduced(h, first, uint64(len(ts)), func(ch *Channel, k int, i uint64, t float64) {
		vs[k] = ch.ReducedValue(i)
		ts[k] = t
	})
}

func (api *API) NumHeaderFields(fh dmd.FileHandle) (uint64, error) {
	f, err := api.file(fh)
	if err != nil {
		return 0, err
	}
	return uint64(len(f.Headers)), nil
}

func (api *API) HeaderFields(fh dmd.FileHandle, first, max uint64) ([]dmd.HeaderField, error) {
	f, err := api.file(fh)
	if err != nil {
		return nil, err
	}
	return window(f.Headers, first, max)
}

func (api *API) MeasurementStartTime(fh dmd.FileHandle, utc bool) (dmd.Timestamp, error) {
	f, err := api.file(fh)
	if err != nil {
		return dmd.Timestamp{}, err
	}
	if utc {
		return f.UTC, nil
	}
	return f.Local, nil
}

func (api *API) NumMarkers(fh dmd.FileHandle) (uint64, error) {
	f, err := api.file(fh)
	if err != nil {
		return 0, err
	}
	return uint64(len(f.Markers)), nil
}

func (api *API) Markers(fh dmd.FileHandle, first, max uint64) ([]dmd.MarkerEvent, error) {
	f, err := api.file(fh)
	if err != nil {
		return nil, err
	}
	return window(f.Markers, first, max)
}

func (api *API) NumDataSweeps(h dmd.ChannelHandle) (uint64, error) {
	ch, err := api.channel(h)
	if err != nil {
		return 0, err
	}
	return uint64(len(ch.Sweeps)), nil
}

func (api *API) DataSweeps(h dmd.ChannelHandle, first, max uint64) ([]dmd.Sweep, error) {
	ch, err := api.channel(h)
	if err != nil {
		return nil, err
	}
	return window(ch.Sweeps, first, max)
}

func (api *API) NumReducedSweeps(h dmd.ChannelHandle) (uint64, error) {
	ch, err := api.channel(h)
	if err != nil {
		return 0, err
	}
	return uint64(len(ch.ReducedSweeps)), nil
}

func (api *API) ReducedSweeps(h dmd.ChannelHandle, first, max uint64) ([]dmd.Sweep, error) {
	ch, err := api.channel(h)
	if err != nil {
		return nil, err
	}
	return window(ch.ReducedSweeps, first, max)
}

func (api *API) ConfigurationXML(fh dmd.FileHandle) (string, error) {
	if !api.Vers.Supports(1, 2) {
		return "", dmd.ErrNotSupported
	}
	f, err := api.file(fh)
	if err != nil {
		return "", err
	}
	return f.Config, nil
}

func (api *API) GlobalConfigItem(key string) (string, error) {
	if !api.Vers.Supports(1, 3) {
		return "", dmd.ErrNotSupported
	}
	switch key {
	case "ReaderVersion":
		return "7.1.0", nil
	}
	return "", dmd.CodeInvalidArgument
}

func window[T any](vs []T, first, max uint64) ([]T, error) {
	if first > uint64(len(vs)) {
		return nil, dmd.CodeInvalidArgument
	}
	end := min(first+max, uint64(len(vs)))
	return append([]T(nil), vs[first:end]...), nil
}

// Sync returns a synchronous analog channel sampled at rate Hz, with one
// sweep per [start, end] interval (in seconds).
func Sync(name string, rate float64, intervals ...[2]float64) *Channel {
	ch := &Channel{
		Info: dmd.ChannelInfo{
			SampleRate:  rate,
			Type:        dmd.AnalogChannel,
			Name:        name,
			Unit:        "V",
			Description: fmt.Sprintf("synchronous channel %s", name),
			RangeMin:    -10,
			RangeMax:    +10,
		},
		Data:    dmd.SampleDouble,
		Reduced: dmd.SampleInvalid,
		Dim:     1,
	}
	for _, iv := range intervals {
		ch.Sweeps = append(ch.Sweeps, dmd.Sweep{
			First: uint64(math.Round(iv[0] * rate)),
			Last:  uint64(math.Round(iv[1] * rate)),
			Start: iv[0],
			End:   iv[1],
			Freq:  rate,
		})
		ch.Info.Duration = max(ch.Info.Duration, iv[1])
	}
	return ch
}

// Async returns an asynchronous analog channel holding n samples
// timestamped every 10ms, starting at 10ms.
func Async(name string, n uint64) *Channel {
	return &Channel{
		Info: dmd.ChannelInfo{
			SampleRate:  0,
			Type:        dmd.AnalogChannel,
			Name:        name,
			Unit:        "V",
			Description: fmt.Sprintf("asynchronous channel %s", name),
			Duration:    float64(n) / 100,
			RangeMin:    -10,
			RangeMax:    +10,
		},
		Data:    dmd.SampleDouble,
		Reduced: dmd.SampleInvalid,
		Dim:     1,
		Sweeps: []dmd.Sweep{{
			First: 0,
			Last:  n - 1,
			Start: 0.01,
			End:   float64(n) / 100,
			Freq:  0,
		}},
		Time: func(i uint64) float64 {
			return float64(i+1) / 100
		},
	}
}

// WithReduced adds reduced data to the channel, one reduced value every
// 1/rate seconds over each data sweep.
func (ch *Channel) WithReduced(rate float64) *Channel {
	ch.Reduced = dmd.SampleReduced
	ch.ReducedSweeps = nil
	for _, sw := range ch.Sweeps {
		ch.ReducedSweeps = append(ch.ReducedSweeps, dmd.Sweep{
			First: uint64(math.Round(sw.Start * rate)),
			Last:  uint64(math.Round(sw.End * rate)),
			Start: sw.Start,
			End:   sw.End,
			Freq:  rate,
		})
	}
	return ch
}

// Demo returns a recording with:
//   - "AI 1/1": 10 kHz analog channel, sweeps [1, 2]s and [5, 8]s,
//   - "AI 1/2": same, with reduced data at 10 Hz,
//   - "CNT 1/1": 10 kHz digital channel, same sweeps,
//   - "VS 1/1": 10-dim scalar vector channel, 1 kHz over [0, 9.999]s,
//   - "VC 1/1": 5-dim complex vector channel, 1 kHz over [0, 9.999]s,
//   - "Async 1": asynchronous channel with 293 samples,
//   - "Empty": channel without raw data.
func Demo() *File {
	ai1 := Sync("AI 1/1", 10e3, [2]float64{1, 2}, [2]float64{5, 8})
	ai2 := Sync("AI 1/2", 10e3, [2]float64{1, 2}, [2]float64{5, 8}).WithReduced(10)
	ai2.Offset = 0.5

	cnt := Sync("CNT 1/1", 10e3, [2]float64{1, 2}, [2]float64{5, 8})
	cnt.Info.Type = dmd.CounterChannel
	cnt.Data = dmd.SampleSInt32
	cnt.Info.Unit = ""

	vs := Sync("VS 1/1", 1e3, [2]float64{0, 9.999})
	vs.Data = dmd.SampleDoubleVector
	vs.Dim = 10

	vc := Sync("VC 1/1", 1e3, [2]float64{0, 9.999})
	vc.Data = dmd.SampleComplexVector
	vc.Dim = 5

	empty := Sync("Empty", 10e3)
	empty.Data = dmd.SampleInvalid

	return &File{
		Local: dmd.Timestamp{Year: 2021, DayOfYear: 217, TimeOfDay: 12*3600 + 21*60 + 27.2708, Offset: 120, Valid: true},
		UTC:   dmd.Timestamp{Year: 2021, DayOfYear: 217, TimeOfDay: 10*3600 + 21*60 + 27.2708, Offset: 0, Valid: true},
		Headers: []dmd.HeaderField{
			{Name: "Title", Value: "demo"},
			{Name: "Operator", Value: "dmd"},
		},
		Markers: []dmd.MarkerEvent{
			{Source: dmd.SourceTrigger, Type: dmd.MarkerStart, Time: 1, Text: "start"},
			{Source: dmd.SourceManual, Type: dmd.MarkerTypeEvent, Time: 5.5, Text: "keypress"},
			{Source: dmd.SourceTrigger, Type: dmd.MarkerStop, Time: 8, Text: "stop"},
		},
		Config:   `<?xml version="1.0"?><setup name="demo"/>`,
		Channels: []*Channel{ai1, ai2, cnt, vs, vc, Async("Async 1", 293), empty},
	}
}

// Simple returns a recording with a single sweep of 6331 samples at 10 kHz
// over [0, 0.633]s, whose first sample index is offset from the
// acquisition start.
func Simple() *File {
	const offset = 1234
	mk := func(name string, k float64) *Channel {
		ch := Sync(name, 10e3)
		ch.Sweeps = []dmd.Sweep{{
			First: offset,
			Last:  offset + 6330,
			Start: 0,
			End:   0.633,
			Freq:  10e3,
		}}
		ch.Info.Duration = 0.633
		ch.Offset = k
		return ch
	}
	return &File{
		Local:    dmd.Timestamp{Year: 2021, DayOfYear: 217, TimeOfDay: 12*3600 + 21*60 + 27.2708, Offset: 120, Valid: true},
		UTC:      dmd.Timestamp{Year: 2021, DayOfYear: 217, TimeOfDay: 10*3600 + 21*60 + 27.2708, Offset: 0, Valid: true},
		Channels: []*Channel{mk("AI 1", 0), mk("AI 2", 100), mk("AI 3", 200)},
	}
}

// Duplicates returns a recording whose channels share names pairwise.
func Duplicates() *File {
	mk := func(name string, k float64) *Channel {
		ch := Sync(name, 1e3, [2]float64{0, 0.207})
		ch.Offset = k
		return ch
	}
	return &File{
		Channels: []*Channel{
			mk("AI 1/1 Sim", 0), mk("AI 1/1 Sim", 1000),
			mk("XXX", 2000), mk("XXX", 3000),
		},
	}
}
