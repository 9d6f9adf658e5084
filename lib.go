// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Lib is a loaded DMD reader library. It implements API.
type Lib struct {
	handle uintptr
	path   string
	iface  Version // interface version
	vers   Version // library version

	getVersion              func(major, minor *uint32) int32
	initialize              func(major, minor uint32) int32
	dispose                 func() int32
	openFile                func(name string, fh *uintptr) int32
	closeFile               func(fh *uintptr) int32
	getNumChannels          func(fh uintptr, typ int32, n *uint64) int32
	getChannels             func(fh uintptr, typ int32, first, max uint64, ch *uintptr, n *uint64) int32
	getVectorSampleType     func(ch uintptr, data, reduced *int32, dim *uint32) int32
	getChannelInformation   func(ch uintptr, info *cChannelInfo) int32
	getSamplesWithTSScaled  func(ch uintptr, first, max uint64, dst *ScaledSample, n, next *uint64) int32
	getSamplesAndTSScaled   func(ch uintptr, first, max uint64, vs, ts *float64, n, next *uint64) int32
	getSamplesWithTSReduced func(ch uintptr, first, max uint64, dst *ReducedSample, n, next *uint64) int32
	getSamplesAndTSReduced  func(ch uintptr, first, max uint64, vs *ReducedValue, ts *float64, n, next *uint64) int32
	getSamplesWithTSDigital func(ch uintptr, first, max uint64, dst *DigitalSample, n, next *uint64) int32
	getSamplesAndTSDigital  func(ch uintptr, first, max uint64, vs *int32, ts *float64, n, next *uint64) int32
	getSamplesScalarVector  func(ch uintptr, first, max uint64, dim uint32, vs, ts *float64, dims *uint32, n, next *uint64) int32
	getSamplesComplexVector func(ch uintptr, first, max uint64, dim uint32, vs *complex128, ts *float64, dims *uint32, n, next *uint64) int32
	getNumHeaderFields      func(fh uintptr, n *uint64) int32
	getHeaderFields         func(fh uintptr, first, max uint64, dst *cHeaderField, n *uint64) int32
	getMeasurementStartTime func(fh uintptr, ts *cTimestamp, utc bool) int32
	getNumMarkers           func(fh uintptr, n *uint64) int32
	getMarkers              func(fh uintptr, first, max uint64, dst *cMarkerEvent, n *uint64) int32
	getNumDataSweeps        func(ch uintptr, n *uint64) int32
	getDataSweeps           func(ch uintptr, first, max uint64, dst *Sweep, n *uint64) int32
	getNumReducedSweeps     func(ch uintptr, n *uint64) int32
	getReducedSweeps        func(ch uintptr, first, max uint64, dst *Sweep, n *uint64) int32

	// optional, depending on the interface version.
	getConfigurationXML func(fh uintptr, buf *byte, size uint64, req *uint64) int32
	getGlobalConfigItem func(key string, buf *byte, size uint64, req *uint64) int32
}

var _ API = (*Lib)(nil)

// C layouts of the structures exchanging strings with the library.
type (
	cChannelInfo struct {
		SampleRate  float64
		Type        int32
		Name        *byte
		Unit        *byte
		Description *byte
		Duration    float64
		RangeMin    float64
		RangeMax    float64
	}

	cHeaderField struct {
		Name  *byte
		Value *byte
	}

	cMarkerEvent struct {
		Source int32
		Type   int32
		Time   float64
		Text   *byte
	}

	cTimestamp struct {
		Year      int32
		DayOfYear int32
		TimeOfDay float64
		Offset    int32
		Valid     bool
	}
)

// Load loads the DMD reader library.
//
// When path is empty, the library is searched for using the DMD_READER_LIB
// environment variable, the system library search path and the directory of
// the running executable (and its bin sub-directory).
func Load(path string) (*Lib, error) {
	var (
		handle uintptr
		err    error
		found  string
	)
	for _, name := range libCandidates(path) {
		handle, err = dlopen(name)
		if err == nil {
			found = name
			break
		}
	}
	if handle == 0 {
		return nil, fmt.Errorf("could not load DMD reader library: %w", errors.Join(ErrLibraryNotFound, err))
	}

	lib := &Lib{handle: handle, path: found}
	err = lib.init()
	if err != nil {
		_ = dlclose(handle)
		return nil, fmt.Errorf("could not initialize DMD reader library %q: %w", found, err)
	}
	return lib, nil
}

func libCandidates(path string) []string {
	if path != "" {
		return []string{path}
	}
	var names []string
	if env := os.Getenv("DMD_READER_LIB"); env != "" {
		names = append(names, env)
	}
	names = append(names, libName)
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		names = append(names,
			filepath.Join(dir, libName),
			filepath.Join(dir, "bin", libName),
		)
	}
	return names
}

func (lib *Lib) init() error {
	for _, fct := range []struct {
		ptr  any
		name string
	}{
		{&lib.getVersion, "DMDReader_GetVersion"},
		{&lib.initialize, "DMDReader_Initialize"},
	} {
		err := lib.register(fct.ptr, fct.name)
		if err != nil {
			return err
		}
	}

	iface, err := lib.Version()
	if err != nil {
		return fmt.Errorf("could not retrieve interface version: %w", err)
	}
	if iface.Major != 1 {
		return fmt.Errorf("unsupported interface version %v: %w", iface, CodeIncompatibleVersion)
	}
	lib.iface = iface

	err = check(lib.initialize(1, 0))
	if err != nil {
		return fmt.Errorf("could not initialize interface 1.0: %w", err)
	}

	for _, fct := range []struct {
		ptr  any
		name string
		vers Version
	}{
		{&lib.dispose, "DMDReader_Dispose", Version{Major: 1}},
		{&lib.openFile, "DMDReader_OpenFile", Version{Major: 1}},
		{&lib.closeFile, "DMDReader_CloseFile", Version{Major: 1}},
		{&lib.getNumChannels, "DMDReader_GetNumChannels", Version{Major: 1}},
		{&lib.getChannels, "DMDReader_GetChannels", Version{Major: 1}},
		{&lib.getVectorSampleType, "DMDReader_GetVectorSampleType", Version{Major: 1}},
		{&lib.getChannelInformation, "DMDReader_GetChannelInformation", Version{Major: 1}},
		{&lib.getSamplesWithTSScaled, "DMDReader_GetSamplesWithTS_ScaledValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesAndTSScaled, "DMDReader_GetSamplesAndTS_ScaledValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesWithTSReduced, "DMDReader_GetSamplesWithTS_ReducedValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesAndTSReduced, "DMDReader_GetSamplesAndTS_ReducedValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesWithTSDigital, "DMDReader_GetSamplesWithTS_DigitalValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesAndTSDigital, "DMDReader_GetSamplesAndTS_DigitalValue_Seconds", Version{Major: 1}},
		{&lib.getSamplesScalarVector, "DMDReader_GetSamplesAndTS_ScalarVector_Seconds", Version{Major: 1}},
		{&lib.getSamplesComplexVector, "DMDReader_GetSamplesAndTS_ComplexVector_Seconds", Version{Major: 1}},
		{&lib.getNumHeaderFields, "DMDReader_GetNumHeaderFields", Version{Major: 1}},
		{&lib.getHeaderFields, "DMDReader_GetHeaderFields", Version{Major: 1}},
		{&lib.getMeasurementStartTime, "DMDReader_GetMeasurementStartTime", Version{Major: 1}},
		{&lib.getNumMarkers, "DMDReader_GetNumMarkers", Version{Major: 1}},
		{&lib.getMarkers, "DMDReader_GetMarkers", Version{Major: 1}},
		{&lib.getNumDataSweeps, "DMDReader_GetNumDataSweeps", Version{Major: 1}},
		{&lib.getDataSweeps, "DMDReader_GetDataSweeps", Version{Major: 1}},
		{&lib.getNumReducedSweeps, "DMDReader_GetNumReducedSweeps", Version{Major: 1}},
		{&lib.getReducedSweeps, "DMDReader_GetReducedSweeps", Version{Major: 1}},
		{&lib.getConfigurationXML, "DMDReader_GetConfigurationXML", Version{Major: 1, Minor: 2}},
		{&lib.getGlobalConfigItem, "DMDReader_GetGlobalConfigItem", Version{Major: 1, Minor: 3}},
	} {
		if !iface.Supports(fct.vers.Major, fct.vers.Minor) {
			continue
		}
		err := lib.register(fct.ptr, fct.name)
		if err != nil {
			return err
		}
	}

	lib.vers = Version{}
	if item, err := lib.GlobalConfigItem("ReaderVersion"); err == nil && item != "" {
		vers, err := ParseVersion(item)
		if err == nil {
			lib.vers = vers
		}
	}

	return nil
}

func (lib *Lib) register(ptr any, name string) error {
	sym, err := dlsym(lib.handle, name)
	if err != nil {
		return fmt.Errorf("could not find symbol %q: %w", name, err)
	}
	purego.RegisterFunc(ptr, sym)
	return nil
}

// Close disposes of the reader library and unloads it.
func (lib *Lib) Close() error {
	if lib.handle == 0 {
		return nil
	}
	var err error
	if lib.dispose != nil {
		err = check(lib.dispose())
	}
	errDl := dlclose(lib.handle)
	lib.handle = 0
	if err != nil {
		return fmt.Errorf("could not dispose DMD reader library: %w", err)
	}
	if errDl != nil {
		return fmt.Errorf("could not unload DMD reader library: %w", errDl)
	}
	return nil
}

// Path returns the file the library was loaded from.
func (lib *Lib) Path() string { return lib.path }

// InterfaceVersion returns the version of the library interface.
func (lib *Lib) InterfaceVersion() Version { return lib.iface }

// ReaderVersion returns the version of the library itself, or the zero
// version when the library does not report it.
func (lib *Lib) ReaderVersion() Version { return lib.vers }

func (lib *Lib) Version() (Version, error) {
	var major, minor uint32
	err := check(lib.getVersion(&major, &minor))
	if err != nil {
		return Version{}, err
	}
	return Version{Major: major, Minor: minor}, nil
}

func (lib *Lib) OpenFile(name string) (FileHandle, error) {
	var fh uintptr
	err := check(lib.openFile(name, &fh))
	return FileHandle(fh), err
}

func (lib *Lib) CloseFile(f FileHandle) error {
	fh := uintptr(f)
	return check(lib.closeFile(&fh))
}

func (lib *Lib) NumChannels(f FileHandle, typ ChannelType) (uint64, error) {
	var n uint64
	err := check(lib.getNumChannels(uintptr(f), int32(typ), &n))
	return n, err
}

func (lib *Lib) Channels(f FileHandle, typ ChannelType, first, max uint64) (ChannelHandle, uint64, error) {
	var (
		ch uintptr
		n  uint64
	)
	err := check(lib.getChannels(uintptr(f), int32(typ), first, max, &ch, &n))
	return ChannelHandle(ch), n, err
}

func (lib *Lib) VectorSampleType(ch ChannelHandle) (data, reduced SampleType, dim uint32, err error) {
	var d, r int32
	err = check(lib.getVectorSampleType(uintptr(ch), &d, &r, &dim))
	return SampleType(d), SampleType(r), dim, err
}

func (lib *Lib) ChannelInfo(ch ChannelHandle) (ChannelInfo, error) {
	var info cChannelInfo
	err := check(lib.getChannelInformation(uintptr(ch), &info))
	if err != nil {
		return ChannelInfo{}, err
	}
	return ChannelInfo{
		SampleRate:  info.SampleRate,
		Type:        ChannelType(info.Type),
		Name:        goString(info.Name),
		Unit:        goString(info.Unit),
		Description: goString(info.Description),
		Duration:    info.Duration,
		RangeMin:    info.RangeMin,
		RangeMax:    info.RangeMax,
	}, nil
}

func (lib *Lib) ScaledSamplesWithTS(ch ChannelHandle, first uint64, dst []ScaledSample) (n, next uint64, err error) {
	err = check(lib.getSamplesWithTSScaled(uintptr(ch), first, uint64(len(dst)), ptr(dst), &n, &next))
	return n, next, err
}

func (lib *Lib) ScaledSamples(ch ChannelHandle, first uint64, vs, ts []float64) (n, next uint64, err error) {
	err = check(lib.getSamplesAndTSScaled(uintptr(ch), first, uint64(len(ts)), ptr(vs), ptr(ts), &n, &next))
	return n, next, err
}

func (lib *Lib) ReducedSamplesWithTS(ch ChannelHandle, first uint64, dst []ReducedSample) (n, next uint64, err error) {
	err = check(lib.getSamplesWithTSReduced(uintptr(ch), first, uint64(len(dst)), ptr(dst), &n, &next))
	return n, next, err
}

func (lib *Lib) ReducedSamples(ch ChannelHandle, first uint64, vs []ReducedValue, ts []float64) (n, next uint64, err error) {
	err = check(lib.getSamplesAndTSReduced(uintptr(ch), first, uint64(len(ts)), ptr(vs), ptr(ts), &n, &next))
	return n, next, err
}

func (lib *Lib) DigitalSamplesWithTS(ch ChannelHandle, first uint64, dst []DigitalSample) (n, next uint64, err error) {
	err = check(lib.getSamplesWithTSDigital(uintptr(ch), first, uint64(len(dst)), ptr(dst), &n, &next))
	return n, next, err
}

func (lib *Lib) DigitalSamples(ch ChannelHandle, first uint64, vs []int32, ts []float64) (n, next uint64, err error) {
	err = check(lib.getSamplesAndTSDigital(uintptr(ch), first, uint64(len(ts)), ptr(vs), ptr(ts), &n, &next))
	return n, next, err
}

func (lib *Lib) ScalarVectorSamples(ch ChannelHandle, first uint64, dim uint32, vs, ts []float64) (n, next uint64, err error) {
	err = check(lib.getSamplesScalarVector(uintptr(ch), first, uint64(len(ts)), dim, ptr(vs), ptr(ts), nil, &n, &next))
	return n, next, err
}

func (lib *Lib) ComplexVectorSamples(ch ChannelHandle, first uint64, dim uint32, vs []complex128, ts []float64) (n, next uint64, err error) {
	err = check(lib.getSamplesComplexVector(uintptr(ch), first, uint64(len(ts)), dim, ptr(vs), ptr(ts), nil, &n, &next))
	return n, next, err
}

func (lib *Lib) NumHeaderFields(f FileHandle) (uint64, error) {
	var n uint64
	err := check(lib.getNumHeaderFields(uintptr(f), &n))
	return n, err
}

func (lib *Lib) HeaderFields(f FileHandle, first, max uint64) ([]HeaderField, error) {
	if max == 0 {
		return nil, nil
	}
	var (
		n   uint64
		buf = make([]cHeaderField, max)
	)
	err := check(lib.getHeaderFields(uintptr(f), first, max, &buf[0], &n))
	if err != nil {
		return nil, err
	}
	out := make([]HeaderField, min(n, max))
	for i := range out {
		out[i] = HeaderField{
			Name:  goString(buf[i].Name),
			Value: goString(buf[i].Value),
		}
	}
	return out, nil
}

func (lib *Lib) MeasurementStartTime(f FileHandle, utc bool) (Timestamp, error) {
	var ts cTimestamp
	err := check(lib.getMeasurementStartTime(uintptr(f), &ts, utc))
	return Timestamp(ts), err
}

func (lib *Lib) NumMarkers(f FileHandle) (uint64, error) {
	var n uint64
	err := check(lib.getNumMarkers(uintptr(f), &n))
	return n, err
}

func (lib *Lib) Markers(f FileHandle, first, max uint64) ([]MarkerEvent, error) {
	if max == 0 {
		return nil, nil
	}
	var (
		n   uint64
		buf = make([]cMarkerEvent, max)
	)
	err := check(lib.getMarkers(uintptr(f), first, max, &buf[0], &n))
	if err != nil {
		return nil, err
	}
	out := make([]MarkerEvent, min(n, max))
	for i := range out {
		out[i] = MarkerEvent{
			Source: MarkerSource(buf[i].Source),
			Type:   MarkerType(buf[i].Type),
			Time:   buf[i].Time,
			Text:   goString(buf[i].Text),
		}
	}
	return out, nil
}

func (lib *Lib) NumDataSweeps(ch ChannelHandle) (uint64, error) {
	var n uint64
	err := check(lib.getNumDataSweeps(uintptr(ch), &n))
	return n, err
}

func (lib *Lib) DataSweeps(ch ChannelHandle, first, max uint64) ([]Sweep, error) {
	if max == 0 {
		return nil, nil
	}
	var (
		n   uint64
		buf = make([]Sweep, max)
	)
	err := check(lib.getDataSweeps(uintptr(ch), first, max, &buf[0], &n))
	if err != nil {
		return nil, err
	}
	return buf[:min(n, max)], nil
}

func (lib *Lib) NumReducedSweeps(ch ChannelHandle) (uint64, error) {
	var n uint64
	err := check(lib.getNumReducedSweeps(uintptr(ch), &n))
	return n, err
}

func (lib *Lib) ReducedSweeps(ch ChannelHandle, first, max uint64) ([]Sweep, error) {
	if max == 0 {
		return nil, nil
	}
	var (
		n   uint64
		buf = make([]Sweep, max)
	)
	err := check(lib.getReducedSweeps(uintptr(ch), first, max, &buf[0], &n))
	if err != nil {
		return nil, err
	}
	return buf[:min(n, max)], nil
}

// ConfigurationXML queries the required buffer size first, then fills it.
func (lib *Lib) ConfigurationXML(f FileHandle) (string, error) {
	if lib.getConfigurationXML == nil {
		return "", ErrNotSupported
	}
	return readString(func(buf *byte, size uint64, req *uint64) int32 {
		return lib.getConfigurationXML(uintptr(f), buf, size, req)
	})
}

func (lib *Lib) GlobalConfigItem(key string) (string, error) {
	if lib.getGlobalConfigItem == nil {
		return "", ErrNotSupported
	}
	return readString(func(buf *byte, size uint64, req *uint64) int32 {
		return lib.getGlobalConfigItem(key, buf, size, req)
	})
}

func readString(fct func(buf *byte, size uint64, req *uint64) int32) (string, error) {
	var req uint64
	code := fct(nil, 0, &req)
	switch ErrorCode(code) {
	case CodeNoError, CodeInputBufferTooSmall:
	default:
		return "", ErrorCode(code)
	}
	if req == 0 {
		return "", nil
	}
	buf := make([]byte, req)
	err := check(fct(&buf[0], uint64(len(buf)), &req))
	if err != nil {
		return "", err
	}
	return goString(&buf[0]), nil
}

func ptr[T any](vs []T) *T {
	if len(vs) == 0 {
		return nil
	}
	return &vs[0]
}

// goString copies the NUL-terminated C string p.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

var std struct {
	mu  sync.Mutex
	lib *Lib
	err error
}

// Default returns the process-wide reader library, loading it on first use.
func Default() (*Lib, error) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if std.lib == nil && std.err == nil {
		std.lib, std.err = Load("")
	}
	return std.lib, std.err
}

// Dispose releases the process-wide reader library.
func Dispose() error {
	std.mu.Lock()
	defer std.mu.Unlock()
	lib := std.lib
	std.lib = nil
	std.err = nil
	if lib == nil {
		return nil
	}
	return lib.Close()
}
