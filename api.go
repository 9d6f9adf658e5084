// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

// FileHandle is an opaque handle to a file opened by the reader library.
type FileHandle uintptr

// ChannelHandle is an opaque handle to a channel of an opened file.
type ChannelHandle uintptr

// API is the call surface of the DMD reader library.
//
// Sample retrieval functions fill the provided buffers, starting at sample
// index first, and return the number of valid samples together with the
// index of the next sample to request.
// The number of requested samples is the length of the timestamp buffer
// (or of dst for the interleaved layouts).
type API interface {
	Version() (Version, error)

	OpenFile(name string) (FileHandle, error)
	CloseFile(f FileHandle) error

	NumChannels(f FileHandle, typ ChannelType) (uint64, error)
	Channels(f FileHandle, typ ChannelType, first, max uint64) (ChannelHandle, uint64, error)
	VectorSampleType(ch ChannelHandle) (data, reduced SampleType, dim uint32, err error)
	ChannelInfo(ch ChannelHandle) (ChannelInfo, error)

	ScaledSamplesWithTS(ch ChannelHandle, first uint64, dst []ScaledSample) (n, next uint64, err error)
	ScaledSamples(ch ChannelHandle, first uint64, vs, ts []float64) (n, next uint64, err error)
	ReducedSamplesWithTS(ch ChannelHandle, first uint64, dst []ReducedSample) (n, next uint64, err error)
	ReducedSamples(ch ChannelHandle, first uint64, vs []ReducedValue, ts []float64) (n, next uint64, err error)
	DigitalSamplesWithTS(ch ChannelHandle, first uint64, dst []DigitalSample) (n, next uint64, err error)
	DigitalSamples(ch ChannelHandle, first uint64, vs []int32, ts []float64) (n, next uint64, err error)
	ScalarVectorSamples(ch ChannelHandle, first uint64, dim uint32, vs, ts []float64) (n, next uint64, err error)
	ComplexVectorSamples(ch ChannelHandle, first uint64, dim uint32, vs []complex128, ts []float64) (n, next uint64, err error)

	NumHeaderFields(f FileHandle) (uint64, error)
	HeaderFields(f FileHandle, first, max uint64) ([]HeaderField, error)
	MeasurementStartTime(f FileHandle, utc bool) (Timestamp, error)
	NumMarkers(f FileHandle) (uint64, error)
	Markers(f FileHandle, first, max uint64) ([]MarkerEvent, error)
	NumDataSweeps(ch ChannelHandle) (uint64, error)
	DataSweeps(ch ChannelHandle, first, max uint64) ([]Sweep, error)
	NumReducedSweeps(ch ChannelHandle) (uint64, error)
	ReducedSweeps(ch ChannelHandle, first, max uint64) ([]Sweep, error)

	// ConfigurationXML returns the recording setup.
	// It returns ErrNotSupported for interface versions before 1.2.
	ConfigurationXML(f FileHandle) (string, error)

	// GlobalConfigItem returns a global configuration item of the library.
	// It returns ErrNotSupported for interface versions before 1.3.
	GlobalConfigItem(key string) (string, error)
}
