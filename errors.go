// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"errors"
	"fmt"
)

var (
	ErrNoChannel             = errors.New("dmd: no such channel")
	ErrDuplicateName         = errors.New("dmd: duplicate channel name")
	ErrSampleRateMismatch    = errors.New("dmd: channels have different sample rates")
	ErrTimestampMismatch     = errors.New("dmd: channels have different timestamps")
	ErrSweepRange            = errors.New("dmd: sweep number out of range")
	ErrAsyncChannel          = errors.New("dmd: operation not available on asynchronous channels")
	ErrUnsupportedSampleType = errors.New("dmd: unsupported sample type")
	ErrNotSupported          = errors.New("dmd: not supported by the reader library")
	ErrClosed                = errors.New("dmd: reader closed")
	ErrLibraryNotFound       = errors.New("dmd: reader library not found")
	ErrNoData                = errors.New("dmd: no data")
)

// ErrorCode is a status code returned by the native reader library.
type ErrorCode int32

const (
	CodeNoError                       ErrorCode = 0
	CodeFileDoesNotExist              ErrorCode = -5001
	CodeFileInvalid                   ErrorCode = -5002
	CodeInternalError                 ErrorCode = -5003
	CodeInvalidArgument               ErrorCode = -5004
	CodeInvalidFileHandle             ErrorCode = -5005
	CodeInvalidChannelHandle          ErrorCode = -5006
	CodeInvalidMemorySize             ErrorCode = -5007
	CodeMaximumNumberOfValuesExceeded ErrorCode = -5008
	CodeChannelDataTypeMismatch       ErrorCode = -5009
	CodeInvalidMarkerHandle           ErrorCode = -5010
	CodeOutOfMemory                   ErrorCode = -5011
	CodeIncompatibleVersion           ErrorCode = -5012
	CodeAPINotInitialized             ErrorCode = -5013
	CodeInputBufferTooSmall           ErrorCode = -5014
)

var codeNames = map[ErrorCode]string{
	CodeNoError:                       "no error",
	CodeFileDoesNotExist:              "file does not exist",
	CodeFileInvalid:                   "file invalid",
	CodeInternalError:                 "internal error",
	CodeInvalidArgument:               "invalid argument",
	CodeInvalidFileHandle:             "invalid file handle",
	CodeInvalidChannelHandle:          "invalid channel handle",
	CodeInvalidMemorySize:             "invalid memory size",
	CodeMaximumNumberOfValuesExceeded: "maximum number of data values exceeded",
	CodeChannelDataTypeMismatch:       "channel data type mismatch",
	CodeInvalidMarkerHandle:           "invalid marker handle",
	CodeOutOfMemory:                   "out of memory",
	CodeIncompatibleVersion:           "incompatible version",
	CodeAPINotInitialized:             "api not initialized",
	CodeInputBufferTooSmall:           "input buffer too small",
}

func (code ErrorCode) Error() string {
	if name, ok := codeNames[code]; ok {
		return fmt.Sprintf("dmd reader: %s (%d)", name, int32(code))
	}
	return fmt.Sprintf("dmd reader: error code %d", int32(code))
}

// check converts a native status code into an error.
func check(code int32) error {
	if code == 0 {
		return nil
	}
	return ErrorCode(code)
}
