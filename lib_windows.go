// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package dmd // import "sbinet.org/x/dmd"

import (
	"syscall"
	"unsafe"
)

var libName = func() string {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return "dmd_reader_api_x64.dll"
	}
	return "dmd_reader_api.dll"
}()

func dlopen(name string) (uintptr, error) {
	h, err := syscall.LoadLibrary(name)
	return uintptr(h), err
}

func dlsym(handle uintptr, name string) (uintptr, error) {
	return syscall.GetProcAddress(syscall.Handle(handle), name)
}

func dlclose(handle uintptr) error {
	return syscall.FreeLibrary(syscall.Handle(handle))
}
