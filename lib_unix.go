// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || freebsd || linux

package dmd // import "sbinet.org/x/dmd"

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

var libName = func() string {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return "libdmd_reader_api_x64.so"
	}
	return "libdmd_reader_api.so"
}()

func dlopen(name string) (uintptr, error) {
	return purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func dlsym(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func dlclose(handle uintptr) error {
	return purego.Dlclose(handle)
}
