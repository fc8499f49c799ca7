package vkcompute

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// loaderOnce guards the process-wide Vulkan loader initialization.
// goki/vulkan resolves entry points once; repeated Device creation reuses
// the same loader state.
var (
	loaderOnce sync.Once
	loaderErr  error
)

// initLoader loads the Vulkan shared library and resolves the global
// entry points. Safe to call from every NewDevice.
func initLoader() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("%w: load vulkan library: %v", ErrInitialization, err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("%w: init vulkan entry points: %v", ErrInitialization, err)
		}
	})
	return loaderErr
}

// safeString returns a copy of s terminated with the NUL byte the C side
// expects.
func safeString(s string) string {
	return s + "\x00"
}

// safeStrings NUL-terminates every element of a string slice.
func safeStrings(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytes as the 32-bit words Vulkan expects.
// len(data) must be a multiple of 4.
func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
