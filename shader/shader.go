// Package shader compiles WGSL compute kernels to the SPIR-V bytecode
// the vkcompute pipeline consumes.
//
// The core treats kernel bytecode as an opaque blob; this package is a
// convenience front end for demos and tests. Kernels must export a
// compute entry point named "main".
package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// CompileWGSL compiles WGSL source to SPIR-V bytes, sized in whole
// 32-bit words as Vulkan requires.
func CompileWGSL(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile wgsl: %w", err)
	}
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("shader: compiler produced %d bytes, not a whole number of SPIR-V words", len(spirv))
	}
	return spirv, nil
}
