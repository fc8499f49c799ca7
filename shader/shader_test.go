package shader

import (
	"encoding/binary"
	"testing"
)

// spirvMagic is the first word of every valid SPIR-V module.
const spirvMagic = 0x07230203

const doubleKernel = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    data[gid.x] = data[gid.x] * 2u;
}
`

func TestCompileWGSL(t *testing.T) {
	spirv, err := CompileWGSL(doubleKernel)
	if err != nil {
		t.Fatalf("CompileWGSL() error: %v", err)
	}
	if len(spirv) == 0 {
		t.Fatal("CompileWGSL() returned empty bytecode")
	}
	if len(spirv)%4 != 0 {
		t.Fatalf("bytecode length %d is not a whole number of words", len(spirv))
	}
	if magic := binary.LittleEndian.Uint32(spirv[:4]); magic != spirvMagic {
		t.Errorf("bytecode magic = %#x, want %#x", magic, uint32(spirvMagic))
	}
}

func TestCompileWGSLInvalidSource(t *testing.T) {
	if _, err := CompileWGSL("fn broken("); err == nil {
		t.Error("CompileWGSL() should fail on invalid source")
	}
}
