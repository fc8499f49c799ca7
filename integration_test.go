package vkcompute_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/vkcompute"
	"github.com/gogpu/vkcompute/hostbuf"
	"github.com/gogpu/vkcompute/shader"
)

const doubleKernel = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    data[gid.x] = data[gid.x] * 2u;
}
`

// newTestDevice opens a device or skips the test when no compute-capable
// Vulkan implementation is available (CI machines, headless containers).
func newTestDevice(t *testing.T) *vkcompute.Device {
	t.Helper()
	dev, err := vkcompute.NewDevice(vkcompute.WithAppName("vkcompute-test"))
	if err != nil {
		t.Skipf("no usable Vulkan device: %v", err)
	}
	t.Cleanup(dev.Close)
	return dev
}

func compileDoubleKernel(t *testing.T) []byte {
	t.Helper()
	spirv, err := shader.CompileWGSL(doubleKernel)
	if err != nil {
		t.Fatalf("compile kernel: %v", err)
	}
	return spirv
}

func newTestBuffer(t *testing.T, dev *vkcompute.Device, size int) *hostbuf.Buffer {
	t.Helper()
	buf, err := hostbuf.New(dev, size)
	if err != nil {
		t.Fatalf("allocate buffer: %v", err)
	}
	t.Cleanup(buf.Close)
	return buf
}

func putUint32s(vals []uint32) []byte {
	p := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(p[i*4:], v)
	}
	return p
}

func getUint32s(p []byte) []uint32 {
	vals := make([]uint32, len(p)/4)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return vals
}

// Full round trip: upload [1 2 3 4], dispatch the doubling kernel, read
// back [2 4 6 8].
func TestEndToEndDoubling(t *testing.T) {
	dev := newTestDevice(t)
	spirv := compileDoubleKernel(t)

	input := []uint32{1, 2, 3, 4}
	size := len(input) * 4

	src := newTestBuffer(t, dev, size)
	work := newTestBuffer(t, dev, size)
	out := newTestBuffer(t, dev, size)

	if err := src.Write(putUint32s(input)); err != nil {
		t.Fatalf("write input: %v", err)
	}

	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
		{Binding: 0, Buffer: work.Handle()},
	})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	t.Cleanup(pl.Close)

	cb, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		t.Fatalf("create command builder: %v", err)
	}
	t.Cleanup(func() { cb.Close() })

	if err := cb.CopyBuffer(src.Handle(), work.Handle(), src.Size(), vkcompute.CopyHostToDevice); err != nil {
		t.Fatalf("record upload: %v", err)
	}
	if err := cb.Dispatch(pl, uint32(len(input))); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	if err := cb.CopyBuffer(work.Handle(), out.Handle(), work.Size(), vkcompute.CopyDeviceToHost); err != nil {
		t.Fatalf("record readback: %v", err)
	}
	cmd, err := cb.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	st := vkcompute.NewStream(dev)
	if err := st.Launch(cmd); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := st.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}

	result := make([]byte, size)
	if err := out.Read(result); err != nil {
		t.Fatalf("read result: %v", err)
	}
	got := getUint32s(result)
	for i, v := range input {
		if want := v * 2; got[i] != want {
			t.Errorf("element %d: got %d, want %d", i, got[i], want)
		}
	}
}

// Two dispatches of the same kernel in one command buffer compose: the
// barrier after the first dispatch must make its writes visible to the
// second, yielding a quadrupling overall.
func TestTwoDispatchesCompose(t *testing.T) {
	dev := newTestDevice(t)
	spirv := compileDoubleKernel(t)

	input := []uint32{1, 2, 3, 4}
	size := len(input) * 4

	work := newTestBuffer(t, dev, size)
	if err := work.Write(putUint32s(input)); err != nil {
		t.Fatalf("write input: %v", err)
	}

	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
		{Binding: 0, Buffer: work.Handle()},
	})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	t.Cleanup(pl.Close)

	cb, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		t.Fatalf("create command builder: %v", err)
	}
	t.Cleanup(func() { cb.Close() })

	if err := cb.Dispatch(pl, uint32(len(input))); err != nil {
		t.Fatalf("record first dispatch: %v", err)
	}
	if err := cb.Dispatch(pl, uint32(len(input))); err != nil {
		t.Fatalf("record second dispatch: %v", err)
	}
	cmd, err := cb.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	st := vkcompute.NewStream(dev)
	if err := st.Launch(cmd); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := st.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}

	result := make([]byte, size)
	if err := work.Read(result); err != nil {
		t.Fatalf("read result: %v", err)
	}
	got := getUint32s(result)
	for i, v := range input {
		if want := v * 4; got[i] != want {
			t.Errorf("element %d: got %d, want %d", i, got[i], want)
		}
	}
}

// A builder closed mid-recording discards its work cleanly; nothing ever
// reaches the queue and the device stays usable afterward.
func TestCommandBuilderDiscardOnClose(t *testing.T) {
	dev := newTestDevice(t)
	spirv := compileDoubleKernel(t)

	work := newTestBuffer(t, dev, 16)
	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
		{Binding: 0, Buffer: work.Handle()},
	})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	t.Cleanup(pl.Close)

	cb, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		t.Fatalf("create command builder: %v", err)
	}
	if err := cb.Dispatch(pl, 4); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	if err := cb.Close(); err != nil {
		t.Fatalf("close mid-recording: %v", err)
	}
	if err := cb.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := cb.Dispatch(pl, 4); !errors.Is(err, vkcompute.ErrBuilderClosed) {
		t.Errorf("dispatch after close = %v, want ErrBuilderClosed", err)
	}

	// The device survives a discarded recording.
	cb2, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		t.Fatalf("create second builder: %v", err)
	}
	cb2.Close()
}

// The same finalized buffer may be submitted more than once; recording
// uses the simultaneous-use flag.
func TestResubmitFinalizedBuffer(t *testing.T) {
	dev := newTestDevice(t)
	spirv := compileDoubleKernel(t)

	input := []uint32{3}
	work := newTestBuffer(t, dev, 4)
	if err := work.Write(putUint32s(input)); err != nil {
		t.Fatalf("write input: %v", err)
	}

	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
		{Binding: 0, Buffer: work.Handle()},
	})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	t.Cleanup(pl.Close)

	cb, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		t.Fatalf("create command builder: %v", err)
	}
	t.Cleanup(func() { cb.Close() })
	if err := cb.Dispatch(pl, 1); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	cmd, err := cb.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	st := vkcompute.NewStream(dev)
	for i := 0; i < 3; i++ {
		if err := st.Launch(cmd); err != nil {
			t.Fatalf("launch %d: %v", i, err)
		}
	}
	if err := st.Synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}

	result := make([]byte, 4)
	if err := work.Read(result); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if got := getUint32s(result)[0]; got != 24 {
		t.Errorf("3 doubled three times = %d, want 24", got)
	}
}
