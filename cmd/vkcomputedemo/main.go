// Command vkcomputedemo runs a complete vkcompute round trip on the
// first compute-capable GPU: upload data, dispatch a doubling kernel,
// read the result back, and verify it on the host.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/vkcompute"
	"github.com/gogpu/vkcompute/hostbuf"
	"github.com/gogpu/vkcompute/shader"
)

// doubleKernel doubles each element of its storage buffer in place.
const doubleKernel = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    data[gid.x] = data[gid.x] * 2u;
}
`

func main() {
	var (
		count    = flag.Int("n", 4, "number of elements")
		validate = flag.Bool("validate", false, "enable the Vulkan validation layer")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	vkcompute.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	dev, err := vkcompute.NewDevice(
		vkcompute.WithValidation(*validate),
		vkcompute.WithAppName("vkcomputedemo"),
	)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	spirv, err := shader.CompileWGSL(doubleKernel)
	if err != nil {
		log.Fatalf("Failed to compile kernel: %v", err)
	}

	size := *count * 4
	input := make([]byte, size)
	for i := 0; i < *count; i++ {
		binary.LittleEndian.PutUint32(input[i*4:], uint32(i+1))
	}

	src, err := hostbuf.New(dev, size)
	if err != nil {
		log.Fatalf("Failed to allocate source buffer: %v", err)
	}
	defer src.Close()
	work, err := hostbuf.New(dev, size)
	if err != nil {
		log.Fatalf("Failed to allocate work buffer: %v", err)
	}
	defer work.Close()
	out, err := hostbuf.New(dev, size)
	if err != nil {
		log.Fatalf("Failed to allocate output buffer: %v", err)
	}
	defer out.Close()

	if err := src.Write(input); err != nil {
		log.Fatalf("Failed to write input: %v", err)
	}

	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
		{Binding: 0, Buffer: work.Handle()},
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer pl.Close()

	cb, err := vkcompute.NewCommandBuilder(dev)
	if err != nil {
		log.Fatalf("Failed to create command builder: %v", err)
	}
	defer cb.Close()

	if err := cb.CopyBuffer(src.Handle(), work.Handle(), src.Size(), vkcompute.CopyHostToDevice); err != nil {
		log.Fatalf("Failed to record upload copy: %v", err)
	}
	if err := cb.Dispatch(pl, uint32(*count)); err != nil {
		log.Fatalf("Failed to record dispatch: %v", err)
	}
	if err := cb.CopyBuffer(work.Handle(), out.Handle(), work.Size(), vkcompute.CopyDeviceToHost); err != nil {
		log.Fatalf("Failed to record readback copy: %v", err)
	}
	cmd, err := cb.Finalize()
	if err != nil {
		log.Fatalf("Failed to finalize commands: %v", err)
	}

	st := vkcompute.NewStream(dev)
	if err := st.Launch(cmd); err != nil {
		log.Fatalf("Failed to submit: %v", err)
	}
	if err := st.Synchronize(); err != nil {
		log.Fatalf("Failed to synchronize: %v", err)
	}

	result := make([]byte, size)
	if err := out.Read(result); err != nil {
		log.Fatalf("Failed to read result: %v", err)
	}

	ok := true
	for i := 0; i < *count; i++ {
		got := binary.LittleEndian.Uint32(result[i*4:])
		want := uint32(i+1) * 2
		if got != want {
			log.Printf("element %d: got %d, want %d", i, got, want)
			ok = false
		}
	}
	if !ok {
		log.Fatal("GPU result mismatch")
	}
	log.Printf("Doubled %d elements on %s", *count, dev.Info().String())
}
