// Package vkcompute manages the lifecycle of GPU compute resources over
// raw Vulkan: device selection, compute pipeline construction, command
// recording, and queue submission/synchronization.
//
// # Overview
//
// vkcompute is the host-side coordination layer for dispatching compute
// kernels. It owns the Vulkan objects whose lifetimes and ordering the
// host must get exactly right (instance, logical device, command pool,
// descriptor resources) and leaves everything else to external
// collaborators: kernels arrive as opaque SPIR-V byte blobs, buffers
// arrive as externally allocated vk.Buffer handles.
//
// # Quick Start
//
//	dev, err := vkcompute.NewDevice(vkcompute.WithValidation(true))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	pl, err := vkcompute.NewPipeline(dev, spirv, []vkcompute.BufferBinding{
//		{Binding: 0, Buffer: buf},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pl.Close()
//
//	cb, err := vkcompute.NewCommandBuilder(dev)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cb.Close()
//	cb.Dispatch(pl, groupCount)
//	cmd, _ := cb.Finalize()
//
//	st := vkcompute.NewStream(dev)
//	st.Launch(cmd)
//	st.Synchronize()
//
// # Architecture
//
// The library is organized into:
//   - Public API: Device, Pipeline, CommandBuilder, Stream
//   - shader/: WGSL to SPIR-V kernel compilation via gogpu/naga
//   - hostbuf/: a minimal host-visible buffer allocator for examples and tests
//
// # Lifetimes
//
// A Device outlives every Pipeline, CommandBuilder, and Stream created
// against it; those types hold non-owning references to the device's
// queue and command pool. Pipelines and command buffers are per unit of
// work; a Stream is a long-lived handle reused across submissions.
//
// # Concurrency
//
// A single host goroutine is expected to drive all calls. Concurrency
// exists between host and GPU, not between host goroutines: none of the
// core types lock internally, and callers must serialize concurrent
// recording or pipeline creation themselves.
package vkcompute

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"
)
