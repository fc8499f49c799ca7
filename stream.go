package vkcompute

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Stream submits finalized command buffers to the device's compute
// queue. It is a thin, stateless handle over the queue: a non-owning
// back-reference to the Device, safe to keep for the life of the device
// and reuse across many submissions.
type Stream struct {
	dev *Device
}

// NewStream returns a submission stream over the device's compute queue.
func NewStream(dev *Device) *Stream {
	return &Stream{dev: dev}
}

// Launch submits one finalized command buffer to the queue, with no
// fence and no semaphores: fire-and-forget from the host's perspective.
// Buffers execute on the queue in launch order.
func (s *Stream) Launch(cmd vk.CommandBuffer) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if res := vk.QueueSubmit(s.dev.Queue(), 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("%w: vkQueueSubmit: %v", ErrSubmission, vk.Error(res))
	}
	return nil
}

// Synchronize blocks the calling goroutine until the queue has drained
// all outstanding work. This is a coarse whole-queue barrier: there is
// no selective wait for a single submission, no timeout, and no
// cancellation. Without a frame-style epoch boundary to hang a fence
// on, waiting for queue idle is the workable synchronization point; a
// per-submission completion token is a possible future extension.
func (s *Stream) Synchronize() error {
	if res := vk.QueueWaitIdle(s.dev.Queue()); res != vk.Success {
		return fmt.Errorf("%w: vkQueueWaitIdle: %v", ErrSubmission, vk.Error(res))
	}
	return nil
}
