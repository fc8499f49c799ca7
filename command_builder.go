package vkcompute

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// CopyDirection identifies which side of the host/device boundary a
// buffer copy crosses. It controls whether a visibility barrier follows
// the copy.
type CopyDirection int

const (
	// CopyHostToDevice marks a copy whose destination feeds subsequent
	// dispatches. A transfer barrier is inserted after the copy so a
	// later dispatch observes the copied data.
	CopyHostToDevice CopyDirection = iota

	// CopyDeviceToHost marks a readback copy. No barrier is inserted;
	// the caller must synchronize the stream before reading the
	// destination.
	CopyDeviceToHost
)

// CommandBuilder records a sequence of GPU operations into one command
// buffer and finalizes it into a submittable handle.
//
// State machine:
//
//	Recording -> Finalize() -> Finalized (builder is spent)
//	Recording -> Close()    -> auto-finalized and discarded
//
// A builder allocates its command buffer from the device's pool on
// construction and begins recording immediately, with the simultaneous
// use flag set: the finalized buffer may be submitted again while a
// previous submission is still pending.
//
// CommandBuilder is NOT safe for concurrent use.
type CommandBuilder struct {
	dev *Device
	cmd vk.CommandBuffer

	finalized bool
	closed    bool
}

// NewCommandBuilder allocates one primary command buffer from the
// device's pool and begins recording. Allocation or begin failures are
// fatal and wrap ErrCommandRecording; there is no partial-recording
// recovery.
func NewCommandBuilder(dev *Device) (*CommandBuilder, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        dev.CommandPool(),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBuffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(dev.Handle(), &allocInfo, cmdBuffers); res != vk.Success {
		return nil, fmt.Errorf("%w: vkAllocateCommandBuffers: %v", ErrCommandRecording, vk.Error(res))
	}
	cmd := cmdBuffers[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		vk.FreeCommandBuffers(dev.Handle(), dev.CommandPool(), 1, cmdBuffers)
		return nil, fmt.Errorf("%w: vkBeginCommandBuffer: %v", ErrCommandRecording, vk.Error(res))
	}

	return &CommandBuilder{dev: dev, cmd: cmd}, nil
}

// checkRecording returns an error unless the builder can still record.
func (b *CommandBuilder) checkRecording() error {
	switch {
	case b.closed:
		return ErrBuilderClosed
	case b.finalized:
		return ErrBuilderFinalized
	default:
		return nil
	}
}

// Dispatch binds the pipeline and its descriptor set and issues a 1-D
// dispatch (Y and Z group counts fixed at 1), followed by a conservative
// memory barrier making all shader reads/writes visible to subsequent
// shader and transfer operations. The barrier is unconditional because
// there is no per-kernel dependency tracking: every dispatch is treated
// as potentially dependent on every prior one.
func (b *CommandBuilder) Dispatch(p *Pipeline, groupCountX uint32) error {
	if err := b.checkRecording(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	vk.CmdBindPipeline(b.cmd, vk.PipelineBindPointCompute, p.pipeline)
	vk.CmdBindDescriptorSets(b.cmd, vk.PipelineBindPointCompute, p.pipelineLayout,
		0, 1, []vk.DescriptorSet{p.descriptorSet}, 0, nil)
	vk.CmdDispatch(b.cmd, groupCountX, 1, 1)

	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit | vk.AccessShaderReadBit),
		DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessTransferWriteBit |
			vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
	}
	vk.CmdPipelineBarrier(b.cmd,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit|vk.PipelineStageComputeShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	return nil
}

// CopyBuffer issues a whole-buffer copy (zero offset on both ends) of
// size bytes from src to dst. Host-to-device copies are followed by a
// transfer barrier so a subsequent dispatch observes the copied data;
// device-to-host copies insert no barrier and require external
// synchronization before readback.
func (b *CommandBuilder) CopyBuffer(src, dst vk.Buffer, size vk.DeviceSize, dir CopyDirection) error {
	if err := b.checkRecording(); err != nil {
		return fmt.Errorf("copy buffer: %w", err)
	}

	region := vk.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: size}
	vk.CmdCopyBuffer(b.cmd, src, dst, 1, []vk.BufferCopy{region})

	if dir == CopyHostToDevice {
		barrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessTransferReadBit),
		}
		vk.CmdPipelineBarrier(b.cmd,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit|vk.PipelineStageTransferBit),
			0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	}
	return nil
}

// Finalize ends the recording and returns the command buffer handle for
// submission. The handle is owned by the caller from this point on; the
// builder is spent and rejects further recording. A second Finalize
// fails with ErrBuilderFinalized.
func (b *CommandBuilder) Finalize() (vk.CommandBuffer, error) {
	if err := b.checkRecording(); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	if res := vk.EndCommandBuffer(b.cmd); res != vk.Success {
		return nil, fmt.Errorf("%w: vkEndCommandBuffer: %v", ErrCommandRecording, vk.Error(res))
	}
	b.finalized = true
	return b.cmd, nil
}

// Close releases the builder. A builder still recording is
// auto-finalized and its command buffer returned to the pool, so no
// unterminated recording ever reaches the queue. A finalized builder's
// command buffer belongs to the caller and is left alone. Close is
// idempotent.
func (b *CommandBuilder) Close() error {
	if b.closed {
		return nil
	}
	if !b.finalized {
		// Implicit flush of an abandoned recording. The buffer goes back
		// to the pool even when ending the recording fails.
		res := vk.EndCommandBuffer(b.cmd)
		vk.FreeCommandBuffers(b.dev.Handle(), b.dev.CommandPool(), 1, []vk.CommandBuffer{b.cmd})
		if res != vk.Success {
			b.closed = true
			return fmt.Errorf("%w: vkEndCommandBuffer: %v", ErrCommandRecording, vk.Error(res))
		}
	}
	b.closed = true
	return nil
}
