// Package hostbuf provides a minimal host-visible buffer allocator for
// vkcompute examples and tests.
//
// vkcompute itself takes buffers as opaque, externally allocated
// handles and imposes no allocation policy; hostbuf is the simplest
// possible counterpart: every buffer is host-visible, host-coherent,
// and usable as a storage buffer and as either end of a transfer. For
// production workloads a real allocator with device-local memory and
// staging is the right tool; this package deliberately is not one.
package hostbuf

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/vkcompute"
	vk "github.com/goki/vulkan"
)

// Buffer is a host-visible, host-coherent Vulkan buffer with mapped
// read/write access from the CPU.
type Buffer struct {
	device vk.Device
	buf    vk.Buffer
	mem    vk.DeviceMemory
	size   vk.DeviceSize
}

// New allocates a host-visible buffer of the given size in bytes, bound
// to freshly allocated memory. The buffer supports storage-buffer use
// and both transfer directions.
func New(dev *vkcompute.Device, size int) (*Buffer, error) {
	b := &Buffer{device: dev.Handle(), size: vk.DeviceSize(size)}

	bufferInfo := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  b.size,
		Usage: vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit |
			vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(b.device, &bufferInfo, nil, &buf); res != vk.Success {
		return nil, fmt.Errorf("hostbuf: vkCreateBuffer: %v", vk.Error(res))
	}
	b.buf = buf

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buf, &memReqs)
	memReqs.Deref()

	memType, err := findMemoryType(dev.Physical(), memReqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		b.Close()
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(b.device, &allocInfo, nil, &mem); res != vk.Success {
		b.Close()
		return nil, fmt.Errorf("hostbuf: vkAllocateMemory: %v", vk.Error(res))
	}
	b.mem = mem

	if res := vk.BindBufferMemory(b.device, buf, mem, 0); res != vk.Success {
		b.Close()
		return nil, fmt.Errorf("hostbuf: vkBindBufferMemory: %v", vk.Error(res))
	}
	return b, nil
}

// Handle returns the buffer handle to pass into pipelines and copies.
func (b *Buffer) Handle() vk.Buffer { return b.buf }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() vk.DeviceSize { return b.size }

// Write copies p into the buffer starting at offset zero.
func (b *Buffer) Write(p []byte) error {
	if vk.DeviceSize(len(p)) > b.size {
		return fmt.Errorf("hostbuf: write of %d bytes exceeds buffer size %d", len(p), b.size)
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(b.device, b.mem, 0, vk.DeviceSize(len(p)), 0, &data); res != vk.Success {
		return fmt.Errorf("hostbuf: vkMapMemory: %v", vk.Error(res))
	}
	vk.Memcopy(data, p)
	vk.UnmapMemory(b.device, b.mem)
	return nil
}

// Read copies len(p) bytes from the buffer, starting at offset zero,
// into p. The caller must synchronize the stream first: device writes
// are only guaranteed visible after the queue has drained.
func (b *Buffer) Read(p []byte) error {
	if vk.DeviceSize(len(p)) > b.size {
		return fmt.Errorf("hostbuf: read of %d bytes exceeds buffer size %d", len(p), b.size)
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(b.device, b.mem, 0, vk.DeviceSize(len(p)), 0, &data); res != vk.Success {
		return fmt.Errorf("hostbuf: vkMapMemory: %v", vk.Error(res))
	}
	copy(p, unsafe.Slice((*byte)(data), len(p)))
	vk.UnmapMemory(b.device, b.mem)
	return nil
}

// Close destroys the buffer and frees its memory. Safe to call on a
// partially constructed buffer and idempotent.
func (b *Buffer) Close() {
	if b.buf != vk.NullBuffer {
		vk.DestroyBuffer(b.device, b.buf, nil)
		b.buf = vk.NullBuffer
	}
	if b.mem != vk.NullDeviceMemory {
		vk.FreeMemory(b.device, b.mem, nil)
		b.mem = vk.NullDeviceMemory
	}
}

// findMemoryType locates a memory type matching the requirement bits and
// the requested property flags.
func findMemoryType(physical vk.PhysicalDevice, typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProps)
	memProps.Deref()

	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && memProps.MemoryTypes[i].PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("hostbuf: no host-visible memory type available")
}
