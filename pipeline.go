package vkcompute

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// kernelEntryPoint is the entry point every compiled kernel must export.
// Kernels compiled upstream follow this convention; there is no way to
// override it per pipeline.
const kernelEntryPoint = "main"

// BufferBinding associates an externally allocated buffer with the
// numbered slot the compiled kernel expects. Slot numbers must be unique
// within a pipeline. The buffer must remain valid for the lifetime of
// any pipeline or command buffer referencing it; vkcompute does not
// ref-count buffers.
type BufferBinding struct {
	// Binding is the slot number, matching @binding in the kernel source.
	Binding uint32
	// Buffer is the opaque handle produced by the external allocator.
	Buffer vk.Buffer
}

// Pipeline owns a compiled compute kernel together with its binding
// layout and descriptor resources. Bindings are fixed at construction;
// rebinding requires building a new Pipeline.
type Pipeline struct {
	device vk.Device

	setLayout      vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	pipeline       vk.Pipeline
	descriptorPool vk.DescriptorPool
	descriptorSet  vk.DescriptorSet
}

// validateBindings rejects binding sets the driver would later trip
// over: empty sets and duplicate slot numbers. Whether the slots match
// what the kernel bytecode declares is not checked here; that remains
// the caller's responsibility and is validated by the driver.
func validateBindings(bindings []BufferBinding) error {
	if len(bindings) == 0 {
		return ErrNoBindings
	}
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Binding] {
			return fmt.Errorf("%w: slot %d", ErrDuplicateBinding, b.Binding)
		}
		seen[b.Binding] = true
	}
	return nil
}

// NewPipeline compiles SPIR-V kernel bytecode into an executable compute
// pipeline with one read-write storage-buffer descriptor per binding.
// The bytecode must be a non-empty whole number of 32-bit words and the
// kernel must export an entry point named "main". Failure at any
// step unwinds the partially created resources and returns an error
// wrapping ErrPipelineCreation.
func NewPipeline(dev *Device, code []byte, bindings []BufferBinding) (*Pipeline, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: kernel bytecode is %d bytes, not a whole number of SPIR-V words",
			ErrPipelineCreation, len(code))
	}
	if err := validateBindings(bindings); err != nil {
		return nil, err
	}

	p := &Pipeline{device: dev.Handle()}
	if err := p.createSetLayout(bindings); err != nil {
		return nil, err
	}
	if err := p.createComputePipeline(code); err != nil {
		p.destroy()
		return nil, err
	}
	if err := p.createDescriptorPool(len(bindings)); err != nil {
		p.destroy()
		return nil, err
	}
	if err := p.createDescriptorSet(bindings); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

// Close destroys the pipeline's owned objects in dependency order:
// descriptor pool, pipeline, pipeline layout, set layout.
func (p *Pipeline) Close() {
	p.destroy()
}

func (p *Pipeline) destroy() {
	if p.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.device, p.descriptorPool, nil)
		p.descriptorPool = vk.NullDescriptorPool
		p.descriptorSet = vk.NullDescriptorSet
	}
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.pipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.pipelineLayout, nil)
		p.pipelineLayout = vk.NullPipelineLayout
	}
	if p.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(p.device, p.setLayout, nil)
		p.setLayout = vk.NullDescriptorSetLayout
	}
}

// createSetLayout builds the binding layout: one read-write
// storage-buffer entry per descriptor, visible only to the compute
// stage. Binding count and numbering must match what the compiled
// kernel expects; mismatches surface as driver validation failures.
func (p *Pipeline) createSetLayout(bindings []BufferBinding) error {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		})
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(p.device, &createInfo, nil, &layout); res != vk.Success {
		return fmt.Errorf("%w: vkCreateDescriptorSetLayout: %v", ErrPipelineCreation, vk.Error(res))
	}
	p.setLayout = layout
	return nil
}

// createComputePipeline wraps the bytecode in a shader module, builds
// the pipeline layout (single set layout, no push constants), and
// compiles the executable pipeline. The shader module is destroyed as
// soon as compilation finishes; it is not needed afterward.
func (p *Pipeline) createComputePipeline(code []byte) error {
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(p.device, &moduleInfo, nil, &module); res != vk.Success {
		return fmt.Errorf("%w: vkCreateShaderModule: %v", ErrPipelineCreation, vk.Error(res))
	}
	defer vk.DestroyShaderModule(p.device, module, nil)

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.setLayout},
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(p.device, &layoutInfo, nil, &layout); res != vk.Success {
		return fmt.Errorf("%w: vkCreatePipelineLayout: %v", ErrPipelineCreation, vk.Error(res))
	}
	p.pipelineLayout = layout

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  safeString(kernelEntryPoint),
		},
		Layout: p.pipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(p.device, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{pipelineInfo}, nil, pipelines); res != vk.Success {
		return fmt.Errorf("%w: vkCreateComputePipelines: %v", ErrPipelineCreation, vk.Error(res))
	}
	p.pipeline = pipelines[0]
	return nil
}

// createDescriptorPool sizes the pool for exactly the requested binding
// count: one set, storage-buffer descriptors only.
func (p *Pipeline) createDescriptorPool(count int) error {
	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeStorageBuffer,
		DescriptorCount: uint32(count),
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(p.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("%w: vkCreateDescriptorPool: %v", ErrPipelineCreation, vk.Error(res))
	}
	p.descriptorPool = pool
	return nil
}

// createDescriptorSet allocates the single descriptor set and writes
// each binding's buffer into its numbered slot, whole-buffer range
// (offset 0, full extent). Partial-buffer binding is not supported.
func (p *Pipeline) createDescriptorSet(bindings []BufferBinding) error {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(p.device, &allocInfo, &set); res != vk.Success {
		return fmt.Errorf("%w: vkAllocateDescriptorSets: %v", ErrPipelineCreation, vk.Error(res))
	}
	p.descriptorSet = set

	writes := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for _, b := range bindings {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      b.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.Buffer,
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}},
		})
	}
	vk.UpdateDescriptorSets(p.device, uint32(len(writes)), writes, 0, nil)
	return nil
}
