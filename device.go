package vkcompute

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// validationLayerName is the single layer enabled when validation is on.
const validationLayerName = "VK_LAYER_KHRONOS_validation"

// debugReportExtensionName is the instance extension backing the
// diagnostic callback.
const debugReportExtensionName = "VK_EXT_debug_report"

// variablePointersExtensionName is a soft dependency: some generated
// kernels require it, but its absence only downgrades to a warning.
const variablePointersExtensionName = "VK_KHR_variable_pointers"

// optionalDeviceExtensions is the allow-list of device extensions enabled
// when the physical device advertises them. Everything else the device
// offers stays off.
var optionalDeviceExtensions = map[string]bool{
	"VK_KHR_portability_subset":          true,
	"VK_KHR_surface":                     true,
	"VK_KHR_swapchain":                   true,
	"VK_EXT_shader_atomic_float":         true,
	"VK_KHR_shader_atomic_int64":         true,
	"VK_KHR_synchronization2":            true,
	"VK_NV_external_memory_capabilities": true,
	variablePointersExtensionName:        true,
}

// GPUInfo describes the selected physical device.
type GPUInfo struct {
	// Name is the device name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// APIVersion is the Vulkan version the device supports.
	APIVersion string
	// VendorID is the PCI vendor identifier.
	VendorID uint32
	// QueueFamily is the queue family index used for compute.
	QueueFamily uint32
}

// String returns a human-readable description of the GPU.
func (g GPUInfo) String() string {
	return fmt.Sprintf("%s (Vulkan %s, queue family %d)", g.Name, g.APIVersion, g.QueueFamily)
}

// formatVersion decodes a packed Vulkan version number.
func formatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

// Device owns the GPU context: instance, logical device, the single
// compute queue, and the command pool that command builders carve
// buffers from. Created once per session; Close releases everything in
// strict reverse-creation order.
type Device struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	pool     vk.CommandPool
	family   uint32

	validation bool
	info       GPUInfo
}

// NewDevice selects a compute-capable physical device, opens a logical
// device with exactly one compute queue, and creates the command pool.
// Each step is a hard precondition for the next; any failure unwinds the
// partially constructed context and returns an error wrapping
// ErrInitialization.
func NewDevice(opts ...Option) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := initLoader(); err != nil {
		return nil, err
	}

	d := &Device{validation: o.validation}
	steps := []func() error{
		func() error { return d.createInstance(o) },
		d.setupDebugCallback,
		d.pickPhysicalDevice,
		d.createLogicalDevice,
		d.createCommandPool,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.destroy()
			return nil, err
		}
	}

	Logger().Info("vkcompute: device ready", "gpu", d.info.String())
	return d, nil
}

// Info returns information about the selected physical device.
func (d *Device) Info() GPUInfo { return d.info }

// Handle returns the logical device handle.
func (d *Device) Handle() vk.Device { return d.device }

// Physical returns the selected physical device handle.
func (d *Device) Physical() vk.PhysicalDevice { return d.physical }

// Queue returns the compute queue handle.
func (d *Device) Queue() vk.Queue { return d.queue }

// CommandPool returns the command pool bound to the compute queue family.
func (d *Device) CommandPool() vk.CommandPool { return d.pool }

// QueueFamilyIndex returns the compute queue family index.
func (d *Device) QueueFamilyIndex() uint32 { return d.family }

// Close releases the diagnostic callback, command pool, logical device,
// and instance, strictly in that order. Later objects may reference
// earlier ones, so reordering risks driver validation failures. Not safe
// to call while work created against this device is still in flight.
func (d *Device) Close() {
	d.destroy()
}

// destroy tears down whatever has been created so far. Zero-valued
// handles are skipped, so it is safe to call from any point of a failed
// construction.
func (d *Device) destroy() {
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	if d.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.device, d.pool, nil)
		d.pool = vk.NullCommandPool
	}
	if d.device != nil {
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// checkValidationLayerSupport reports whether the Khronos validation
// layer is installed.
func checkValidationLayerSupport() bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	layers := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, layers)

	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == validationLayerName {
			return true
		}
	}
	return false
}

func (d *Device) createInstance(o deviceOptions) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(o.appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("vkcompute"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         o.apiVersion,
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	if d.validation {
		if !checkValidationLayerSupport() {
			return ErrValidationUnavailable
		}
		layers := safeStrings([]string{validationLayerName})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
		exts := safeStrings([]string{debugReportExtensionName})
		createInfo.EnabledExtensionCount = uint32(len(exts))
		createInfo.PpEnabledExtensionNames = exts
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("%w: vkCreateInstance: %v", ErrInitialization, vk.Error(res))
	}
	d.instance = instance
	vk.InitInstance(instance)
	return nil
}

// debugCallback receives driver diagnostics. Messages at warning severity
// or above are logged; the callback always returns "not handled" so the
// driver's own default logging is never suppressed and the triggering
// call is never aborted.
func debugCallback(flags vk.DebugReportFlags, _ vk.DebugReportObjectType,
	_ uint64, _ uint64, _ int32, layerPrefix string, message string,
	_ unsafe.Pointer) vk.Bool32 {

	level := slog.LevelWarn
	if flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0 {
		level = slog.LevelError
	}
	Logger().Log(context.Background(), level, "vkcompute: validation", "layer", layerPrefix, "message", message)
	return vk.Bool32(vk.False)
}

func (d *Device) setupDebugCallback() error {
	if !d.validation {
		return nil
	}
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit | vk.DebugReportErrorBit),
		PfnCallback: debugCallback,
	}
	var cb vk.DebugReportCallback
	if res := vk.CreateDebugReportCallback(d.instance, &createInfo, nil, &cb); res != vk.Success {
		return fmt.Errorf("%w: vkCreateDebugReportCallbackEXT: %v", ErrInitialization, vk.Error(res))
	}
	d.debug = cb
	return nil
}

// queueFlagMask drops the transfer and sparse-binding bits before the
// compute/graphics comparison; they are irrelevant to selection.
const queueFlagMask = ^vk.QueueFlags(vk.QueueTransferBit | vk.QueueSparseBindingBit)

// pickComputeFamily applies the selection policy over a device's queue
// family capability flags: prefer a family that supports compute without
// graphics (avoids implicit synchronization with a graphics pipeline),
// otherwise accept the first family that supports compute at all.
func pickComputeFamily(families []vk.QueueFlags) (uint32, bool) {
	for i, f := range families {
		masked := f & queueFlagMask
		if masked&vk.QueueFlags(vk.QueueComputeBit) != 0 &&
			masked&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			return uint32(i), true
		}
	}
	for i, f := range families {
		if f&queueFlagMask&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// queueFamilyFlags fetches the capability flags of every queue family on
// a physical device.
func queueFamilyFlags(dev vk.PhysicalDevice) []vk.QueueFlags {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, families)

	flags := make([]vk.QueueFlags, count)
	for i := range families {
		families[i].Deref()
		flags[i] = families[i].QueueFlags
	}
	return flags
}

// pickPhysicalDevice selects the first enumerated device exposing a
// compute-capable queue family. No scoring across candidates: first
// match wins.
func (d *Device) pickPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return ErrNoSuitableDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, dev := range devices {
		family, ok := pickComputeFamily(queueFamilyFlags(dev))
		if !ok {
			continue
		}
		d.physical = dev
		d.family = family

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		d.info = GPUInfo{
			Name:        vk.ToString(props.DeviceName[:]),
			APIVersion:  formatVersion(props.ApiVersion),
			VendorID:    props.VendorID,
			QueueFamily: family,
		}
		Logger().Info("vkcompute: selected physical device", "name", d.info.Name,
			"api", d.info.APIVersion, "queueFamily", family)
		return nil
	}
	return ErrNoSuitableDevice
}

// pickDeviceExtensions filters the extensions a device advertises down to
// the allow-list, and reports whether variable-pointer support is among
// them.
func pickDeviceExtensions(available []string) (enabled []string, hasVariablePointers bool) {
	for _, name := range available {
		if !optionalDeviceExtensions[name] {
			continue
		}
		if name == variablePointersExtensionName {
			hasVariablePointers = true
		}
		if name == "VK_KHR_portability_subset" {
			Logger().Warn("vkcompute: potential non-conformant Vulkan implementation, enabling VK_KHR_portability_subset")
		}
		enabled = append(enabled, name)
	}
	return enabled, hasVariablePointers
}

// deviceExtensionNames fetches the names of all extensions a physical
// device advertises.
func deviceExtensionNames(dev vk.PhysicalDevice) []string {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(dev, "", &count, nil)
	props := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(dev, "", &count, props)

	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		name := vk.ToString(props[i].ExtensionName[:])
		Logger().Debug("vkcompute: device extension", "name", name, "spec", props[i].SpecVersion)
		names = append(names, name)
	}
	return names
}

// createLogicalDevice opens the logical device against the selected
// queue family, requesting exactly one queue and only the allow-listed
// optional extensions the device actually has.
func (d *Device) createLogicalDevice() error {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	enabled, hasVariablePointers := pickDeviceExtensions(deviceExtensionNames(d.physical))
	if !hasVariablePointers {
		Logger().Warn("vkcompute: kernels requiring VK_KHR_variable_pointers will not run; extension not supported on this device")
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(enabled)),
		PpEnabledExtensionNames: safeStrings(enabled),
	}
	if d.validation {
		layers := safeStrings([]string{validationLayerName})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var device vk.Device
	if res := vk.CreateDevice(d.physical, &createInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("%w: vkCreateDevice: %v", ErrInitialization, vk.Error(res))
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.family, 0, &queue)
	d.queue = queue
	return nil
}

// createCommandPool creates the one pool command builders allocate from.
// No per-buffer reset flag: buffers are reusable at the pool level.
func (d *Device) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("%w: vkCreateCommandPool: %v", ErrInitialization, vk.Error(res))
	}
	d.pool = pool
	return nil
}
