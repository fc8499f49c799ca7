package vkcompute

import vk "github.com/goki/vulkan"

// Option configures a Device during creation.
// Use functional options to customize Device behavior.
//
// Example:
//
//	// Default: Vulkan 1.1, no validation
//	dev, err := vkcompute.NewDevice()
//
//	// Development configuration with the Khronos validation layer
//	dev, err := vkcompute.NewDevice(vkcompute.WithValidation(true))
type Option func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	apiVersion uint32
	validation bool
	appName    string
}

// defaultDeviceOptions returns the default device options.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		apiVersion: vk.MakeVersion(1, 1, 0),
		validation: false,
		appName:    "vkcompute",
	}
}

// WithAPIVersion sets the Vulkan API version requested at instance
// creation. Use vk.MakeVersion to construct the value.
//
// Example:
//
//	dev, err := vkcompute.NewDevice(vkcompute.WithAPIVersion(vk.MakeVersion(1, 2, 0)))
func WithAPIVersion(version uint32) Option {
	return func(o *deviceOptions) {
		o.apiVersion = version
	}
}

// WithValidation toggles the Khronos validation layer and its diagnostic
// callback. When enabled, driver messages at warning severity or above
// are logged through the package logger; if the layer is not installed,
// NewDevice fails with ErrValidationUnavailable rather than silently
// degrading.
func WithValidation(enable bool) Option {
	return func(o *deviceOptions) {
		o.validation = enable
	}
}

// WithAppName sets the application name reported to the Vulkan driver.
func WithAppName(name string) Option {
	return func(o *deviceOptions) {
		o.appName = name
	}
}
