package vkcompute

import (
	"errors"
	"fmt"
)

// Package errors, grouped by the lifecycle stage that produced them.
// Every Vulkan failure is fatal to the operation that hit it: there is no
// retry and no degraded fallback anywhere in this package. Specific
// sentinels wrap their stage sentinel, so errors.Is works against either:
//
//	errors.Is(err, ErrInitialization)    // any device setup failure
//	errors.Is(err, ErrNoSuitableDevice)  // specifically: no compute queue
var (
	// ErrInitialization is returned when instance or device setup fails.
	ErrInitialization = errors.New("vkcompute: initialization failed")

	// ErrNoSuitableDevice is returned when no enumerated physical device
	// exposes a compute-capable queue family.
	ErrNoSuitableDevice = fmt.Errorf("%w: no GPU with a compute-capable queue family", ErrInitialization)

	// ErrValidationUnavailable is returned when validation was requested
	// but the Khronos validation layer is not installed.
	ErrValidationUnavailable = fmt.Errorf("%w: validation layer requested but not available", ErrInitialization)

	// ErrPipelineCreation is returned when shader module, pipeline, or
	// descriptor resource creation fails.
	ErrPipelineCreation = errors.New("vkcompute: pipeline creation failed")

	// ErrNoBindings is returned when a pipeline is built with an empty
	// binding set.
	ErrNoBindings = fmt.Errorf("%w: pipeline requires at least one buffer binding", ErrPipelineCreation)

	// ErrDuplicateBinding is returned when two buffer bindings declare the
	// same slot number.
	ErrDuplicateBinding = fmt.Errorf("%w: duplicate binding slot", ErrPipelineCreation)

	// ErrCommandRecording is returned when command buffer allocation or
	// begin/end recording fails.
	ErrCommandRecording = errors.New("vkcompute: command recording failed")

	// ErrBuilderFinalized is returned when recording operations or a second
	// Finalize are attempted on an already finalized builder.
	ErrBuilderFinalized = fmt.Errorf("%w: builder already finalized", ErrCommandRecording)

	// ErrBuilderClosed is returned when operations are attempted on a
	// closed builder.
	ErrBuilderClosed = fmt.Errorf("%w: builder closed", ErrCommandRecording)

	// ErrSubmission is returned when queue submission or synchronization fails.
	ErrSubmission = errors.New("vkcompute: queue submission failed")
)
