package vkcompute

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
)

// A finalized builder must reject all further recording, including a
// second Finalize, before issuing any driver calls.
func TestCommandBuilderRejectsAfterFinalize(t *testing.T) {
	b := &CommandBuilder{finalized: true}

	if err := b.Dispatch(&Pipeline{}, 1); !errors.Is(err, ErrBuilderFinalized) {
		t.Errorf("Dispatch after finalize = %v, want ErrBuilderFinalized", err)
	}
	if err := b.CopyBuffer(vk.NullBuffer, vk.NullBuffer, 16, CopyHostToDevice); !errors.Is(err, ErrBuilderFinalized) {
		t.Errorf("CopyBuffer after finalize = %v, want ErrBuilderFinalized", err)
	}
	if _, err := b.Finalize(); !errors.Is(err, ErrBuilderFinalized) {
		t.Errorf("second Finalize = %v, want ErrBuilderFinalized", err)
	}

	// The state errors must also match the recording category.
	if err := b.checkRecording(); !errors.Is(err, ErrCommandRecording) {
		t.Errorf("finalized state error %v should wrap ErrCommandRecording", err)
	}
}

func TestCommandBuilderRejectsAfterClose(t *testing.T) {
	b := &CommandBuilder{closed: true}

	if err := b.Dispatch(&Pipeline{}, 1); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("Dispatch after close = %v, want ErrBuilderClosed", err)
	}
	if err := b.CopyBuffer(vk.NullBuffer, vk.NullBuffer, 16, CopyDeviceToHost); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("CopyBuffer after close = %v, want ErrBuilderClosed", err)
	}
	if _, err := b.Finalize(); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("Finalize after close = %v, want ErrBuilderClosed", err)
	}
}

// Closing a builder whose buffer was already finalized must not free the
// caller's command buffer, and Close must be idempotent.
func TestCommandBuilderCloseAfterFinalizeIsNoop(t *testing.T) {
	b := &CommandBuilder{finalized: true}
	if err := b.Close(); err != nil {
		t.Fatalf("Close after finalize = %v, want nil", err)
	}
	if !b.closed {
		t.Error("Close should mark the builder closed")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

// Closed takes precedence over finalized when both are set.
func TestCommandBuilderClosedWinsOverFinalized(t *testing.T) {
	b := &CommandBuilder{finalized: true, closed: true}
	if err := b.checkRecording(); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("checkRecording() = %v, want ErrBuilderClosed", err)
	}
}
