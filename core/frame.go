// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"time"
)

// Fence is the CPU-visible completion primitive a frame slot gates on.
// Vulkan fences satisfy it through a small adapter; tests substitute
// manually triggered fences.
type Fence interface {

	// Wait blocks until the fence signals or the timeout lapses, in
	// which case it returns ErrFenceTimeout.
	Wait(timeout time.Duration) error

	// Reset returns the fence to the unsignaled state.
	Reset() error
}

// FrameRing is the bounded ring of per-frame synchronization slots. A slot
// and everything bound to it (command buffers, semaphores) may only be
// reused once its fence has signaled; Advance enforces that by blocking.
// This is the engine's sole cross-frame ordering primitive.
type FrameRing struct {
	fences  []Fence
	current int
	frame   uint64
	timeout time.Duration
}

// NewFrameRing builds a ring over the given fences, one per frame slot.
// Every fence must start in the signaled state so the first lap through
// the ring does not block. The timeout bounds each wait.
//
// The ring never resets a fence. Resetting is the submitter's job, done
// only when work that will signal the fence is actually queued; a frame
// abandoned between Advance and submit leaves its fence signaled, so the
// slot stays reusable.
func NewFrameRing(fences []Fence, timeout time.Duration) *FrameRing {
	if len(fences) < 2 {
		panic(fmt.Sprintf("core: frame ring needs at least 2 slots, got %d", len(fences)))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FrameRing{
		fences:  fences,
		current: len(fences) - 1,
		timeout: timeout,
	}
}

// Advance moves to the next slot and blocks until that slot's previous
// submission has retired. A lapsed wait is returned as ErrDeviceLost; the
// GPU is not coming back from it.
func (r *FrameRing) Advance() (int, error) {
	r.current = (r.current + 1) % len(r.fences)
	r.frame++

	if err := r.fences[r.current].Wait(r.timeout); err != nil {
		if errors.Is(err, ErrFenceTimeout) {
			return 0, fmt.Errorf("frame %d fence wait exceeded %s: %w", r.frame, r.timeout, ErrDeviceLost)
		}
		return 0, fmt.Errorf("frame %d fence wait: %w", r.frame, err)
	}
	return r.current, nil
}

// Current returns the active slot index.
func (r *FrameRing) Current() int {
	return r.current
}

// Frame returns the monotonically increasing frame counter, used in
// diagnostics to identify the failing frame.
func (r *FrameRing) Frame() uint64 {
	return r.frame
}

// Slots returns the ring size.
func (r *FrameRing) Slots() int {
	return len(r.fences)
}
