// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualFence signals only when Trigger is called.
type manualFence struct {
	mu sync.Mutex
	ch chan struct{}
}

func newManualFence(signaled bool) *manualFence {
	f := &manualFence{ch: make(chan struct{})}
	if signaled {
		close(f.ch)
	}
	return f
}

func (f *manualFence) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

func (f *manualFence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return ErrFenceTimeout
	}
}

func (f *manualFence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.ch:
		f.ch = make(chan struct{})
	default:
	}
	return nil
}

func TestAdvanceRotatesSlots(t *testing.T) {
	fences := []*manualFence{newManualFence(true), newManualFence(true), newManualFence(true)}
	ring := NewFrameRing([]Fence{fences[0], fences[1], fences[2]}, time.Second)

	for want := 0; want < 3; want++ {
		slot, err := ring.Advance()
		require.NoError(t, err)
		assert.Equal(t, want, slot)
	}
	assert.Equal(t, uint64(3), ring.Frame())
}

func TestAdvanceBlocksUntilFenceSignals(t *testing.T) {
	a := newManualFence(true)
	b := newManualFence(true)
	ring := NewFrameRing([]Fence{a, b}, 5*time.Second)

	// First lap submits both slots: wait, then reset before queueing
	// the work that signals the fence.
	_, err := ring.Advance()
	require.NoError(t, err)
	require.NoError(t, a.Reset())
	_, err = ring.Advance()
	require.NoError(t, err)
	require.NoError(t, b.Reset())

	done := make(chan error, 1)
	go func() {
		_, err := ring.Advance()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Advance returned before the slot fence was triggered")
	case <-time.After(50 * time.Millisecond):
	}

	a.Trigger()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Advance did not return after the fence was triggered")
	}
}

func TestAdvanceTimeoutBecomesDeviceLost(t *testing.T) {
	a := newManualFence(true)
	b := newManualFence(false)
	ring := NewFrameRing([]Fence{a, b}, 20*time.Millisecond)

	_, err := ring.Advance()
	require.NoError(t, err)

	_, err = ring.Advance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceLost), "err = %v, want ErrDeviceLost", err)
}

func TestAbandonedSlotStaysReusable(t *testing.T) {
	a := newManualFence(true)
	b := newManualFence(true)
	ring := NewFrameRing([]Fence{a, b}, 100*time.Millisecond)

	// Slot 0 is acquired but the frame is abandoned before anything is
	// submitted, so its fence is never reset and never re-signaled.
	slot, err := ring.Advance()
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	// Slot 1 runs a full frame: reset on submit, signal on retire.
	slot, err = ring.Advance()
	require.NoError(t, err)
	require.Equal(t, 1, slot)
	require.NoError(t, b.Reset())
	b.Trigger()

	// Coming back around to the abandoned slot must not block or report
	// a lost device; its fence is still signaled.
	slot, err = ring.Advance()
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
}

func TestRingRequiresTwoSlots(t *testing.T) {
	assert.Panics(t, func() {
		NewFrameRing([]Fence{newManualFence(true)}, time.Second)
	})
}
