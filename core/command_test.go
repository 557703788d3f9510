// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/karhu3d/karhu/pool"
)

type fakeRecorder struct {
	begins, ends, resets int

	// failResetAt makes the nth reset call fail, counted from 1. Zero
	// disables the failure.
	failResetAt int
}

func (f *fakeRecorder) manager(capacity int) *CommandBufferManager {
	return newCommandBufferManager(make([]vk.CommandBuffer, capacity),
		func(vk.CommandBuffer) error { f.begins++; return nil },
		func(vk.CommandBuffer) error { f.ends++; return nil },
		func(vk.CommandBuffer) error {
			f.resets++
			if f.failResetAt != 0 && f.resets == f.failResetAt {
				return errors.New("reset failed")
			}
			return nil
		})
}

func TestCommandBufferLifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(2)

	idx, err := m.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, m.InUse())

	_, err = m.Begin(idx)
	require.NoError(t, err)
	require.NoError(t, m.End(idx))
	m.MarkSubmitted(idx)

	require.NoError(t, m.Recycle())
	assert.Equal(t, 0, m.InUse())
	assert.Equal(t, 1, rec.begins)
	assert.Equal(t, 1, rec.ends)
	assert.Equal(t, 1, rec.resets)
}

func TestAcquireExhaustsAtCapacity(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(2)

	_, err := m.Acquire()
	require.NoError(t, err)
	_, err = m.Acquire()
	require.NoError(t, err)

	_, err = m.Acquire()
	assert.True(t, errors.Is(err, pool.ErrExhausted), "err = %v, want pool.ErrExhausted", err)
}

func TestRecycleMakesBuffersAcquirableAgain(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(1)

	idx, err := m.Acquire()
	require.NoError(t, err)
	_, err = m.Begin(idx)
	require.NoError(t, err)
	require.NoError(t, m.End(idx))
	m.MarkSubmitted(idx)
	require.NoError(t, m.Recycle())

	idx2, err := m.Acquire()
	require.NoError(t, err)
	_, err = m.Begin(idx2)
	require.NoError(t, err)
}

func TestInvalidTransitionsPanic(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(4)

	idx, err := m.Acquire()
	require.NoError(t, err)

	assert.Panics(t, func() { m.End(idx) }, "End before Begin")
	assert.Panics(t, func() { m.MarkSubmitted(idx) }, "MarkSubmitted before End")

	_, err = m.Begin(idx)
	require.NoError(t, err)
	assert.Panics(t, func() { m.Begin(idx) }, "double Begin")

	require.NoError(t, m.End(idx))
	m.MarkSubmitted(idx)
	assert.Panics(t, func() { m.MarkSubmitted(idx) }, "double submit")
}

func TestRecyclePanicsOnRecordingBuffer(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(1)

	idx, err := m.Acquire()
	require.NoError(t, err)
	_, err = m.Begin(idx)
	require.NoError(t, err)

	assert.Panics(t, func() { m.Recycle() })
}

func TestRecycleFailureKeepsUnprocessedHeld(t *testing.T) {
	rec := &fakeRecorder{failResetAt: 2}
	m := rec.manager(2)

	for i := 0; i < 2; i++ {
		idx, err := m.Acquire()
		require.NoError(t, err)
		_, err = m.Begin(idx)
		require.NoError(t, err)
		require.NoError(t, m.End(idx))
		m.MarkSubmitted(idx)
	}

	// The second reset fails; the first buffer was released, the failed
	// one must stay held rather than leak.
	require.Error(t, m.Recycle())
	assert.Equal(t, 1, m.InUse())

	// A later Recycle picks up where the failed one stopped.
	rec.failResetAt = 0
	require.NoError(t, m.Recycle())
	assert.Equal(t, 0, m.InUse())

	_, err := m.Acquire()
	require.NoError(t, err)
	_, err = m.Acquire()
	require.NoError(t, err)
}

func TestRecycleNeverBegunBufferSkipsNothing(t *testing.T) {
	rec := &fakeRecorder{}
	m := rec.manager(1)

	_, err := m.Acquire()
	require.NoError(t, err)

	require.NoError(t, m.Recycle())
	assert.Equal(t, 0, m.InUse())
}
