// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/karhu3d/karhu/pool"
)

// BufferState tracks a command buffer through the recording protocol.
type BufferState int

// Command buffer lifecycle states. Transitions run strictly
// Recordable, Recording, Executable, Submitted and back to Recordable
// via Recycle once the owning frame fence has signaled.
const (
	BufferRecordable BufferState = iota
	BufferRecording
	BufferExecutable
	BufferSubmitted
)

// String implements fmt.Stringer.
func (s BufferState) String() string {
	switch s {
	case BufferRecordable:
		return "recordable"
	case BufferRecording:
		return "recording"
	case BufferExecutable:
		return "executable"
	case BufferSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// CommandBuffer is one pooled buffer plus its protocol state. The state is
// guarded by the owning manager, not the buffer itself.
type CommandBuffer struct {
	buffer vk.CommandBuffer
	state  BufferState
}

// Buffer returns the underlying Vulkan handle.
func (c *CommandBuffer) Buffer() vk.CommandBuffer {
	return c.buffer
}

// State returns the buffer's position in the recording protocol.
func (c *CommandBuffer) State() BufferState {
	return c.state
}

// CommandBufferManager owns a fixed-capacity set of command buffers for one
// frame slot. All buffers are allocated up front; Acquire never allocates.
// Misuse of the recording protocol panics, the same way the validation
// layers would abort, because a protocol violation means the frame pacing
// logic is broken and no local recovery is meaningful.
type CommandBufferManager struct {
	mu    sync.Mutex
	slots *pool.Pool[CommandBuffer]
	held  []int

	begin func(vk.CommandBuffer) error
	end   func(vk.CommandBuffer) error
	reset func(vk.CommandBuffer) error
}

// NewCommandBufferManager allocates capacity primary command buffers out of
// cmdPool in a single allocation and wraps them in a manager.
func NewCommandBufferManager(device vk.Device, cmdPool vk.CommandPool, capacity int) (*CommandBufferManager, error) {
	buffers := make([]vk.CommandBuffer, capacity)
	result := vk.AllocateCommandBuffers(device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(capacity),
	}, buffers)
	if result != vk.Success {
		return nil, fmt.Errorf("command buffer allocation failed with %d", result)
	}

	m := newCommandBufferManager(buffers,
		func(buf vk.CommandBuffer) error {
			res := vk.BeginCommandBuffer(buf, &vk.CommandBufferBeginInfo{
				SType: vk.StructureTypeCommandBufferBeginInfo,
			})
			if res != vk.Success {
				return fmt.Errorf("begin command buffer failed with %d", res)
			}
			return nil
		},
		func(buf vk.CommandBuffer) error {
			if res := vk.EndCommandBuffer(buf); res != vk.Success {
				return fmt.Errorf("end command buffer failed with %d", res)
			}
			return nil
		},
		func(buf vk.CommandBuffer) error {
			if res := vk.ResetCommandBuffer(buf, 0); res != vk.Success {
				return fmt.Errorf("reset command buffer failed with %d", res)
			}
			return nil
		})
	return m, nil
}

func newCommandBufferManager(buffers []vk.CommandBuffer, begin, end, reset func(vk.CommandBuffer) error) *CommandBufferManager {
	slots := pool.New[CommandBuffer](len(buffers))
	for i, buf := range buffers {
		slots.Set(i, CommandBuffer{buffer: buf, state: BufferRecordable})
	}
	return &CommandBufferManager{
		slots: slots,
		held:  make([]int, 0, len(buffers)),
		begin: begin,
		end:   end,
		reset: reset,
	}
}

// Acquire claims a recordable buffer and returns its slot index. Once all
// buffers of the frame slot are taken it fails with pool.ErrExhausted,
// which is a sizing error and fatal to the frame.
func (m *CommandBufferManager) Acquire() (int, error) {
	idx, err := m.slots.Acquire()
	if err != nil {
		return -1, err
	}
	m.mu.Lock()
	m.held = append(m.held, idx)
	m.mu.Unlock()
	return idx, nil
}

// Begin moves the buffer into the recording state.
func (m *CommandBufferManager) Begin(idx int) (vk.CommandBuffer, error) {
	cb := m.slots.Get(idx)
	m.transition(cb, BufferRecordable, BufferRecording)
	if err := m.begin(cb.buffer); err != nil {
		m.transition(cb, BufferRecording, BufferRecordable)
		return nil, err
	}
	return cb.buffer, nil
}

// End closes recording, leaving the buffer executable.
func (m *CommandBufferManager) End(idx int) error {
	cb := m.slots.Get(idx)
	m.transition(cb, BufferRecording, BufferExecutable)
	if err := m.end(cb.buffer); err != nil {
		m.transition(cb, BufferExecutable, BufferRecordable)
		return err
	}
	return nil
}

// MarkSubmitted records that the buffer went into a queue submission. From
// here only Recycle, after the frame fence, may touch it.
func (m *CommandBufferManager) MarkSubmitted(idx int) {
	cb := m.slots.Get(idx)
	m.transition(cb, BufferExecutable, BufferSubmitted)
}

// Buffer returns the Vulkan handle of a held slot for submission.
func (m *CommandBufferManager) Buffer(idx int) vk.CommandBuffer {
	return m.slots.Get(idx).buffer
}

// Recycle resets every held buffer back to the recordable state and returns
// the slots to the pool. The caller guarantees the GPU has retired the
// submissions, which in practice means the frame slot's fence has signaled.
// On a reset failure the failed buffer and everything not yet processed
// stay held, so a later Recycle can finish the job.
func (m *CommandBufferManager) Recycle() error {
	m.mu.Lock()
	held := append([]int(nil), m.held...)
	m.held = m.held[:0]
	m.mu.Unlock()

	for i, idx := range held {
		cb := m.slots.Get(idx)
		switch cb.state {
		case BufferSubmitted, BufferExecutable, BufferRecordable:
		default:
			m.restore(held[i:])
			panic(fmt.Sprintf("core: recycling command buffer %d still %s", idx, cb.state))
		}
		if err := m.reset(cb.buffer); err != nil {
			m.restore(held[i:])
			return err
		}
		cb.state = BufferRecordable
		m.slots.Release(idx)
	}
	return nil
}

// restore puts unprocessed slot indices back under management after a
// failed recycle pass.
func (m *CommandBufferManager) restore(idxs []int) {
	m.mu.Lock()
	m.held = append(m.held, idxs...)
	m.mu.Unlock()
}

// Cap returns the fixed buffer count of the manager.
func (m *CommandBufferManager) Cap() int {
	return m.slots.Cap()
}

// InUse returns the number of currently held buffers.
func (m *CommandBufferManager) InUse() int {
	return m.slots.InUse()
}

func (m *CommandBufferManager) transition(cb *CommandBuffer, from, to BufferState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb.state != from {
		panic(fmt.Sprintf("core: command buffer transition %s to %s while %s", from, to, cb.state))
	}
	cb.state = to
}
