// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/karhu3d/karhu/asset"
	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/job"
)

// Handle is the shared tracking object for one resource identity. All
// acquirers of the same identity get the same handle; the resource behind
// it loads exactly once.
type Handle struct {
	id    gfx.ResourceID
	state atomic.Int32
	refs  atomic.Int32

	ready chan struct{}
	res   gfx.Resource
	err   error
}

// ID returns the identity the handle tracks.
func (h *Handle) ID() gfx.ResourceID {
	return h.id
}

// State returns the current lifecycle state.
func (h *Handle) State() gfx.State {
	return gfx.State(h.state.Load())
}

// Wait blocks until the load settles and returns the resource or the load
// error. A failed handle keeps returning the same error; there is no
// automatic retry.
func (h *Handle) Wait() (gfx.Resource, error) {
	<-h.ready
	return h.res, h.err
}

// TryResource polls for the resource without blocking. The boolean reports
// whether the load has settled.
func (h *Handle) TryResource() (gfx.Resource, bool) {
	select {
	case <-h.ready:
		return h.res, true
	default:
		return nil, false
	}
}

// Err returns the load error, nil while loading or after success.
func (h *Handle) Err() error {
	select {
	case <-h.ready:
		return h.err
	default:
		return nil
	}
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	return int(h.refs.Load())
}

// Manager is the content-addressed resource cache. The mutex guarding the
// handle map is the only serialization point; loads themselves run
// concurrently on the job queue.
type Manager struct {
	mu      sync.Mutex
	entries map[uint64]*Handle
	order   []uint64
	down    bool

	jobs    *job.Queue
	source  asset.Source
	loaders map[string]Loader

	log *log.Entry
}

// NewManager builds a manager loading from source and running loads on
// jobs. Loaders are registered per extension afterwards.
func NewManager(jobs *job.Queue, source asset.Source) *Manager {
	return &Manager{
		entries: make(map[uint64]*Handle),
		jobs:    jobs,
		source:  source,
		loaders: make(map[string]Loader),
		log:     log.WithField("component", "resources"),
	}
}

// RegisterLoader routes assets with the given extension (".glsl", ".png")
// to a loader. Registration is not synchronized against Acquire; do it
// before handing the manager out.
func (m *Manager) RegisterLoader(ext string, loader Loader) {
	m.loaders[strings.ToLower(ext)] = loader
}

// Acquire returns the handle for name, starting an asynchronous load when
// the identity is not yet resident. Concurrent acquires of one identity
// share a single load. Every Acquire must be paired with a Release.
func (m *Manager) Acquire(name string) (*Handle, error) {
	id := gfx.NewResourceID(name)

	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	if h, ok := m.entries[id.Hash]; ok {
		h.refs.Add(1)
		m.mu.Unlock()
		return h, nil
	}

	loader, ok := m.loaders[strings.ToLower(filepath.Ext(name))]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoLoader, name)
	}

	h := &Handle{id: id, ready: make(chan struct{})}
	h.state.Store(int32(gfx.StateLoading))
	h.refs.Store(1)
	m.entries[id.Hash] = h
	m.order = append(m.order, id.Hash)
	m.mu.Unlock()

	m.jobs.Submit(func() (interface{}, error) {
		m.load(h, loader)
		return nil, nil
	})
	return h, nil
}

// load runs on a job queue worker and settles the handle exactly once.
func (m *Manager) load(h *Handle, loader Loader) {
	defer close(h.ready)

	data, err := m.source.ReadAll(h.id.Name)
	if err != nil {
		h.err = fmt.Errorf("resource %q: %w", h.id.Name, err)
		h.state.Store(int32(gfx.StateFailed))
		m.log.WithError(err).WithField("name", h.id.Name).Error("resource read failed")
		return
	}

	res, err := loader.Load(h.id, data)
	if err != nil {
		h.err = err
		h.state.Store(int32(gfx.StateFailed))
		m.log.WithError(err).WithField("name", h.id.Name).Error("resource load failed")
		return
	}

	h.res = res
	h.state.Store(int32(gfx.StateLoaded))
}

// Release drops one reference. The resource stays resident until a
// CollectUnused pass; re-acquiring before then is free. Releasing below
// zero is a protocol violation.
func (m *Manager) Release(h *Handle) {
	if n := h.refs.Add(-1); n < 0 {
		panic(fmt.Sprintf("res: release of %q below zero references", h.id.Name))
	}
}

// CollectUnused frees every resident resource with no outstanding
// references, in reverse load order, and reports how many were freed.
// Handles still loading are left alone.
func (m *Manager) CollectUnused() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var freed int
	kept := m.order[:0]
	for i := len(m.order) - 1; i >= 0; i-- {
		hash := m.order[i]
		h := m.entries[hash]
		if h.refs.Load() == 0 && h.State() != gfx.StateLoading {
			if h.res != nil {
				h.res.Release()
			}
			delete(m.entries, hash)
			freed++
		}
	}
	for _, hash := range m.order {
		if _, ok := m.entries[hash]; ok {
			kept = append(kept, hash)
		}
	}
	m.order = kept
	return freed
}

// Shutdown waits out in-flight loads and frees every resident resource in
// reverse load order, regardless of reference counts. The manager accepts
// no acquires afterwards. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return
	}
	m.down = true
	order := m.order
	entries := m.entries
	m.order = nil
	m.entries = make(map[uint64]*Handle)
	m.mu.Unlock()

	// Let loads settle first; freeing under a worker's feet is worse
	// than waiting.
	for _, hash := range order {
		<-entries[hash].ready
	}

	for i := len(order) - 1; i >= 0; i-- {
		h := entries[order[i]]
		if h.res != nil {
			h.res.Release()
		}
	}
	m.log.WithField("released", len(order)).Info("resource manager shut down")
}

// Resident returns how many identities the manager currently tracks.
func (m *Manager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
