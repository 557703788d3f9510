// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/job"
)

type mapSource struct {
	files map[string][]byte
}

func (s *mapSource) ReadAll(name string) ([]byte, error) {
	data, ok := s.files[name]
	if !ok {
		return nil, errors.New("no such file: " + name)
	}
	return data, nil
}

func (s *mapSource) Names() ([]string, error) {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names, nil
}

// countingLoader counts loads and released resources, so tests can assert
// single-flight loading and shutdown ordering.
type countingLoader struct {
	loads    atomic.Int32
	fail     bool
	mu       sync.Mutex
	released []string
}

type fakeResource struct {
	id     gfx.ResourceID
	loader *countingLoader
}

func (r *fakeResource) ID() gfx.ResourceID { return r.id }

func (r *fakeResource) Release() {
	r.loader.mu.Lock()
	r.loader.released = append(r.loader.released, r.id.Name)
	r.loader.mu.Unlock()
}

func (l *countingLoader) Load(id gfx.ResourceID, data []byte) (gfx.Resource, error) {
	l.loads.Add(1)
	if l.fail {
		return nil, errors.New("load rejected")
	}
	return &fakeResource{id: id, loader: l}, nil
}

func newTestManager(t *testing.T, files map[string][]byte, loader Loader) (*Manager, *job.Queue) {
	t.Helper()
	jobs := job.NewQueue(4)
	t.Cleanup(jobs.Shutdown)

	m := NewManager(jobs, &mapSource{files: files})
	m.RegisterLoader(".glsl", loader)
	return m, jobs
}

func TestConcurrentAcquireLoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"shaders/simple2.glsl": []byte("void main() {}"),
	}, loader)
	defer m.Shutdown()

	const goroutines = 16
	handles := make([]*Handle, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire("shaders/simple2.glsl")
			require.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, handles[0], handles[i], "all acquirers must share one handle")
	}

	res, err := handles[0].Wait()
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.loads.Load(), "load must run exactly once")
	assert.Equal(t, "shaders/simple2.glsl", res.ID().Name)
	assert.Equal(t, goroutines, handles[0].Refs())
}

func TestTwoThreadsShareOneResource(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"shaders/simple2.glsl": []byte("void main() {}"),
	}, loader)
	defer m.Shutdown()

	results := make([]gfx.Resource, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire("shaders/simple2.glsl")
			require.NoError(t, err)
			res, err := h.Wait()
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Same(t, results[0], results[1], "both threads must see the same resource")
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestCollectUnusedSkipsReferenced(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"a.glsl": []byte("a"),
		"b.glsl": []byte("b"),
	}, loader)
	defer m.Shutdown()

	ha, err := m.Acquire("a.glsl")
	require.NoError(t, err)
	hb, err := m.Acquire("b.glsl")
	require.NoError(t, err)
	_, err = ha.Wait()
	require.NoError(t, err)
	_, err = hb.Wait()
	require.NoError(t, err)

	m.Release(hb)

	freed := m.CollectUnused()
	assert.Equal(t, 1, freed)
	assert.Equal(t, 1, m.Resident())
	assert.Equal(t, []string{"b.glsl"}, loader.released)

	// Referenced resource must still be resident and re-acquirable.
	ha2, err := m.Acquire("a.glsl")
	require.NoError(t, err)
	assert.Same(t, ha, ha2)
}

func TestReleasedStaysResidentUntilCollect(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"a.glsl": []byte("a"),
	}, loader)
	defer m.Shutdown()

	h, err := m.Acquire("a.glsl")
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)
	m.Release(h)

	// No collect pass ran, so a fresh acquire hits the cache.
	h2, err := m.Acquire("a.glsl")
	require.NoError(t, err)
	assert.Same(t, h, h2)
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestFailedLoadIsSticky(t *testing.T) {
	loader := &countingLoader{fail: true}
	m, _ := newTestManager(t, map[string][]byte{
		"bad.glsl": []byte("broken"),
	}, loader)
	defer m.Shutdown()

	h, err := m.Acquire("bad.glsl")
	require.NoError(t, err)
	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, gfx.StateFailed, h.State())

	// Re-acquire returns the same failed handle without a retry.
	h2, err := m.Acquire("bad.glsl")
	require.NoError(t, err)
	assert.Same(t, h, h2)
	_, err2 := h2.Wait()
	assert.Equal(t, err, err2)
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestMissingFileFailsHandle(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{}, loader)
	defer m.Shutdown()

	h, err := m.Acquire("nope.glsl")
	require.NoError(t, err)
	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, gfx.StateFailed, h.State())
	assert.Equal(t, int32(0), loader.loads.Load())
}

func TestAcquireUnknownExtension(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{}, loader)
	defer m.Shutdown()

	_, err := m.Acquire("model.xyz")
	assert.True(t, errors.Is(err, ErrNoLoader), "err = %v, want ErrNoLoader", err)
}

func TestShutdownReleasesReverseOrder(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"a.glsl": []byte("a"),
		"b.glsl": []byte("b"),
		"c.glsl": []byte("c"),
	}, loader)

	for _, name := range []string{"a.glsl", "b.glsl", "c.glsl"} {
		h, err := m.Acquire(name)
		require.NoError(t, err)
		_, err = h.Wait()
		require.NoError(t, err)
	}

	m.Shutdown()
	assert.Equal(t, []string{"c.glsl", "b.glsl", "a.glsl"}, loader.released)

	_, err := m.Acquire("a.glsl")
	assert.True(t, errors.Is(err, ErrShutdown), "err = %v, want ErrShutdown", err)
}

func TestShutdownWaitsForInflightLoads(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"a.glsl": []byte("a"),
	}, loader)

	h, err := m.Acquire("a.glsl")
	require.NoError(t, err)

	// Shutdown must not free under the loading worker's feet.
	m.Shutdown()

	res, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.glsl"}, loader.released)
	assert.NotNil(t, res)
}

func TestAcquireModelThroughManager(t *testing.T) {
	jobs := job.NewQueue(2)
	t.Cleanup(jobs.Shutdown)

	device := &fakeDevice{}
	m := NewManager(jobs, &mapSource{files: map[string][]byte{
		"models/tri.dae": []byte(triangleDae),
	}})
	m.RegisterLoader(".dae", &ModelLoader{Device: device})
	defer m.Shutdown()

	h, err := m.Acquire("models/tri.dae")
	require.NoError(t, err)
	res, err := h.Wait()
	require.NoError(t, err)

	model3d, ok := res.(*Model3D)
	require.True(t, ok, "resource is %T, want *Model3D", res)
	assert.Len(t, model3d.Object().Vertices(), 3)
	assert.Equal(t, 1, device.meshes)
}

func TestReleaseBelowZeroPanics(t *testing.T) {
	loader := &countingLoader{}
	m, _ := newTestManager(t, map[string][]byte{
		"a.glsl": []byte("a"),
	}, loader)
	defer m.Shutdown()

	h, err := m.Acquire("a.glsl")
	require.NoError(t, err)
	m.Release(h)
	assert.Panics(t, func() { m.Release(h) })
}
