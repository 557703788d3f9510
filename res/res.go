// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package res tracks every loaded asset by its content-addressed identity.
// The manager guarantees one load in flight per identity, reference-counts
// live handles and frees GPU objects in reverse load order on shutdown.
package res

import (
	"errors"
	"image"

	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/model"
)

// Package errors.
var (
	// ErrNoLoader reports that no loader is registered for the asset's
	// extension.
	ErrNoLoader = errors.New("res: no loader for extension")

	// ErrShutdown is returned by Acquire after the manager shut down.
	ErrShutdown = errors.New("res: manager is shut down")
)

// Device is the GPU upload surface loaders build resources through. The
// vulkan context implements it; tests substitute fakes.
type Device interface {

	// NewShaderModule uploads SPIR-V bytecode.
	NewShaderModule(name string, spirv []byte) (gfx.Releasable, error)

	// NewTexture uploads a decoded image as a sampled texture.
	NewTexture(img image.Image) (gfx.Releasable, error)

	// NewMesh uploads vertices into a vertex buffer.
	NewMesh(vertices []model.Vertex) (gfx.Releasable, error)
}

// Loader turns raw asset bytes into a GPU-resident resource. Loaders run
// on job queue workers and must be safe for concurrent use.
type Loader interface {
	Load(id gfx.ResourceID, data []byte) (gfx.Resource, error)
}
