// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/model"
)

// Shader is a compiled shader module tracked by the manager.
type Shader struct {
	id     gfx.ResourceID
	module gfx.Releasable
}

// ID implements gfx.Resource.
func (s *Shader) ID() gfx.ResourceID {
	return s.id
}

// Module returns the device shader module.
func (s *Shader) Module() gfx.Releasable {
	return s.module
}

// Release implements gfx.Resource.
func (s *Shader) Release() {
	s.module.Release()
}

// Texture is a sampled GPU texture tracked by the manager.
type Texture struct {
	id      gfx.ResourceID
	texture gfx.Releasable
}

// ID implements gfx.Resource.
func (t *Texture) ID() gfx.ResourceID {
	return t.id
}

// Texture returns the device texture.
func (t *Texture) Texture() gfx.Releasable {
	return t.texture
}

// Release implements gfx.Resource.
func (t *Texture) Release() {
	t.texture.Release()
}

// Mesh is a GPU vertex buffer tracked by the manager.
type Mesh struct {
	id   gfx.ResourceID
	mesh gfx.Releasable
}

// ID implements gfx.Resource.
func (m *Mesh) ID() gfx.ResourceID {
	return m.id
}

// Mesh returns the device vertex buffer.
func (m *Mesh) Mesh() gfx.Releasable {
	return m.mesh
}

// Release implements gfx.Resource.
func (m *Mesh) Release() {
	m.mesh.Release()
}

// Model3D is an imported scene object together with its uploaded vertex
// buffer, tracked by the manager as one resource.
type Model3D struct {
	id     gfx.ResourceID
	object model.Object
	mesh   gfx.Releasable
}

// ID implements gfx.Resource.
func (m *Model3D) ID() gfx.ResourceID {
	return m.id
}

// Object returns the CPU-side scene object. Its position and rotation
// accessors are safe to use from jobs.
func (m *Model3D) Object() model.Object {
	return m.object
}

// Mesh returns the device vertex buffer.
func (m *Model3D) Mesh() gfx.Releasable {
	return m.mesh
}

// Release implements gfx.Resource.
func (m *Model3D) Release() {
	m.mesh.Release()
}
