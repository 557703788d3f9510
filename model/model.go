// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the vertex formats the renderer consumes and the
// importers that produce them from interchange files.
package model

import (
	"sync"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// Object represents an engine-supported model.
type Object interface {

	// SetPosition sets the object's current position in space.
	// Has to be thread-safe.
	SetPosition(glm.Mat4)

	// Position gets the object's current position in space.
	// Has to be thread-safe.
	Position() glm.Mat4

	// SetRotation sets the object's rotation matrix.
	// Has to be thread-safe.
	SetRotation(glm.Mat4)

	// Rotation gets the object's rotation matrix.
	// Has to be thread-safe.
	Rotation() glm.Mat4

	// Vertices returns the vertices for renderer use, so it has to
	// match the vertex descriptors exactly.
	Vertices() []Vertex
}

// Vertex is a model vertex.
type Vertex struct {
	Pos   glm.Vec3
	Color glm.Vec4
	UV    glm.Vec2
}

// Uniform defines a model-view-projection object.
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// VertexBindingDescriptions return Vulkan vertex binding descriptors.
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan vertex attribute descriptors.
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
		},
	}
}

// StaticObject is a model imported from an interchange file and held in
// memory. Position and rotation access is guarded for use from jobs.
type StaticObject struct {
	mutex    sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4

	vertices []Vertex
}

// SetPosition implements Object.
func (o *StaticObject) SetPosition(pos glm.Mat4) {
	o.mutex.Lock()
	o.position = pos
	o.mutex.Unlock()
}

// Position implements Object.
func (o *StaticObject) Position() glm.Mat4 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.position
}

// SetRotation implements Object.
func (o *StaticObject) SetRotation(rot glm.Mat4) {
	o.mutex.Lock()
	o.rotation = rot
	o.mutex.Unlock()
}

// Rotation implements Object.
func (o *StaticObject) Rotation() glm.Mat4 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.rotation
}

// Vertices implements Object.
func (o *StaticObject) Vertices() []Vertex {
	return o.vertices
}
