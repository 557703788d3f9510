// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core owns the graphics root: the Vulkan instance and context,
// the per-frame synchronization ring every other component is gated by,
// and the command buffer recycling machinery.
package core

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// PhysicalDeviceInfo describes available physical properties of a
// rendering device.
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Discrete      bool
	Extensions    []string
	Layers        []string
	Memory        uint
}

// Instance describes a Vulkan instance and supporting methods.
// Once created it is ready to use.
type Instance interface {

	// PhysicalDevicesInfo returns a struct for each physical device
	// along with info about those devices.
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of physical devices.
	AvailableDevices() []vk.PhysicalDevice

	// SetSurface sets the window surface for rendering.
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it returns a valid but empty surface.
	Surface() vk.Surface

	// Extensions returns enabled instance extensions.
	Extensions() []string

	// LogInstanceLayerProperties logs every instance layer the driver
	// reports. Diagnostic only, no state change.
	LogInstanceLayerProperties()

	// Inner returns the inner handle of the underlying API.
	Inner() interface{}

	// Destroy destroys internal members.
	Destroy()
}

// ShaderType represents the pipeline stage of a loaded shader.
type ShaderType int

// Identifies shader objects with their types.
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)
