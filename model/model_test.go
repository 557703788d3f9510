// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"sync"
	"testing"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"

	"github.com/karhu3d/karhu/model"
)

func TestVertexBindingMatchesVertexSize(t *testing.T) {
	bindings := model.VertexBindingDescriptions()
	if len(bindings) != 1 {
		t.Fatalf("binding count = %d, want 1", len(bindings))
	}
	if bindings[0].Binding != 0 {
		t.Errorf("binding index = %d, want 0", bindings[0].Binding)
	}
	if want := uint32(unsafe.Sizeof(model.Vertex{})); bindings[0].Stride != want {
		t.Errorf("stride = %d, want %d", bindings[0].Stride, want)
	}
	if bindings[0].InputRate != vk.VertexInputRateVertex {
		t.Errorf("input rate = %v, want per-vertex", bindings[0].InputRate)
	}
}

func TestVertexAttributesCoverEveryField(t *testing.T) {
	attrs := model.VertexAttributeDescriptions()
	if len(attrs) != 3 {
		t.Fatalf("attribute count = %d, want 3", len(attrs))
	}

	stride := uint32(unsafe.Sizeof(model.Vertex{}))
	locations := make(map[uint32]bool)
	for _, attr := range attrs {
		if attr.Binding != 0 {
			t.Errorf("attribute %d bound to %d, want binding 0", attr.Location, attr.Binding)
		}
		if locations[attr.Location] {
			t.Errorf("duplicate location %d", attr.Location)
		}
		locations[attr.Location] = true
		if attr.Offset >= stride {
			t.Errorf("attribute %d offset %d outside vertex of %d bytes", attr.Location, attr.Offset, stride)
		}
	}

	// Position, color and UV must line up with the struct layout.
	if attrs[0].Offset != uint32(unsafe.Offsetof(model.Vertex{}.Pos)) || attrs[0].Format != vk.FormatR32g32b32Sfloat {
		t.Errorf("position attribute = %+v", attrs[0])
	}
	if attrs[1].Offset != uint32(unsafe.Offsetof(model.Vertex{}.Color)) || attrs[1].Format != vk.FormatR32g32b32a32Sfloat {
		t.Errorf("color attribute = %+v", attrs[1])
	}
	if attrs[2].Offset != uint32(unsafe.Offsetof(model.Vertex{}.UV)) || attrs[2].Format != vk.FormatR32g32Sfloat {
		t.Errorf("uv attribute = %+v", attrs[2])
	}
}

func TestUniformIsThreeTightMatrices(t *testing.T) {
	// Shaders declare the block as three column-major mat4s, so the Go
	// struct may not carry padding between them.
	if got, want := unsafe.Sizeof(model.Uniform{}), 3*unsafe.Sizeof(glm.Mat4{}); got != want {
		t.Errorf("uniform size = %d, want %d", got, want)
	}
}

func TestStaticObjectTransformsAreConcurrencySafe(t *testing.T) {
	obj := &model.StaticObject{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				obj.SetPosition(glm.Translate3D(float32(i), 0, 0))
				obj.Position()
				obj.SetRotation(glm.HomogRotate3DZ(float32(n)))
				obj.Rotation()
			}
		}(i)
	}
	wg.Wait()

	obj.SetPosition(glm.Translate3D(1, 2, 3))
	if got := obj.Position(); got != glm.Translate3D(1, 2, 3) {
		t.Errorf("position = %v", got)
	}
}
