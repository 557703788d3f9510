// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"bytes"
	"fmt"
	"image"

	// Decoders the texture loader recognizes.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/model"
)

// ShaderLoader compiles GLSL sources (or takes SPIR-V as-is) and uploads
// the module to the device.
type ShaderLoader struct {
	Device   Device
	Compiler Compiler
}

// Load implements Loader.
func (l *ShaderLoader) Load(id gfx.ResourceID, data []byte) (gfx.Resource, error) {
	spirv := data
	if !isSpirv(data) {
		if l.Compiler == nil {
			return nil, fmt.Errorf("shader %q: source form requires a compiler", id.Name)
		}
		compiled, err := l.Compiler.Compile(id.Name, data)
		if err != nil {
			return nil, err
		}
		spirv = compiled
	}

	module, err := l.Device.NewShaderModule(id.Name, spirv)
	if err != nil {
		return nil, err
	}
	return &Shader{id: id, module: module}, nil
}

// spirvMagic is the little-endian SPIR-V module magic number.
var spirvMagic = []byte{0x03, 0x02, 0x23, 0x07}

func isSpirv(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], spirvMagic)
}

// TextureLoader decodes an image and uploads it as a sampled texture.
type TextureLoader struct {
	Device Device
}

// Load implements Loader.
func (l *TextureLoader) Load(id gfx.ResourceID, data []byte) (gfx.Resource, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", id.Name, err)
	}

	texture, err := l.Device.NewTexture(img)
	if err != nil {
		return nil, err
	}
	return &Texture{id: id, texture: texture}, nil
}

// MeshLoader imports COLLADA geometry and uploads its vertex buffer.
type MeshLoader struct {
	Device Device
}

// Load implements Loader.
func (l *MeshLoader) Load(id gfx.ResourceID, data []byte) (gfx.Resource, error) {
	obj, err := model.ImportColladaObject(data)
	if err != nil {
		return nil, fmt.Errorf("mesh %q: %w", id.Name, err)
	}

	mesh, err := l.Device.NewMesh(obj.Vertices())
	if err != nil {
		return nil, err
	}
	return &Mesh{id: id, mesh: mesh}, nil
}

// ModelLoader imports a COLLADA scene object and uploads its vertex
// buffer, keeping the CPU-side object around for per-frame transforms.
type ModelLoader struct {
	Device Device
}

// Load implements Loader.
func (l *ModelLoader) Load(id gfx.ResourceID, data []byte) (gfx.Resource, error) {
	obj, err := model.ImportColladaObject(data)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", id.Name, err)
	}

	mesh, err := l.Device.NewMesh(obj.Vertices())
	if err != nil {
		return nil, err
	}
	return &Model3D{id: id, object: obj, mesh: mesh}, nil
}
