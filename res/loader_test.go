// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karhu3d/karhu/gfx"
	"github.com/karhu3d/karhu/model"
)

type fakeReleasable struct{ released bool }

func (f *fakeReleasable) Release() { f.released = true }

type fakeDevice struct {
	shaders  int
	textures int
	meshes   int

	lastSpirv    []byte
	lastVertices []model.Vertex
}

func (d *fakeDevice) NewShaderModule(name string, spirv []byte) (gfx.Releasable, error) {
	d.shaders++
	d.lastSpirv = spirv
	return &fakeReleasable{}, nil
}

func (d *fakeDevice) NewTexture(img image.Image) (gfx.Releasable, error) {
	d.textures++
	return &fakeReleasable{}, nil
}

func (d *fakeDevice) NewMesh(vertices []model.Vertex) (gfx.Releasable, error) {
	d.meshes++
	d.lastVertices = vertices
	return &fakeReleasable{}, nil
}

type fakeCompiler struct {
	calls  int
	output []byte
}

func (c *fakeCompiler) Compile(name string, source []byte) ([]byte, error) {
	c.calls++
	return c.output, nil
}

func TestShaderLoaderPassesSpirvThrough(t *testing.T) {
	device := &fakeDevice{}
	compiler := &fakeCompiler{}
	loader := &ShaderLoader{Device: device, Compiler: compiler}

	spirv := append([]byte{0x03, 0x02, 0x23, 0x07}, make([]byte, 12)...)
	id := gfx.NewResourceID("simple.vert.spv")
	res, err := loader.Load(id, spirv)
	require.NoError(t, err)

	assert.Equal(t, 0, compiler.calls, "precompiled module must skip the compiler")
	assert.Equal(t, 1, device.shaders)
	assert.Equal(t, spirv, device.lastSpirv)
	assert.Equal(t, id, res.ID())
}

func TestShaderLoaderCompilesSource(t *testing.T) {
	device := &fakeDevice{}
	compiler := &fakeCompiler{output: append([]byte{0x03, 0x02, 0x23, 0x07}, make([]byte, 4)...)}
	loader := &ShaderLoader{Device: device, Compiler: compiler}

	id := gfx.NewResourceID("simple2.glsl")
	_, err := loader.Load(id, []byte("void main() {}"))
	require.NoError(t, err)

	assert.Equal(t, 1, compiler.calls)
	assert.Equal(t, compiler.output, device.lastSpirv)
}

func TestShaderLoaderWithoutCompiler(t *testing.T) {
	loader := &ShaderLoader{Device: &fakeDevice{}}

	_, err := loader.Load(gfx.NewResourceID("simple2.glsl"), []byte("void main() {}"))
	assert.Error(t, err)
}

func TestTextureLoaderDecodesPng(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	device := &fakeDevice{}
	loader := &TextureLoader{Device: device}

	res, err := loader.Load(gfx.NewResourceID("tex.png"), buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, device.textures)
	assert.Equal(t, "tex.png", res.ID().Name)
}

func TestTextureLoaderRejectsGarbage(t *testing.T) {
	loader := &TextureLoader{Device: &fakeDevice{}}

	_, err := loader.Load(gfx.NewResourceID("tex.png"), []byte("not an image"))
	assert.Error(t, err)
}

const triangleDae = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA>
  <library_geometries>
    <geometry id="Tri-mesh" name="Tri">
      <mesh>
        <source id="Tri-mesh-positions">
          <float_array id="Tri-mesh-positions-array" count="9">1 1 0 -1 1 0 0 -1 0</float_array>
        </source>
        <vertices id="Tri-mesh-vertices">
          <input semantic="POSITION" source="#Tri-mesh-positions"/>
        </vertices>
        <triangles count="1">
          <input semantic="VERTEX" source="#Tri-mesh-vertices" offset="0"/>
          <p>0 1 2</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestModelLoaderImportsAndUploads(t *testing.T) {
	device := &fakeDevice{}
	loader := &ModelLoader{Device: device}

	id := gfx.NewResourceID("models/tri.dae")
	res, err := loader.Load(id, []byte(triangleDae))
	require.NoError(t, err)

	m, ok := res.(*Model3D)
	require.True(t, ok, "resource is %T, want *Model3D", res)
	assert.Equal(t, id, m.ID())
	assert.Equal(t, 1, device.meshes)
	assert.Len(t, device.lastVertices, 3)
	require.NotNil(t, m.Object())
	assert.Len(t, m.Object().Vertices(), 3)
	assert.NotNil(t, m.Mesh())
}

func TestModelLoaderRejectsGarbage(t *testing.T) {
	loader := &ModelLoader{Device: &fakeDevice{}}

	_, err := loader.Load(gfx.NewResourceID("models/tri.dae"), []byte("not a document"))
	assert.Error(t, err)
}

func TestStageFromName(t *testing.T) {
	stage, err := stageFromName("shaders/simple.vert.glsl")
	require.NoError(t, err)
	assert.Equal(t, "vert", stage)

	stage, err = stageFromName("simple.frag")
	require.NoError(t, err)
	assert.Equal(t, "frag", stage)

	_, err = stageFromName("plain.glsl")
	assert.Error(t, err)
}
