// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"encoding/xml"
	"testing"

	"github.com/karhu3d/karhu/model"
)

func TestTrianglesDecode(t *testing.T) {
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11 7 11</p>
		</triangles>
	`
	var triangles model.Triangles
	if err := xml.Unmarshal([]byte(data), &triangles); err != nil {
		t.Fatal(err)
	}

	if triangles.Material != "Material-material" {
		t.Fatalf("incorrect material: %s", triangles.Material)
	}
	if triangles.Count != 12 {
		t.Fatalf("incorrect count: %d", triangles.Count)
	}
	if len(triangles.Inputs) != 2 {
		t.Fatalf("number of inputs incorrect: %d", len(triangles.Inputs))
	}
	if len(triangles.Index) != 12*3*2 {
		t.Fatalf("number of index elements incorrect: %d", len(triangles.Index))
	}
}

func TestFloatsDecode(t *testing.T) {
	data := `<float_array id="Tri-mesh-positions-array" count="9">1 1 0 -1 1 0 0 -1 0</float_array>`

	var floats model.Floats
	if err := xml.Unmarshal([]byte(data), &floats); err != nil {
		t.Fatal(err)
	}
	if floats.ID != "Tri-mesh-positions-array" {
		t.Fatalf("incorrect id: %s", floats.ID)
	}
	if len(floats.Data) != 9 {
		t.Fatalf("incorrect float count: %d", len(floats.Data))
	}
	if floats.Data[3] != -1 {
		t.Fatalf("incorrect value at 3: %f", floats.Data[3])
	}
}

func TestImportColladaObject(t *testing.T) {
	data := `<?xml version="1.0" encoding="utf-8"?>
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

	obj, err := model.ImportColladaObject([]byte(data))
	if err != nil {
		t.Fatal(err)
	}

	verts := obj.Vertices()
	if len(verts) != 3 {
		t.Fatalf("vertex count = %d, want 3", len(verts))
	}
	if verts[1].Pos[0] != -1 || verts[1].Pos[1] != 1 {
		t.Errorf("vertex 1 position = %v", verts[1].Pos)
	}
	if verts[2].Pos[1] != -1 {
		t.Errorf("vertex 2 position = %v", verts[2].Pos)
	}
}

func TestImportRejectsEmptyDocument(t *testing.T) {
	if _, err := model.ImportColladaObject([]byte(`<COLLADA></COLLADA>`)); err == nil {
		t.Error("expected an error for a document without geometries")
	}
}
