// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Collada is the top-level document of a .dae file, reduced to the parts
// the importer consumes.
type Collada struct {
	Geometries []Geometry `xml:"library_geometries>geometry"`
}

// Geometry represents one named geometry block.
type Geometry struct {
	Mesh ColladaMesh `xml:"mesh"`
	ID   string      `xml:"id,attr"`
	Name string      `xml:"name,attr"`
}

// ColladaMesh contains all the primitive data.
type ColladaMesh struct {
	Source    []ColladaSource `xml:"source"`
	Vertices  Vertices        `xml:"vertices"`
	Triangles Triangles       `xml:"triangles"`
}

// ColladaSource links a named data array into the mesh.
type ColladaSource struct {
	ID     string `xml:"id,attr"`
	Floats Floats `xml:"float_array"`
}

// Floats is an array of floats parsed from space-separated text.
type Floats struct {
	ID   string
	Data []float32
}

// UnmarshalXML implements xml.Unmarshaler.
func (f *Floats) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			f.ID = attr.Value
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	for _, field := range strings.Fields(raw) {
		num, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return err
		}
		f.Data = append(f.Data, float32(num))
	}
	return nil
}

// Input maps a semantic (VERTEX, NORMAL, TEXCOORD) to a source array and
// its offset inside the shared triangle index.
type Input struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   int    `xml:"offset,attr"`
}

// Vertices names the per-vertex inputs.
type Vertices struct {
	ID     string  `xml:"id,attr"`
	Inputs []Input `xml:"input"`
}

// Triangles holds the triangle list and its interleaved index.
type Triangles struct {
	Count    int
	Material string
	Inputs   []Input
	Index    []int
}

// UnmarshalXML implements xml.Unmarshaler. The <p> element interleaves one
// index per input per vertex, so it needs the inputs parsed first.
func (t *Triangles) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "count":
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		case "material":
			t.Material = attr.Value
		}
	}

	for {
		token, err := d.Token()
		if err != nil {
			return err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "input":
				var input Input
				if err := d.DecodeElement(&input, &el); err != nil {
					return err
				}
				t.Inputs = append(t.Inputs, input)
			case "p":
				var raw string
				if err := d.DecodeElement(&raw, &el); err != nil {
					return err
				}
				for _, field := range strings.Fields(raw) {
					num, err := strconv.Atoi(field)
					if err != nil {
						return err
					}
					t.Index = append(t.Index, num)
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if el.Name == start.Name {
				return nil
			}
		}
	}
}

// ImportColladaObject reads the given .dae contents and converts the first
// geometry into an engine object. Only triangulated meshes are supported.
func ImportColladaObject(fileContents []byte) (Object, error) {
	var doc Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return nil, err
	}
	if len(doc.Geometries) == 0 {
		return nil, errors.New("collada: no geometries in document")
	}

	mesh := doc.Geometries[0].Mesh
	positions, err := findSource(mesh.Source, "positions")
	if err != nil {
		return nil, err
	}

	stride := len(mesh.Triangles.Inputs)
	if stride == 0 {
		return nil, errors.New("collada: triangles without inputs")
	}
	vertexOffset, err := findOffset(mesh.Triangles.Inputs, "VERTEX")
	if err != nil {
		return nil, err
	}

	var vertices []Vertex
	for idx := 0; idx+stride <= len(mesh.Triangles.Index); idx += stride {
		pos := mesh.Triangles.Index[idx+vertexOffset]
		if 3*pos+2 >= len(positions.Floats.Data) {
			return nil, fmt.Errorf("collada: position index %d out of range", pos)
		}
		var vert Vertex
		vert.Pos[0] = positions.Floats.Data[3*pos]
		vert.Pos[1] = positions.Floats.Data[3*pos+1]
		vert.Pos[2] = positions.Floats.Data[3*pos+2]
		vert.Color = [4]float32{1.0, 1.0, 1.0, 1.0}
		vertices = append(vertices, vert)
	}

	return &StaticObject{
		vertices: vertices,
	}, nil
}

func findSource(sources []ColladaSource, dataType string) (ColladaSource, error) {
	for _, s := range sources {
		if strings.HasSuffix(s.ID, fmt.Sprintf("-%s", dataType)) {
			return s, nil
		}
	}
	return ColladaSource{}, fmt.Errorf("collada: source type %q not found", dataType)
}

func findOffset(inputs []Input, semantic string) (int, error) {
	for _, in := range inputs {
		if in.Semantic == semantic {
			return in.Offset, nil
		}
	}
	return 0, fmt.Errorf("collada: input semantic %q not found", semantic)
}
