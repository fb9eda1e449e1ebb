package mesh

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type meshJSON struct {
	Name      string              `json:"name,omitempty"`
	Nodes     [][3]float64        `json:"nodes"`
	Triangles []Triangle          `json:"triangles"`
	Landmarks map[string]Landmark `json:"landmarks,omitempty"`
}

// MarshalJSON writes nodes as [x, y, z] triples.
func (m *Mesh) MarshalJSON() ([]byte, error) {
	out := meshJSON{
		Name:      m.name,
		Nodes:     make([][3]float64, len(m.nodes)),
		Triangles: m.triangles,
		Landmarks: m.landmarks,
	}
	for i, n := range m.nodes {
		out.Nodes[i] = [3]float64{n.X, n.Y, n.Z}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a mesh written by MarshalJSON, validating its topology and landmarks.
func (m *Mesh) UnmarshalJSON(data []byte) error {
	var in meshJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	nodes := make([]r3.Vector, len(in.Nodes))
	for i, n := range in.Nodes {
		nodes[i] = r3.Vector{X: n[0], Y: n[1], Z: n[2]}
	}
	parsed, err := New(in.Name, nodes, in.Triangles)
	if err != nil {
		return err
	}
	for name, lm := range in.Landmarks {
		if err := parsed.AddLandmark(name, lm); err != nil {
			return err
		}
	}
	*m = *parsed
	return nil
}

// Load reads a JSON mesh file.
func Load(path string) (*Mesh, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Mesh
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "cannot parse mesh %q", path)
	}
	return &m, nil
}

// Save writes the mesh as JSON.
func (m *Mesh) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
