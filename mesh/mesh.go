// Package mesh implements a deformable linear triangle mesh. Its field parameters are the node
// coordinates, flattened coordinate-major, so a shape model over the same nodes can drive it.
package mesh

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/spatialmath"
)

// Triangle indexes three nodes of a mesh.
type Triangle [3]int

// Mesh is a triangle mesh with mutable node positions and fixed topology.
type Mesh struct {
	name      string
	nodes     []r3.Vector
	triangles []Triangle
	landmarks map[string]Landmark
}

// New returns a mesh over copies of nodes and triangles.
func New(name string, nodes []r3.Vector, triangles []Triangle) (*Mesh, error) {
	if len(nodes) == 0 {
		return nil, errors.New("mesh needs at least one node")
	}
	for i, tri := range triangles {
		for _, n := range tri {
			if n < 0 || n >= len(nodes) {
				return nil, errors.Errorf("triangle %d references node %d, mesh has %d nodes", i, n, len(nodes))
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			return nil, errors.Errorf("triangle %d is degenerate: %v", i, tri)
		}
	}
	return &Mesh{
		name:      name,
		nodes:     append([]r3.Vector(nil), nodes...),
		triangles: append([]Triangle(nil), triangles...),
		landmarks: map[string]Landmark{},
	}, nil
}

// Name of the mesh.
func (m *Mesh) Name() string {
	return m.name
}

// NumNodes returns the number of nodes.
func (m *Mesh) NumNodes() int {
	return len(m.nodes)
}

// Nodes returns a copy of the node positions.
func (m *Mesh) Nodes() []r3.Vector {
	return append([]r3.Vector(nil), m.nodes...)
}

// Triangles returns a copy of the topology.
func (m *Mesh) Triangles() []Triangle {
	return append([]Triangle(nil), m.triangles...)
}

// Params returns the field parameters: x0..xn-1, y0..yn-1, z0..zn-1.
func (m *Mesh) Params() []float64 {
	return spatialmath.PointsToFlat(m.nodes)
}

// SetParams replaces the field parameters in place.
func (m *Mesh) SetParams(params []float64) error {
	if len(params) != 3*len(m.nodes) {
		return errors.Errorf("mesh has %d field parameters, got %d", 3*len(m.nodes), len(params))
	}
	m.nodes = spatialmath.FlatToPoints(params)
	return nil
}

// CentreOfMass is the centroid of the nodes.
func (m *Mesh) CentreOfMass() r3.Vector {
	return spatialmath.Centroid(m.nodes)
}

// TransformAboutCoM applies a rigid or rigid+scale transform about the centre of mass.
func (m *Mesh) TransformAboutCoM(t spatialmath.RigidTransform) {
	m.nodes = t.ApplyAboutCentroid(m.nodes)
}

// TransformRigidAboutCoM applies [tx ty tz rx ry rz] about the centre of mass.
func (m *Mesh) TransformRigidAboutCoM(params []float64) error {
	if len(params) != spatialmath.RigidDoF {
		return errors.Errorf("rigid transform needs %d parameters, got %d", spatialmath.RigidDoF, len(params))
	}
	return m.transformParams(params)
}

// TransformRigidScaleAboutCoM applies [tx ty tz rx ry rz s] about the centre of mass.
func (m *Mesh) TransformRigidScaleAboutCoM(params []float64) error {
	if len(params) != spatialmath.RigidScaleDoF {
		return errors.Errorf("rigid scale transform needs %d parameters, got %d", spatialmath.RigidScaleDoF, len(params))
	}
	return m.transformParams(params)
}

func (m *Mesh) transformParams(params []float64) error {
	t, err := spatialmath.NewRigidTransform(params)
	if err != nil {
		return err
	}
	m.TransformAboutCoM(t)
	return nil
}

// Evaluate returns the surface points at the given discretisation for the current parameters.
func (m *Mesh) Evaluate(discretisation int) ([]r3.Vector, error) {
	s, err := m.Sampler(discretisation)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(m.Params())
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	landmarks := make(map[string]Landmark, len(m.landmarks))
	for name, lm := range m.landmarks {
		landmarks[name] = lm.clone()
	}
	return &Mesh{
		name:      m.name,
		nodes:     m.Nodes(),
		triangles: m.Triangles(),
		landmarks: landmarks,
	}
}

// LandmarkNames returns the sorted names of the defined landmarks.
func (m *Mesh) LandmarkNames() []string {
	names := make([]string, 0, len(m.landmarks))
	for name := range m.landmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
