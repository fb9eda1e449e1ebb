// Package testutils builds small synthetic meshes, shape models and point clouds shared by the
// package tests.
package testutils

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/spatialmath"
)

var phi = (1 + math.Sqrt(5)) / 2

// Icosahedron returns a closed 12 node mesh centred on the origin, with circumradius scaled by
// size. It defines the landmarks "top" (node 5) and "bottom" (node 6).
func Icosahedron(tb testing.TB, size float64) *mesh.Mesh {
	tb.Helper()
	raw := []r3.Vector{
		{X: -1, Y: phi}, {X: 1, Y: phi}, {X: -1, Y: -phi}, {X: 1, Y: -phi},
		{Y: -1, Z: phi}, {Y: 1, Z: phi}, {Y: -1, Z: -phi}, {Y: 1, Z: -phi},
		{X: phi, Z: -1}, {X: phi, Z: 1}, {X: -phi, Z: -1}, {X: -phi, Z: 1},
	}
	nodes := make([]r3.Vector, len(raw))
	for i, p := range raw {
		nodes[i] = p.Mul(size)
	}
	triangles := []mesh.Triangle{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	m, err := mesh.New("icosahedron", nodes, triangles)
	test.That(tb, err, test.ShouldBeNil)
	test.That(tb, m.AddLandmark("top", mesh.Landmark{Nodes: []int{5}}), test.ShouldBeNil)
	test.That(tb, m.AddLandmark("bottom", mesh.Landmark{Nodes: []int{6}}), test.ShouldBeNil)
	return m
}

// StretchModel returns a model whose mean is the mesh's current shape and whose modes stretch
// it along x, z and y in that order, one mode per given standard deviation (at most 3). The
// modes keep the centroid of a mesh centred on the origin fixed.
func StretchModel(tb testing.TB, m *mesh.Mesh, sds []float64) *shapemodel.Model {
	tb.Helper()
	test.That(tb, len(sds), test.ShouldBeGreaterThanOrEqualTo, 1)
	test.That(tb, len(sds), test.ShouldBeLessThanOrEqualTo, 3)
	mean := m.Params()
	n := m.NumNodes()
	modes := mat.NewDense(3*n, len(sds), nil)
	for i, axis := range []int{0, 2, 1}[:len(sds)] {
		mode := make([]float64, 3*n)
		copy(mode[axis*n:(axis+1)*n], mean[axis*n:(axis+1)*n])
		floats.Scale(1/floats.Norm(mode, 2), mode)
		modes.SetCol(i, mode)
	}
	model, err := shapemodel.New(mean, modes, sds)
	test.That(tb, err, test.ShouldBeNil)
	return model
}

// DeformedParams reconstructs the model at the given coefficients (in standard deviations,
// modes 0..len-1) and applies the rigid(+scale) transform about the reconstruction's centroid.
func DeformedParams(tb testing.TB, model *shapemodel.Model, sdCoeffs, rigid []float64) []float64 {
	tb.Helper()
	shape, err := model.ReconstructSD(shapemodel.FirstModes(len(sdCoeffs)), sdCoeffs)
	test.That(tb, err, test.ShouldBeNil)
	t, err := spatialmath.NewRigidTransform(rigid)
	test.That(tb, err, test.ShouldBeNil)
	return spatialmath.PointsToFlat(t.ApplyAboutCentroid(spatialmath.FlatToPoints(shape)))
}

// SurfaceCloud samples the surface of m with its field parameters replaced by params.
func SurfaceCloud(tb testing.TB, m *mesh.Mesh, params []float64, discretisation int) []r3.Vector {
	tb.Helper()
	s, err := m.Sampler(discretisation)
	test.That(tb, err, test.ShouldBeNil)
	points, err := s.Evaluate(params)
	test.That(tb, err, test.ShouldBeNil)
	return points
}

// Ones returns n weights of 1.
func Ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
