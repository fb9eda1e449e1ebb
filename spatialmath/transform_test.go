package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func vecAlmostEqual(t *testing.T, actual, expected r3.Vector) {
	t.Helper()
	test.That(t, actual.X, test.ShouldAlmostEqual, expected.X, 1e-9)
	test.That(t, actual.Y, test.ShouldAlmostEqual, expected.Y, 1e-9)
	test.That(t, actual.Z, test.ShouldAlmostEqual, expected.Z, 1e-9)
}

func TestEulerRotationOrder(t *testing.T) {
	roll := EulerAngles{Roll: math.Pi / 2}
	vecAlmostEqual(t, roll.RotationMatrix().Mul(r3.Vector{Y: 1}), r3.Vector{Z: 1})

	// x is applied first, then y, then z.
	ea := EulerAngles{Pitch: math.Pi / 2, Yaw: math.Pi / 2}
	vecAlmostEqual(t, ea.RotationMatrix().Mul(r3.Vector{X: 1}), r3.Vector{Z: -1})
}

func TestQuatRoundTrip(t *testing.T) {
	ea := EulerAngles{Roll: 0.3, Pitch: -0.2, Yaw: 1.1}
	back := QuatToEulerAngles(ea.Quaternion())
	test.That(t, back.Roll, test.ShouldAlmostEqual, ea.Roll)
	test.That(t, back.Pitch, test.ShouldAlmostEqual, ea.Pitch)
	test.That(t, back.Yaw, test.ShouldAlmostEqual, ea.Yaw)

	rm := ea.RotationMatrix()
	v := r3.Vector{X: 1, Y: 2, Z: 3}
	vecAlmostEqual(t, rm.Transpose().Mul(rm.Mul(v)), v)
	test.That(t, rm.Mul(v).Norm(), test.ShouldAlmostEqual, v.Norm())
}

func TestNewRigidTransform(t *testing.T) {
	_, err := NewRigidTransform([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)

	rigid, err := NewRigidTransform([]float64{1, 2, 3, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rigid.Scale, test.ShouldEqual, 1.)
	test.That(t, rigid.Params(false), test.ShouldResemble, []float64{1, 2, 3, 0, 0, 0})

	scaled, err := NewRigidTransform([]float64{0, 0, 0, 0, 0, 0, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.Params(true), test.ShouldHaveLength, RigidScaleDoF)
	test.That(t, scaled.Scale, test.ShouldEqual, 2.)
}

func TestApplyAboutCentroid(t *testing.T) {
	points := []r3.Vector{{X: -1}, {X: 1}, {Y: 1}, {Y: -1}}
	tf, err := NewRigidTransform([]float64{10, 0, 0, 0, 0, math.Pi / 2, 2})
	test.That(t, err, test.ShouldBeNil)

	moved := tf.ApplyAboutCentroid(points)
	// centroid is the origin so rotation and scale happen in place before translating
	vecAlmostEqual(t, moved[0], r3.Vector{X: 10, Y: -2})
	vecAlmostEqual(t, moved[1], r3.Vector{X: 10, Y: 2})
	vecAlmostEqual(t, Centroid(moved), r3.Vector{X: 10})

	back := tf.InverseAbout(moved, Centroid(points))
	for i := range points {
		vecAlmostEqual(t, back[i], points[i])
	}
}

func TestFlatPoints(t *testing.T) {
	points := []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}
	flat := PointsToFlat(points)
	test.That(t, flat, test.ShouldResemble, []float64{1, 4, 2, 5, 3, 6})
	test.That(t, FlatToPoints(flat), test.ShouldResemble, points)
	test.That(t, Centroid(nil), test.ShouldResemble, r3.Vector{})
}
