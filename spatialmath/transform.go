package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const (
	// RigidDoF is the number of rigid parameters: translation then euler rotation.
	RigidDoF = 6
	// RigidScaleDoF adds a uniform scale after the rigid parameters.
	RigidScaleDoF = 7
)

// RigidTransform is a rotation, translation and uniform scale applied about a centre of
// rotation: p' = Scale·R·(p − c) + c + Translation.
type RigidTransform struct {
	Translation r3.Vector
	Rotation    EulerAngles
	Scale       float64
}

// NewRigidTransform builds a transform from a flat parameter slice laid out as
// [tx ty tz rx ry rz] or [tx ty tz rx ry rz s].
func NewRigidTransform(params []float64) (RigidTransform, error) {
	switch len(params) {
	case RigidDoF, RigidScaleDoF:
	default:
		return RigidTransform{}, errors.Errorf("rigid transform needs %d or %d parameters, got %d",
			RigidDoF, RigidScaleDoF, len(params))
	}
	t := RigidTransform{
		Translation: r3.Vector{X: params[0], Y: params[1], Z: params[2]},
		Rotation:    EulerAngles{Roll: params[3], Pitch: params[4], Yaw: params[5]},
		Scale:       1,
	}
	if len(params) == RigidScaleDoF {
		t.Scale = params[6]
	}
	return t, nil
}

// Params flattens the transform; withScale selects the 7 parameter layout.
func (t RigidTransform) Params(withScale bool) []float64 {
	params := []float64{
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.Roll, t.Rotation.Pitch, t.Rotation.Yaw,
	}
	if withScale {
		params = append(params, t.Scale)
	}
	return params
}

// ApplyAbout transforms points about the given centre.
func (t RigidTransform) ApplyAbout(points []r3.Vector, center r3.Vector) []r3.Vector {
	rm := t.Rotation.RotationMatrix()
	offset := center.Add(t.Translation)
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = rm.Mul(p.Sub(center)).Mul(t.Scale).Add(offset)
	}
	return out
}

// ApplyAboutCentroid transforms points about their own centroid.
func (t RigidTransform) ApplyAboutCentroid(points []r3.Vector) []r3.Vector {
	return t.ApplyAbout(points, Centroid(points))
}

// InverseAbout undoes ApplyAbout for the same centre. The scale must be non-zero.
func (t RigidTransform) InverseAbout(points []r3.Vector, center r3.Vector) []r3.Vector {
	rt := t.Rotation.RotationMatrix().Transpose()
	offset := center.Add(t.Translation)
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = rt.Mul(p.Sub(offset).Mul(1 / t.Scale)).Add(center)
	}
	return out
}
