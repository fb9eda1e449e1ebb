package fitting

import (
	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/spatialmath"
)

// Layout describes a fit parameter vector: [tx ty tz rx ry rz (s) b0..bk-1], with the shape
// coefficients b in standard deviations of their modes.
type Layout struct {
	FitScale bool
	NumModes int
}

// RigidLen is 6, or 7 when the scale is fitted.
func (l Layout) RigidLen() int {
	if l.FitScale {
		return spatialmath.RigidScaleDoF
	}
	return spatialmath.RigidDoF
}

// Len is the required length of a parameter vector.
func (l Layout) Len() int {
	return l.RigidLen() + l.NumModes
}

// Identity is the vector of the untransformed mean shape.
func (l Layout) Identity() []float64 {
	x := make([]float64, l.Len())
	if l.FitScale {
		x[spatialmath.RigidDoF] = 1
	}
	return x
}

// Adjust pads seed with zeros, or truncates it from the end, to the required length. Extra
// mode coefficients of a longer seed are dropped. The seed is not modified.
func (l Layout) Adjust(seed []float64) []float64 {
	x := make([]float64, l.Len())
	copy(x, seed)
	return x
}

// Split returns the rigid and shape segments of x.
func (l Layout) Split(x []float64) (rigid, modes []float64, err error) {
	if len(x) != l.Len() {
		return nil, nil, errors.Errorf("parameter vector has %d entries, layout needs %d", len(x), l.Len())
	}
	return x[:l.RigidLen()], x[l.RigidLen():], nil
}

// convertSeed moves a seed between the rigid and rigid+scale layouts, inserting a unit scale or
// dropping the scale, so that the shape coefficients keep their meaning.
func convertSeed(seed []float64, from, to Layout) []float64 {
	if from.FitScale == to.FitScale || len(seed) < spatialmath.RigidDoF {
		return seed
	}
	out := append([]float64(nil), seed[:spatialmath.RigidDoF]...)
	if to.FitScale {
		out = append(out, 1)
		return append(out, seed[spatialmath.RigidDoF:]...)
	}
	if len(seed) > spatialmath.RigidScaleDoF {
		out = append(out, seed[spatialmath.RigidScaleDoF:]...)
	}
	return out
}
