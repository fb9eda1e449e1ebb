package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Centroid returns the mean of the given points, or the zero vector for none.
func Centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

// FlatToPoints converts a coordinate-major flat vector (x0..xn-1, y0..yn-1, z0..zn-1) into
// points. The length of flat must be a multiple of 3.
func FlatToPoints(flat []float64) []r3.Vector {
	n := len(flat) / 3
	points := make([]r3.Vector, n)
	for i := range points {
		points[i] = r3.Vector{X: flat[i], Y: flat[n+i], Z: flat[2*n+i]}
	}
	return points
}

// PointsToFlat is the inverse of FlatToPoints.
func PointsToFlat(points []r3.Vector) []float64 {
	n := len(points)
	flat := make([]float64, 3*n)
	for i, p := range points {
		flat[i] = p.X
		flat[n+i] = p.Y
		flat[2*n+i] = p.Z
	}
	return flat
}
