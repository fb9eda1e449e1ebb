// Package pointcloud holds the point cloud inputs of a fit: readers for the common capture
// formats and a k-d tree for nearest point queries.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrEmptyCloud is returned when an operation needs at least one point.
var ErrEmptyCloud = errors.New("point cloud is empty")

// MetaData is the bounding box of a cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData computes the bounds of the given points.
func NewMetaData(points []r3.Vector) MetaData {
	meta := MetaData{
		MinX: math.MaxFloat64, MinY: math.MaxFloat64, MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64, MaxY: -math.MaxFloat64, MaxZ: -math.MaxFloat64,
	}
	for _, p := range points {
		meta.MinX = math.Min(meta.MinX, p.X)
		meta.MinY = math.Min(meta.MinY, p.Y)
		meta.MinZ = math.Min(meta.MinZ, p.Z)
		meta.MaxX = math.Max(meta.MaxX, p.X)
		meta.MaxY = math.Max(meta.MaxY, p.Y)
		meta.MaxZ = math.Max(meta.MaxZ, p.Z)
	}
	return meta
}

// Diagonal is the length of the bounding box diagonal.
func (meta MetaData) Diagonal() float64 {
	return r3.Vector{X: meta.MaxX - meta.MinX, Y: meta.MaxY - meta.MinY, Z: meta.MaxZ - meta.MinZ}.Norm()
}

// ValidateWeights checks that per point weights line up with the cloud. A nil weight slice
// means unweighted and is always valid.
func ValidateWeights(points []r3.Vector, weights []float64) error {
	if weights == nil {
		return nil
	}
	if len(weights) != len(points) {
		return errors.Errorf("got %d weights for %d points", len(weights), len(points))
	}
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.Errorf("weight %d is not finite", i)
		}
	}
	return nil
}
