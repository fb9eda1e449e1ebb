// Package shapemodel contains a principal component shape model: a mean shape plus orthonormal
// modes of variation, each with the standard deviation of the population along it.
package shapemodel

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when mode indices, coefficients or parameter vectors do not
// line up with each other or with the model.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Model is an immutable shape model over flattened, coordinate-major node coordinates.
type Model struct {
	mean  []float64
	modes *mat.Dense // dim x numModes, one mode per column
	sds   []float64
}

// New returns a model from its mean shape, a matrix whose columns are the modes and the
// standard deviation of each mode. The inputs are copied.
func New(mean []float64, modes mat.Matrix, sds []float64) (*Model, error) {
	rows, cols := modes.Dims()
	if rows != len(mean) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "modes have %d rows but the mean has %d entries", rows, len(mean))
	}
	if cols != len(sds) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d modes but %d standard deviations", cols, len(sds))
	}
	if cols == 0 {
		return nil, errors.New("shape model needs at least one mode")
	}
	for i, sd := range sds {
		if !(sd > 0) {
			return nil, errors.Errorf("standard deviation of mode %d must be positive, got %v", i, sd)
		}
	}
	return &Model{
		mean:  append([]float64(nil), mean...),
		modes: mat.DenseCopyOf(modes),
		sds:   append([]float64(nil), sds...),
	}, nil
}

// Dim is the length of a reconstructed parameter vector.
func (m *Model) Dim() int {
	return len(m.mean)
}

// NumModes is the number of modes in the model.
func (m *Model) NumModes() int {
	return len(m.sds)
}

// Mean returns a copy of the mean shape.
func (m *Model) Mean() []float64 {
	return append([]float64(nil), m.mean...)
}

// SDs returns a copy of the per mode standard deviations.
func (m *Model) SDs() []float64 {
	return append([]float64(nil), m.sds...)
}

// Mode returns a copy of mode i.
func (m *Model) Mode(i int) []float64 {
	return mat.Col(nil, i, m.modes)
}

func (m *Model) checkModes(modeIndices []int, values []float64) error {
	if len(modeIndices) != len(values) {
		return errors.Wrapf(ErrDimensionMismatch, "%d mode indices for %d values", len(modeIndices), len(values))
	}
	return m.checkRange(modeIndices)
}

func (m *Model) checkRange(modeIndices []int) error {
	for _, idx := range modeIndices {
		if idx < 0 || idx >= m.NumModes() {
			return errors.Errorf("mode %d out of range [0,%d)", idx, m.NumModes())
		}
	}
	return nil
}

// Reconstruct returns mean + Σ coefficients[i]·mode[modeIndices[i]] with coefficients in raw
// units.
func (m *Model) Reconstruct(modeIndices []int, coefficients []float64) ([]float64, error) {
	if err := m.checkModes(modeIndices, coefficients); err != nil {
		return nil, err
	}
	out := m.Mean()
	col := make([]float64, m.Dim())
	for i, idx := range modeIndices {
		mat.Col(col, idx, m.modes)
		floats.AddScaled(out, coefficients[i], col)
	}
	return out, nil
}

// WeightsBySD converts coefficients given in standard deviations into raw coefficients.
func (m *Model) WeightsBySD(modeIndices []int, sdValues []float64) ([]float64, error) {
	if err := m.checkModes(modeIndices, sdValues); err != nil {
		return nil, err
	}
	raw := make([]float64, len(sdValues))
	for i, idx := range modeIndices {
		raw[i] = sdValues[i] * m.sds[idx]
	}
	return raw, nil
}

// ReconstructSD is Reconstruct with coefficients in standard deviations.
func (m *Model) ReconstructSD(modeIndices []int, sdValues []float64) ([]float64, error) {
	raw, err := m.WeightsBySD(modeIndices, sdValues)
	if err != nil {
		return nil, err
	}
	return m.Reconstruct(modeIndices, raw)
}

// ProjectSD projects a parameter vector onto the given modes, returning coefficients in
// standard deviations. Reconstructing the result gives the closest shape in the span of the
// modes.
func (m *Model) ProjectSD(params []float64, modeIndices []int) ([]float64, error) {
	if len(params) != m.Dim() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "parameter vector has %d entries, model has %d", len(params), m.Dim())
	}
	if err := m.checkRange(modeIndices); err != nil {
		return nil, err
	}
	centered := make([]float64, len(params))
	floats.SubTo(centered, params, m.mean)
	col := make([]float64, m.Dim())
	sd := make([]float64, len(modeIndices))
	for i, idx := range modeIndices {
		mat.Col(col, idx, m.modes)
		sd[i] = floats.Dot(col, centered) / m.sds[idx]
	}
	return sd, nil
}

// FirstModes returns the indices 0..n-1.
func FirstModes(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
