package shapemodel

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minVariance drops modes that carry no variation, e.g. the trailing modes when there are
// fewer samples than coordinates.
const minVariance = 1e-12

// Train builds a model by principal component analysis of example shapes. Every sample is a
// flattened parameter vector over the same topology. At most maxModes modes are kept; zero
// keeps every mode with non-zero variance.
func Train(samples [][]float64, maxModes int) (*Model, error) {
	if len(samples) < 2 {
		return nil, errors.Errorf("need at least 2 samples to train a model, got %d", len(samples))
	}
	dim := len(samples[0])
	data := mat.NewDense(len(samples), dim, nil)
	for i, sample := range samples {
		if len(sample) != dim {
			return nil, errors.Wrapf(ErrDimensionMismatch, "sample %d has %d entries, sample 0 has %d", i, len(sample), dim)
		}
		data.SetRow(i, sample)
	}

	mean := make([]float64, dim)
	col := make([]float64, len(samples))
	for j := range mean {
		mat.Col(col, j, data)
		mean[j] = stat.Mean(col, nil)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.New("principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	keep := 0
	for _, v := range vars {
		if v <= minVariance {
			break
		}
		keep++
	}
	if maxModes > 0 && keep > maxModes {
		keep = maxModes
	}
	if keep == 0 {
		return nil, errors.New("samples have no variation")
	}

	sds := make([]float64, keep)
	for i := range sds {
		sds[i] = math.Sqrt(vars[i])
	}
	return New(mean, vecs.Slice(0, dim, 0, keep), sds)
}
