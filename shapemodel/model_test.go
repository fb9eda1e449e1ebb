package shapemodel

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// twoModeModel has orthonormal modes along the first two axes of a 4D space.
func twoModeModel(t *testing.T) *Model {
	t.Helper()
	modes := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
		0, 0,
	})
	m, err := New([]float64{1, 2, 3, 4}, modes, []float64{1, 0.5})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestNew(t *testing.T) {
	_, err := New([]float64{0, 0}, mat.NewDense(3, 1, nil), []float64{1})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = New([]float64{0, 0}, mat.NewDense(2, 1, nil), []float64{1, 2})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = New([]float64{0, 0}, mat.NewDense(2, 1, nil), []float64{0})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReconstructLinearity(t *testing.T) {
	m := twoModeModel(t)
	modes := []int{0, 1}

	zero, err := m.Reconstruct(modes, []float64{0, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, zero, test.ShouldResemble, m.Mean())

	a := []float64{0.3, -1.2}
	b := []float64{-2, 0.7}
	ra, err := m.Reconstruct(modes, a)
	test.That(t, err, test.ShouldBeNil)
	rb, err := m.Reconstruct(modes, b)
	test.That(t, err, test.ShouldBeNil)

	// f(αa+βb) - mean == α(f(a)-mean) + β(f(b)-mean)
	alpha, beta := 2.5, -0.75
	combined := make([]float64, 2)
	for i := range combined {
		combined[i] = alpha*a[i] + beta*b[i]
	}
	rc, err := m.Reconstruct(modes, combined)
	test.That(t, err, test.ShouldBeNil)
	mean := m.Mean()
	for i := range rc {
		want := alpha*(ra[i]-mean[i]) + beta*(rb[i]-mean[i])
		test.That(t, rc[i]-mean[i], test.ShouldAlmostEqual, want, 1e-12)
	}

	_, err = m.Reconstruct(modes, []float64{1})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	_, err = m.Reconstruct([]int{2}, []float64{1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWeightsBySD(t *testing.T) {
	m := twoModeModel(t)
	raw, err := m.WeightsBySD([]int{1, 0}, []float64{2, 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldResemble, []float64{1, 3})

	shape, err := m.ReconstructSD([]int{0, 1}, []float64{0.5, -0.3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, floats.EqualApprox(shape, []float64{1.5, 1.85, 3, 4}, 1e-12), test.ShouldBeTrue)
}

func TestProjectSD(t *testing.T) {
	m := twoModeModel(t)
	shape, err := m.ReconstructSD([]int{0, 1}, []float64{0.5, -0.3})
	test.That(t, err, test.ShouldBeNil)
	sd, err := m.ProjectSD(shape, []int{0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, floats.EqualApprox(sd, []float64{0.5, -0.3}, 1e-12), test.ShouldBeTrue)

	_, err = m.ProjectSD([]float64{1}, []int{0})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestTrain(t *testing.T) {
	// samples spread along a single direction recover that direction as the only mode
	dir := []float64{0.6, 0.8, 0, 0}
	base := []float64{1, 1, 1, 1}
	var samples [][]float64
	for _, c := range []float64{-2, -1, 0, 1, 2} {
		s := append([]float64(nil), base...)
		floats.AddScaled(s, c, dir)
		samples = append(samples, s)
	}
	m, err := Train(samples, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumModes(), test.ShouldEqual, 1)
	test.That(t, floats.EqualApprox(m.Mean(), base, 1e-12), test.ShouldBeTrue)
	test.That(t, math.Abs(floats.Dot(m.Mode(0), dir)), test.ShouldAlmostEqual, 1, 1e-9)
	// sample variance of {-2..2} is 2.5
	test.That(t, m.SDs()[0], test.ShouldAlmostEqual, math.Sqrt(2.5), 1e-9)

	_, err = Train(samples[:1], 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Train([][]float64{{1, 2}, {1}}, 0)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestSaveLoad(t *testing.T) {
	m := twoModeModel(t)
	path := filepath.Join(t.TempDir(), "model.json")
	test.That(t, m.Save(path), test.ShouldBeNil)

	loaded, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Mean(), test.ShouldResemble, m.Mean())
	test.That(t, loaded.SDs(), test.ShouldResemble, m.SDs())
	test.That(t, loaded.Mode(1), test.ShouldResemble, m.Mode(1))
}
