package fitting

import (
	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/spatialmath"
)

// Transform is a fitted parameter vector split into its rigid(+scale) part and the shape
// coefficients of modes 0..len(ModeSDs)-1 in standard deviations.
type Transform struct {
	Rigid    spatialmath.RigidTransform
	FitScale bool
	ModeSDs  []float64
}

// NewTransform splits x according to layout.
func NewTransform(x []float64, layout Layout) (Transform, error) {
	rigid, modes, err := layout.Split(x)
	if err != nil {
		return Transform{}, err
	}
	rt, err := spatialmath.NewRigidTransform(rigid)
	if err != nil {
		return Transform{}, err
	}
	return Transform{Rigid: rt, FitScale: layout.FitScale, ModeSDs: append([]float64(nil), modes...)}, nil
}

// Layout of the transform's parameter vector.
func (t Transform) Layout() Layout {
	return Layout{FitScale: t.FitScale, NumModes: len(t.ModeSDs)}
}

// Params flattens the transform as [rigid(6|7), mode SDs...].
func (t Transform) Params() []float64 {
	return append(t.Rigid.Params(t.FitScale), t.ModeSDs...)
}

// deformer maps a parameter vector onto mesh field parameters: the model is reconstructed from
// the shape coefficients and the rigid(+scale) transform is applied about the centroid of the
// reconstruction.
type deformer struct {
	model  *shapemodel.Model
	layout Layout
	modes  []int
}

func newDeformer(model *shapemodel.Model, layout Layout) (*deformer, error) {
	if layout.NumModes > model.NumModes() {
		return nil, errors.Errorf("cannot fit %d modes, the shape model has %d", layout.NumModes, model.NumModes())
	}
	return &deformer{model: model, layout: layout, modes: shapemodel.FirstModes(layout.NumModes)}, nil
}

func (d *deformer) field(x []float64) ([]float64, error) {
	rigid, b, err := d.layout.Split(x)
	if err != nil {
		return nil, err
	}
	shape, err := d.model.ReconstructSD(d.modes, b)
	if err != nil {
		return nil, err
	}
	rt, err := spatialmath.NewRigidTransform(rigid)
	if err != nil {
		return nil, err
	}
	return spatialmath.PointsToFlat(rt.ApplyAboutCentroid(spatialmath.FlatToPoints(shape))), nil
}
