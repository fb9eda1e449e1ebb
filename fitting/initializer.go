package fitting

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/residual"
	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/spatialmath"
)

// InitState is how a session derives its starting parameter vector.
type InitState int

const (
	// FromInputModel fits the shape model to the mesh's current node positions.
	FromInputModel InitState = iota
	// FromInputTransform rebuilds the mesh from a supplied transform.
	FromInputTransform
)

func (s InitState) String() string {
	if s == FromInputTransform {
		return "from input transform"
	}
	return "from input model"
}

// ChooseInitState picks FromInputTransform when a transform is supplied.
func ChooseInitState(transform []float64) InitState {
	if transform != nil {
		return FromInputTransform
	}
	return FromInputModel
}

// Initializer produces the first parameter vector of a session and sets the mesh to match it.
type Initializer struct {
	model  *shapemodel.Model
	fitter *Fitter
	logger logging.Logger
}

// NewInitializer returns an initializer using fitter for the model pre-fit.
func NewInitializer(model *shapemodel.Model, fitter *Fitter, logger logging.Logger) *Initializer {
	return &Initializer{model: model, fitter: fitter, logger: logger}
}

// FromInputModel fits the model to the current node positions of m in two stages: rigid(+scale)
// on the mean shape, then rigid(+scale) with the shape modes under the Mahalanobis prior,
// seeded by projecting the rigidly aligned nodes onto the modes. m is set to the resulting
// reconstruction and the vector is returned.
func (in *Initializer) FromInputModel(ctx context.Context, m *mesh.Mesh, opts FitOptions) ([]float64, error) {
	if m.NumNodes()*3 != in.model.Dim() {
		return nil, errors.Wrapf(shapemodel.ErrDimensionMismatch,
			"mesh has %d field parameters, shape model has %d", m.NumNodes()*3, in.model.Dim())
	}
	targets := m.Nodes()
	r := residual.NewCorrespondence(targets)

	rigidOpts := opts
	rigidOpts.Layout = Layout{FitScale: opts.Layout.FitScale}
	rigidOpts.ModePolicy = ModePolicyAll
	stage1, err := in.fitter.Fit(ctx, r, rigidOpts.Layout.Identity(), rigidOpts)
	if err != nil {
		return nil, errors.Wrap(err, "rigid pre-fit")
	}

	rt, err := spatialmath.NewRigidTransform(stage1.X)
	if err != nil {
		return nil, err
	}
	aligned := rt.InverseAbout(targets, spatialmath.Centroid(spatialmath.FlatToPoints(in.model.Mean())))
	sds, err := in.model.ProjectSD(spatialmath.PointsToFlat(aligned), shapemodel.FirstModes(opts.Layout.NumModes))
	if err != nil {
		return nil, err
	}
	seed := append(append([]float64(nil), stage1.X...), sds...)

	stage2, err := in.fitter.Fit(ctx, r, seed, opts)
	if err != nil {
		return nil, errors.Wrap(err, "shape model pre-fit")
	}
	if err := m.SetParams(stage2.Field); err != nil {
		return nil, err
	}
	in.logger.Infow("initialised from input model",
		"rigid_status", stage1.Solve.Status.String(),
		"shape_status", stage2.Solve.Status.String(),
		"x0", stage2.X)
	return stage2.X, nil
}

// FromInputTransform sets m to the reconstruction of the transform's shape coefficients (the
// mean shape when there are none) moved by its rigid(+scale) part about the centre of mass. A
// nil transform leaves m untouched and returns ErrMissingInput, which callers may treat as a
// warning.
func (in *Initializer) FromInputTransform(m *mesh.Mesh, transform []float64, layout Layout) ([]float64, error) {
	if transform == nil {
		in.logger.Warn("initialisation from an input transform requested but no transform was supplied")
		return nil, ErrMissingInput
	}
	rigidLen := layout.RigidLen()
	if len(transform) < rigidLen {
		return nil, errors.Wrapf(shapemodel.ErrDimensionMismatch,
			"transform has %d entries, need at least %d rigid parameters", len(transform), rigidLen)
	}
	rt, err := spatialmath.NewRigidTransform(transform[:rigidLen])
	if err != nil {
		return nil, err
	}
	sds := transform[rigidLen:]
	var shape []float64
	if len(sds) == 0 {
		shape = in.model.Mean()
	} else if shape, err = in.model.ReconstructSD(shapemodel.FirstModes(len(sds)), sds); err != nil {
		return nil, err
	}
	if err := m.SetParams(shape); err != nil {
		return nil, err
	}
	m.TransformAboutCoM(rt)
	in.logger.Infow("initialised from input transform", "transform", transform)
	return layout.Adjust(transform), nil
}
