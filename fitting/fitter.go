package fitting

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/residual"
	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/solver"
)

// ModePolicy selects which shape coefficients the solver may move.
type ModePolicy string

const (
	// ModePolicyAll optimises every fitted mode.
	ModePolicyAll ModePolicy = "all"
	// ModePolicyFreezeFirst holds mode 0 at its seed value whenever more than one mode is
	// fitted. Mode 0 still takes part in the reconstruction.
	ModePolicyFreezeFirst ModePolicy = "freeze-first"
)

// ParseModePolicy parses a policy name. The empty string is ModePolicyAll.
func ParseModePolicy(s string) (ModePolicy, error) {
	switch p := ModePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ModePolicyAll:
		return ModePolicyAll, nil
	case ModePolicyFreezeFirst:
		return p, nil
	default:
		return "", errors.Errorf("unknown mode policy %q, expected %q or %q", s, ModePolicyAll, ModePolicyFreezeFirst)
	}
}

// FitOptions configure one shape constrained fit.
type FitOptions struct {
	Layout Layout
	// MahalanobisWeight scales the prior term appended for every optimised mode.
	MahalanobisWeight float64
	ModePolicy        ModePolicy
	Settings          solver.Settings
}

// FitOutput is the outcome of a Fitter run.
type FitOutput struct {
	// X is the full parameter vector, including any frozen entries.
	X []float64
	// Field is the mesh field parameter vector X deforms the model into.
	Field []float64
	Solve *solver.Result
}

// Fitter registers a shape model to a residual by optimising rigid(+scale) and shape
// parameters under a Mahalanobis prior.
type Fitter struct {
	model  *shapemodel.Model
	solver solver.Solver
	logger logging.Logger
}

// NewFitter returns a fitter. A nil solver uses Levenberg-Marquardt.
func NewFitter(model *shapemodel.Model, s solver.Solver, logger logging.Logger) *Fitter {
	if s == nil {
		s = solver.NewLevenbergMarquardt(logger.Sublogger("lm"))
	}
	return &Fitter{model: model, solver: s, logger: logger}
}

// RigidModeFit fits a rigid transform with the scale fixed at 1 plus numModes shape modes.
func (f *Fitter) RigidModeFit(
	ctx context.Context, r residual.Residual, seed []float64, numModes int, mWeight float64, settings solver.Settings,
) (*FitOutput, error) {
	return f.Fit(ctx, r, seed, FitOptions{
		Layout:            Layout{NumModes: numModes},
		MahalanobisWeight: mWeight,
		ModePolicy:        ModePolicyAll,
		Settings:          settings,
	})
}

// RigidScaleModeFit also fits a uniform scale.
func (f *Fitter) RigidScaleModeFit(
	ctx context.Context, r residual.Residual, seed []float64, numModes int, mWeight float64, settings solver.Settings,
) (*FitOutput, error) {
	return f.Fit(ctx, r, seed, FitOptions{
		Layout:            Layout{FitScale: true, NumModes: numModes},
		MahalanobisWeight: mWeight,
		ModePolicy:        ModePolicyAll,
		Settings:          settings,
	})
}

// Fit minimises r(P(x)) ++ mWeight·b over the free entries of x, starting from seed adjusted to
// the layout.
func (f *Fitter) Fit(ctx context.Context, r residual.Residual, seed []float64, opts FitOptions) (*FitOutput, error) {
	d, err := newDeformer(f.model, opts.Layout)
	if err != nil {
		return nil, err
	}
	x0 := opts.Layout.Adjust(seed)
	free := freeIndices(opts.Layout, opts.ModePolicy)
	rigidLen := opts.Layout.RigidLen()

	scatter := func(z []float64) []float64 {
		x := append([]float64(nil), x0...)
		for i, idx := range free {
			x[idx] = z[i]
		}
		return x
	}
	objective := func(z []float64) ([]float64, error) {
		x := scatter(z)
		field, err := d.field(x)
		if err != nil {
			return nil, err
		}
		e, err := r.Evaluate(field)
		if err != nil {
			return nil, err
		}
		if opts.MahalanobisWeight != 0 {
			for _, idx := range free {
				if idx >= rigidLen {
					e = append(e, opts.MahalanobisWeight*x[idx])
				}
			}
		}
		return e, nil
	}

	z0 := make([]float64, len(free))
	for i, idx := range free {
		z0[i] = x0[idx]
	}
	f.logger.Debugw("starting fit",
		"fit_scale", opts.Layout.FitScale,
		"modes", opts.Layout.NumModes,
		"mode_policy", opts.ModePolicy,
		"mahalanobis_weight", opts.MahalanobisWeight,
		"max_func_evals", opts.Settings.MaxFuncEvals,
		"xtol", opts.Settings.XTol,
		"residuals", r.Len())

	res, err := f.solver.Solve(ctx, solver.Problem{Func: objective}, z0, opts.Settings)
	if err != nil {
		return nil, errors.Wrap(err, "fit failed")
	}
	x := scatter(res.X)
	field, err := d.field(x)
	if err != nil {
		return nil, err
	}
	f.logger.Debugw("fit done", "status", res.Status.String(), "cost", res.Cost, "evals", res.FuncEvals)
	return &FitOutput{X: x, Field: field, Solve: res}, nil
}

// freeIndices lists the parameter indices handed to the solver.
func freeIndices(layout Layout, policy ModePolicy) []int {
	frozen := -1
	if policy == ModePolicyFreezeFirst && layout.NumModes > 1 {
		frozen = layout.RigidLen()
	}
	free := make([]int, 0, layout.Len())
	for i := 0; i < layout.Len(); i++ {
		if i != frozen {
			free = append(free, i)
		}
	}
	return free
}
