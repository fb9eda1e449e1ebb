package fitting

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/pointcloud"
	"github.com/fieldwork/pcmeshfit/residual"
	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/solver"
)

// Inputs are supplied once per session.
type Inputs struct {
	Mesh  *mesh.Mesh
	Model *shapemodel.Model
	Cloud []r3.Vector
	// Weights are optional per point weights of Cloud.
	Weights []float64
	// InitialTransform is an optional [rigid(6|7), mode SDs...] vector. Its rigid length follows
	// the FitScale of the options the session starts with.
	InitialTransform []float64
}

// Options configure a fit. They may change between fits of the same session.
type Options struct {
	DistanceMode      residual.DistanceMode
	NumModes          int
	Discretisation    int
	NClosest          int
	MahalanobisWeight float64
	FitScale          bool
	ModePolicy        ModePolicy
	Settings          solver.Settings
	// Landmarks are appended after the geometric residual when non-empty.
	Landmarks []residual.LandmarkTerm
	// Solver defaults to Levenberg-Marquardt.
	Solver solver.Solver
}

// Layout of the parameter vector these options fit.
func (o Options) Layout() Layout {
	return Layout{FitScale: o.FitScale, NumModes: o.NumModes}
}

func (o Options) fitOptions() FitOptions {
	return FitOptions{
		Layout:            o.Layout(),
		MahalanobisWeight: o.MahalanobisWeight,
		ModePolicy:        o.ModePolicy,
		Settings:          o.Settings,
	}
}

// Validate checks the options against a shape model.
func (o Options) Validate(model *shapemodel.Model) error {
	if o.NumModes < 1 || o.NumModes > model.NumModes() {
		return errors.Errorf("number of modes to fit must be in [1, %d], got %d", model.NumModes(), o.NumModes)
	}
	if o.Discretisation < 1 {
		return errors.Errorf("surface discretisation must be at least 1, got %d", o.Discretisation)
	}
	if o.DistanceMode == residual.EPDP && o.NClosest < 1 {
		return errors.Errorf("number of closest points must be at least 1, got %d", o.NClosest)
	}
	if o.MahalanobisWeight < 0 || math.IsNaN(o.MahalanobisWeight) {
		return errors.Errorf("mahalanobis weight must be non-negative, got %v", o.MahalanobisWeight)
	}
	if _, err := ParseModePolicy(string(o.ModePolicy)); err != nil {
		return err
	}
	return o.Settings.Validate()
}

// Session is an interactive fitting session over one mesh. At most one fit runs at a time.
type Session struct {
	model   *shapemodel.Model
	cloud   []r3.Vector
	weights []float64
	logger  logging.Logger

	inFlight atomic.Bool

	mu         sync.Mutex
	live       *mesh.Mesh
	unfitted   []float64
	initState  InitState
	x0         []float64
	x0Layout   Layout
	last       []float64
	lastLayout Layout
	history    []*Result
	closed     bool
}

// NewSession validates the inputs and initialises the mesh, from the supplied transform if
// there is one and by fitting the model to the mesh otherwise. The session takes ownership of
// inputs.Mesh.
func NewSession(ctx context.Context, inputs Inputs, opts Options, logger logging.Logger) (*Session, error) {
	if inputs.Mesh == nil || inputs.Model == nil {
		return nil, errors.New("a fitting session needs a mesh and a shape model")
	}
	if len(inputs.Cloud) == 0 {
		return nil, pointcloud.ErrEmptyCloud
	}
	if err := pointcloud.ValidateWeights(inputs.Cloud, inputs.Weights); err != nil {
		return nil, err
	}
	if inputs.Mesh.NumNodes()*3 != inputs.Model.Dim() {
		return nil, errors.Wrapf(shapemodel.ErrDimensionMismatch,
			"mesh has %d field parameters, shape model has %d", inputs.Mesh.NumNodes()*3, inputs.Model.Dim())
	}
	if err := opts.Validate(inputs.Model); err != nil {
		return nil, err
	}

	s := &Session{
		model:     inputs.Model,
		cloud:     inputs.Cloud,
		weights:   inputs.Weights,
		logger:    logger,
		live:      inputs.Mesh,
		initState: ChooseInitState(inputs.InitialTransform),
		x0Layout:  opts.Layout(),
	}

	work := s.live.Clone()
	initializer := NewInitializer(s.model, s.fitter(opts), logger.Sublogger("init"))
	var x0 []float64
	var err error
	switch s.initState {
	case FromInputTransform:
		x0, err = initializer.FromInputTransform(work, inputs.InitialTransform, s.x0Layout)
	default:
		x0, err = initializer.FromInputModel(ctx, work, opts.fitOptions())
	}
	switch {
	case errors.Is(err, ErrMissingInput):
		x0 = s.x0Layout.Identity()
	case err != nil:
		return nil, err
	default:
		s.live = work
	}
	s.x0 = x0
	s.unfitted = s.live.Params()
	return s, nil
}

// InitState reports how the session was initialised.
func (s *Session) InitState() InitState {
	return s.initState
}

func (s *Session) fitter(opts Options) *Fitter {
	return NewFitter(s.model, opts.Solver, s.logger.Sublogger("fitter"))
}

// Mesh returns a copy of the live mesh.
func (s *Session) Mesh() *mesh.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.Clone()
}

// Seed returns the vector the next fit with opts would start from: the last fitted vector,
// or the initial vector before any fit, adjusted to the options' layout.
func (s *Session) Seed(opts Options) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedLocked(opts.Layout())
}

func (s *Session) seedLocked(layout Layout) []float64 {
	if s.last != nil {
		return layout.Adjust(convertSeed(s.last, s.lastLayout, layout))
	}
	return layout.Adjust(convertSeed(s.x0, s.x0Layout, layout))
}

// History returns the results of every fit in order.
func (s *Session) History() []*Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Result, len(s.history))
	for i, r := range s.history {
		out[i] = r.clone()
	}
	return out
}

// Fit runs one blocking fit warm started from the previous one and commits the result to the
// live mesh.
func (s *Session) Fit(ctx context.Context, opts Options) (*Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrFitInFlight
	}
	defer s.inFlight.Store(false)
	return s.fit(ctx, opts)
}

// FitAsync starts a fit in the background. The session refuses other fits and resets until the
// task is done.
func (s *Session) FitAsync(ctx context.Context, opts Options) (*FitTask, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrFitInFlight
	}
	return startFitTask(func() (*Result, error) {
		return s.fit(ctx, opts)
	}, func() {
		s.inFlight.Store(false)
	}), nil
}

// InFlight reports whether a fit is running.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) fit(ctx context.Context, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(s.model); err != nil {
		return nil, err
	}
	layout := opts.Layout()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	work := s.live.Clone()
	seed := s.seedLocked(layout)
	s.mu.Unlock()

	geometric, err := residual.NewGeometric(work, s.cloud, s.weights, residual.GeometricOptions{
		Mode:           opts.DistanceMode,
		Discretisation: opts.Discretisation,
		NClosest:       opts.NClosest,
	})
	if err != nil {
		return nil, err
	}
	objective := residual.NewStack(geometric)
	if len(opts.Landmarks) > 0 {
		objective = residual.NewStack(geometric, residual.NewLandmarks(opts.Landmarks))
	}

	s.logger.Infow("fitting",
		"distance_mode", opts.DistanceMode.String(),
		"pcs", opts.NumModes,
		"discretisation", opts.Discretisation,
		"mahalanobis_weight", opts.MahalanobisWeight,
		"max_func_evals", opts.Settings.MaxFuncEvals,
		"xtol", opts.Settings.XTol,
		"fit_scale", opts.FitScale,
		"n_closest", opts.NClosest,
		"landmarks", len(opts.Landmarks))

	out, err := s.fitter(opts).Fit(ctx, objective, seed, opts.fitOptions())
	if err != nil {
		return nil, err
	}
	errs, err := objective.Unweighted().Evaluate(out.Field)
	if err != nil {
		return nil, err
	}
	if err := work.SetParams(out.Field); err != nil {
		return nil, err
	}
	transform, err := NewTransform(out.X, layout)
	if err != nil {
		return nil, err
	}
	summary := Summarize(errs)
	result := &Result{
		Mesh:      work,
		Transform: transform,
		Errors:    errs,
		RMSE:      summary.RMSE,
		Summary:   summary,
		Status:    out.Solve.Status,
		FuncEvals: out.Solve.FuncEvals,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := s.live.SetParams(out.Field); err != nil {
		return nil, err
	}
	s.last = out.X
	s.lastLayout = layout
	s.history = append(s.history, result.clone())
	s.logger.Infow("fit complete",
		"rmse", summary.RMSE,
		"mean", summary.Mean,
		"sd", summary.SD,
		"status", out.Solve.Status.String(),
		"evals", out.Solve.FuncEvals)
	return result, nil
}

// Reset restores the mesh to its unfitted state and drops the warm start, so the next fit
// starts from the initial vector again.
func (s *Session) Reset() error {
	if s.inFlight.Load() {
		return ErrFitInFlight
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Session) resetLocked() error {
	if err := s.live.SetParams(s.unfitted); err != nil {
		return err
	}
	s.last = nil
	return nil
}

// Accept closes the session and returns the latest result.
func (s *Session) Accept() (*Result, error) {
	if s.inFlight.Load() {
		return nil, ErrFitInFlight
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(s.history) == 0 {
		return nil, ErrNoResult
	}
	s.closed = true
	return s.history[len(s.history)-1].clone(), nil
}

// Abort closes the session, discarding the latest result and restoring the unfitted mesh. A
// fit still running when Abort is called finishes but is not committed.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if len(s.history) > 0 {
		s.history = s.history[:len(s.history)-1]
	}
	return s.resetLocked()
}
