package fitting

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"

	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/residual"
	"github.com/fieldwork/pcmeshfit/shapemodel"
	"github.com/fieldwork/pcmeshfit/solver"
	"github.com/fieldwork/pcmeshfit/testutils"
)

type sessionFixture struct {
	mesh   *mesh.Mesh
	model  *shapemodel.Model
	cloud  []r3.Vector
	target []float64
}

// newFixture builds a two mode model over an icosahedron and a cloud sampled from the model
// deformed by coeffs with an identity rigid transform.
func newFixture(t *testing.T, coeffs []float64, discretisation int) sessionFixture {
	t.Helper()
	m := testutils.Icosahedron(t, 3)
	model := testutils.StretchModel(t, m, []float64{1, 0.5})
	target := testutils.DeformedParams(t, model, coeffs, []float64{0, 0, 0, 0, 0, 0})
	return sessionFixture{
		mesh:   m,
		model:  model,
		cloud:  testutils.SurfaceCloud(t, m, target, discretisation),
		target: target,
	}
}

func (f sessionFixture) inputs() Inputs {
	return Inputs{Mesh: f.mesh.Clone(), Model: f.model, Cloud: f.cloud}
}

func defaultOptions() Options {
	return Options{
		DistanceMode:      residual.EPDP,
		NumModes:          2,
		Discretisation:    4,
		NClosest:          1,
		MahalanobisWeight: 0,
		ModePolicy:        ModePolicyAll,
		Settings:          solver.Settings{MaxFuncEvals: 1000, XTol: 1e-6},
	}
}

func TestEndToEndTwoModes(t *testing.T) {
	fx := newFixture(t, []float64{0.5, -0.3}, 4)
	ctx := context.Background()
	s, err := NewSession(ctx, fx.inputs(), defaultOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.InitState(), test.ShouldEqual, FromInputModel)

	res, err := s.Fit(ctx, defaultOptions())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Transform.ModeSDs, test.ShouldHaveLength, 2)
	test.That(t, res.Transform.ModeSDs[0], test.ShouldAlmostEqual, 0.5, 1e-2)
	test.That(t, res.Transform.ModeSDs[1], test.ShouldAlmostEqual, -0.3, 1e-2)
	test.That(t, res.RMSE, test.ShouldBeLessThan, 1e-3)
	test.That(t, res.FuncEvals, test.ShouldBeLessThanOrEqualTo, 1000)
	test.That(t, res.Errors, test.ShouldHaveLength, 162)
	test.That(t, res.Summary.Max, test.ShouldBeGreaterThanOrEqualTo, res.Summary.Median)

	// the live mesh is committed, the result holds its own copy
	test.That(t, maxAbsDiff(s.Mesh().Params(), res.Mesh.Params()), test.ShouldEqual, 0)
	test.That(t, maxAbsDiff(res.Mesh.Params(), fx.target), test.ShouldBeLessThan, 1e-3)
	test.That(t, s.History(), test.ShouldHaveLength, 1)
}

func TestSessionWeightedFitReportsUnweightedErrors(t *testing.T) {
	ctx := context.Background()
	base := testutils.Icosahedron(t, 3)
	model := testutils.StretchModel(t, base, []float64{1, 0.5})
	identity := []float64{0, 0, 0, 0, 0, 0}
	shapeA := testutils.DeformedParams(t, model, []float64{0.5, -0.3}, identity)
	shapeB := testutils.DeformedParams(t, model, []float64{-0.3, 0.3}, identity)
	cloudA := testutils.SurfaceCloud(t, base, shapeA, 2)
	cloudB := testutils.SurfaceCloud(t, base, shapeB, 2)
	cloud := append(append([]r3.Vector(nil), cloudA...), cloudB...)

	weightsFavouring := func(first bool) []float64 {
		w := make([]float64, len(cloud))
		for i := range w {
			if (i < len(cloudA)) == first {
				w[i] = 1
			} else {
				w[i] = 0.05
			}
		}
		return w
	}

	opts := defaultOptions()
	opts.DistanceMode = residual.DPEP
	fit := func(weights []float64) *Result {
		s, err := NewSession(ctx, Inputs{Mesh: base.Clone(), Model: model, Cloud: cloud, Weights: weights},
			opts, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		res, err := s.Fit(ctx, opts)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Errors, test.ShouldHaveLength, len(cloud))

		unweighted, err := residual.NewGeometric(base, cloud, nil, residual.GeometricOptions{
			Mode:           opts.DistanceMode,
			Discretisation: opts.Discretisation,
			NClosest:       opts.NClosest,
		})
		test.That(t, err, test.ShouldBeNil)
		want, err := unweighted.Evaluate(res.Mesh.Params())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, maxAbsDiff(res.Errors, want), test.ShouldBeLessThan, 1e-12)
		test.That(t, res.RMSE, test.ShouldAlmostEqual, math.Sqrt(floats.Dot(want, want)/float64(len(want))), 1e-12)

		weighted, err := residual.NewGeometric(base, cloud, weights, residual.GeometricOptions{
			Mode:           opts.DistanceMode,
			Discretisation: opts.Discretisation,
			NClosest:       opts.NClosest,
		})
		test.That(t, err, test.ShouldBeNil)
		scaled, err := weighted.Evaluate(res.Mesh.Params())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, maxAbsDiff(res.Errors, scaled), test.ShouldBeGreaterThan, 0)
		return res
	}

	towardsA := fit(weightsFavouring(true))
	towardsB := fit(weightsFavouring(false))
	test.That(t, towardsA.Transform.ModeSDs[0]-towardsB.Transform.ModeSDs[0], test.ShouldBeGreaterThan, 0.2)
}

func TestSessionResultsAreCopies(t *testing.T) {
	fx := newFixture(t, []float64{0.5, -0.3}, 4)
	ctx := context.Background()
	s, err := NewSession(ctx, fx.inputs(), defaultOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	res, err := s.Fit(ctx, defaultOptions())
	test.That(t, err, test.ShouldBeNil)
	fitted := res.Mesh.Params()
	firstError := res.Errors[0]

	test.That(t, res.Mesh.SetParams(make([]float64, len(fitted))), test.ShouldBeNil)
	res.Errors[0] = -1
	res.Transform.ModeSDs[0] = 42

	history := s.History()
	test.That(t, history, test.ShouldHaveLength, 1)
	test.That(t, history[0].Mesh.Params(), test.ShouldResemble, fitted)
	test.That(t, history[0].Errors[0], test.ShouldEqual, firstError)
	test.That(t, history[0].Transform.ModeSDs[0], test.ShouldNotEqual, 42)

	history[0].Errors[0] = -2
	accepted, err := s.Accept()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, accepted.Errors[0], test.ShouldEqual, firstError)
	test.That(t, accepted.Mesh.Params(), test.ShouldResemble, fitted)
}

func TestWarmStart(t *testing.T) {
	fx := newFixture(t, []float64{0.5, -0.3}, 4)
	ctx := context.Background()
	s, err := NewSession(ctx, fx.inputs(), defaultOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	opts := defaultOptions()
	test.That(t, s.Seed(opts), test.ShouldHaveLength, 8)

	res, err := s.Fit(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Seed(opts), test.ShouldResemble, res.Transform.Params())

	// fewer modes drop the trailing coefficient, more modes pad with zero
	opts.NumModes = 1
	test.That(t, s.Seed(opts), test.ShouldResemble, res.Transform.Params()[:7])
	opts.NumModes = 2
	opts.FitScale = true
	seed := s.Seed(opts)
	test.That(t, seed, test.ShouldHaveLength, 9)
	test.That(t, seed[6], test.ShouldEqual, 1)

	test.That(t, s.Reset(), test.ShouldBeNil)
	test.That(t, maxAbsDiff(s.Mesh().Params(), fx.mesh.Params()), test.ShouldBeLessThan, 1e-6)
	test.That(t, maxAbsDiff(s.Seed(defaultOptions()), make([]float64, 8)), test.ShouldBeLessThan, 1e-6)
}

func TestSessionLandmarks(t *testing.T) {
	fx := newFixture(t, []float64{0.5, -0.3}, 4)
	ctx := context.Background()
	s, err := NewSession(ctx, fx.inputs(), defaultOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	top, err := fx.mesh.LandmarkEvaluator("top")
	test.That(t, err, test.ShouldBeNil)
	topTarget, err := top.Evaluate(fx.target)
	test.That(t, err, test.ShouldBeNil)

	opts := defaultOptions()
	opts.Landmarks = []residual.LandmarkTerm{{Evaluator: top, Target: topTarget, Weight: 10}}
	res, err := s.Fit(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Errors, test.ShouldHaveLength, 163)
	test.That(t, res.Errors[162], test.ShouldBeLessThan, 1e-6)
	test.That(t, res.RMSE, test.ShouldBeLessThan, 1e-3)
}

func TestNewSessionValidation(t *testing.T) {
	fx := newFixture(t, []float64{0, 0}, 2)
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	opts := defaultOptions()
	opts.NumModes = 3
	_, err := NewSession(ctx, fx.inputs(), opts, logger)
	test.That(t, err, test.ShouldNotBeNil)

	inputs := fx.inputs()
	inputs.Cloud = nil
	_, err = NewSession(ctx, inputs, defaultOptions(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	inputs = fx.inputs()
	inputs.Weights = []float64{1}
	_, err = NewSession(ctx, inputs, defaultOptions(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	inputs = fx.inputs()
	inputs.Mesh, err = mesh.New("triangle", fx.mesh.Nodes()[:3], []mesh.Triangle{{0, 1, 2}})
	test.That(t, err, test.ShouldBeNil)
	_, err = NewSession(ctx, inputs, defaultOptions(), logger)
	test.That(t, errors.Is(err, shapemodel.ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestSessionFromInputTransform(t *testing.T) {
	fx := newFixture(t, []float64{0.5, -0.3}, 4)
	ctx := context.Background()
	inputs := fx.inputs()
	inputs.InitialTransform = []float64{0, 0, 0, 0, 0, 0, 0.4}
	s, err := NewSession(ctx, inputs, defaultOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.InitState(), test.ShouldEqual, FromInputTransform)
	test.That(t, s.Seed(defaultOptions()), test.ShouldResemble, []float64{0, 0, 0, 0, 0, 0, 0.4, 0})

	want := testutils.DeformedParams(t, fx.model, []float64{0.4}, []float64{0, 0, 0, 0, 0, 0})
	test.That(t, maxAbsDiff(s.Mesh().Params(), want), test.ShouldBeLessThan, 1e-12)
}

// blockingSolver holds every solve until released and returns the start point.
type blockingSolver struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSolver) Solve(ctx context.Context, p solver.Problem, x0 []float64, _ solver.Settings) (*solver.Result, error) {
	b.started <- struct{}{}
	<-b.release
	r, err := p.Func(x0)
	if err != nil {
		return nil, err
	}
	return &solver.Result{X: x0, Residuals: r, FuncEvals: 1, Status: solver.Converged}, nil
}

func TestFitAsyncInFlight(t *testing.T) {
	fx := newFixture(t, []float64{0.2, 0.1}, 2)
	ctx := context.Background()
	opts := defaultOptions()
	opts.Discretisation = 2
	s, err := NewSession(ctx, fx.inputs(), opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	blocking := &blockingSolver{started: make(chan struct{}), release: make(chan struct{})}
	opts.Solver = blocking
	task, err := s.FitAsync(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	<-blocking.started

	test.That(t, s.InFlight(), test.ShouldBeTrue)
	_, err = s.Fit(ctx, opts)
	test.That(t, err, test.ShouldEqual, ErrFitInFlight)
	_, err = s.FitAsync(ctx, opts)
	test.That(t, err, test.ShouldEqual, ErrFitInFlight)
	test.That(t, s.Reset(), test.ShouldEqual, ErrFitInFlight)
	_, err = s.Accept()
	test.That(t, err, test.ShouldEqual, ErrFitInFlight)

	select {
	case <-task.Done():
		t.Fatal("task finished before its solver was released")
	default:
	}

	shortCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = task.Wait(shortCtx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	close(blocking.release)
	res, err := task.Wait(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldNotBeNil)
	test.That(t, s.InFlight(), test.ShouldBeFalse)

	// the session accepts fits again
	opts.Solver = nil
	_, err = s.Fit(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.History(), test.ShouldHaveLength, 2)
}

func TestAcceptAndAbort(t *testing.T) {
	fx := newFixture(t, []float64{0.2, 0.1}, 2)
	ctx := context.Background()
	opts := defaultOptions()
	opts.Discretisation = 2

	s, err := NewSession(ctx, fx.inputs(), opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = s.Accept()
	test.That(t, err, test.ShouldEqual, ErrNoResult)

	res, err := s.Fit(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	accepted, err := s.Accept()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, accepted, test.ShouldEqual, res)
	_, err = s.Fit(ctx, opts)
	test.That(t, err, test.ShouldEqual, ErrSessionClosed)
	test.That(t, s.Abort(), test.ShouldEqual, ErrSessionClosed)

	s, err = NewSession(ctx, fx.inputs(), opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	unfitted := s.Mesh().Params()
	_, err = s.Fit(ctx, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Abort(), test.ShouldBeNil)
	test.That(t, s.Mesh().Params(), test.ShouldResemble, unfitted)
	test.That(t, s.History(), test.ShouldHaveLength, 0)
}
