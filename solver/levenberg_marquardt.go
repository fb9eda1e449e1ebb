package solver

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fieldwork/pcmeshfit/logging"
)

const (
	lmInitialLambda = 1e-3
	lmMinLambda     = 1e-15
	lmMaxLambda     = 1e16
	lmMinDiagonal   = 1e-9
	// forward difference step relative to the largest parameter, the square root of machine
	// epsilon
	lmDiffStep = 1.49e-8
)

// LevenbergMarquardt is a damped Gauss-Newton least squares solver using a forward difference
// Jacobian.
type LevenbergMarquardt struct {
	logger logging.Logger
}

// NewLevenbergMarquardt returns a Levenberg-Marquardt solver.
func NewLevenbergMarquardt(logger logging.Logger) *LevenbergMarquardt {
	return &LevenbergMarquardt{logger: logger}
}

// Solve minimises Σr(x)² starting at x0. It ends when a step is under
// XTol·(‖x‖+XTol), when the budget is spent, or when damping cannot find a better point.
func (lm *LevenbergMarquardt) Solve(ctx context.Context, problem Problem, x0 []float64, settings Settings) (*Result, error) {
	if err := checkStart(ctx, problem, x0, settings); err != nil {
		return nil, err
	}
	c := &counter{fn: problem.Func, max: settings.MaxFuncEvals}
	n := len(x0)
	x := append([]float64(nil), x0...)

	r, err := c.eval(x)
	if err != nil {
		return nil, err
	}
	m := len(r)
	cost := sumSquares(r)
	result := func(status Status, iterations int) *Result {
		return &Result{X: x, Residuals: r, Cost: cost, FuncEvals: c.evals, Iterations: iterations, Status: status}
	}
	if m == 0 {
		return result(Converged, 0), nil
	}

	jac := mat.NewDense(m, n, nil)
	jtj := mat.NewSymDense(n, nil)
	a := mat.NewSymDense(n, nil)
	var jtr, dx mat.VecDense
	var chol mat.Cholesky
	xNew := make([]float64, n)

	lambda, nu := lmInitialLambda, 2.
	for iter := 0; ; iter++ {
		if cost == 0 {
			return result(Converged, iter), nil
		}
		if err := lm.jacobian(c, x, r, jac); err != nil {
			if errors.Is(err, errBudget) {
				return result(FuncEvalLimit, iter), nil
			}
			return nil, err
		}
		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&jtr, math.Inf(1)) == 0 {
			return result(Converged, iter), nil
		}

		for {
			a.CopySym(jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)+lambda*math.Max(jtj.At(i, i), lmMinDiagonal))
			}
			if ok := chol.Factorize(a); !ok {
				lambda *= nu
				nu *= 2
				if lambda > lmMaxLambda {
					return result(Stalled, iter), nil
				}
				continue
			}
			if err := chol.SolveVecTo(&dx, &jtr); err != nil {
				lm.logger.Debugw("ill conditioned damped normal equations", "lambda", lambda, "error", err)
				lambda *= nu
				nu *= 2
				if lambda > lmMaxLambda {
					return result(Stalled, iter), nil
				}
				continue
			}
			dx.ScaleVec(-1, &dx)
			step := dx.RawVector().Data

			if floats.Norm(step, 2) <= settings.XTol*(floats.Norm(x, 2)+settings.XTol) {
				return result(Converged, iter), nil
			}
			floats.AddTo(xNew, x, step)
			rNew, err := c.eval(xNew)
			if err != nil {
				if errors.Is(err, errBudget) {
					return result(FuncEvalLimit, iter), nil
				}
				return nil, err
			}
			if costNew := sumSquares(rNew); costNew < cost {
				copy(x, xNew)
				r, cost = rNew, costNew
				lambda = math.Max(lambda/3, lmMinLambda)
				nu = 2
				lm.logger.Debugw("levenberg-marquardt step", "iteration", iter, "cost", cost, "lambda", lambda, "evals", c.evals)
				break
			}
			lambda *= nu
			nu *= 2
			if lambda > lmMaxLambda {
				return result(Stalled, iter), nil
			}
		}
	}
}

// jacobian fills jac by forward differences around x, where r = f(x). Every column costs one
// counted evaluation.
func (lm *LevenbergMarquardt) jacobian(c *counter, x, r []float64, jac *mat.Dense) error {
	var evalErr error
	f := func(y, xh []float64) {
		if evalErr != nil {
			return
		}
		rh, err := c.eval(xh)
		if err == nil && len(rh) != len(y) {
			err = errors.Errorf("residual length changed from %d to %d", len(y), len(rh))
		}
		if err != nil {
			evalErr = err
			return
		}
		copy(y, rh)
	}
	fd.Jacobian(jac, f, x, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: r,
		Step:        lmDiffStep * math.Max(floats.Norm(x, math.Inf(1)), 1),
	})
	return evalErr
}
