//go:build !windows && !no_cgo

package solver

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/fieldwork/pcmeshfit/logging"
)

// NloptMinimizer minimises Σr² with the derivative free subplex method of nlopt.
type NloptMinimizer struct {
	logger logging.Logger
}

// NewNloptMinimizer returns an nlopt backed solver.
func NewNloptMinimizer(logger logging.Logger) (*NloptMinimizer, error) {
	return &NloptMinimizer{logger: logger}, nil
}

// Solve runs subplex until the relative step tolerance or the budget is reached.
func (nm *NloptMinimizer) Solve(ctx context.Context, problem Problem, x0 []float64, settings Settings) (*Result, error) {
	if err := checkStart(ctx, problem, x0, settings); err != nil {
		return nil, err
	}
	opt, err := nlopt.NewNLopt(nlopt.LN_SBPLX, uint(len(x0)))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	c := &counter{fn: problem.Func, max: settings.MaxFuncEvals}
	var evalErr error
	minFunc := func(x, gradient []float64) float64 {
		r, err := c.eval(x)
		if err != nil {
			if errors.Is(err, errBudget) {
				if err := opt.ForceStop(); err != nil {
					nm.logger.Debugw("nlopt force stop failed", "error", err)
				}
				return math.Inf(1)
			}
			if evalErr == nil {
				evalErr = err
			}
			nm.logger.Errorw("error evaluating residuals in nlopt", "error", err)
			if err := opt.ForceStop(); err != nil {
				nm.logger.Debugw("nlopt force stop failed", "error", err)
			}
			return 0
		}
		return sumSquares(r)
	}

	err = multierr.Combine(
		opt.SetXtolRel(settings.XTol),
		opt.SetFtolAbs(settings.XTol*settings.XTol),
		opt.SetMaxEval(settings.MaxFuncEvals),
		opt.SetMinObjective(minFunc),
	)
	if err != nil {
		return nil, err
	}

	_, _, err = opt.Optimize(append([]float64(nil), x0...))
	if evalErr != nil {
		return nil, evalErr
	}
	status := Converged
	if c.evals >= settings.MaxFuncEvals {
		status = FuncEvalLimit
	}
	res, ok := c.best(0, status)
	if !ok {
		if err == nil {
			err = errors.New("no finite objective value")
		}
		return nil, errors.Wrap(err, "nlopt failed")
	}
	if err != nil {
		// nlopt reports roundoff limited runs as failures, the best point is still usable
		nm.logger.Debugw("nlopt ended early", "error", err)
		if status == Converged {
			res.Status = Stalled
		}
	}
	return res, nil
}
