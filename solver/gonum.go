package solver

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/fieldwork/pcmeshfit/logging"
)

// GonumMinimizer minimises ½‖r‖² with a general purpose gonum optimiser: BFGS with forward
// difference gradients, or the derivative free Nelder-Mead simplex.
type GonumMinimizer struct {
	method string
	logger logging.Logger
}

// NewGonumMinimizer returns a minimiser for the method named BFGSName or NelderMeadName.
func NewGonumMinimizer(method string, logger logging.Logger) (*GonumMinimizer, error) {
	switch method {
	case BFGSName, NelderMeadName:
	default:
		return nil, errors.Errorf("unsupported gonum method %q", method)
	}
	return &GonumMinimizer{method: method, logger: logger}, nil
}

// Solve runs the configured gonum method. The budget covers the evaluations made for
// gradients as well.
func (g *GonumMinimizer) Solve(ctx context.Context, problem Problem, x0 []float64, settings Settings) (*Result, error) {
	if err := checkStart(ctx, problem, x0, settings); err != nil {
		return nil, err
	}
	c := &counter{fn: problem.Func, max: settings.MaxFuncEvals}
	var evalErr error
	objective := func(x []float64) float64 {
		r, err := c.eval(x)
		if err != nil {
			if evalErr == nil && !errors.Is(err, errBudget) {
				evalErr = err
			}
			return math.Inf(1)
		}
		return sumSquares(r) / 2
	}

	p := optimize.Problem{Func: objective}
	optSettings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   settings.XTol * settings.XTol,
			Relative:   settings.XTol,
			Iterations: 20,
		},
	}
	var method optimize.Method
	switch g.method {
	case BFGSName:
		method = &optimize.BFGS{}
		p.Grad = func(grad, x []float64) {
			fd.Gradient(grad, objective, x, &fd.Settings{Formula: fd.Forward})
		}
		// one gradient costs a function evaluation per parameter
		perIter := len(x0) + 1
		optSettings.FuncEvaluations = max(settings.MaxFuncEvals/perIter, 1)
		optSettings.GradEvaluations = optSettings.FuncEvaluations
		optSettings.GradientThreshold = 1e-12
	default:
		method = &optimize.NelderMead{}
		optSettings.FuncEvaluations = settings.MaxFuncEvals
	}

	res, err := optimize.Minimize(p, x0, optSettings, method)
	if evalErr != nil {
		return nil, evalErr
	}
	var status Status
	var iterations int
	if res != nil {
		status = gonumStatus(res.Status)
		iterations = res.Stats.MajorIterations
	}
	// gonum reports a line search that stops moving as a failure, which near the optimum is
	// an ordinary end; only a run without any finite evaluation is an error
	out, ok := c.best(iterations, status)
	if !ok {
		if err == nil {
			err = errors.New("no finite objective value")
		}
		return nil, errors.Wrap(err, "gonum minimiser failed")
	}
	if err != nil {
		g.logger.Debugw("gonum minimiser stopped early", "method", g.method, "error", err)
	}
	g.logger.Debugw("gonum minimiser done", "method", g.method, "status", out.Status.String(),
		"major_iterations", iterations, "evals", out.FuncEvals)
	return out, nil
}

// gonumStatus maps a gonum termination onto a Status. Failures end as Stalled.
func gonumStatus(s optimize.Status) Status {
	switch s {
	case optimize.FunctionEvaluationLimit, optimize.GradientEvaluationLimit,
		optimize.IterationLimit, optimize.RuntimeLimit:
		return FuncEvalLimit
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold,
		optimize.StepConvergence, optimize.FunctionThreshold, optimize.MethodConverge:
		return Converged
	default:
		return Stalled
	}
}
