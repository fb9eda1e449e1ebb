// Package solver minimises the sum of squared residuals of a parameter vector under a function
// evaluation budget. Running out of budget is a normal way for a solve to end.
package solver

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/logging"
)

const (
	// DefaultMaxFuncEvals is the evaluation budget used when none is configured.
	DefaultMaxFuncEvals = 1000
	// MaxFuncEvalsLimit is the largest evaluation budget accepted.
	MaxFuncEvalsLimit = 10000
	// DefaultXTol is the default relative step tolerance.
	DefaultXTol = 1e-6
)

// Problem is a nonlinear least squares problem.
type Problem struct {
	// Func returns the residual vector at x. Every call counts against the budget.
	Func func(x []float64) ([]float64, error)
}

// Settings bound a solve.
type Settings struct {
	MaxFuncEvals int
	XTol         float64
}

// DefaultSettings returns the default budget and tolerance.
func DefaultSettings() Settings {
	return Settings{MaxFuncEvals: DefaultMaxFuncEvals, XTol: DefaultXTol}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if s.MaxFuncEvals < 1 || s.MaxFuncEvals > MaxFuncEvalsLimit {
		return errors.Errorf("max function evaluations must be in [1, %d], got %d", MaxFuncEvalsLimit, s.MaxFuncEvals)
	}
	if !(s.XTol > 0) {
		return errors.Errorf("xtol must be positive, got %v", s.XTol)
	}
	return nil
}

// Status is how a solve ended. Every status is a successful termination.
type Status int

const (
	// Converged means the step or objective change fell under the tolerance.
	Converged Status = iota
	// FuncEvalLimit means the evaluation budget ran out.
	FuncEvalLimit
	// Stalled means no further improving step could be found.
	Stalled
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case FuncEvalLimit:
		return "function evaluation limit"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Result of a solve.
type Result struct {
	X         []float64
	Residuals []float64
	// Cost is the sum of squared residuals at X.
	Cost       float64
	FuncEvals  int
	Iterations int
	Status     Status
}

// Solver minimises a Problem from a starting point.
type Solver interface {
	Solve(ctx context.Context, problem Problem, x0 []float64, settings Settings) (*Result, error)
}

// Names of the available solvers.
const (
	LevenbergMarquardtName = "lm"
	BFGSName               = "bfgs"
	NelderMeadName         = "nelder-mead"
	NloptName              = "nlopt"
)

// Names lists every solver name accepted by New.
func Names() []string {
	return []string{LevenbergMarquardtName, BFGSName, NelderMeadName, NloptName}
}

// New returns the named solver.
func New(name string, logger logging.Logger) (Solver, error) {
	switch strings.ToLower(name) {
	case "", LevenbergMarquardtName:
		return NewLevenbergMarquardt(logger), nil
	case BFGSName, NelderMeadName:
		s, err := NewGonumMinimizer(strings.ToLower(name), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case NloptName:
		s, err := NewNloptMinimizer(logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Errorf("unknown solver %q, expected one of %s", name, strings.Join(Names(), ", "))
	}
}

// errBudget is returned by a counted function once the budget is spent.
var errBudget = errors.New("function evaluation budget exhausted")

// counter wraps a problem, counting and capping evaluations. It remembers the best point it
// evaluated so solvers that only see Σr² can report residuals without another call.
type counter struct {
	fn    func(x []float64) ([]float64, error)
	max   int
	evals int

	bestX    []float64
	bestR    []float64
	bestCost float64
}

func (c *counter) eval(x []float64) ([]float64, error) {
	if c.evals >= c.max {
		return nil, errBudget
	}
	c.evals++
	r, err := c.fn(x)
	if err != nil {
		return nil, err
	}
	if cost := sumSquares(r); c.bestX == nil || cost < c.bestCost {
		c.bestX = append(c.bestX[:0], x...)
		c.bestR = append([]float64(nil), r...)
		c.bestCost = cost
	}
	return r, nil
}

// best is a result at the lowest cost point evaluated so far. ok is false when nothing finite
// was evaluated.
func (c *counter) best(iterations int, status Status) (*Result, bool) {
	if c.bestX == nil || math.IsNaN(c.bestCost) || math.IsInf(c.bestCost, 0) {
		return nil, false
	}
	return &Result{
		X:          append([]float64(nil), c.bestX...),
		Residuals:  append([]float64(nil), c.bestR...),
		Cost:       c.bestCost,
		FuncEvals:  c.evals,
		Iterations: iterations,
		Status:     status,
	}, true
}

func sumSquares(r []float64) float64 {
	total := 0.
	for _, v := range r {
		total += v * v
	}
	return total
}

func checkStart(ctx context.Context, problem Problem, x0 []float64, settings Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if problem.Func == nil {
		return errors.New("problem has no residual function")
	}
	if len(x0) == 0 {
		return errors.New("cannot solve for an empty parameter vector")
	}
	return settings.Validate()
}
