// Package residual builds the residual vectors minimised by a fit. Every residual maps a
// flattened mesh field parameter vector to a vector of errors and never mutates the mesh it
// was built from.
package residual

import (
	"github.com/pkg/errors"
)

// Residual evaluates errors for a field parameter vector. Len is the length of every vector
// Evaluate returns.
type Residual interface {
	Evaluate(params []float64) ([]float64, error)
	Len() int
}

// Weighted is a residual with an unweighted twin, used to report errors that are not distorted
// by the weighting that drives the optimiser.
type Weighted interface {
	Residual
	Unweighted() Residual
}

// Stack concatenates residuals in order. Landmark residuals are stacked after the geometric
// residual so that callers can read landmark errors from the end of the vector.
type Stack []Residual

// NewStack stacks residuals, skipping nil ones.
func NewStack(residuals ...Residual) Stack {
	var s Stack
	for _, r := range residuals {
		if r != nil {
			s = append(s, r)
		}
	}
	return s
}

// Len is the sum of the member lengths.
func (s Stack) Len() int {
	n := 0
	for _, r := range s {
		n += r.Len()
	}
	return n
}

// Evaluate concatenates the member residuals.
func (s Stack) Evaluate(params []float64) ([]float64, error) {
	out := make([]float64, 0, s.Len())
	for i, r := range s {
		e, err := r.Evaluate(params)
		if err != nil {
			return nil, errors.Wrapf(err, "residual %d", i)
		}
		out = append(out, e...)
	}
	return out, nil
}

// Unweighted returns the stack of unweighted twins. Members without a twin are kept as is.
func (s Stack) Unweighted() Residual {
	out := make(Stack, len(s))
	for i, r := range s {
		if w, ok := r.(Weighted); ok {
			out[i] = w.Unweighted()
		} else {
			out[i] = r
		}
	}
	return out
}

// Unweighted returns the unweighted twin of r if it has one, and r otherwise.
func Unweighted(r Residual) Residual {
	if w, ok := r.(Weighted); ok {
		return w.Unweighted()
	}
	return r
}
