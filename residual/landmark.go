package residual

import (
	"github.com/golang/geo/r3"

	"github.com/fieldwork/pcmeshfit/mesh"
)

// LandmarkTerm pairs a mesh landmark with the position it should reach.
type LandmarkTerm struct {
	Evaluator *mesh.LandmarkEvaluator
	Target    r3.Vector
	Weight    float64
}

// Landmarks is one entry per term: weight times the squared distance from the landmark to its
// target.
type Landmarks struct {
	terms    []LandmarkTerm
	weighted bool
}

// NewLandmarks returns the weighted landmark residual over terms, in order.
func NewLandmarks(terms []LandmarkTerm) *Landmarks {
	return &Landmarks{terms: append([]LandmarkTerm(nil), terms...), weighted: true}
}

// Len is the number of terms.
func (l *Landmarks) Len() int {
	return len(l.terms)
}

// Unweighted returns the twin with every weight treated as 1.
func (l *Landmarks) Unweighted() Residual {
	return &Landmarks{terms: l.terms, weighted: false}
}

// Evaluate returns the squared landmark errors.
func (l *Landmarks) Evaluate(params []float64) ([]float64, error) {
	out := make([]float64, len(l.terms))
	for i, term := range l.terms {
		p, err := term.Evaluator.Evaluate(params)
		if err != nil {
			return nil, err
		}
		out[i] = p.Sub(term.Target).Norm2()
		if l.weighted {
			out[i] *= term.Weight
		}
	}
	return out, nil
}
