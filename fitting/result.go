package fitting

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/solver"
)

// Summary describes an unweighted error vector.
type Summary struct {
	RMSE   float64
	Mean   float64
	SD     float64
	Median float64
	P95    float64
	Max    float64
}

// Summarize computes the statistics of errs. Empty input gives the zero Summary.
func Summarize(errs []float64) Summary {
	if len(errs) == 0 {
		return Summary{}
	}
	var s Summary
	s.Mean, s.SD = stat.PopMeanStdDev(errs, nil)
	sq := 0.
	for _, e := range errs {
		sq += e * e
	}
	s.RMSE = math.Sqrt(sq / float64(len(errs)))

	data := stats.Float64Data(errs)
	// these only fail on empty input
	s.Median, _ = data.Median()
	s.P95, _ = data.Percentile(95)
	s.Max, _ = data.Max()
	return s
}

// Result of one fit. Each Result handed out by a Session is a separate copy, so callers may
// modify it without affecting the session's history.
type Result struct {
	// Mesh is a deep copy of the fitted mesh.
	Mesh      *mesh.Mesh
	Transform Transform
	// Errors is the unweighted residual vector: geometric errors then landmark errors.
	Errors    []float64
	RMSE      float64
	Summary   Summary
	Status    solver.Status
	FuncEvals int
}

func (r *Result) clone() *Result {
	out := *r
	out.Mesh = r.Mesh.Clone()
	out.Transform.ModeSDs = append([]float64(nil), r.Transform.ModeSDs...)
	out.Errors = append([]float64(nil), r.Errors...)
	return &out
}
