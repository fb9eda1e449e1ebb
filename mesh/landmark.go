package mesh

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrUnknownLandmark is returned when a landmark name is not defined on the mesh.
var ErrUnknownLandmark = errors.New("unknown mesh landmark")

// Landmark is a named point on the mesh given as a weighted average of nodes. Nil Weights mean
// equal weights.
type Landmark struct {
	Nodes   []int     `json:"nodes"`
	Weights []float64 `json:"weights,omitempty"`
}

func (lm Landmark) clone() Landmark {
	return Landmark{
		Nodes:   append([]int(nil), lm.Nodes...),
		Weights: append([]float64(nil), lm.Weights...),
	}
}

func (lm Landmark) normalised() ([]float64, error) {
	if len(lm.Nodes) == 0 {
		return nil, errors.New("landmark has no nodes")
	}
	if len(lm.Weights) == 0 {
		w := make([]float64, len(lm.Nodes))
		for i := range w {
			w[i] = 1 / float64(len(w))
		}
		return w, nil
	}
	if len(lm.Weights) != len(lm.Nodes) {
		return nil, errors.Errorf("landmark has %d nodes but %d weights", len(lm.Nodes), len(lm.Weights))
	}
	total := 0.
	for _, w := range lm.Weights {
		total += w
	}
	if total == 0 {
		return nil, errors.New("landmark weights sum to zero")
	}
	w := make([]float64, len(lm.Weights))
	for i := range w {
		w[i] = lm.Weights[i] / total
	}
	return w, nil
}

// AddLandmark defines or replaces a named landmark.
func (m *Mesh) AddLandmark(name string, lm Landmark) error {
	if name == "" {
		return errors.New("landmark name cannot be empty")
	}
	for _, n := range lm.Nodes {
		if n < 0 || n >= len(m.nodes) {
			return errors.Errorf("landmark %q references node %d, mesh has %d nodes", name, n, len(m.nodes))
		}
	}
	if _, err := lm.normalised(); err != nil {
		return errors.Wrapf(err, "landmark %q", name)
	}
	m.landmarks[name] = lm.clone()
	return nil
}

// Landmark returns the named landmark definition.
func (m *Mesh) Landmark(name string) (Landmark, bool) {
	lm, ok := m.landmarks[name]
	if !ok {
		return Landmark{}, false
	}
	return lm.clone(), true
}

// LandmarkEvaluator computes the position of a landmark from field parameters.
type LandmarkEvaluator struct {
	name     string
	numNodes int
	nodes    []int
	weights  []float64
}

// LandmarkEvaluator resolves the named landmark into an evaluator bound to this mesh's
// topology.
func (m *Mesh) LandmarkEvaluator(name string) (*LandmarkEvaluator, error) {
	lm, ok := m.landmarks[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLandmark, "%q", name)
	}
	weights, err := lm.normalised()
	if err != nil {
		return nil, err
	}
	return &LandmarkEvaluator{
		name:     name,
		numNodes: len(m.nodes),
		nodes:    append([]int(nil), lm.Nodes...),
		weights:  weights,
	}, nil
}

// Name of the landmark.
func (e *LandmarkEvaluator) Name() string {
	return e.name
}

// Evaluate returns the landmark position for a flattened field parameter vector.
func (e *LandmarkEvaluator) Evaluate(params []float64) (r3.Vector, error) {
	n := e.numNodes
	if len(params) != 3*n {
		return r3.Vector{}, errors.Errorf("landmark %q expects %d field parameters, got %d", e.name, 3*n, len(params))
	}
	var p r3.Vector
	for i, node := range e.nodes {
		w := e.weights[i]
		p.X += w * params[node]
		p.Y += w * params[n+node]
		p.Z += w * params[2*n+node]
	}
	return p, nil
}
