package mesh

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// term is one node's contribution to a sample point.
type term struct {
	node   int
	weight float64
}

// sampleKey identifies a sample by the nodes it interpolates and their barycentric numerators,
// so points on shared edges and vertices are generated once.
type sampleKey [3]struct{ node, num int }

// Sampler evaluates points on the mesh surface on a regular barycentric grid over every
// triangle. Each sample is a fixed linear combination of node positions, so sampling any field
// parameter vector is cheap and does not touch the mesh.
type Sampler struct {
	numNodes       int
	discretisation int
	samples        [][]term
}

// Sampler builds a sampler at the given discretisation: every triangle edge is split into
// that many segments. A mesh without triangles samples its nodes.
func (m *Mesh) Sampler(discretisation int) (*Sampler, error) {
	if discretisation < 1 {
		return nil, errors.Errorf("surface discretisation must be at least 1, got %d", discretisation)
	}
	s := &Sampler{numNodes: len(m.nodes), discretisation: discretisation}
	if len(m.triangles) == 0 {
		for i := range m.nodes {
			s.samples = append(s.samples, []term{{node: i, weight: 1}})
		}
		return s, nil
	}

	seen := map[sampleKey]struct{}{}
	d := discretisation
	for _, tri := range m.triangles {
		for i := 0; i <= d; i++ {
			for j := 0; i+j <= d; j++ {
				nums := [3]int{d - i - j, i, j}
				key := newSampleKey(tri, nums)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				var sample []term
				for k, num := range nums {
					if num != 0 {
						sample = append(sample, term{node: tri[k], weight: float64(num) / float64(d)})
					}
				}
				s.samples = append(s.samples, sample)
			}
		}
	}
	return s, nil
}

func newSampleKey(tri Triangle, nums [3]int) sampleKey {
	var key sampleKey
	n := 0
	for k, num := range nums {
		if num != 0 {
			key[n].node, key[n].num = tri[k], num
			n++
		}
	}
	for ; n < 3; n++ {
		key[n].node = -1
	}
	sort.Slice(key[:], func(a, b int) bool { return key[a].node < key[b].node })
	return key
}

// Len is the number of sample points.
func (s *Sampler) Len() int {
	return len(s.samples)
}

// Discretisation the sampler was built with.
func (s *Sampler) Discretisation() int {
	return s.discretisation
}

// Evaluate returns the sample points for a flattened field parameter vector.
func (s *Sampler) Evaluate(params []float64) ([]r3.Vector, error) {
	n := s.numNodes
	if len(params) != 3*n {
		return nil, errors.Errorf("sampler expects %d field parameters, got %d", 3*n, len(params))
	}
	points := make([]r3.Vector, len(s.samples))
	for i, sample := range s.samples {
		var p r3.Vector
		for _, t := range sample {
			p.X += t.weight * params[t.node]
			p.Y += t.weight * params[n+t.node]
			p.Z += t.weight * params[2*n+t.node]
		}
		points[i] = p
	}
	return points, nil
}
