package residual

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/pointcloud"
	"github.com/fieldwork/pcmeshfit/utils"
)

// minParallelQueries is the smallest batch of nearest neighbour queries worth its own goroutine.
const minParallelQueries = 512

// DistanceMode selects how data points and surface samples are paired.
type DistanceMode int

const (
	// DPEP pairs every data point with its nearest surface sample.
	DPEP DistanceMode = iota
	// EPDP pairs every surface sample with its nearest data points.
	EPDP
)

func (m DistanceMode) String() string {
	switch m {
	case DPEP:
		return "DPEP"
	case EPDP:
		return "EPDP"
	default:
		return "unknown"
	}
}

// ParseDistanceMode parses "DPEP" or "EPDP", ignoring case.
func ParseDistanceMode(s string) (DistanceMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DPEP":
		return DPEP, nil
	case "EPDP":
		return EPDP, nil
	default:
		return 0, errors.Errorf("unknown distance mode %q, expected DPEP or EPDP", s)
	}
}

// GeometricOptions configure a geometric residual.
type GeometricOptions struct {
	Mode           DistanceMode
	Discretisation int
	// NClosest is the number of data points averaged per surface sample in EPDP mode.
	NClosest int
}

// Geometric is the distance between a point cloud and the mesh surface. Optional per point
// weights multiply the distances.
type Geometric struct {
	opts     GeometricOptions
	sampler  *mesh.Sampler
	data     []r3.Vector
	weights  []float64
	dataTree *pointcloud.KDTree
}

// NewGeometric builds a geometric residual against the topology of m. weights may be nil.
func NewGeometric(m *mesh.Mesh, data []r3.Vector, weights []float64, opts GeometricOptions) (*Geometric, error) {
	if len(data) == 0 {
		return nil, pointcloud.ErrEmptyCloud
	}
	if err := pointcloud.ValidateWeights(data, weights); err != nil {
		return nil, err
	}
	sampler, err := m.Sampler(opts.Discretisation)
	if err != nil {
		return nil, err
	}
	g := &Geometric{
		opts:    opts,
		sampler: sampler,
		data:    data,
		weights: weights,
	}
	switch opts.Mode {
	case DPEP:
	case EPDP:
		if opts.NClosest < 1 {
			return nil, errors.Errorf("number of closest points must be at least 1, got %d", opts.NClosest)
		}
		g.dataTree = pointcloud.NewKDTree(data)
	default:
		return nil, errors.Errorf("unknown distance mode %d", opts.Mode)
	}
	return g, nil
}

// Mode returns the distance mode.
func (g *Geometric) Mode() DistanceMode {
	return g.opts.Mode
}

// Len is the number of data points for DPEP and the number of surface samples for EPDP.
func (g *Geometric) Len() int {
	if g.opts.Mode == DPEP {
		return len(g.data)
	}
	return g.sampler.Len()
}

// Unweighted returns a twin sharing this residual's search structures but ignoring weights.
func (g *Geometric) Unweighted() Residual {
	twin := *g
	twin.weights = nil
	return &twin
}

// Evaluate samples the surface at params and measures the distances.
func (g *Geometric) Evaluate(params []float64) ([]float64, error) {
	surface, err := g.sampler.Evaluate(params)
	if err != nil {
		return nil, err
	}
	if g.opts.Mode == DPEP {
		return g.dataToSurface(surface), nil
	}
	return g.surfaceToData(surface), nil
}

func (g *Geometric) dataToSurface(surface []r3.Vector) []float64 {
	tree := pointcloud.NewKDTree(surface)
	out := make([]float64, len(g.data))
	utils.GroupWorkParallel(len(g.data), minParallelQueries, func(from, to int) {
		for i := from; i < to; i++ {
			n, _ := tree.Nearest(g.data[i])
			out[i] = n.Distance
			if g.weights != nil {
				out[i] *= g.weights[i]
			}
		}
	})
	return out
}

func (g *Geometric) surfaceToData(surface []r3.Vector) []float64 {
	out := make([]float64, len(surface))
	utils.GroupWorkParallel(len(surface), minParallelQueries, func(from, to int) {
		for i := from; i < to; i++ {
			neighbors := g.dataTree.KNearest(surface[i], g.opts.NClosest)
			var dist, weight float64
			for _, n := range neighbors {
				dist += n.Distance
				if g.weights != nil {
					weight += g.weights[n.Index]
				}
			}
			count := float64(len(neighbors))
			out[i] = dist / count
			if g.weights != nil {
				out[i] *= weight / count
			}
		}
	})
	return out
}
