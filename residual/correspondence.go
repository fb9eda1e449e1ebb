package residual

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/spatialmath"
)

// Correspondence is the offset of every mesh node from a known target position, used when
// node correspondences are known, such as when fitting a shape model to an existing mesh.
// Entries are per coordinate, so Σr² is the summed squared distance and r stays smooth at zero.
type Correspondence struct {
	targets []r3.Vector
}

// NewCorrespondence returns a residual pulling node i towards targets[i].
func NewCorrespondence(targets []r3.Vector) *Correspondence {
	return &Correspondence{targets: append([]r3.Vector(nil), targets...)}
}

// Len is three entries per node.
func (c *Correspondence) Len() int {
	return 3 * len(c.targets)
}

// Evaluate returns x, y and z of node i minus targets[i] for every node.
func (c *Correspondence) Evaluate(params []float64) ([]float64, error) {
	if len(params) != 3*len(c.targets) {
		return nil, errors.Errorf("expected %d field parameters, got %d", 3*len(c.targets), len(params))
	}
	nodes := spatialmath.FlatToPoints(params)
	out := make([]float64, 0, 3*len(nodes))
	for i, p := range nodes {
		d := p.Sub(c.targets[i])
		out = append(out, d.X, d.Y, d.Z)
	}
	return out, nil
}
