package residual

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/fieldwork/pcmeshfit/pointcloud"
	"github.com/fieldwork/pcmeshfit/testutils"
)

func TestParseDistanceMode(t *testing.T) {
	mode, err := ParseDistanceMode("dpep")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, DPEP)
	mode, err = ParseDistanceMode(" EPDP ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.String(), test.ShouldEqual, "EPDP")
	_, err = ParseDistanceMode("nearest")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGeometricZeroAtTarget(t *testing.T) {
	m := testutils.Icosahedron(t, 3)
	cloud := testutils.SurfaceCloud(t, m, m.Params(), 3)

	for _, mode := range []DistanceMode{DPEP, EPDP} {
		g, err := NewGeometric(m, cloud, nil, GeometricOptions{Mode: mode, Discretisation: 3, NClosest: 1})
		test.That(t, err, test.ShouldBeNil)
		errs, err := g.Evaluate(m.Params())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, errs, test.ShouldHaveLength, g.Len())
		for _, e := range errs {
			test.That(t, e, test.ShouldAlmostEqual, 0, 1e-12)
		}
	}
}

func TestGeometricLengths(t *testing.T) {
	m := testutils.Icosahedron(t, 1)
	cloud := []r3.Vector{{X: 5}, {Y: 5}, {Z: 5}}

	dpep, err := NewGeometric(m, cloud, nil, GeometricOptions{Mode: DPEP, Discretisation: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dpep.Len(), test.ShouldEqual, 3)

	epdp, err := NewGeometric(m, cloud, nil, GeometricOptions{Mode: EPDP, Discretisation: 2, NClosest: 2})
	test.That(t, err, test.ShouldBeNil)
	sampler, err := m.Sampler(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, epdp.Len(), test.ShouldEqual, sampler.Len())

	_, err = NewGeometric(m, cloud, nil, GeometricOptions{Mode: EPDP, Discretisation: 2})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewGeometric(m, nil, nil, GeometricOptions{Mode: DPEP, Discretisation: 2})
	test.That(t, err, test.ShouldEqual, pointcloud.ErrEmptyCloud)
	_, err = NewGeometric(m, cloud, []float64{1}, GeometricOptions{Mode: DPEP, Discretisation: 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWeightedMatchesUnweightedForUnitWeights(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	m := testutils.Icosahedron(t, 2)
	cloud := testutils.SurfaceCloud(t, m, m.Params(), 2)
	for i := range cloud {
		cloud[i] = cloud[i].Add(r3.Vector{X: rnd.NormFloat64(), Y: rnd.NormFloat64(), Z: rnd.NormFloat64()}.Mul(0.1))
	}

	for _, mode := range []DistanceMode{DPEP, EPDP} {
		g, err := NewGeometric(m, cloud, testutils.Ones(len(cloud)),
			GeometricOptions{Mode: mode, Discretisation: 3, NClosest: 3})
		test.That(t, err, test.ShouldBeNil)

		for trial := 0; trial < 5; trial++ {
			params := m.Params()
			for i := range params {
				params[i] += rnd.NormFloat64() * 0.2
			}
			weighted, err := g.Evaluate(params)
			test.That(t, err, test.ShouldBeNil)
			unweighted, err := g.Unweighted().Evaluate(params)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, weighted, test.ShouldResemble, unweighted)
		}
	}
}

func TestGeometricWeights(t *testing.T) {
	m := testutils.Icosahedron(t, 1)
	// a single far away point: DPEP distance scales with its weight
	cloud := []r3.Vector{{X: 10}}
	g, err := NewGeometric(m, cloud, []float64{2}, GeometricOptions{Mode: DPEP, Discretisation: 1})
	test.That(t, err, test.ShouldBeNil)
	weighted, err := g.Evaluate(m.Params())
	test.That(t, err, test.ShouldBeNil)
	unweighted, err := g.Unweighted().Evaluate(m.Params())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, weighted[0], test.ShouldAlmostEqual, 2*unweighted[0])

	// EPDP averages the weights of the n closest points
	cloud = []r3.Vector{{X: 10}, {X: 10.5}}
	g, err = NewGeometric(m, cloud, []float64{1, 3}, GeometricOptions{Mode: EPDP, Discretisation: 1, NClosest: 2})
	test.That(t, err, test.ShouldBeNil)
	weighted, err = g.Evaluate(m.Params())
	test.That(t, err, test.ShouldBeNil)
	unweighted, err = g.Unweighted().Evaluate(m.Params())
	test.That(t, err, test.ShouldBeNil)
	for i := range weighted {
		test.That(t, weighted[i], test.ShouldAlmostEqual, 2*unweighted[i])
	}
}
