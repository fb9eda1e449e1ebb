package pointcloud

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func randomPoints(rnd *rand.Rand, n int) []r3.Vector {
	points := make([]r3.Vector, n)
	for i := range points {
		points[i] = r3.Vector{X: rnd.Float64()*10 - 5, Y: rnd.Float64()*10 - 5, Z: rnd.Float64()*10 - 5}
	}
	return points
}

func bruteNearest(points []r3.Vector, q r3.Vector) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, p := range points {
		if d := p.Distance(q); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func TestKDTreeEmpty(t *testing.T) {
	kd := NewKDTree(nil)
	test.That(t, kd.Size(), test.ShouldEqual, 0)
	_, ok := kd.Nearest(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, kd.KNearest(r3.Vector{}, 3), test.ShouldBeNil)
}

func TestKDTreeNearest(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	points := randomPoints(rnd, 500)
	kd := NewKDTree(points)
	test.That(t, kd.Size(), test.ShouldEqual, 500)

	for i := 0; i < 50; i++ {
		q := randomPoints(rnd, 1)[0]
		n, ok := kd.Nearest(q)
		test.That(t, ok, test.ShouldBeTrue)
		wantIdx, wantDist := bruteNearest(points, q)
		test.That(t, n.Index, test.ShouldEqual, wantIdx)
		test.That(t, n.Distance, test.ShouldAlmostEqual, wantDist, 1e-12)
		test.That(t, n.Point, test.ShouldResemble, points[wantIdx])
	}
}

func TestKDTreeKNearest(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	points := randomPoints(rnd, 200)
	kd := NewKDTree(points)

	q := r3.Vector{X: 0.5, Y: -0.25, Z: 1}
	neighbors := kd.KNearest(q, 5)
	test.That(t, neighbors, test.ShouldHaveLength, 5)
	for i := 1; i < len(neighbors); i++ {
		test.That(t, neighbors[i].Distance, test.ShouldBeGreaterThanOrEqualTo, neighbors[i-1].Distance)
	}
	nearestIdx, _ := bruteNearest(points, q)
	test.That(t, neighbors[0].Index, test.ShouldEqual, nearestIdx)

	// every point further than the fifth must be outside the returned set
	worst := neighbors[4].Distance
	closer := 0
	for _, p := range points {
		if p.Distance(q) < worst {
			closer++
		}
	}
	test.That(t, closer, test.ShouldEqual, 4)

	t.Run("k larger than the cloud", func(t *testing.T) {
		small := NewKDTree(points[:3])
		test.That(t, small.KNearest(q, 10), test.ShouldHaveLength, 3)
	})
}
