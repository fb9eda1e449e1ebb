package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a point found by a KDTree query. Index refers to the slice the tree was built from.
type Neighbor struct {
	Index    int
	Point    r3.Vector
	Distance float64
}

// KDTree answers nearest neighbour queries over a fixed set of points.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree builds a tree over points. The input slice is not modified.
func NewKDTree(points []r3.Vector) *KDTree {
	nodes := make(indexedPoints, len(points))
	for i, p := range points {
		nodes[i] = indexedPoint{Vector: p, index: i}
	}
	return &KDTree{tree: kdtree.New(nodes, false), size: len(points)}
}

// Size returns the number of points in the tree.
func (kd *KDTree) Size() int {
	return kd.size
}

// Nearest returns the closest point to q. ok is false for an empty tree.
func (kd *KDTree) Nearest(q r3.Vector) (Neighbor, bool) {
	if kd.size == 0 {
		return Neighbor{}, false
	}
	c, distSq := kd.tree.Nearest(indexedPoint{Vector: q, index: -1})
	p := c.(indexedPoint)
	return Neighbor{Index: p.index, Point: p.Vector, Distance: math.Sqrt(distSq)}, true
}

// KNearest returns up to k closest points to q ordered by increasing distance.
func (kd *KDTree) KNearest(q r3.Vector, k int) []Neighbor {
	if kd.size == 0 || k < 1 {
		return nil
	}
	if k == 1 {
		n, _ := kd.Nearest(q)
		return []Neighbor{n}
	}
	keeper := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keeper, indexedPoint{Vector: q, index: -1})

	neighbors := make([]Neighbor, 0, k)
	for _, c := range keeper.Heap {
		// the keeper is seeded with an infinitely distant sentinel
		if c.Comparable == nil || math.IsInf(c.Dist, 1) {
			continue
		}
		p := c.Comparable.(indexedPoint)
		neighbors = append(neighbors, Neighbor{Index: p.index, Point: p.Vector, Distance: math.Sqrt(c.Dist)})
	}
	sortNeighbors(neighbors)
	return neighbors
}

func sortNeighbors(neighbors []Neighbor) {
	// k is small, insertion sort is enough
	for i := 1; i < len(neighbors); i++ {
		for j := i; j > 0 && neighbors[j].Distance < neighbors[j-1].Distance; j-- {
			neighbors[j], neighbors[j-1] = neighbors[j-1], neighbors[j]
		}
	}
}

// indexedPoint remembers its position in the input slice, since building the tree reorders
// its backing storage.
type indexedPoint struct {
	r3.Vector
	index int
}

func coord(v r3.Vector, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Compare satisfies kdtree.Comparable.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return coord(p.Vector, d) - coord(q.Vector, d)
}

// Dims satisfies kdtree.Comparable.
func (p indexedPoint) Dims() int { return 3 }

// Distance satisfies kdtree.Comparable. The tree expects squared euclidean distances.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return p.Vector.Sub(q.Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return plane{indexedPoints: p, Dim: d}.Pivot()
}

// plane partitions points along one dimension.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	return coord(p.indexedPoints[i].Vector, p.Dim) < coord(p.indexedPoints[j].Vector, p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{Dim: p.Dim, indexedPoints: p.indexedPoints[start:end]}
}
func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}
