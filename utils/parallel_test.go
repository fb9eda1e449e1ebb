package utils

import (
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestGroupWorkParallel(t *testing.T) {
	prev := ParallelFactor
	ParallelFactor = 4
	defer func() { ParallelFactor = prev }()

	for _, tc := range []struct {
		total, minGroup int
	}{
		{0, 1}, {1, 1}, {3, 1}, {10, 1}, {10, 3}, {10, 100}, {1001, 16},
	} {
		seen := make([]int32, tc.total)
		var calls int32
		GroupWorkParallel(tc.total, tc.minGroup, func(from, to int) {
			atomic.AddInt32(&calls, 1)
			for i := from; i < to; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for _, n := range seen {
			test.That(t, n, test.ShouldEqual, int32(1))
		}
		test.That(t, calls, test.ShouldBeLessThanOrEqualTo, int32(4))
		if tc.total > 0 && tc.total < 2*tc.minGroup {
			test.That(t, calls, test.ShouldEqual, int32(1))
		}
	}
}

func TestGroupWorkParallelPanic(t *testing.T) {
	prev := ParallelFactor
	ParallelFactor = 2
	defer func() { ParallelFactor = prev }()

	defer func() {
		test.That(t, recover(), test.ShouldEqual, "bad range")
	}()
	GroupWorkParallel(10, 1, func(from, to int) {
		if from == 0 {
			panic("bad range")
		}
	})
	t.Fatal("panic was not re-raised")
}
