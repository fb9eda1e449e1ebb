// Package utils contains small concurrency helpers shared by the numerical packages.
package utils

import (
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// GroupWorkParallel splits [0, totalSize) into contiguous ranges and runs work on each range in
// its own goroutine, returning once all are done. Ranges are at least minGroupSize long so small
// inputs run inline. A panic in work is re-raised on the calling goroutine.
func GroupWorkParallel(totalSize, minGroupSize int, work func(from, to int)) {
	if totalSize <= 0 {
		return
	}
	if minGroupSize < 1 {
		minGroupSize = 1
	}
	numGroups := totalSize / minGroupSize
	if numGroups > ParallelFactor {
		numGroups = ParallelFactor
	}
	if numGroups <= 1 {
		work(0, totalSize)
		return
	}

	groupSize := totalSize / numGroups
	extra := totalSize % numGroups
	var (
		wait     sync.WaitGroup
		panicMu  sync.Mutex
		panicked interface{}
	)
	wait.Add(numGroups)
	from := 0
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		to := from + groupSize
		// the first groups absorb the remainder
		if groupNum < extra {
			to++
		}
		groupFrom, groupTo := from, to
		utils.PanicCapturingGoWithCallback(func() {
			work(groupFrom, groupTo)
			wait.Done()
		}, func(err interface{}) {
			panicMu.Lock()
			panicked = err
			panicMu.Unlock()
			wait.Done()
		})
		from = to
	}
	wait.Wait()
	if panicked != nil {
		panic(panicked)
	}
}
