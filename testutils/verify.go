package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the package tests and fails if any goroutine, such as an asynchronous
// fit, outlives them.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}
