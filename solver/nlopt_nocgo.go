//go:build windows || no_cgo

package solver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fieldwork/pcmeshfit/logging"
)

// NloptMinimizer mimics the type in the cgo compiled code.
type NloptMinimizer struct{}

// NewNloptMinimizer is not supported on no_cgo builds.
func NewNloptMinimizer(logger logging.Logger) (*NloptMinimizer, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// Solve refuses to solve problems without cgo.
func (nm *NloptMinimizer) Solve(ctx context.Context, problem Problem, x0 []float64, settings Settings) (*Result, error) {
	return nil, errors.New("cannot solve without cgo")
}
