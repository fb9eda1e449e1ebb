package shapemodel

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type modelJSON struct {
	Mean  []float64   `json:"mean"`
	Modes [][]float64 `json:"modes"`
	SDs   []float64   `json:"sds"`
}

// MarshalJSON writes the model with one array per mode.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{Mean: m.mean, SDs: m.sds, Modes: make([][]float64, m.NumModes())}
	for i := range out.Modes {
		out.Modes[i] = m.Mode(i)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a model written by MarshalJSON.
func (m *Model) UnmarshalJSON(data []byte) error {
	var in modelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Modes) == 0 {
		return errors.New("shape model has no modes")
	}
	modes := mat.NewDense(len(in.Mean), len(in.Modes), nil)
	for i, mode := range in.Modes {
		if len(mode) != len(in.Mean) {
			return errors.Wrapf(ErrDimensionMismatch, "mode %d has %d entries, mean has %d", i, len(mode), len(in.Mean))
		}
		modes.SetCol(i, mode)
	}
	parsed, err := New(in.Mean, modes, in.SDs)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// Load reads a JSON shape model file.
func Load(path string) (*Model, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "cannot parse shape model %q", path)
	}
	return &m, nil
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
