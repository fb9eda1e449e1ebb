package config

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/residual"
)

// ConfigurationError is a malformed configuration value. It is reported before any fit starts.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

// NewConfigurationError returns a ConfigurationError for the given field.
func NewConfigurationError(field, value, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed %s config: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed %s config %q: %s", e.Field, e.Value, e.Reason)
}

// Landmark pairs a mesh landmark with a named target from the landmark map.
type Landmark struct {
	Name       string
	TargetName string
	Target     r3.Vector
}

type landmarkTerm struct {
	name   string
	target string
	weight float64
}

// parseLandmarkTerms checks the syntax of the comma separated name:target terms and their
// parallel weights.
func parseLandmarkTerms(terms, weights string) ([]landmarkTerm, error) {
	if strings.TrimSpace(terms) == "" {
		return nil, nil
	}
	termList := strings.Split(strings.TrimSpace(terms), ",")
	weightList := strings.Split(strings.TrimSpace(weights), ",")
	if len(termList) != len(weightList) {
		return nil, NewConfigurationError(keyLandmarks, terms,
			fmt.Sprintf("%d landmarks but %d landmark weights", len(termList), len(weightList)))
	}

	out := make([]landmarkTerm, 0, len(termList))
	for i, term := range termList {
		kv := strings.Split(term, ":")
		if len(kv) != 2 {
			return nil, NewConfigurationError(keyLandmarks, term, "landmark and target must be separated by :")
		}
		w, err := cast.ToFloat64E(strings.TrimSpace(weightList[i]))
		if err != nil {
			return nil, NewConfigurationError(keyLandmarkWeights, weightList[i], "not a number")
		}
		out = append(out, landmarkTerm{
			name:   strings.TrimSpace(kv[0]),
			target: strings.TrimSpace(kv[1]),
			weight: w,
		})
	}
	return out, nil
}

// ParseLandmarks parses the landmark terms and weights and looks every target up in targets.
// An empty terms string means no landmarks and returns nil slices. Malformed input and unknown
// targets are ConfigurationErrors.
func ParseLandmarks(terms, weights string, targets map[string]r3.Vector) ([]Landmark, []float64, error) {
	parsed, err := parseLandmarkTerms(terms, weights)
	if err != nil || parsed == nil {
		return nil, nil, err
	}
	landmarks := make([]Landmark, 0, len(parsed))
	ws := make([]float64, 0, len(parsed))
	for _, term := range parsed {
		target, ok := targets[term.target]
		if !ok {
			return nil, nil, NewConfigurationError(keyLandmarks, term.target, "no such landmark target")
		}
		landmarks = append(landmarks, Landmark{Name: term.name, TargetName: term.target, Target: target})
		ws = append(ws, term.weight)
	}
	return landmarks, ws, nil
}

// LandmarkTerms binds parsed landmarks to evaluators of m.
func LandmarkTerms(m *mesh.Mesh, landmarks []Landmark, weights []float64) ([]residual.LandmarkTerm, error) {
	if len(landmarks) != len(weights) {
		return nil, errors.Errorf("%d landmarks but %d weights", len(landmarks), len(weights))
	}
	terms := make([]residual.LandmarkTerm, 0, len(landmarks))
	for i, lm := range landmarks {
		evaluator, err := m.LandmarkEvaluator(lm.Name)
		if err != nil {
			return nil, err
		}
		terms = append(terms, residual.LandmarkTerm{Evaluator: evaluator, Target: lm.Target, Weight: weights[i]})
	}
	return terms, nil
}
