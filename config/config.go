// Package config defines the persisted fitting configuration, decodes it from loosely typed
// attribute maps and files, and converts it into typed fitting options.
package config

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/fieldwork/pcmeshfit/fitting"
	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/residual"
	"github.com/fieldwork/pcmeshfit/solver"
)

// Persisted key names.
const (
	keyDistanceMode      = "Distance Mode"
	keyPCsToFit          = "PCs to Fit"
	keyDiscretisation    = "Surface Discretisation"
	keyMahalanobisWeight = "Mahalanobis Weight"
	keyMaxFuncEvals      = "Max Func Evaluations"
	keyXTol              = "xtol"
	keyNClosest          = "N Closest Points"
	keyLandmarks         = "Landmarks"
	keyLandmarkWeights   = "Landmark Weights"
	keySolver            = "Solver"
	keyModePolicy        = "Mode Policy"
)

// AttributeMap is a raw configuration as persisted. Values may be strings for any type.
type AttributeMap map[string]interface{}

// FitConfig is the typed fitting configuration.
type FitConfig struct {
	Identifier            string  `json:"identifier"`
	DistanceMode          string  `json:"Distance Mode" jsonschema:"enum=DPEP,enum=EPDP"`
	PCsToFit              int     `json:"PCs to Fit" jsonschema:"minimum=1"`
	SurfaceDiscretisation int     `json:"Surface Discretisation" jsonschema:"minimum=1"`
	MahalanobisWeight     float64 `json:"Mahalanobis Weight" jsonschema:"minimum=0"`
	MaxFuncEvaluations    int     `json:"Max Func Evaluations" jsonschema:"minimum=1,maximum=10000"`
	XTol                  float64 `json:"xtol"`
	FitScale              bool    `json:"Fit Scale"`
	NClosestPoints        int     `json:"N Closest Points" jsonschema:"minimum=1"`
	// Landmarks is a comma separated list of landmark:target terms.
	Landmarks string `json:"Landmarks"`
	// LandmarkWeights has one number per Landmarks term.
	LandmarkWeights string `json:"Landmark Weights"`
	// GUI selects the interactive session.
	GUI        bool   `json:"GUI"`
	Solver     string `json:"Solver,omitempty" jsonschema:"enum=lm,enum=bfgs,enum=nelder-mead,enum=nlopt"`
	ModePolicy string `json:"Mode Policy,omitempty" jsonschema:"enum=all,enum=freeze-first"`
}

// Default returns the configuration a new fitting step starts with.
func Default() *FitConfig {
	return &FitConfig{
		DistanceMode:          residual.EPDP.String(),
		PCsToFit:              4,
		SurfaceDiscretisation: 10,
		MahalanobisWeight:     0.1,
		MaxFuncEvaluations:    solver.DefaultMaxFuncEvals,
		XTol:                  solver.DefaultXTol,
		NClosestPoints:        1,
		GUI:                   true,
		Solver:                solver.LevenbergMarquardtName,
		ModePolicy:            string(fitting.ModePolicyAll),
	}
}

// Decode overlays attrs on the defaults. Numbers and booleans may be given as strings, as
// older configurations stored them ("4", "1e-6", "True"). It also returns the keys it did not
// recognise.
func Decode(attrs AttributeMap) (*FitConfig, []string, error) {
	cfg := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       castHook,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(map[string]interface{}(attrs)); err != nil {
		return nil, nil, errors.Wrap(err, "decoding fitting config")
	}
	return cfg, md.Unused, nil
}

func castHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if data == nil || from == to {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Bool:
		return cast.ToBoolE(data)
	case reflect.Int:
		return cast.ToIntE(data)
	case reflect.Float64:
		return cast.ToFloat64E(data)
	default:
		return data, nil
	}
}

// AttributeMap returns the configuration as a persisted attribute map.
func (cfg *FitConfig) AttributeMap() (AttributeMap, error) {
	out := map[string]interface{}{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &out})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return AttributeMap(out), nil
}

// Validate ensures all parts of the config are valid. Every problem found is reported.
func (cfg *FitConfig) Validate(path string) error {
	var errs error
	add := func(err error) {
		errs = multierr.Append(errs, err)
	}

	mode, err := residual.ParseDistanceMode(cfg.DistanceMode)
	if err != nil {
		add(utils.NewConfigValidationError(path, errors.Wrap(err, keyDistanceMode)))
	}
	if cfg.PCsToFit < 1 {
		add(utils.NewConfigValidationError(path, errors.Errorf("%q must be at least 1, got %d", keyPCsToFit, cfg.PCsToFit)))
	}
	if cfg.SurfaceDiscretisation < 1 {
		add(utils.NewConfigValidationError(path,
			errors.Errorf("%q must be at least 1, got %d", keyDiscretisation, cfg.SurfaceDiscretisation)))
	}
	if cfg.MahalanobisWeight < 0 {
		add(utils.NewConfigValidationError(path,
			errors.Errorf("%q must not be negative, got %v", keyMahalanobisWeight, cfg.MahalanobisWeight)))
	}
	if cfg.MaxFuncEvaluations < 1 || cfg.MaxFuncEvaluations > solver.MaxFuncEvalsLimit {
		add(utils.NewConfigValidationError(path, errors.Errorf("%q must be in [1, %d], got %d",
			keyMaxFuncEvals, solver.MaxFuncEvalsLimit, cfg.MaxFuncEvaluations)))
	}
	if !(cfg.XTol > 0) {
		add(utils.NewConfigValidationError(path, errors.Errorf("%q must be positive, got %v", keyXTol, cfg.XTol)))
	}
	if mode == residual.EPDP && cfg.NClosestPoints < 1 {
		add(utils.NewConfigValidationError(path,
			errors.Errorf("%q must be at least 1, got %d", keyNClosest, cfg.NClosestPoints)))
	}
	if _, err := parseLandmarkTerms(cfg.Landmarks, cfg.LandmarkWeights); err != nil {
		add(err)
	}
	if !validSolver(cfg.Solver) {
		add(utils.NewConfigValidationError(path,
			errors.Errorf("%q: unknown solver %q, expected one of %v", keySolver, cfg.Solver, solver.Names())))
	}
	if _, err := fitting.ParseModePolicy(cfg.ModePolicy); err != nil {
		add(utils.NewConfigValidationError(path, errors.Wrap(err, keyModePolicy)))
	}
	return errs
}

func validSolver(name string) bool {
	if name == "" {
		return true
	}
	for _, n := range solver.Names() {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (cfg *FitConfig) settings() solver.Settings {
	return solver.Settings{MaxFuncEvals: cfg.MaxFuncEvaluations, XTol: cfg.XTol}
}

// Options converts a validated configuration into fitting options. Landmarks are bound to m
// and their targets looked up in targets, which may be nil when no landmarks are configured.
func (cfg *FitConfig) Options(m *mesh.Mesh, targets map[string]r3.Vector, logger logging.Logger) (fitting.Options, error) {
	mode, err := residual.ParseDistanceMode(cfg.DistanceMode)
	if err != nil {
		return fitting.Options{}, err
	}
	policy, err := fitting.ParseModePolicy(cfg.ModePolicy)
	if err != nil {
		return fitting.Options{}, err
	}
	landmarks, weights, err := ParseLandmarks(cfg.Landmarks, cfg.LandmarkWeights, targets)
	if err != nil {
		return fitting.Options{}, err
	}
	terms, err := LandmarkTerms(m, landmarks, weights)
	if err != nil {
		return fitting.Options{}, err
	}
	s, err := solver.New(cfg.Solver, logger.Sublogger(cfg.solverName()))
	if err != nil {
		return fitting.Options{}, err
	}
	return fitting.Options{
		DistanceMode:      mode,
		NumModes:          cfg.PCsToFit,
		Discretisation:    cfg.SurfaceDiscretisation,
		NClosest:          cfg.NClosestPoints,
		MahalanobisWeight: cfg.MahalanobisWeight,
		FitScale:          cfg.FitScale,
		ModePolicy:        policy,
		Settings:          cfg.settings(),
		Landmarks:         terms,
		Solver:            s,
	}, nil
}

func (cfg *FitConfig) solverName() string {
	if cfg.Solver == "" {
		return solver.LevenbergMarquardtName
	}
	return strings.ToLower(cfg.Solver)
}
