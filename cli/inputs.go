package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fieldwork/pcmeshfit/config"
	"github.com/fieldwork/pcmeshfit/fitting"
	"github.com/fieldwork/pcmeshfit/logging"
	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/pointcloud"
	"github.com/fieldwork/pcmeshfit/shapemodel"
)

// runInputs is everything a fitting run reads from disk.
type runInputs struct {
	mesh      *mesh.Mesh
	model     *shapemodel.Model
	cloud     []r3.Vector
	weights   []float64
	transform []float64
	targets   map[string]r3.Vector
	cfg       *config.FitConfig
}

func (in *runInputs) session() fitting.Inputs {
	return fitting.Inputs{
		Mesh:             in.mesh,
		Model:            in.model,
		Cloud:            in.cloud,
		Weights:          in.weights,
		InitialTransform: in.transform,
	}
}

// loadRunInputs reads the run inputs concurrently. Optional inputs whose flag is unset stay nil.
func loadRunInputs(ctx context.Context, c *cli.Context, logger logging.Logger) (*runInputs, error) {
	var in runInputs
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := mesh.Load(c.Path(runFlagMesh))
		in.mesh = m
		return err
	})
	g.Go(func() error {
		m, err := shapemodel.Load(c.Path(runFlagModel))
		in.model = m
		return err
	})
	g.Go(func() error {
		cloud, err := pointcloud.NewFromFile(c.Path(runFlagCloud), logger)
		in.cloud = cloud
		return errors.Wrapf(err, "reading point cloud %q", c.Path(runFlagCloud))
	})
	if path := c.Path(runFlagWeights); path != "" {
		g.Go(func() error {
			weights, err := readWeights(path)
			in.weights = weights
			return err
		})
	}
	if path := c.Path(runFlagTransform); path != "" {
		g.Go(func() error {
			transform, err := readTransform(path)
			in.transform = transform
			return err
		})
	}
	if path := c.Path(runFlagLandmarks); path != "" {
		g.Go(func() error {
			targets, err := config.ReadLandmarkTargets(path)
			in.targets = targets
			return err
		})
	}
	g.Go(func() error {
		cfg, err := readConfig(c.Path(runFlagConfig), logger)
		in.cfg = cfg
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

// readConfig reads and validates a configuration file. An empty path gives the defaults.
func readConfig(path string, logger logging.Logger) (*config.FitConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, unused, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	for _, key := range unused {
		logger.Warnw("ignoring unknown config key", "key", key, "path", path)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readWeights(path string) ([]float64, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	weights, err := pointcloud.ReadWeights(f)
	return weights, errors.Wrapf(err, "reading weights %q", path)
}

func readTransform(path string) ([]float64, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var transform []float64
	if err := json.Unmarshal(buf, &transform); err != nil {
		return nil, errors.Wrapf(err, "parsing transform %q", path)
	}
	return transform, nil
}
