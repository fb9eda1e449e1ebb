package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fieldwork/pcmeshfit/mesh"
	"github.com/fieldwork/pcmeshfit/shapemodel"
)

// TrainAction is the corresponding Action for 'train'.
func TrainAction(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) < 2 {
		return errors.New("train needs at least two example meshes")
	}

	meshes := make([]*mesh.Mesh, len(paths))
	g, _ := errgroup.WithContext(c.Context)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			m, err := mesh.Load(path)
			meshes[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	samples := make([][]float64, len(meshes))
	for i, m := range meshes {
		if err := sameTopology(meshes[0], m); err != nil {
			return errors.Wrapf(err, "%q", paths[i])
		}
		samples[i] = m.Params()
	}
	model, err := shapemodel.Train(samples, c.Int(trainFlagMaxModes))
	if err != nil {
		return err
	}
	if err := model.Save(c.Path(trainFlagOutput)); err != nil {
		return err
	}
	return printModel(c, model)
}

func sameTopology(a, b *mesh.Mesh) error {
	if a.NumNodes() != b.NumNodes() {
		return errors.Errorf("has %d nodes, expected %d", b.NumNodes(), a.NumNodes())
	}
	ta, tb := a.Triangles(), b.Triangles()
	if len(ta) != len(tb) {
		return errors.Errorf("has %d triangles, expected %d", len(tb), len(ta))
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return errors.Errorf("triangle %d is %v, expected %v", i, tb[i], ta[i])
		}
	}
	return nil
}

func printModel(c *cli.Context, model *shapemodel.Model) error {
	sds := model.SDs()
	total := 0.
	for _, sd := range sds {
		total += sd * sd
	}
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Shape model, %d modes", len(sds)))
	t.AppendHeader(table.Row{"Mode", "SD", "Variance %", "Cumulative %"})
	cumulative := 0.
	for i, sd := range sds {
		share := 100 * sd * sd / total
		cumulative += share
		t.AppendRow(table.Row{i, fmt.Sprintf("%.5g", sd), fmt.Sprintf("%.2f", share), fmt.Sprintf("%.2f", cumulative)})
	}
	_, err := fmt.Fprintln(c.App.Writer, t.Render())
	return err
}
