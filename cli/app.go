// Package cli contains the pcmeshfit command line: fitting runs, shape model training and
// configuration helpers.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Flags.
const (
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	runFlagMesh       = "mesh"
	runFlagModel      = "model"
	runFlagCloud      = "cloud"
	runFlagWeights    = "weights"
	runFlagConfig     = "config"
	runFlagTransform  = "transform"
	runFlagLandmarks  = "landmarks"
	runFlagOutput     = "output"
	runFlagResult     = "result"
	runFlagPlot       = "plot"
	runFlagGUI        = "gui"
	runFlagHistogram  = "histogram-bins"
	trainFlagOutput   = "output"
	trainFlagMaxModes = "max-modes"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "pcmeshfit",
		Usage:           "fit statistical shape models to point clouds",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:      generalFlagLogFile,
				Usage:     "also write JSON logs to `FILE`, rotated by size",
				TakesFile: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "fit a shape model to a point cloud",
				UsageText: "pcmeshfit run --mesh <mesh.json> --model <model.json> --cloud <points> [other options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:      runFlagMesh,
						Required:  true,
						Usage:     "mesh to deform, as JSON",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagModel,
						Required:  true,
						Usage:     "shape model, as JSON",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagCloud,
						Required:  true,
						Usage:     "point cloud to fit (.xyz, .txt, .csv, .pcd or .las)",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagWeights,
						Usage:     "per point weights, one per line",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagConfig,
						Aliases:   []string{"c"},
						Usage:     "fitting configuration (.json, .yaml or legacy .conf); defaults are used without one",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagTransform,
						Usage:     "initial transform, a JSON array [rigid(6|7), mode SDs...]",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:      runFlagLandmarks,
						Usage:     "landmark targets, a JSON object of name to [x, y, z]",
						TakesFile: true,
					},
					&cli.PathFlag{
						Name:  runFlagOutput,
						Usage: "write the fitted mesh to this JSON file",
					},
					&cli.PathFlag{
						Name:  runFlagResult,
						Usage: "write the fitted transform and errors to this JSON file",
					},
					&cli.PathFlag{
						Name:  runFlagPlot,
						Usage: "write a PNG histogram of the fitting errors to this file",
					},
					&cli.BoolFlag{
						Name:  runFlagGUI,
						Usage: "run an interactive session; overrides the GUI config key",
					},
					&cli.IntFlag{
						Name:  runFlagHistogram,
						Value: 10,
						Usage: "number of bins in the printed error histogram, 0 to disable",
					},
				},
				Action: RunAction,
			},
			{
				Name:      "train",
				Usage:     "train a shape model from example meshes sharing one topology",
				UsageText: "pcmeshfit train --output <model.json> <mesh.json>...",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     trainFlagOutput,
						Required: true,
						Usage:    "where to write the shape model",
					},
					&cli.IntFlag{
						Name:  trainFlagMaxModes,
						Usage: "keep at most this many modes, 0 keeps every mode with non-zero variance",
					},
				},
				Action: TrainAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the fitting configuration",
				Action: SchemaAction,
			},
			{
				Name:            "config",
				Usage:           "work with fitting configurations",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:      "init",
						Usage:     "write the default configuration; the format follows the extension",
						ArgsUsage: "<path>",
						Action:    ConfigInitAction,
					},
					{
						Name:      "validate",
						Usage:     "check a configuration and print it with defaults applied",
						ArgsUsage: "<path>",
						Action:    ConfigValidateAction,
					},
				},
			},
		},
	}
}
