package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fieldwork/pcmeshfit/fitting"
	"github.com/fieldwork/pcmeshfit/logging"
)

func newLogger(c *cli.Context) logging.Logger {
	level := logging.INFO
	if c.Bool(generalFlagDebug) {
		level = logging.DEBUG
	}
	if path := c.Path(generalFlagLogFile); path != "" {
		return logging.NewFileLogger("pcmeshfit", path, level)
	}
	if level == logging.DEBUG {
		return logging.NewDebugLogger("pcmeshfit")
	}
	return logging.NewLogger("pcmeshfit")
}

// RunAction is the corresponding Action for 'run'.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	//nolint:errcheck
	defer logger.Sync()

	in, err := loadRunInputs(c.Context, c, logger)
	if err != nil {
		return err
	}
	opts, err := in.cfg.Options(in.mesh, in.targets, logger)
	if err != nil {
		return err
	}
	session, err := fitting.NewSession(c.Context, in.session(), opts, logger.Sublogger("session"))
	if err != nil {
		return err
	}
	logger.Infow("session ready", "init_state", session.InitState().String(), "points", len(in.cloud))

	gui := in.cfg.GUI
	if c.IsSet(runFlagGUI) {
		gui = c.Bool(runFlagGUI)
	}
	var res *fitting.Result
	if gui {
		it := &interactive{
			session:    session,
			inputs:     in,
			opts:       opts,
			configPath: c.Path(runFlagConfig),
			out:        c.App.Writer,
			bins:       c.Int(runFlagHistogram),
			logger:     logger.Sublogger("interactive"),
		}
		res, err = it.run(c.Context, c.App.Reader)
	} else {
		res, err = fitOnce(c, session, opts)
	}
	if err != nil {
		return err
	}
	if res == nil {
		_, err := fmt.Fprintln(c.App.Writer, "fit aborted, nothing written")
		return err
	}
	return writeOutputs(c, res)
}

func fitOnce(c *cli.Context, session *fitting.Session, opts fitting.Options) (*fitting.Result, error) {
	if _, err := session.Fit(c.Context, opts); err != nil {
		return nil, err
	}
	res, err := session.Accept()
	if err != nil {
		return nil, err
	}
	if err := writeReport(c.App.Writer, res, c.Int(runFlagHistogram)); err != nil {
		return nil, err
	}
	return res, nil
}

func writeOutputs(c *cli.Context, res *fitting.Result) error {
	if path := c.Path(runFlagOutput); path != "" {
		if err := res.Mesh.Save(path); err != nil {
			return errors.Wrap(err, "writing fitted mesh")
		}
	}
	if path := c.Path(runFlagResult); path != "" {
		if err := writeResult(path, res); err != nil {
			return errors.Wrap(err, "writing fit result")
		}
	}
	if path := c.Path(runFlagPlot); path != "" {
		if err := plotErrors(path, res.Errors, c.Int(runFlagHistogram)); err != nil {
			return errors.Wrap(err, "plotting fit errors")
		}
	}
	return nil
}
