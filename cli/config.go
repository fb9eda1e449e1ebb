package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fieldwork/pcmeshfit/config"
)

// SchemaAction is the corresponding Action for 'schema'.
func SchemaAction(c *cli.Context) error {
	buf, err := config.SchemaJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(buf))
	return err
}

// ConfigInitAction is the corresponding Action for 'config init'.
func ConfigInitAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("config init needs a path")
	}
	if err := config.Write(path, config.Default()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "wrote default configuration to %s\n", path)
	return err
}

// ConfigValidateAction is the corresponding Action for 'config validate'.
func ConfigValidateAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("config validate needs a path")
	}
	logger := newLogger(c)
	cfg, err := readConfig(path, logger)
	if err != nil {
		return err
	}
	buf, err := config.Marshal(cfg, config.FormatFromPath(path))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(buf))
	return err
}
