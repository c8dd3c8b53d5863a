package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mchmarny/asdscreen/pkg/config"
	urfave "github.com/urfave/cli/v3"
)

const (
	flagPath  = "path"
	flagForce = "force"

	redacted = "[redacted]"
)

func newConfigCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "config",
		Usage:           "Manage the configuration file",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:   "init",
				Usage:  "Write a config file with default values",
				Action: cmdConfigInit,
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  flagPath,
						Usage: "Where to write the config file (default: ~/.asdscreen/asdscreen.yaml)",
					},
					&urfave.BoolFlag{
						Name:  flagForce,
						Usage: "Overwrite an existing file",
					},
				},
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: cmdConfigShow,
			},
		},
	}
}

func cmdConfigInit(_ context.Context, cmd *urfave.Command) error {
	path := cmd.String(flagPath)
	if path == "" {
		path = filepath.Join(getHomeDir(), config.DefaultFileName)
	}

	if _, err := os.Stat(path); err == nil && !cmd.Bool(flagForce) {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(writer(cmd), "Config written to %s\n", path)
	return nil
}

func cmdConfigShow(_ context.Context, cmd *urfave.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.Token != "" {
		cfg.Server.Token = redacted
	}
	return encode(writer(cmd), cfg)
}
