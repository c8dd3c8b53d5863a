package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/asdscreen/pkg/config"
	"github.com/mchmarny/asdscreen/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "asdscreen"
	dirMode = 0700

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON
)

const (
	flagDebug    = "debug"
	flagLogLevel = "log-level"
	flagFormat   = "format"
	flagConfig   = "config"
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Autism screening risk prediction service and client",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&urfave.StringFlag{
				Name:    flagLogLevel,
				Usage:   "Log level [debug, info, warn, error]",
				Value:   "info",
				Sources: urfave.EnvVars("ASDSCREEN_LOG_LEVEL"),
			},
			&urfave.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&urfave.StringFlag{
				Name:    flagConfig,
				Usage:   "Path to the YAML config file (optional)",
				Sources: urfave.EnvVars("ASDSCREEN_CONFIG"),
			},
		},
		Commands: []*urfave.Command{
			newServeCmd(),
			newScoreCmd(),
			newHistoryCmd(),
			newLoginCmd(),
			newLogoutCmd(),
			newConfigCmd(),
			newArtifactsCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			logging.SetDefaultCLILogger(logLevel(cmd))

			switch f := cmd.String(flagFormat); f {
			case formatYAML, "yml":
				outputFormat = formatYAML
			case formatJSON, "":
				outputFormat = formatJSON
			default:
				return ctx, fmt.Errorf("unsupported output format: %s", f)
			}
			return ctx, nil
		},
	}
}

// logLevel returns debug when --debug is set, the --log-level value otherwise.
func logLevel(cmd *urfave.Command) string {
	if cmd.Bool(flagDebug) {
		return "debug"
	}
	return cmd.String(flagLogLevel)
}

func loadConfig(cmd *urfave.Command) (*config.Config, error) {
	path := cmd.String(flagConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if path != "" {
		slog.Debug("config loaded", "path", path)
	}
	return cfg, nil
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}

	dirPath := filepath.Join(home, "."+appName)
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			slog.Debug("error creating dir", "path", dirPath, "home", home, "error", err)
			return home
		}
	}
	return dirPath
}

func writer(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func encode(w io.Writer, v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
