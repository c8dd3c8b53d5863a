package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/asdscreen/pkg/artifact"
	urfave "github.com/urfave/cli/v3"
)

const flagDir = "dir"

func newDirFlag() urfave.Flag {
	return &urfave.StringFlag{
		Name:  flagDir,
		Usage: "Artifact directory, relative paths resolve against the executable's directory",
	}
}

func newArtifactsCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "artifacts",
		Usage:           "Inspect or create model artifacts",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:   "verify",
				Usage:  "Load the artifacts and print what the server would use",
				Action: cmdArtifactsVerify,
				Flags:  []urfave.Flag{newDirFlag()},
			},
			{
				Name:   "demo",
				Usage:  "Write a demo artifact set for local testing",
				Action: cmdArtifactsDemo,
				Flags:  []urfave.Flag{newDirFlag()},
			},
		},
	}
}

type artifactInfo struct {
	Dir        string   `json:"dir" yaml:"dir"`
	Features   []string `json:"features" yaml:"features"`
	Imputer    string   `json:"imputer" yaml:"imputer"`
	Classifier string   `json:"classifier" yaml:"classifier"`
}

// artifactDir returns --dir when set, the configured directory otherwise.
func artifactDir(cmd *urfave.Command, configured string) (string, error) {
	dir := configured
	if cmd.IsSet(flagDir) {
		dir = cmd.String(flagDir)
	}
	return artifact.ResolveDir(dir)
}

func cmdArtifactsVerify(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir, err := artifactDir(cmd, cfg.Artifacts.Dir)
	if err != nil {
		return err
	}

	b, err := artifact.Load(ctx, dir, cfg.Artifacts.Files)
	if err != nil {
		return fmt.Errorf("verifying artifacts: %w", err)
	}

	return encode(writer(cmd), &artifactInfo{
		Dir:        b.Dir,
		Features:   b.Features,
		Imputer:    b.Imputer.Kind(),
		Classifier: b.Classifier.Kind(),
	})
}

func cmdArtifactsDemo(_ context.Context, cmd *urfave.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir, err := artifactDir(cmd, cfg.Artifacts.Dir)
	if err != nil {
		return err
	}

	if err := artifact.SaveDemo(dir); err != nil {
		return fmt.Errorf("writing demo artifacts: %w", err)
	}
	fmt.Fprintf(writer(cmd), "Demo artifacts written to %s\n", dir)
	return nil
}
