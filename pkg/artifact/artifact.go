package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/asdscreen/pkg/model"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDirName      = "artifacts"
	DefaultImputerFile  = "imputer.json"
	DefaultFeaturesFile = "feature_columns.json"
	DefaultModelFile    = "model.json"
	ManifestFile        = "manifest.json"
)

var (
	// ErrArtifactMissing means an artifact file does not exist.
	ErrArtifactMissing = errors.New("missing artifact")
	// ErrArtifactLoad means an artifact exists but could not be read, decoded or validated.
	ErrArtifactLoad = errors.New("artifact load error")
)

// MissingError names the artifact that was not found.
type MissingError struct {
	Name string
	Path string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrArtifactMissing, e.Name, e.Path)
}

func (e *MissingError) Unwrap() error {
	return ErrArtifactMissing
}

// Files names the three artifacts inside the artifact directory.
type Files struct {
	Imputer  string `yaml:"imputer"`
	Features string `yaml:"features"`
	Model    string `yaml:"model"`
}

// DefaultFiles returns the standard artifact file names.
func DefaultFiles() Files {
	return Files{
		Imputer:  DefaultImputerFile,
		Features: DefaultFeaturesFile,
		Model:    DefaultModelFile,
	}
}

// Bundle holds the loaded artifacts. It is never modified after Load returns.
type Bundle struct {
	Dir        string
	Features   []string
	Imputer    model.Imputer
	Classifier model.Classifier
}

// ResolveDir returns an absolute artifact directory. Empty dir means the
// default directory next to the executable; relative dirs are resolved
// against the executable's directory rather than the working directory.
func ResolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}

	base, err := executableDir()
	if err != nil {
		return "", fmt.Errorf("resolving executable dir: %w", err)
	}

	if dir == "" {
		dir = DefaultDirName
	}
	return filepath.Join(base, dir), nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Load reads, decodes and cross-validates the three artifacts in dir.
func Load(ctx context.Context, dir string, files Files) (*Bundle, error) {
	sums, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Dir: dir}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := readArtifact(dir, files.Features, sums)
		if err != nil {
			return err
		}
		if b.Features, err = model.DecodeFeatures(raw); err != nil {
			return loadErr(files.Features, err)
		}
		return nil
	})

	g.Go(func() error {
		raw, err := readArtifact(dir, files.Imputer, sums)
		if err != nil {
			return err
		}
		if b.Imputer, err = model.DecodeImputer(raw); err != nil {
			return loadErr(files.Imputer, err)
		}
		return nil
	})

	g.Go(func() error {
		raw, err := readArtifact(dir, files.Model, sums)
		if err != nil {
			return err
		}
		if b.Classifier, err = model.DecodeClassifier(raw); err != nil {
			return loadErr(files.Model, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.validate(); err != nil {
		return nil, err
	}

	slog.Debug("artifacts loaded",
		"dir", dir,
		"features", len(b.Features),
		"imputer", b.Imputer.Kind(),
		"model", b.Classifier.Kind(),
	)
	return b, nil
}

func (b *Bundle) validate() error {
	n := len(b.Features)
	if got := b.Imputer.NumFeatures(); got != n {
		return fmt.Errorf("%w: imputer expects %d features, schema has %d", ErrArtifactLoad, got, n)
	}
	if got := b.Classifier.NumFeatures(); got != n {
		return fmt.Errorf("%w: model expects %d features, schema has %d", ErrArtifactLoad, got, n)
	}
	return nil
}

func readArtifact(dir, name string, sums map[string]string) ([]byte, error) {
	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingError{Name: name, Path: path}
		}
		return nil, loadErr(name, err)
	}

	if want, ok := sums[name]; ok {
		sum := sha256.Sum256(raw)
		if got := hex.EncodeToString(sum[:]); got != want {
			return nil, loadErr(name, fmt.Errorf("checksum mismatch: got %s want %s", got, want))
		}
	}
	return raw, nil
}

func loadErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrArtifactLoad, name, err)
}

type manifest struct {
	Files map[string]string `json:"files"`
}

// readManifest returns the optional name -> sha256 map. A missing manifest is not an error.
func readManifest(dir string) (map[string]string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, loadErr(ManifestFile, err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, loadErr(ManifestFile, err)
	}
	return m.Files, nil
}
