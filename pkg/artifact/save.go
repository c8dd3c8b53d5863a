package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mchmarny/asdscreen/pkg/model"
)

const (
	dirMode  = 0o755
	fileMode = 0o644

	demoQuestions = 10
)

// Save writes a bundle into dir using the default file names, plus a checksum manifest.
func Save(dir string, features []string, imputer model.Imputer, classifier model.Classifier) error {
	if dir == "" {
		return fmt.Errorf("artifact directory required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("creating dir %s: %w", dir, err)
	}

	items := []struct {
		name string
		v    any
	}{
		{DefaultFeaturesFile, features},
		{DefaultImputerFile, imputer},
		{DefaultModelFile, classifier},
	}

	m := manifest{Files: make(map[string]string, len(items))}
	for _, it := range items {
		b, err := json.MarshalIndent(it.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", it.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, it.name), b, fileMode); err != nil {
			return fmt.Errorf("writing %s: %w", it.name, err)
		}
		sum := sha256.Sum256(b)
		m.Files[it.name] = hex.EncodeToString(sum[:])
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), b, fileMode); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Demo returns a small screening bundle: ten AQ-10 item scores plus age,
// a mean imputer and a logistic model. It is meant for local testing only.
func Demo() ([]string, *model.SimpleImputer, *model.LogisticRegression) {
	features := make([]string, 0, demoQuestions+1)
	stats := make([]float64, 0, demoQuestions+1)
	coef := make([]float64, 0, demoQuestions+1)
	for i := 1; i <= demoQuestions; i++ {
		features = append(features, fmt.Sprintf("A%d_Score", i))
		stats = append(stats, 0.5)
		coef = append(coef, 0.9)
	}
	features = append(features, "age")
	stats = append(stats, 6)
	coef = append(coef, -0.02)

	return features,
		&model.SimpleImputer{Strategy: model.StrategyMean, Statistics: stats},
		&model.LogisticRegression{Coef: coef, Intercept: -5.5}
}

// SaveDemo writes the Demo bundle into dir.
func SaveDemo(dir string) error {
	features, imputer, classifier := Demo()
	return Save(dir, features, imputer, classifier)
}
