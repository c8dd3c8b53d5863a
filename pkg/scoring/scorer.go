package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/asdscreen/pkg/artifact"
	"github.com/mchmarny/asdscreen/pkg/model"
	"github.com/mchmarny/asdscreen/pkg/sheet"
)

const (
	// RiskThreshold is the probability above which a row is labelled HighRisk.
	RiskThreshold = 0.7

	HighRisk = "High Risk"
	LowRisk  = "Low Risk"

	ProbabilityKey = "Autism Probability"
	RiskKey        = "Risk Level"
)

var excelSuffixes = []string{".xlsx", ".xls"}

// Scorer turns uploaded workbooks into scored rows. It holds only the
// read-only artifacts and is safe for concurrent use.
type Scorer struct {
	features   []string
	imputer    model.Imputer
	classifier model.Classifier
}

// New creates a Scorer for the given feature schema and fitted models.
func New(features []string, imputer model.Imputer, classifier model.Classifier) *Scorer {
	return &Scorer{
		features:   append([]string(nil), features...),
		imputer:    imputer,
		classifier: classifier,
	}
}

// NewFromBundle creates a Scorer from loaded artifacts.
func NewFromBundle(b *artifact.Bundle) *Scorer {
	return New(b.Features, b.Imputer, b.Classifier)
}

// Features returns a copy of the required columns in schema order.
func (s *Scorer) Features() []string {
	return append([]string(nil), s.features...)
}

// IsExcelName reports whether name has an .xlsx or .xls suffix (case-sensitive).
func IsExcelName(name string) bool {
	for _, suffix := range excelSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// RiskLevel labels a positive-class probability.
func RiskLevel(p float64) string {
	if p > RiskThreshold {
		return HighRisk
	}
	return LowRisk
}

// Score validates, imputes and scores every row of the uploaded workbook.
// Errors are ErrInvalidFormat, *MissingColumnsError or *ProcessingError.
func (s *Scorer) Score(filename string, content []byte) (*Result, error) {
	if !IsExcelName(filename) {
		return nil, ErrInvalidFormat
	}

	tbl, err := sheet.Parse(content)
	if err != nil {
		return nil, newProcessingError("parse", err)
	}

	if missing := tbl.Missing(s.features); len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	x, err := tbl.Project(s.features)
	if err != nil {
		return nil, newProcessingError("projection", err)
	}

	imputed, err := s.imputer.Transform(clone(x))
	if err != nil {
		return nil, newProcessingError("imputation", err)
	}
	if err := checkShape(imputed, len(x), len(s.features)); err != nil {
		return nil, newProcessingError("imputation", err)
	}

	proba, err := s.classifier.PredictProba(imputed)
	if err != nil {
		return nil, newProcessingError("inference", err)
	}
	if len(proba) != len(x) {
		return nil, newProcessingError("inference",
			fmt.Errorf("model returned %d predictions for %d rows", len(proba), len(x)))
	}

	res := &Result{
		Columns: s.Features(),
		Rows:    make([]Row, len(x)),
	}
	for i := range x {
		p, err := positive(proba[i])
		if err != nil {
			return nil, newProcessingError("inference", fmt.Errorf("row %d: %w", i+1, err))
		}
		res.Rows[i] = Row{
			Values:      x[i],
			Probability: p,
			Risk:        RiskLevel(p),
		}
	}
	return res, nil
}

func positive(dist []float64) (float64, error) {
	if len(dist) <= model.PositiveClass {
		return 0, fmt.Errorf("model returned %d class probabilities, expected at least 2", len(dist))
	}
	p := dist[model.PositiveClass]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("probability %v outside [0,1]", p)
	}
	return p, nil
}

func checkShape(x [][]float64, rows, cols int) error {
	if len(x) != rows {
		return fmt.Errorf("imputer returned %d rows, expected %d", len(x), rows)
	}
	for i, r := range x {
		if len(r) != cols {
			return fmt.Errorf("imputer returned %d columns in row %d, expected %d", len(r), i+1, cols)
		}
	}
	return nil
}

func clone(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, r := range x {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
