package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/mchmarny/asdscreen/pkg/model"
	"github.com/mchmarny/asdscreen/pkg/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClassifier returns the configured positive probabilities in row order.
type fixedClassifier struct {
	features int
	proba    []float64
	err      error
}

func (c *fixedClassifier) Kind() string     { return "fixed" }
func (c *fixedClassifier) NumFeatures() int { return c.features }

func (c *fixedClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(x))
	for i := range x {
		p := c.proba[i%len(c.proba)]
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// droppingImputer mimics an imputer that loses a column.
type droppingImputer struct{}

func (droppingImputer) Kind() string     { return "dropping" }
func (droppingImputer) NumFeatures() int { return 0 }
func (droppingImputer) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, r := range x {
		out[i] = r[1:]
	}
	return out, nil
}

func questions(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("A%d", i+1)
	}
	return cols
}

func meanImputer(n int, v float64) *model.SimpleImputer {
	stats := make([]float64, n)
	for i := range stats {
		stats[i] = v
	}
	return &model.SimpleImputer{Strategy: model.StrategyMean, Statistics: stats}
}

func workbook(t *testing.T, columns []string, rows [][]any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, sheet.Write(&buf, columns, rows))
	return buf.Bytes()
}

// scenarioWorkbook has A1..A10 plus extra_col and three rows.
func scenarioWorkbook(t *testing.T) []byte {
	t.Helper()
	cols := append(questions(10), "extra_col")
	rows := [][]any{
		{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, "keep out"},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, "x"},
		{0, 0, nil, 0, 0, 0, 0, 0, 0, 0, 42},
	}
	return workbook(t, cols, rows)
}

func TestScore_Scenario(t *testing.T) {
	s := New(questions(10), meanImputer(10, 0.5), &fixedClassifier{features: 10, proba: []float64{0.3, 0.85, 0.7}})

	res, err := s.Score("children.xlsx", scenarioWorkbook(t))
	require.NoError(t, err)

	assert.Equal(t, questions(10), res.Columns)
	require.Len(t, res.Rows, 3)

	assert.Equal(t, 0.3, res.Rows[0].Probability)
	assert.Equal(t, LowRisk, res.Rows[0].Risk)
	assert.Equal(t, 0.85, res.Rows[1].Probability)
	assert.Equal(t, HighRisk, res.Rows[1].Risk)
	assert.Equal(t, 0.7, res.Rows[2].Probability)
	assert.Equal(t, LowRisk, res.Rows[2].Risk, "exactly 0.7 is low risk")
	assert.Equal(t, 1, res.HighRiskCount())

	// output keeps the uploaded, not imputed, values
	assert.Equal(t, 1.0, res.Rows[0].Values[0])
	assert.True(t, math.IsNaN(res.Rows[2].Values[2]))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "extra_col")
	assert.NotContains(t, string(b), "keep out")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded, 3)
	assert.Len(t, decoded[0], 12)
	assert.Equal(t, "High Risk", decoded[1][RiskKey])
	assert.Equal(t, 0.85, decoded[1][ProbabilityKey])
	assert.Nil(t, decoded[2]["A3"])
}

func TestScore_RowOrderAndCount(t *testing.T) {
	features := []string{"A1", "age"}
	clf := &model.LogisticRegression{Coef: []float64{0, 1}, Intercept: 0}
	s := New(features, meanImputer(2, 0), clf)

	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{i % 2, float64(i) - 12}
	}
	res, err := s.Score("batch.xlsx", workbook(t, features, rows))
	require.NoError(t, err)
	require.Len(t, res.Rows, len(rows))

	for i, r := range res.Rows {
		assert.Equal(t, float64(i)-12, r.Values[1])
		assert.GreaterOrEqual(t, r.Probability, 0.0)
		assert.LessOrEqual(t, r.Probability, 1.0)
		assert.Equal(t, r.Probability > RiskThreshold, r.Risk == HighRisk)
		if i > 0 {
			assert.Greater(t, r.Probability, res.Rows[i-1].Probability)
		}
	}
}

func TestScore_MissingColumns(t *testing.T) {
	clf := &fixedClassifier{features: 10, proba: []float64{0.9}}
	s := New(questions(10), meanImputer(10, 0), clf)

	cols := []string{"A2", "A1", "A4", "A5", "A6", "A8", "A10", "other"}
	content := workbook(t, cols, [][]any{{1, 1, 1, 1, 1, 1, 1, 1}})

	_, err := s.Score("input.xls", content)
	require.Error(t, err)

	var mce *MissingColumnsError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{"A3", "A7", "A9"}, mce.Columns)
	assert.Equal(t, "Missing columns: ['A3', 'A7', 'A9']", Message(err))
}

func TestScore_InvalidFormat(t *testing.T) {
	s := New(questions(10), meanImputer(10, 0), &fixedClassifier{features: 10, proba: []float64{0.1}})
	valid := scenarioWorkbook(t)

	for _, name := range []string{"data.csv", "data.XLSX", "data.xlsx.txt", "xlsx", "", "data.Xls"} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Score(name, valid)
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.Equal(t, invalidFormatMessage, Message(err))
		})
	}
}

func TestScore_XLSNameWithXLSXContent(t *testing.T) {
	s := New(questions(10), meanImputer(10, 0), &fixedClassifier{features: 10, proba: []float64{0.1}})
	res, err := s.Score("legacy.xls", scenarioWorkbook(t))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
}

func TestScore_Idempotent(t *testing.T) {
	features, imputer, clf := questions(10), meanImputer(10, 0.5), &model.LogisticRegression{
		Coef:      []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		Intercept: -4,
	}
	s := New(features, imputer, clf)
	content := scenarioWorkbook(t)

	first, err := s.Score("a.xlsx", content)
	require.NoError(t, err)
	b1, err := json.Marshal(first)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Score("a.xlsx", content)
			if err != nil {
				return
			}
			results[i], _ = json.Marshal(res)
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		assert.Equal(t, string(b1), string(b))
	}
}

func TestScore_ProcessingErrors(t *testing.T) {
	features := []string{"A1", "A2"}
	good := workbook(t, features, [][]any{{1, 2}})

	tests := []struct {
		name     string
		content  []byte
		imputer  model.Imputer
		clf      model.Classifier
		contains string
	}{
		{
			name:     "corrupt bytes",
			content:  []byte("this is not a workbook"),
			imputer:  meanImputer(2, 0),
			clf:      &fixedClassifier{features: 2, proba: []float64{0.5}},
			contains: "format cannot be determined",
		},
		{
			name:     "non numeric cell",
			content:  workbook(t, features, [][]any{{1, "lots"}}),
			imputer:  meanImputer(2, 0),
			clf:      &fixedClassifier{features: 2, proba: []float64{0.5}},
			contains: "could not convert",
		},
		{
			name:     "imputer drops a column",
			content:  good,
			imputer:  droppingImputer{},
			clf:      &fixedClassifier{features: 2, proba: []float64{0.5}},
			contains: "imputer returned 1 columns",
		},
		{
			name:     "model error",
			content:  good,
			imputer:  meanImputer(2, 0),
			clf:      &fixedClassifier{features: 2, err: errors.New("model exploded")},
			contains: "model exploded",
		},
		{
			name:     "probability out of range",
			content:  good,
			imputer:  meanImputer(2, 0),
			clf:      &fixedClassifier{features: 2, proba: []float64{1.5}},
			contains: "outside [0,1]",
		},
		{
			name:     "probability NaN",
			content:  good,
			imputer:  meanImputer(2, 0),
			clf:      &fixedClassifier{features: 2, proba: []float64{math.NaN()}},
			contains: "outside [0,1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(features, tt.imputer, tt.clf)
			_, err := s.Score("upload.xlsx", tt.content)
			require.Error(t, err)

			var pe *ProcessingError
			require.ErrorAs(t, err, &pe)
			msg := Message(err)
			assert.True(t, strings.HasPrefix(msg, "Prediction failed: "), msg)
			assert.Contains(t, msg, tt.contains)
			assert.Contains(t, pe.Trace(), "scoring")
		})
	}
}

func TestScore_EmptySheet(t *testing.T) {
	features := []string{"A1"}
	s := New(features, meanImputer(1, 0), &fixedClassifier{features: 1, proba: []float64{0.5}})

	res, err := s.Score("empty.xlsx", workbook(t, features, nil))
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, LowRisk},
		{0.5, LowRisk},
		{0.7, LowRisk},
		{0.7000001, HighRisk},
		{1, HighRisk},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevel(tt.p), "p=%v", tt.p)
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Prediction failed", Message(errors.New("boom")))
}

func TestMessage_MissingColumnsQuoting(t *testing.T) {
	tests := []struct {
		column string
		want   string
	}{
		{"A1", `['A1']`},
		{"it's", `["it's"]`},
		{`say "hi"`, `['say "hi"']`},
		{`it's "x"`, `['it\'s "x"']`},
		{`a\b`, `['a\\b']`},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got := Message(&MissingColumnsError{Columns: []string{tt.column}})
			assert.Equal(t, "Missing columns: "+tt.want, got)
		})
	}
}

func TestResult_JSONKeyOrder(t *testing.T) {
	res := &Result{
		Columns: []string{"z", "a"},
		Rows:    []Row{{Values: []float64{1, math.NaN()}, Probability: 0.25, Risk: LowRisk}},
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `[{"z":1,"a":null,"Autism Probability":0.25,"Risk Level":"Low Risk"}]`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, res.Columns, back.Columns)
	require.Len(t, back.Rows, 1)
	assert.True(t, math.IsNaN(back.Rows[0].Values[1]))
	assert.Equal(t, 0.25, back.Rows[0].Probability)

	assert.Error(t, json.Unmarshal([]byte(`{"error":"x"}`), &back))
	assert.Error(t, json.Unmarshal([]byte(`[{"a":1}]`), &back))
}

func TestResult_Records(t *testing.T) {
	res := &Result{
		Columns: []string{"A1"},
		Rows:    []Row{{Values: []float64{1}, Probability: 0.9, Risk: HighRisk}},
	}
	header, rows := res.Records()
	assert.Equal(t, []string{"A1", ProbabilityKey, RiskKey}, header)
	assert.Equal(t, [][]any{{1.0, 0.9, HighRisk}}, rows)
}
