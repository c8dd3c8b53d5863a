package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// Row is one scored input row. Values are the projected feature values as
// uploaded, before imputation; NaN marks a missing value.
type Row struct {
	Values      []float64
	Probability float64
	Risk        string
}

// Result is the scored table. It encodes as a JSON array of objects whose keys
// follow the feature schema order, then ProbabilityKey and RiskKey.
type Result struct {
	Columns []string
	Rows    []Row
}

// HighRiskCount returns the number of rows labelled HighRisk.
func (r *Result) HighRiskCount() int {
	n := 0
	for _, row := range r.Rows {
		if row.Risk == HighRisk {
			n++
		}
	}
	return n
}

// Records returns the header and row values, suitable for spreadsheet export.
func (r *Result) Records() ([]string, [][]any) {
	header := append(append([]string(nil), r.Columns...), ProbabilityKey, RiskKey)
	rows := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		vals := make([]any, 0, len(header))
		for _, v := range row.Values {
			vals = append(vals, v)
		}
		rows[i] = append(vals, row.Probability, row.Risk)
	}
	return header, rows
}

func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if len(row.Values) != len(r.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(row.Values), len(r.Columns))
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range r.Columns {
			writeKey(&buf, col)
			writeNumber(&buf, row.Values[j])
			buf.WriteByte(',')
		}
		writeKey(&buf, ProbabilityKey)
		writeNumber(&buf, row.Probability)
		buf.WriteByte(',')
		writeKey(&buf, RiskKey)
		b, err := json.Marshal(row.Risk)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	b, _ := json.Marshal(key)
	buf.Write(b)
	buf.WriteByte(':')
}

func writeNumber(buf *bytes.Buffer, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		buf.WriteString("null")
		return
	}
	b, _ := json.Marshal(v)
	buf.Write(b)
}

// UnmarshalJSON decodes the array produced by MarshalJSON. Columns are taken
// from the key order of the first object.
func (r *Result) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return err
	}

	out := Result{Columns: []string{}, Rows: []Row{}}
	for i := 0; dec.More(); i++ {
		keys, vals, err := readObject(dec)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}

		row, cols, err := toRow(keys, vals)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if i == 0 {
			out.Columns = cols
		} else if !slices.Equal(cols, out.Columns) {
			return fmt.Errorf("row %d: columns differ from first row", i)
		}
		out.Rows = append(out.Rows, row)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return err
	}
	*r = out
	return nil
}

func readObject(dec *json.Decoder) ([]string, []any, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}

	var (
		keys []string
		vals []any
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decoding %q: %w", key, err)
		}
		keys = append(keys, key)
		vals = append(vals, v)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}
	return keys, vals, nil
}

func toRow(keys []string, vals []any) (Row, []string, error) {
	var (
		row  Row
		cols []string
		seen = map[string]bool{}
	)
	for i, k := range keys {
		switch k {
		case ProbabilityKey:
			p, err := number(vals[i])
			if err != nil {
				return row, nil, fmt.Errorf("%s: %w", k, err)
			}
			row.Probability = p
			seen[k] = true
		case RiskKey:
			s, ok := vals[i].(string)
			if !ok {
				return row, nil, fmt.Errorf("%s: expected string", k)
			}
			row.Risk = s
			seen[k] = true
		default:
			v, err := number(vals[i])
			if err != nil {
				return row, nil, fmt.Errorf("%s: %w", k, err)
			}
			cols = append(cols, k)
			row.Values = append(row.Values, v)
		}
	}
	if !seen[ProbabilityKey] || !seen[RiskKey] {
		return row, nil, fmt.Errorf("missing %q or %q", ProbabilityKey, RiskKey)
	}
	return row, cols, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
