package scoring

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	invalidFormatMessage = "Invalid file format. Please upload an Excel file (.xlsx or .xls)."
	genericMessage       = "Prediction failed"
)

// ErrInvalidFormat is returned for uploads whose name is not an Excel file name.
var ErrInvalidFormat = errors.New("invalid file format")

// MissingColumnsError lists required columns absent from the upload, in schema order.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing columns: " + strings.Join(e.Columns, ", ")
}

// ProcessingError wraps any failure after the format check that is not a
// schema problem: parsing, conversion, imputation or inference.
type ProcessingError struct {
	Stage string
	err   error
}

func newProcessingError(stage string, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, err: errors.WithStack(err)}
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("prediction failed during %s: %v", e.Stage, errors.Cause(e.err))
}

func (e *ProcessingError) Unwrap() error {
	return e.err
}

// Trace returns the wrapped error formatted with its stack.
func (e *ProcessingError) Trace() string {
	return fmt.Sprintf("%+v", e.err)
}

// Message returns the text reported to the caller for a Score error.
func Message(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrInvalidFormat) {
		return invalidFormatMessage
	}

	var mce *MissingColumnsError
	if errors.As(err, &mce) {
		quoted := make([]string, len(mce.Columns))
		for i, c := range mce.Columns {
			quoted[i] = quoteName(c)
		}
		return fmt.Sprintf("Missing columns: [%s]", strings.Join(quoted, ", "))
	}

	var pe *ProcessingError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s: %v", genericMessage, errors.Cause(pe.err))
	}

	return genericMessage
}

// quoteName quotes a column name the way a Python string repr does:
// single quotes unless the name holds a single quote and no double quote.
func quoteName(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
