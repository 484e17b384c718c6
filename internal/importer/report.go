package importer

import (
	"encoding/json"
	"fmt"

	"github.com/mind-engage/viva/internal/question"
)

// ColumnReport names the columns a row or file needed, what it had and the
// difference between the two.
type ColumnReport struct {
	Expected []string `json:"expected"`
	Given    []string `json:"given"`
	Missing  []string `json:"missing"`
}

func newColumnReport(expected, given []string) *ColumnReport {
	have := make(map[string]bool, len(given))
	for _, g := range given {
		have[g] = true
	}
	var missing []string
	for _, e := range expected {
		if !have[e] {
			missing = append(missing, e)
		}
	}
	return &ColumnReport{Expected: expected, Given: given, Missing: missing}
}

// FileError is a whole-batch failure: missing required headers or a table
// that could not be parsed.
type FileError struct {
	*ColumnReport
	Message string `json:"message,omitempty"`
}

func (e *FileError) MarshalJSON() ([]byte, error) {
	if e.ColumnReport != nil {
		return json.Marshal(e.ColumnReport)
	}
	return json.Marshal(map[string]string{"message": e.Message})
}

// RowError carries every problem found on one row.
type RowError struct {
	ImportID string
	Line     int
	Errors   question.ValidationErrors
	Columns  *ColumnReport
}

func (e RowError) MarshalJSON() ([]byte, error) {
	out := map[string]any{"import_id": e.ImportID, "row": e.Line}
	for k, v := range e.Errors {
		out[k] = v
	}
	if e.Columns != nil {
		out["columns"] = e.Columns
	}
	return json.Marshal(out)
}

// Report is returned instead of a commit when a batch is rejected.
type Report struct {
	CSV  *FileError `json:"csv,omitempty"`
	Rows []RowError `json:"rows,omitempty"`
}

func (r *Report) Error() string {
	if r.CSV != nil {
		if r.CSV.ColumnReport != nil {
			return fmt.Sprintf("import rejected: missing columns %v", r.CSV.Missing)
		}
		return "import rejected: " + r.CSV.Message
	}
	return fmt.Sprintf("import rejected: %d row(s) invalid", len(r.Rows))
}

// Row finds the error entry for an import id.
func (r *Report) Row(importID string) (RowError, bool) {
	for _, re := range r.Rows {
		if re.ImportID == importID {
			return re, true
		}
	}
	return RowError{}, false
}
