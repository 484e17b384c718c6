package importer

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedSource = errors.New("unsupported import file")

// Row is one data line keyed by normalised header.
type Row struct {
	Line  int
	Cells map[string]string
}

// Get returns the trimmed cell for col, or "" when the column is absent.
func (r Row) Get(col string) string {
	return strings.TrimSpace(r.Cells[col])
}

func (r Row) Has(col string) bool {
	_, ok := r.Cells[col]
	return ok
}

// Source is a parsed upload: the table plus any files bundled next to it.
type Source struct {
	Name    string
	Headers []string
	Rows    []Row
	// Files holds archive entries other than the table, keyed by entry path.
	// It is nil when the upload was not an archive.
	Files map[string][]byte
	// base is the archive directory holding the table.
	base string
}

// IsArchive reports whether the source came with bundled files.
func (s *Source) IsArchive() bool { return s.Files != nil }

// File resolves an IMAGE_PATH entry. Paths are matched case-sensitively,
// first as given and then relative to the directory holding the table.
func (s *Source) File(p string) ([]byte, bool) {
	p = strings.TrimPrefix(strings.TrimSpace(p), "./")
	if b, ok := s.Files[p]; ok {
		return b, true
	}
	if s.base != "" {
		if b, ok := s.Files[path.Join(s.base, p)]; ok {
			return b, true
		}
	}
	return nil, false
}

// FileNames lists archive entries for error messages.
func (s *Source) FileNames() []string {
	out := make([]string, 0, len(s.Files))
	for k := range s.Files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SyntaxError is a structural problem with the table itself.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return e.Msg }

// Open sniffs the upload by file extension, falling back to the zip magic.
func Open(name string, data []byte) (*Source, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return ReadCSV(name, bytes.NewReader(data))
	case ".zip":
		return ReadZip(name, data)
	case ".xlsx":
		return ReadXLSX(name, data)
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return ReadZip(name, data)
	}
	return nil, fmt.Errorf("%w: %s (expected .csv, .zip or .xlsx)", ErrUnsupportedSource, name)
}

func ReadCSV(name string, r io.Reader) (*Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, &SyntaxError{Msg: "malformed CSV: " + err.Error()}
	}
	return fromRecords(name, records)
}

// ReadZip takes the first .csv entry as the table and keeps every other file.
func ReadZip(name string, data []byte) (*Source, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &SyntaxError{Msg: "malformed zip archive: " + err.Error()}
	}
	var table *zip.File
	files := map[string][]byte{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if table == nil && strings.EqualFold(path.Ext(f.Name), ".csv") {
			table = f
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return nil, &SyntaxError{Msg: fmt.Sprintf("reading %s: %v", f.Name, err)}
		}
		files[f.Name] = b
	}
	if table == nil {
		return nil, &SyntaxError{Msg: "the zip archive contains no .csv file"}
	}
	b, err := readZipFile(table)
	if err != nil {
		return nil, &SyntaxError{Msg: fmt.Sprintf("reading %s: %v", table.Name, err)}
	}
	src, err := ReadCSV(table.Name, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	src.Name = name
	src.Files = files
	if dir := path.Dir(table.Name); dir != "." {
		src.base = dir
	}
	return src, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(name string, data []byte) (*Source, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &SyntaxError{Msg: "malformed workbook: " + err.Error()}
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &SyntaxError{Msg: "the workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &SyntaxError{Msg: "reading sheet " + sheets[0] + ": " + err.Error()}
	}
	return fromRecords(name, rows)
}

func fromRecords(name string, records [][]string) (*Source, error) {
	if len(records) == 0 {
		return nil, &SyntaxError{Msg: "the file is empty"}
	}
	src := &Source{Name: name}
	index := make([]string, len(records[0]))
	seen := map[string]bool{}
	for i, h := range records[0] {
		n := NormalizeHeader(h)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		index[i] = n
		src.Headers = append(src.Headers, n)
	}
	for li, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row := Row{Line: li + 2, Cells: make(map[string]string, len(src.Headers))}
		for i, col := range index {
			if col == "" {
				continue
			}
			if i < len(rec) {
				row.Cells[col] = rec[i]
			} else {
				row.Cells[col] = ""
			}
		}
		src.Rows = append(src.Rows, row)
	}
	return src, nil
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeHeader strips a BOM, trims, joins inner whitespace with "_" and
// upper-cases.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(h)
	h = spaceRun.ReplaceAllString(h, "_")
	return strings.ToUpper(h)
}
