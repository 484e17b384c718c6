// Package archive packs named byte streams into a single zip.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

type Entry struct {
	Name string
	Data []byte
}

// Zip writes entries in the given order. Names must be unique relative
// paths. Modification times are left zero so identical input gives
// identical bytes.
func Zip(entries []Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := path.Clean(strings.ReplaceAll(e.Name, "\\", "/"))
		if name == "." || name == ".." || strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
			return nil, fmt.Errorf("archive: bad entry name %q", e.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("archive: duplicate entry %q", name)
		}
		seen[name] = true
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("archive: %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Names lists the entries of a zip, for tests and diagnostics.
func Names(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		out = append(out, f.Name)
	}
	return out, nil
}
