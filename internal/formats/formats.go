package formats

import (
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/mind-engage/viva/internal/question"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Info describes a backend: the key callers select it by, the extension and
// MIME type of what it produces, and whether that output is an archive.
// EmbedsImages marks backends that inline image bytes into the body.
type Info struct {
	Key             string
	Extension       string
	MimeType        string
	ProducesArchive bool
	EmbedsImages    bool
}

// Job is the input to a backend. Images holds preloaded blob bytes keyed by
// question.Image.Key; backends that only reference images by path ignore it.
type Job struct {
	Set    *question.Set
	Images map[string][]byte
}

// File is a named entry a backend wants next to its main body in an archive.
type File struct {
	Name string
	Data []byte
}

// Output is what a backend produced. For archive backends EntryName is the
// body's path inside the archive and Extra lists further entries; images are
// added by the caller.
type Output struct {
	Body      []byte
	EntryName string
	Extra     []File
	Skipped   []Skip
}

// Skip records a question left out because the target has no equivalent.
type Skip struct {
	QuestionID string
	Kind       question.Kind
}

// UnsupportedKindError is the per-question condition: the format exists but
// cannot represent this question.
type UnsupportedKindError struct {
	Format     string
	Kind       question.Kind
	QuestionID string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("%s export does not support %s questions (question %s)", e.Format, e.Kind.DisplayName(), e.QuestionID)
}

// Backend renders a question set for one target system. Implementations are
// pure: the same Job yields byte-identical output.
type Backend interface {
	Info() Info
	Format(job *Job) (*Output, error)
}

// Registry maps format keys to backends.
type Registry struct {
	backends map[string]Backend
}

func NewRegistry(bs ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(bs))}
	for _, b := range bs {
		r.Register(b)
	}
	return r
}

// Register adds b, replacing any backend with the same key.
func (r *Registry) Register(b Backend) {
	r.backends[b.Info().Key] = b
}

func (r *Registry) Lookup(key string) (Backend, error) {
	b, ok := r.backends[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, key)
	}
	return b, nil
}

// Keys lists registered format keys in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ImagePath is where an image of question id sits inside export archives.
func ImagePath(questionID, filename string) string {
	return path.Join("images", questionID, path.Base(filename))
}
