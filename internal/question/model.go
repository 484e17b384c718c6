package question

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("question not found")
	ErrInvalid  = errors.New("invalid question")
	ErrConflict = errors.New("question conflict")
)

// Image is an ordered reference to a blob attached to a question.
type Image struct {
	Filename string `json:"filename"`
	AltText  string `json:"alt_text,omitempty"`
	// Key addresses the bytes in the blob store.
	Key string `json:"key,omitempty"`
}

// Question is one record of the bank. Data holds the kind-specific answer
// payload and is nil for scenarios; for case studies it is derived from the
// children when the question is loaded through a Set or a Store.
type Question struct {
	ID               string     `json:"id"`
	Kind             Kind       `json:"type"`
	Text             string     `json:"text"`
	Level            string     `json:"level,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	Subjects         []string   `json:"subjects,omitempty"`
	Images           []Image    `json:"images,omitempty"`
	ChildOfAggregate bool       `json:"child_of_aggregate"`
	CreatedAt        int64      `json:"created_at,omitempty"`
	Data             AnswerData `json:"-"`
}

type questionJSON struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"type"`
	Text             string          `json:"text"`
	Level            string          `json:"level,omitempty"`
	Keywords         []string        `json:"keywords,omitempty"`
	Subjects         []string        `json:"subjects,omitempty"`
	Images           []Image         `json:"images,omitempty"`
	ChildOfAggregate bool            `json:"child_of_aggregate"`
	CreatedAt        int64           `json:"created_at,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:               q.ID,
		Kind:             q.Kind,
		Text:             q.Text,
		Level:            q.Level,
		Keywords:         q.Keywords,
		Subjects:         q.Subjects,
		Images:           q.Images,
		ChildOfAggregate: q.ChildOfAggregate,
		CreatedAt:        q.CreatedAt,
	}
	if q.Data != nil {
		raw, err := json.Marshal(q.Data)
		if err != nil {
			return nil, err
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the envelope and the kind-specific payload. Shape
// problems in the payload surface as ValidationErrors.
func (q *Question) UnmarshalJSON(b []byte) error {
	var in questionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*q = Question{
		ID:               in.ID,
		Kind:             in.Kind,
		Text:             in.Text,
		Level:            in.Level,
		Keywords:         in.Keywords,
		Subjects:         in.Subjects,
		Images:           in.Images,
		ChildOfAggregate: in.ChildOfAggregate,
		CreatedAt:        in.CreatedAt,
	}
	if !in.Kind.Valid() {
		return ValidationErrors{"type": {UnknownKindMessage(string(in.Kind))}}
	}
	// case-study summaries are read back as served, never authored
	if in.Kind == KindStimulusCaseStudy && len(in.Data) > 0 && string(in.Data) != "null" {
		var d CaseStudyData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			return dataError("case study summaries must be a list of {id, type, text}")
		}
		q.Data = d
		return nil
	}
	data, err := DecodeData(in.Kind, in.Data)
	if err != nil {
		return err
	}
	q.Data = data
	return nil
}

// Edge links a case study to one of its children.
type Edge struct {
	ParentID string `json:"parent_id" db:"parent_id"`
	ChildID  string `json:"child_id" db:"child_id"`
	Order    int    `json:"presentation_order" db:"position"`
}

// NormalizeTags trims, lower-cases, de-duplicates and sorts a tag list.
func NormalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitTags parses a comma separated tag cell.
func SplitTags(cell string) []string {
	return NormalizeTags(strings.Split(cell, ","))
}

// UnknownKindMessage explains a bad TYPE value and lists every known kind.
func UnknownKindMessage(got string) string {
	return "unknown type " + quote(got) + "; known types are " + strings.Join(DisplayNames(), ", ")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
