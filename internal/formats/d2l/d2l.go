// Package d2l writes the Brightspace question-library CSV: a block of
// control lines per question, bundled with its images.
package d2l

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"strconv"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/question"
)

const EntryName = "questions.csv"

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Info() formats.Info {
	return formats.Info{Key: "d2l", Extension: "zip", MimeType: "application/zip", ProducesArchive: true}
}

func (Backend) Format(job *formats.Job) (*formats.Output, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	var skipped formats.Skipper
	var werr error
	job.Set.Walk(func(q question.Question, _ *question.Question) {
		rows, ok := Rows(q)
		if !ok {
			skipped.Add(q)
			return
		}
		if werr == nil {
			werr = w.WriteAll(rows)
		}
	})
	if werr != nil {
		return nil, fmt.Errorf("d2l: %w", werr)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("d2l: %w", err)
	}
	return &formats.Output{Body: buf.Bytes(), EntryName: EntryName, Skipped: skipped.List()}, nil
}

// Rows returns the control lines for q followed by a blank separator line,
// or false when Brightspace has no equivalent.
func Rows(q question.Question) ([][]string, bool) {
	var code string
	var body [][]string
	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		code, body = "MC", options(d)
	case question.SelectAllData:
		code, body = "M-S", options(d)
	case question.DragAndDropData:
		if d.HasSlots() {
			return nil, false
		}
		cs := make([]question.Choice, len(d))
		for i, a := range d {
			cs[i] = question.Choice{Text: a.Text, Correct: a.Correct.Flag}
		}
		code, body = "M-S", options(cs)
	case question.MatchingData:
		code, body = "M", matches(d)
	case question.CategorizationData:
		code, body = "M", matches(d)
	case question.EssayData:
		code = "WR"
	default:
		return nil, false
	}

	text := "<p>" + html.EscapeString(q.Text) + "</p>"
	if e, ok := q.Data.(question.EssayData); ok && e.HTML != "" {
		text = e.HTML
	}
	rows := [][]string{
		{"NewQuestion", code},
		{"ID", q.ID},
		{"Title", title(q.Text)},
		{"QuestionText", text, "HTML"},
		{"Points", "1"},
	}
	for _, img := range q.Images {
		rows = append(rows, []string{"Image", formats.ImagePath(q.ID, img.Filename)})
	}
	if code == "M" {
		rows = append(rows, []string{"Scoring", "EquallyWeighted"})
	}
	rows = append(rows, body...)
	return append(rows, []string{""}), true
}

func options(cs []question.Choice) [][]string {
	out := make([][]string, 0, len(cs))
	for _, c := range cs {
		weight := "0"
		if c.Correct {
			weight = "100"
		}
		out = append(out, []string{"Option", weight, html.EscapeString(c.Text), "HTML"})
	}
	return out
}

// matches emits a Choice line per left item followed by one Match line per
// accepted right value.
func matches(ms []question.Match) [][]string {
	var out [][]string
	for i, m := range ms {
		n := strconv.Itoa(i + 1)
		out = append(out, []string{"Choice", n, m.Text})
		for _, r := range m.Correct {
			out = append(out, []string{"Match", n, r})
		}
	}
	return out
}

func title(text string) string {
	r := []rune(formats.OneLine(text))
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return string(r)
}
