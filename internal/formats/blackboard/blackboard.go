// Package blackboard writes the Blackboard tab-delimited upload format: one
// line per question, the type code first.
package blackboard

import (
	"strings"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/question"
)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Info() formats.Info {
	return formats.Info{Key: "blackboard", Extension: "txt", MimeType: "text/plain"}
}

func (Backend) Format(job *formats.Job) (*formats.Output, error) {
	var lines []string
	var skipped formats.Skipper
	job.Set.Walk(func(q question.Question, _ *question.Question) {
		fields, ok := Line(q)
		if !ok {
			skipped.Add(q)
			return
		}
		for i := range fields {
			fields[i] = formats.OneLine(fields[i])
		}
		lines = append(lines, strings.Join(fields, "\t"))
	})
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	return &formats.Output{Body: []byte(body), Skipped: skipped.List()}, nil
}

// Line returns the fields of q's upload line, or false when Blackboard has
// no equivalent question type. Case-study stems and scenarios have none;
// the remaining children are exported as standalone questions.
func Line(q question.Question) ([]string, bool) {
	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		return append([]string{"MC", q.Text}, choices(d)...), true
	case question.SelectAllData:
		return append([]string{"MA", q.Text}, choices(d)...), true
	case question.MatchingData:
		out := []string{"MAT", q.Text}
		for _, m := range d {
			out = append(out, m.Text, strings.Join(m.Correct, ", "))
		}
		return out, true
	case question.EssayData:
		return []string{"ESS", essayPrompt(q.Text, d.HTML)}, true
	case question.UploadData:
		return []string{"FIL", essayPrompt(q.Text, d.HTML)}, true
	}
	return nil, false
}

func choices(cs []question.Choice) []string {
	out := make([]string, 0, 2*len(cs))
	for _, c := range cs {
		verdict := "incorrect"
		if c.Correct {
			verdict = "correct"
		}
		out = append(out, c.Text, verdict)
	}
	return out
}

func essayPrompt(text, html string) string {
	if html == "" {
		return text
	}
	return formats.HTMLToText(html)
}
