// Package plaintext renders questions as human-readable text or Markdown.
package plaintext

import (
	"fmt"
	"strings"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/question"
)

// style is the per-format decoration around a shared layout.
type style struct {
	info     formats.Info
	divider  string
	kindLine func(child bool, display string) string
	textLine func(child bool, text string) string
	scenario func(text string) string
	label    func(s string) string
	answer   func(mark, text string) string
	item     func(text string) string
}

type Backend struct {
	s style
}

// Text is the "txt" backend.
func Text() *Backend {
	return &Backend{s: style{
		info:    formats.Info{Key: "txt", Extension: "txt", MimeType: "text/plain"},
		divider: strings.Repeat("=", 40),
		kindLine: func(child bool, d string) string {
			if child {
				return "Subquestion Type: " + d
			}
			return "Question Type: " + d
		},
		textLine: func(child bool, t string) string {
			if child {
				return "Subquestion: " + t
			}
			return "Question: " + t
		},
		scenario: func(t string) string { return "Scenario: " + t },
		label:    func(s string) string { return s + ":" },
		answer:   func(mark, t string) string { return "[" + mark + "] " + t },
		item:     func(t string) string { return "  " + t },
	}}
}

// Markdown is the "md" backend.
func Markdown() *Backend {
	return &Backend{s: style{
		info:    formats.Info{Key: "md", Extension: "md", MimeType: "text/plain"},
		divider: "---",
		kindLine: func(child bool, d string) string {
			if child {
				return "### Subquestion Type: " + d
			}
			return "## Question Type: " + d
		},
		textLine: func(child bool, t string) string {
			if child {
				return "**Subquestion:** " + t
			}
			return "**Question:** " + t
		},
		scenario: func(t string) string { return "**Scenario:** " + t },
		label:    func(s string) string { return "**" + s + ":**" },
		answer:   func(mark, t string) string { return "- [" + mark + "] " + t },
		item:     func(t string) string { return "- " + t },
	}}
}

func (b *Backend) Info() formats.Info { return b.s.info }

func (b *Backend) Format(job *formats.Job) (*formats.Output, error) {
	blocks, err := formats.RenderUnits(formats.Units(job.Set), 4, func(u formats.Unit) (string, error) {
		var w strings.Builder
		b.question(&w, u.Question, false)
		for _, c := range u.Children {
			w.WriteString("\n")
			b.question(&w, c, true)
		}
		return w.String(), nil
	})
	if err != nil {
		return nil, err
	}
	body := strings.Join(blocks, "\n"+b.s.divider+"\n\n")
	return &formats.Output{Body: []byte(body)}, nil
}

func (b *Backend) question(w *strings.Builder, q question.Question, child bool) {
	line := func(s string) { w.WriteString(s + "\n") }

	if q.Kind == question.KindScenario {
		line(b.s.scenario(q.Text))
		b.images(w, q)
		return
	}
	line(b.s.kindLine(child, q.Kind.DisplayName()))
	if text := prompt(q); text != "" {
		line(b.s.textLine(child, text))
	}
	b.images(w, q)

	mark := func(ok bool) string {
		if ok {
			return "x"
		}
		return " "
	}
	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		for _, c := range d {
			line(b.s.answer(mark(c.Correct), c.Text))
		}
	case question.SelectAllData:
		for _, c := range d {
			line(b.s.answer(mark(c.Correct), c.Text))
		}
	case question.MatchingData:
		for _, m := range d {
			line(b.s.item(m.Text + " => " + strings.Join(m.Correct, ", ")))
		}
	case question.CategorizationData:
		for _, m := range d {
			line(b.s.item(m.Text + " => " + strings.Join(m.Correct, ", ")))
		}
	case question.DragAndDropData:
		for _, a := range d {
			if a.Correct.IsSlot {
				line(b.s.answer(fmt.Sprintf("slot %d", a.Correct.Slot), a.Text))
				continue
			}
			line(b.s.answer(mark(a.Correct.Flag), a.Text))
		}
	case question.BowTieData:
		for _, g := range []struct {
			side  string
			group question.BowTieGroup
		}{{"Center", d.Center}, {"Left", d.Left}, {"Right", d.Right}} {
			line(b.s.label(g.side) + " " + g.group.Label)
			for _, c := range g.group.Answers {
				line(b.s.answer(mark(c.Correct), c.Text))
			}
		}
	}
}

func (b *Backend) images(w *strings.Builder, q question.Question) {
	for _, img := range q.Images {
		s := b.s.label("Image") + " " + img.Filename
		if img.AltText != "" {
			s += " (" + img.AltText + ")"
		}
		w.WriteString(s + "\n")
	}
}

// prompt is the question text; essay and upload bodies come from their HTML.
func prompt(q question.Question) string {
	switch d := q.Data.(type) {
	case question.EssayData:
		if d.HTML != "" {
			return formats.HTMLToText(d.HTML)
		}
	case question.UploadData:
		if d.HTML != "" {
			return formats.HTMLToText(d.HTML)
		}
	}
	return q.Text
}
