// Package moodle writes Moodle XML with images embedded as base64 file nodes.
package moodle

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"html"
	"path"
	"strconv"
	"strings"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/question"
)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Info() formats.Info {
	return formats.Info{Key: "moodle", Extension: "xml", MimeType: "application/xml", EmbedsImages: true}
}

type rendered struct {
	qs      []mquestion
	skipped []question.Question
}

func (Backend) Format(job *formats.Job) (*formats.Output, error) {
	units, err := formats.RenderUnits(formats.Units(job.Set), 4, func(u formats.Unit) (rendered, error) {
		var out rendered
		for _, q := range append([]question.Question{u.Question}, u.Children...) {
			mq, ok, err := convert(q, job.Images)
			if err != nil {
				return rendered{}, err
			}
			if !ok {
				out.skipped = append(out.skipped, q)
				continue
			}
			out.qs = append(out.qs, mq)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	var doc quiz
	var skipped formats.Skipper
	for _, u := range units {
		doc.Questions = append(doc.Questions, u.qs...)
		for _, q := range u.skipped {
			skipped.Add(q)
		}
	}
	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("moodle: %w", err)
	}
	body := append([]byte(xml.Header), append(b, '\n')...)
	return &formats.Output{Body: body, Skipped: skipped.List()}, nil
}

func rich(s string) richText {
	return richText{Format: "html", Text: text{Body: s}}
}

func staticFeedback() *Feedback {
	return &Feedback{
		Correct:   rich("Your answer is correct."),
		Partially: rich("Your answer is partially correct."),
		Incorrect: rich("Your answer is incorrect."),
	}
}

// convert maps q onto a Moodle question type; false means no equivalent.
func convert(q question.Question, images map[string][]byte) (mquestion, bool, error) {
	qt, err := questionText(q, images)
	if err != nil {
		return mquestion{}, false, err
	}
	mq := mquestion{
		Name:            text{Body: name(q)},
		QuestionText:    qt,
		GeneralFeedback: rich(""),
		DefaultGrade:    "1",
		Penalty:         "0.3333333",
		IDNumber:        q.ID,
	}
	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		multichoice(&mq, d, true)
	case question.SelectAllData:
		multichoice(&mq, d, false)
	case question.MatchingData:
		matching(&mq, d, false)
	case question.CategorizationData:
		// items become subquestions answered by their category
		matching(&mq, d, true)
	case question.DragAndDropData:
		if !d.HasSlots() {
			cs := make([]question.Choice, len(d))
			for i, a := range d {
				cs[i] = question.Choice{Text: a.Text, Correct: a.Correct.Flag}
			}
			multichoice(&mq, cs, false)
			break
		}
		mq.Type = "ddwtos"
		mq.ShuffleAnswers = "1"
		mq.Feedback = staticFeedback()
		mq.QuestionText.Text.Body = dropPlaces(mq.QuestionText.Text.Body, d)
		for _, a := range d {
			mq.DragBoxes = append(mq.DragBoxes, dragBox{Text: a.Text, Group: 1})
		}
	case question.EssayData:
		mq.Type = "essay"
		mq.Penalty = "0"
		mq.EssayOptions = &EssayOptions{
			ResponseFormat: "editor", ResponseRequired: 1, ResponseFieldLines: 15,
			GraderInfo: rich(""), ResponseTemplate: rich(""),
		}
	case question.UploadData:
		mq.Type = "essay"
		mq.Penalty = "0"
		mq.EssayOptions = &EssayOptions{
			ResponseFormat: "noinline", ResponseFieldLines: 15, Attachments: 1, AttachmentsRequired: 1,
			GraderInfo: rich(""), ResponseTemplate: rich(""),
		}
	case question.BowTieData:
		return mquestion{}, false, nil
	default:
		mq.Type = "description"
		mq.DefaultGrade = "0"
		mq.Penalty = "0"
	}
	return mq, true, nil
}

func multichoice(mq *mquestion, cs []question.Choice, single bool) {
	mq.Type = "multichoice"
	mq.Single = strconv.FormatBool(single)
	mq.ShuffleAnswers = "true"
	mq.AnswerNumbering = "abc"
	mq.Feedback = staticFeedback()
	right := 0
	for _, c := range cs {
		if c.Correct {
			right++
		}
	}
	for _, c := range cs {
		frac := "0"
		if c.Correct {
			frac = fraction(right)
		}
		mq.Answers = append(mq.Answers, answer{
			Fraction: frac,
			Format:   "html",
			Text:     text{Body: html.EscapeString(c.Text)},
			Feedback: rich(""),
		})
	}
}

// fraction is the share of one of n correct answers, in the precision Moodle
// accepts.
func fraction(n int) string {
	if n <= 1 {
		return "100"
	}
	s := strconv.FormatFloat(100/float64(n), 'f', 5, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s
}

func matching(mq *mquestion, ms []question.Match, byCategory bool) {
	mq.Type = "matching"
	mq.ShuffleAnswers = "true"
	mq.Feedback = staticFeedback()
	for _, m := range ms {
		if byCategory {
			for _, item := range m.Correct {
				mq.Subquestions = append(mq.Subquestions, subquestion{
					Format: "html",
					Text:   text{Body: html.EscapeString(item)},
					Answer: text{Body: m.Text},
				})
			}
			continue
		}
		ans := ""
		if len(m.Correct) > 0 {
			ans = m.Correct[0]
		}
		mq.Subquestions = append(mq.Subquestions, subquestion{
			Format: "html",
			Text:   text{Body: html.EscapeString(m.Text)},
			Answer: text{Body: ans},
		})
	}
}

// dropPlaces rewrites ___N___ slots as [[k]] where k numbers the first drag
// box answering slot N.
func dropPlaces(body string, d question.DragAndDropData) string {
	box := map[int]int{}
	for i, a := range d {
		if a.Correct.IsSlot {
			if _, ok := box[a.Correct.Slot]; !ok {
				box[a.Correct.Slot] = i + 1
			}
		}
	}
	return question.ReplaceSlots(body, func(id int) string {
		if k, ok := box[id]; ok {
			return fmt.Sprintf("[[%d]]", k)
		}
		return question.SlotMarker(id)
	})
}

func questionText(q question.Question, images map[string][]byte) (richText, error) {
	body := "<p>" + html.EscapeString(q.Text) + "</p>"
	switch d := q.Data.(type) {
	case question.EssayData:
		if d.HTML != "" {
			body = d.HTML
		}
	case question.UploadData:
		if d.HTML != "" {
			body = d.HTML
		}
	}
	if q.Text == "" && body == "<p></p>" {
		body = ""
	}
	rt := rich(body)
	for _, img := range q.Images {
		data, ok := images[img.Key]
		if !ok {
			return richText{}, fmt.Errorf("moodle: image %s of question %s was not loaded", img.Key, q.ID)
		}
		fname := path.Base(img.Filename)
		rt.Text.Body += fmt.Sprintf(`<p><img src="@@PLUGINFILE@@/%s" alt="%s"></p>`, fname, html.EscapeString(img.AltText))
		rt.Files = append(rt.Files, file{
			Name:     fname,
			Path:     "/",
			Encoding: "base64",
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return rt, nil
}

func name(q question.Question) string {
	r := []rune(formats.OneLine(q.Text))
	if len(r) == 0 {
		return q.Kind.DisplayName()
	}
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return string(r)
}
