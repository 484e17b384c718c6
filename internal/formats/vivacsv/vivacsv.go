// Package vivacsv exports questions in the import column contract so a bank
// can be moved between installations and re-imported unchanged.
package vivacsv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
)

const EntryName = "questions.csv"

var baseColumns = []string{
	importer.ColImportID,
	importer.ColType,
	importer.ColText,
	importer.ColLevel,
	importer.ColKeywords,
	importer.ColSubjects,
	importer.ColPartOf,
	importer.ColPresentationOrder,
	importer.ColImagePath,
	importer.ColAltText,
	importer.ColHTML,
	importer.ColCorrectAnswers,
}

// families are the numbered column groups, in header order.
var families = []string{"ANSWER_", "LEFT_", "RIGHT_", "CENTER_"}

var bowTieColumns = []string{
	"CENTER_LABEL", "CENTER_ANSWERS",
	"LEFT_LABEL", "LEFT_ANSWERS",
	"RIGHT_LABEL", "RIGHT_ANSWERS",
}

type Backend struct{}

func New() Backend { return Backend{} }

// The table travels in a zip so IMAGE_PATH entries resolve on re-import.
func (Backend) Info() formats.Info {
	return formats.Info{Key: "csv", Extension: "zip", MimeType: "application/zip", ProducesArchive: true}
}

func (Backend) Format(job *formats.Job) (*formats.Output, error) {
	order := map[string]int{}
	for _, e := range job.Set.Edges() {
		order[e.ChildID] = e.Order
	}

	var rows []map[string]string
	widths := map[string]int{}
	bowTie := false
	job.Set.Walk(func(q question.Question, parent *question.Question) {
		r := Row(q)
		if parent != nil {
			r[importer.ColPartOf] = parent.ID
			r[importer.ColPresentationOrder] = strconv.Itoa(order[q.ID])
		}
		for col := range r {
			for _, f := range families {
				if n, ok := familyIndex(col, f); ok && n > widths[f] {
					widths[f] = n
				}
			}
		}
		if q.Kind == question.KindBowTie {
			bowTie = true
		}
		rows = append(rows, r)
	})

	header := append([]string{}, baseColumns...)
	for _, f := range families {
		for n := 1; n <= widths[f]; n++ {
			header = append(header, f+strconv.Itoa(n))
		}
	}
	if bowTie {
		header = append(header, bowTieColumns...)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("csv export: %w", err)
	}
	for _, r := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = r[col]
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("csv export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv export: %w", err)
	}
	return &formats.Output{Body: buf.Bytes(), EntryName: EntryName}, nil
}

func familyIndex(col, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(col, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil && n > 0
}

// Row renders the cells of one question, keyed by column.
func Row(q question.Question) map[string]string {
	r := map[string]string{
		importer.ColImportID: q.ID,
		importer.ColType:     q.Kind.DisplayName(),
		importer.ColText:     q.Text,
		importer.ColLevel:    q.Level,
		importer.ColKeywords: strings.Join(q.Keywords, ", "),
		importer.ColSubjects: strings.Join(q.Subjects, ", "),
	}
	if len(q.Images) > 0 {
		paths := make([]string, len(q.Images))
		alts := make([]string, len(q.Images))
		for i, img := range q.Images {
			paths[i] = formats.ImagePath(q.ID, img.Filename)
			alts[i] = img.AltText
		}
		r[importer.ColImagePath] = strings.Join(paths, ";")
		r[importer.ColAltText] = strings.Join(alts, ";")
	}

	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		choices(r, "ANSWER_", importer.ColCorrectAnswers, d)
	case question.SelectAllData:
		choices(r, "ANSWER_", importer.ColCorrectAnswers, d)
	case question.MatchingData:
		pairs(r, d)
	case question.CategorizationData:
		pairs(r, d)
	case question.DragAndDropData:
		var correct []string
		for i, a := range d {
			n := strconv.Itoa(i + 1)
			r["ANSWER_"+n] = a.Text
			switch {
			case a.Correct.IsSlot:
				correct = append(correct, n+":"+strconv.Itoa(a.Correct.Slot))
			case a.Correct.Flag:
				correct = append(correct, n)
			}
		}
		r[importer.ColCorrectAnswers] = strings.Join(correct, ",")
	case question.BowTieData:
		for _, g := range []struct {
			dir   string
			group question.BowTieGroup
		}{{"CENTER", d.Center}, {"LEFT", d.Left}, {"RIGHT", d.Right}} {
			r[g.dir+"_LABEL"] = g.group.Label
			choices(r, g.dir+"_", g.dir+"_ANSWERS", g.group.Answers)
		}
	case question.EssayData:
		r[importer.ColHTML] = d.HTML
	case question.UploadData:
		r[importer.ColHTML] = d.HTML
	}
	return r
}

func choices(r map[string]string, prefix, correctCol string, cs []question.Choice) {
	var correct []string
	for i, c := range cs {
		n := strconv.Itoa(i + 1)
		r[prefix+n] = c.Text
		if c.Correct {
			correct = append(correct, n)
		}
	}
	r[correctCol] = strings.Join(correct, ",")
}

func pairs(r map[string]string, ms []question.Match) {
	for i, m := range ms {
		n := strconv.Itoa(i + 1)
		r["LEFT_"+n] = m.Text
		r["RIGHT_"+n] = importer.JoinItems(m.Correct)
	}
}
