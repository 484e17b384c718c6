// Package canvas builds a Canvas quiz import package: QTI 1.2 XML plus an
// imsmanifest.xml naming every entry of the archive.
package canvas

import (
	"encoding/xml"
	"fmt"
	"html"
	"strings"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/question"
)

const (
	qtiNS      = "http://www.imsglobal.org/xsd/ims_qtiasiv1p2"
	manifestNS = "http://www.imsglobal.org/xsd/imsccv1p1/imscp_v1p1"
	bankIdent  = "viva_questions"
	// QuizPath is the QTI document inside the archive.
	QuizPath = bankIdent + "/" + bankIdent + ".xml"
)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Info() formats.Info {
	return formats.Info{Key: "canvas", Extension: "zip", MimeType: "application/zip", ProducesArchive: true}
}

type unitItems struct {
	items   []qtiItem
	skipped []question.Question
}

func (Backend) Format(job *formats.Job) (*formats.Output, error) {
	units, err := formats.RenderUnits(formats.Units(job.Set), 4, func(u formats.Unit) (unitItems, error) {
		var out unitItems
		for _, q := range append([]question.Question{u.Question}, u.Children...) {
			it, ok := Item(q)
			if !ok {
				out.skipped = append(out.skipped, q)
				continue
			}
			out.items = append(out.items, it)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	doc := questestinterop{
		Xmlns: qtiNS,
		Assessment: assessment{
			Ident:   bankIdent,
			Title:   "Viva questions",
			Section: qtiSection{Ident: "root_section"},
		},
	}
	var skipped formats.Skipper
	for _, u := range units {
		doc.Assessment.Section.Items = append(doc.Assessment.Section.Items, u.items...)
		for _, q := range u.skipped {
			skipped.Add(q)
		}
	}
	body, err := marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canvas: encode quiz: %w", err)
	}
	manifest, err := marshal(buildManifest(job.Set))
	if err != nil {
		return nil, fmt.Errorf("canvas: encode manifest: %w", err)
	}
	return &formats.Output{
		Body:      body,
		EntryName: QuizPath,
		Extra:     []formats.File{{Name: "imsmanifest.xml", Data: manifest}},
		Skipped:   skipped.List(),
	}, nil
}

func marshal(v any) ([]byte, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(b, '\n')...), nil
}

func buildManifest(set *question.Set) imsManifest {
	mf := imsManifest{
		Identifier:    bankIdent + "_manifest",
		Xmlns:         manifestNS,
		Schema:        "IMS Content",
		SchemaVersion: "1.1.3",
		Resources: []imsResource{{
			Identifier: bankIdent,
			Type:       "imsqti_xmlv1p2",
			Href:       QuizPath,
			Files:      []imsFile{{Href: QuizPath}},
		}},
	}
	n := 0
	set.Walk(func(q question.Question, _ *question.Question) {
		for _, img := range q.Images {
			n++
			p := formats.ImagePath(q.ID, img.Filename)
			mf.Resources = append(mf.Resources, imsResource{
				Identifier: fmt.Sprintf("res_image_%d", n),
				Type:       "webcontent",
				Href:       p,
				Files:      []imsFile{{Href: p}},
			})
		}
	})
	return mf
}

func ident(q question.Question) string {
	return "q" + strings.ReplaceAll(q.ID, "-", "")
}

// Item converts one question to a QTI item, or reports false when Canvas
// has no matching question type.
func Item(q question.Question) (qtiItem, bool) {
	it := qtiItem{
		Ident: ident(q),
		Title: q.Kind.DisplayName(),
		Presentation: presentation{
			Material: htmlMaterial(stem(q)),
		},
	}
	var qtype string
	switch d := q.Data.(type) {
	case question.MultipleChoiceData:
		qtype = "multiple_choice_question"
		choiceItem(&it, d, "Single")
	case question.SelectAllData:
		qtype = "multiple_answers_question"
		choiceItem(&it, d, "Multiple")
	case question.DragAndDropData:
		// slotted drag and drop has no Canvas equivalent
		if d.HasSlots() {
			return qtiItem{}, false
		}
		qtype = "multiple_answers_question"
		cs := make([]question.Choice, len(d))
		for i, a := range d {
			cs[i] = question.Choice{Text: a.Text, Correct: a.Correct.Flag}
		}
		choiceItem(&it, cs, "Multiple")
	case question.MatchingData:
		qtype = "matching_question"
		var pairs [][2]string
		for _, m := range d {
			if len(m.Correct) > 0 {
				pairs = append(pairs, [2]string{m.Text, m.Correct[0]})
			}
		}
		matchingItem(&it, pairs)
	case question.CategorizationData:
		// each item is matched to its category
		qtype = "matching_question"
		var pairs [][2]string
		for _, m := range d {
			for _, c := range m.Correct {
				pairs = append(pairs, [2]string{c, m.Text})
			}
		}
		matchingItem(&it, pairs)
	case question.EssayData:
		qtype = "essay_question"
		it.Presentation.Str = &responseStr{
			Ident:       "response1",
			Cardinality: "Single",
			Label:       fibLabel{Ident: "answer1", Rshuffle: "No"},
		}
	case question.UploadData:
		qtype = "file_upload_question"
	case question.BowTieData:
		return qtiItem{}, false
	default:
		// scenario and case-study stem
		qtype = "text_only_question"
	}
	points := "1.0"
	if qtype == "text_only_question" {
		points = "0.0"
	}
	it.Metadata = []metaField{
		{Label: "question_type", Entry: qtype},
		{Label: "points_possible", Entry: points},
		{Label: "original_answer_ids", Entry: strings.Join(answerIDs(it), ",")},
		{Label: "assessment_question_identifierref", Entry: "ref_" + it.Ident},
	}
	return it, true
}

func answerIDs(it qtiItem) []string {
	var out []string
	for _, l := range it.Presentation.Lids {
		for _, lab := range l.Labels {
			out = append(out, lab.Ident)
		}
	}
	return out
}

func scoreOutcome() decvar {
	return decvar{MaxValue: "100", MinValue: "0", VarName: "SCORE", VarType: "Decimal"}
}

func choiceItem(it *qtiItem, cs []question.Choice, cardinality string) {
	lid := responseLid{Ident: "response1", Cardinality: cardinality}
	and := &andCond{}
	for i, c := range cs {
		id := fmt.Sprintf("%s_a%d", it.Ident, i+1)
		lid.Labels = append(lid.Labels, responseLabel{Ident: id, Material: textMaterial(c.Text)})
		ve := varequal{RespIdent: "response1", Value: id}
		if c.Correct {
			and.Equal = append(and.Equal, ve)
		} else {
			and.Not = append(and.Not, notCond{Equal: ve})
		}
	}
	it.Presentation.Lids = []responseLid{lid}

	cond := respcondition{Continue: "No", Set: setvar{Action: "Set", VarName: "SCORE", Value: "100"}}
	if cardinality == "Single" {
		cond.Var.Equal = and.Equal
	} else {
		cond.Var.And = and
	}
	it.Resprocessing = &resprocessing{Outcomes: scoreOutcome(), Conditions: []respcondition{cond}}
}

// matchingItem renders one dropdown per left prompt; the options are the
// distinct right values in first-seen order.
func matchingItem(it *qtiItem, pairs [][2]string) {
	var options []string
	optionID := map[string]string{}
	for _, p := range pairs {
		if _, ok := optionID[p[1]]; !ok {
			optionID[p[1]] = fmt.Sprintf("%s_m%d", it.Ident, len(options)+1)
			options = append(options, p[1])
		}
	}
	rp := &resprocessing{Outcomes: scoreOutcome()}
	share := "0"
	if len(pairs) > 0 {
		share = fmt.Sprintf("%.2f", 100/float64(len(pairs)))
	}
	for i, p := range pairs {
		lid := responseLid{
			Ident:       fmt.Sprintf("response_%s_%d", it.Ident, i+1),
			Cardinality: "Single",
		}
		m := textMaterial(p[0])
		lid.Material = &m
		for _, o := range options {
			lid.Labels = append(lid.Labels, responseLabel{Ident: optionID[o], Material: textMaterial(o)})
		}
		it.Presentation.Lids = append(it.Presentation.Lids, lid)
		rp.Conditions = append(rp.Conditions, respcondition{
			Var: conditionvar{Equal: []varequal{{RespIdent: lid.Ident, Value: optionID[p[1]]}}},
			Set: setvar{Action: "Add", VarName: "SCORE", Value: share},
		})
	}
	it.Resprocessing = rp
}

func textMaterial(s string) material {
	return material{Text: mattext{Type: "text/plain", Body: s}}
}

func htmlMaterial(s string) material {
	return material{Text: mattext{Type: "text/html", Body: s}}
}

// stem is the item's HTML body with image references appended.
func stem(q question.Question) string {
	var b strings.Builder
	switch d := q.Data.(type) {
	case question.EssayData:
		b.WriteString(orParagraphs(d.HTML, q.Text))
	case question.UploadData:
		b.WriteString(orParagraphs(d.HTML, q.Text))
	default:
		b.WriteString(orParagraphs("", q.Text))
	}
	for _, img := range q.Images {
		fmt.Fprintf(&b, `<p><img src="%s" alt="%s"></p>`,
			html.EscapeString(formats.ImagePath(q.ID, img.Filename)), html.EscapeString(img.AltText))
	}
	return b.String()
}

func orParagraphs(htmlBody, text string) string {
	if htmlBody != "" {
		return htmlBody
	}
	if text == "" {
		return ""
	}
	return "<p>" + html.EscapeString(text) + "</p>"
}
