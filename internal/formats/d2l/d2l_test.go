package d2l_test

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"strings"
	"testing"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/formats/d2l"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/question/questiontest"
)

func TestMultipleChoiceBlock(t *testing.T) {
	qs, _ := questiontest.Bank()
	rows, ok := d2l.Rows(questiontest.Only(qs, "mc")[0])
	if !ok {
		t.Fatal("multiple choice not supported")
	}
	want := [][]string{
		{"NewQuestion", "MC"},
		{"ID", "mc"},
		{"Title", "Q1"},
		{"QuestionText", "<p>Q1</p>", "HTML"},
		{"Points", "1"},
		{"Option", "100", "A", "HTML"},
		{"Option", "0", "B", "HTML"},
		{""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %q\nwant %q", rows, want)
	}
}

func TestOptionTextIsEscaped(t *testing.T) {
	q := questiontest.MultipleChoice("lt", "Pick <one>", questiontest.Right("a<b"), questiontest.Wrong("x & y"))
	rows, ok := d2l.Rows(q)
	if !ok {
		t.Fatal("multiple choice not supported")
	}
	want := [][]string{
		{"QuestionText", "<p>Pick &lt;one&gt;</p>", "HTML"},
		{"Points", "1"},
		{"Option", "100", "a&lt;b", "HTML"},
		{"Option", "0", "x &amp; y", "HTML"},
	}
	if got := rows[3:7]; !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %q\nwant %q", got, want)
	}
}

func TestCategorizationUsesMatchLines(t *testing.T) {
	qs, _ := questiontest.Bank()
	rows, ok := d2l.Rows(questiontest.Only(qs, "cat")[0])
	if !ok {
		t.Fatal("categorization not supported")
	}
	tail := rows[len(rows)-6:]
	want := [][]string{
		{"Choice", "1", "Fruit"},
		{"Match", "1", "apple"},
		{"Match", "1", "pear"},
		{"Choice", "2", "Veg"},
		{"Match", "2", "leek"},
		{""},
	}
	if !reflect.DeepEqual(tail, want) {
		t.Fatalf("tail = %q", tail)
	}
	if rows[0][1] != "M" || rows[5][0] != "Scoring" {
		t.Fatalf("head = %q", rows[:6])
	}
}

func TestTitleIsTruncated(t *testing.T) {
	q := questiontest.MultipleChoice("long", strings.Repeat("é", 80), questiontest.Right("a"))
	rows, _ := d2l.Rows(q)
	title := []rune(rows[2][1])
	if len(title) != 60 || !strings.HasSuffix(string(title), "...") {
		t.Fatalf("title = %q", string(title))
	}
}

func TestFormatBank(t *testing.T) {
	out, err := d2l.New().Format(&formats.Job{Set: questiontest.BankSet(t)})
	if err != nil {
		t.Fatal(err)
	}
	if out.EntryName != d2l.EntryName {
		t.Fatalf("entry = %q", out.EntryName)
	}
	r := csv.NewReader(bytes.NewReader(out.Body))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for i, rec := range records {
		if rec[0] == "ID" {
			ids = append(ids, rec[1])
		}
		if rec[0] == "Image" && rec[1] != "images/up/plan.png" {
			t.Errorf("record %d image = %q", i, rec[1])
		}
	}
	if want := []string{"cs-mc", "mc", "sata", "mat", "cat", "dnd-bool", "ess"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	var skipped []question.Kind
	for _, s := range out.Skipped {
		skipped = append(skipped, s.Kind)
	}
	want := []question.Kind{
		question.KindStimulusCaseStudy, question.KindScenario,
		question.KindDragAndDrop, question.KindBowTie, question.KindUpload,
	}
	if !reflect.DeepEqual(skipped, want) {
		t.Fatalf("skipped = %v", skipped)
	}
}
