package canvas_test

import (
	"encoding/xml"
	"reflect"
	"strings"
	"testing"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/formats/canvas"
	"github.com/mind-engage/viva/internal/question/questiontest"
)

// minimal read-side view of the QTI document
type quizDoc struct {
	Items []struct {
		Ident  string `xml:"ident,attr"`
		Fields []struct {
			Label string `xml:"fieldlabel"`
			Entry string `xml:"fieldentry"`
		} `xml:"itemmetadata>qtimetadata>qtimetadatafield"`
		Body string `xml:"presentation>material>mattext"`
	} `xml:"assessment>section>item"`
}

type manifestDoc struct {
	Resources []struct {
		Href string `xml:"href,attr"`
	} `xml:"resources>resource"`
}

func format(t *testing.T) *formats.Output {
	t.Helper()
	out, err := canvas.New().Format(&formats.Job{Set: questiontest.BankSet(t)})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestQuizItems(t *testing.T) {
	out := format(t)
	if out.EntryName != canvas.QuizPath {
		t.Fatalf("entry = %q", out.EntryName)
	}
	if !strings.HasPrefix(string(out.Body), xml.Header) {
		t.Fatal("missing XML header")
	}
	var doc quizDoc
	if err := xml.Unmarshal(out.Body, &doc); err != nil {
		t.Fatal(err)
	}
	types := map[string]string{}
	for _, it := range doc.Items {
		for _, f := range it.Fields {
			if f.Label == "question_type" {
				types[it.Ident] = f.Entry
			}
		}
	}
	want := map[string]string{
		"qcs":      "text_only_question",
		"qsc":      "text_only_question",
		"qcsmc":    "multiple_choice_question",
		"qmc":      "multiple_choice_question",
		"qsata":    "multiple_answers_question",
		"qmat":     "matching_question",
		"qcat":     "matching_question",
		"qdndbool": "multiple_answers_question",
		"qess":     "essay_question",
		"qup":      "file_upload_question",
	}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("question types = %v\nwant %v", types, want)
	}

	var skipped []string
	for _, s := range out.Skipped {
		skipped = append(skipped, s.QuestionID)
	}
	if !reflect.DeepEqual(skipped, []string{"dnd", "bow"}) {
		t.Fatalf("skipped = %v", skipped)
	}
}

func TestImagesReferencedAndListed(t *testing.T) {
	out := format(t)
	var doc quizDoc
	if err := xml.Unmarshal(out.Body, &doc); err != nil {
		t.Fatal(err)
	}
	var upload string
	for _, it := range doc.Items {
		if it.Ident == "qup" {
			upload = it.Body
		}
	}
	if !strings.Contains(upload, `<img src="images/up/plan.png" alt="Template">`) {
		t.Fatalf("upload body = %q", upload)
	}

	if len(out.Extra) != 1 || out.Extra[0].Name != "imsmanifest.xml" {
		t.Fatalf("extra = %v", out.Extra)
	}
	var mf manifestDoc
	if err := xml.Unmarshal(out.Extra[0].Data, &mf); err != nil {
		t.Fatal(err)
	}
	var hrefs []string
	for _, r := range mf.Resources {
		hrefs = append(hrefs, r.Href)
	}
	if want := []string{canvas.QuizPath, "images/up/plan.png"}; !reflect.DeepEqual(hrefs, want) {
		t.Fatalf("manifest = %v, want %v", hrefs, want)
	}
}

func TestItemSkipsBowTie(t *testing.T) {
	qs, _ := questiontest.Bank()
	for _, q := range qs {
		_, ok := canvas.Item(q)
		if wantOK := q.ID != "bow" && q.ID != "dnd"; ok != wantOK {
			t.Errorf("Item(%s) ok = %v", q.ID, ok)
		}
	}
}
