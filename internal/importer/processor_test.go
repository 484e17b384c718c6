package importer_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("q%d", n)
	}
}

func newProcessor(store question.Store, blobs storage.BlobStore) *importer.Processor {
	return importer.NewProcessor(store, blobs, importer.Options{Workers: 2, NewID: seqIDs()})
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImportMultipleChoiceRow(t *testing.T) {
	store := question.NewInMemoryStore()
	p := newProcessor(store, storage.NewMemStore())
	csv := "IMPORT_ID,TEXT,TYPE,CORRECT_ANSWERS,ANSWER_1,ANSWER_2,ANSWER_3\n" +
		"1,Which one is true?,Multiple Choice,1,true,false,Orc\n"

	res, err := p.Import(context.Background(), "bank.csv", []byte(csv))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Committed {
		t.Fatalf("state = %s, report = %+v", res.State, res.Report)
	}
	q, err := store.Get(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	want := question.MultipleChoiceData{{Text: "true", Correct: true}, {Text: "false"}, {Text: "Orc"}}
	if q.Kind != question.KindMultipleChoice || !reflect.DeepEqual(q.Data, want) {
		t.Fatalf("stored %+v", q)
	}
}

func TestImportDuplicateIDRejectsWholeBatch(t *testing.T) {
	store := question.NewInMemoryStore()
	p := newProcessor(store, storage.NewMemStore())
	csv := "IMPORT_ID,TEXT,TYPE\n" +
		"1,First essay,Essay\n" +
		"1,Second essay,Essay\n"

	res, err := p.Import(context.Background(), "bank.csv", []byte(csv))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Rejected {
		t.Fatalf("state = %s", res.State)
	}
	re, ok := res.Report.Row("1")
	if !ok {
		t.Fatalf("no row error for 1: %+v", res.Report)
	}
	if re.Line != 3 || !reflect.DeepEqual(re.Errors["data"], []string{"duplicate IMPORT_ID 1 found on multiple rows"}) {
		t.Fatalf("row error = %+v", re)
	}
	qs, _ := store.List(context.Background(), question.ListOpts{})
	if len(qs) != 0 {
		t.Fatalf("store should be empty, has %d", len(qs))
	}
}

func TestImportMissingHeadersFailsFast(t *testing.T) {
	p := newProcessor(question.NewInMemoryStore(), nil)
	res, err := p.Import(context.Background(), "bank.csv", []byte("import_id,text\n1,hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Rejected || res.Report.CSV == nil {
		t.Fatalf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.Report.CSV.Missing, []string{"TYPE"}) || len(res.Report.Rows) != 0 {
		t.Fatalf("report = %+v", res.Report)
	}
}

func TestImportReportsEveryBadRow(t *testing.T) {
	p := newProcessor(question.NewInMemoryStore(), nil)
	csv := "IMPORT_ID,TEXT,TYPE,LEVEL,PART_OF\n" +
		"1,Fine,Essay,,\n" +
		"2,Odd,Hotspot,,\n" +
		"3,Bad level,Essay,9,\n" +
		"4,Orphan,Scenario,,77\n" +
		"5,Not a parent,Essay,,1\n"
	res, err := p.Import(context.Background(), "bank.csv", []byte(csv))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Report.Rows) != 4 {
		t.Fatalf("want 4 row errors, got %+v", res.Report.Rows)
	}
	if _, ok := res.Report.Row("1"); ok {
		t.Fatal("row 1 is valid")
	}
	cases := map[string][2]string{
		"2": {"type", "unknown type"},
		"3": {"level", "is not one of"},
		"4": {"part_of", "does not match an earlier IMPORT_ID"},
		"5": {"part_of", "only a Stimulus Case Study can have children"},
	}
	for id, c := range cases {
		re, _ := res.Report.Row(id)
		if !strings.Contains(strings.Join(re.Errors[c[0]], "|"), c[1]) {
			t.Errorf("row %s %s = %v, want %q", id, c[0], re.Errors[c[0]], c[1])
		}
	}
}

func TestImportCaseStudyPresentationOrder(t *testing.T) {
	store := question.NewInMemoryStore()
	p := newProcessor(store, nil)
	csv := "IMPORT_ID,TEXT,TYPE,PART_OF,PRESENTATION_ORDER,CORRECT_ANSWERS,ANSWER_1,ANSWER_2\n" +
		"cs,,Stimulus Case Study,,,,,\n" +
		"sc,A patient arrives,Scenario,cs,2,,,\n" +
		"mc,First step?,Multiple Choice,cs,1,2,wait,triage\n" +
		"es,Explain,Essay,cs,,,,\n"

	res, err := p.Import(context.Background(), "bank.csv", []byte(csv))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Committed {
		t.Fatalf("report = %+v", res.Report)
	}
	set, err := store.Load(context.Background(), []string{"q1"})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, c := range set.Children("q1") {
		got = append(got, c.ID)
	}
	// PRESENTATION_ORDER wins; the essay falls back to its sibling position.
	if !reflect.DeepEqual(got, []string{"q3", "q2", "q4"}) {
		t.Fatalf("children = %v", got)
	}
	cs, _ := set.Get("q1")
	if d, ok := cs.Data.(question.CaseStudyData); !ok || len(d) != 3 {
		t.Fatalf("case study data = %#v", cs.Data)
	}
}

func TestImportZipImages(t *testing.T) {
	store := question.NewInMemoryStore()
	blobs := storage.NewMemStore()
	p := newProcessor(store, blobs)
	data := zipOf(t, map[string]string{
		"bank/questions.csv": "IMPORT_ID,TEXT,TYPE,IMAGE_PATH,ALT_TEXT\n1,Label the heart,Essay,img/heart.png,A heart\n",
		"bank/img/heart.png": "\x89PNG fake",
	})

	res, err := p.Import(context.Background(), "bank.zip", data)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Committed {
		t.Fatalf("report = %+v", res.Report)
	}
	if !reflect.DeepEqual(blobs.Keys(), []string{"questions/q1/heart.png"}) {
		t.Fatalf("blob keys = %v", blobs.Keys())
	}
	q, _ := store.Get(context.Background(), "q1")
	want := []question.Image{{Filename: "heart.png", AltText: "A heart", Key: "questions/q1/heart.png"}}
	if !reflect.DeepEqual(q.Images, want) {
		t.Fatalf("images = %+v", q.Images)
	}
}

func TestImportImageErrors(t *testing.T) {
	p := newProcessor(question.NewInMemoryStore(), storage.NewMemStore())

	data := zipOf(t, map[string]string{
		"questions.csv": "IMPORT_ID,TEXT,TYPE,IMAGE_PATH\n1,Label,Essay,lung.png\n",
		"img/heart.png": "png",
	})
	res, err := p.Import(context.Background(), "bank.zip", data)
	if err != nil {
		t.Fatal(err)
	}
	re, _ := res.Report.Row("1")
	if msg := strings.Join(re.Errors["images"], "|"); !strings.Contains(msg, "lung.png was not found") || !strings.Contains(msg, "img/heart.png") {
		t.Fatalf("images error = %q", msg)
	}

	res, err = p.Import(context.Background(), "bank.csv", []byte("IMPORT_ID,TEXT,TYPE,IMAGE_PATH\n1,Label,Essay,heart.png\n"))
	if err != nil {
		t.Fatal(err)
	}
	re, _ = res.Report.Row("1")
	if !strings.Contains(strings.Join(re.Errors["images"], "|"), "bare table") {
		t.Fatalf("images error = %v", re.Errors)
	}
}

type failingStore struct {
	question.Store
}

func (failingStore) CommitBatch(context.Context, []question.Question, []question.Edge) error {
	return errors.New("disk full")
}

func TestImportCommitFailureRemovesBlobs(t *testing.T) {
	blobs := storage.NewMemStore()
	p := newProcessor(failingStore{question.NewInMemoryStore()}, blobs)
	data := zipOf(t, map[string]string{
		"questions.csv": "IMPORT_ID,TEXT,TYPE,IMAGE_PATH\n1,Label,Essay,heart.png\n",
		"heart.png":     "png",
	})
	if _, err := p.Import(context.Background(), "bank.zip", data); err == nil {
		t.Fatal("expected commit error")
	}
	if keys := blobs.Keys(); len(keys) != 0 {
		t.Fatalf("orphaned blobs: %v", keys)
	}
}

func TestImportXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"IMPORT_ID", "TEXT", "TYPE", "CORRECT_ANSWERS", "ANSWER_1", "ANSWER_2"},
		{"1", "Pick the mammal", "SATA", "1,2", "whale", "bat"},
	}
	for i, r := range rows {
		if err := f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &r); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	store := question.NewInMemoryStore()
	res, err := newProcessor(store, nil).Import(context.Background(), "bank.xlsx", buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != importer.Committed {
		t.Fatalf("report = %+v", res.Report)
	}
	q, _ := store.Get(context.Background(), "q1")
	if d, ok := q.Data.(question.SelectAllData); !ok || len(d) != 2 || !d[1].Correct {
		t.Fatalf("data = %#v", q.Data)
	}
}

func TestImportUnsupportedAndEmpty(t *testing.T) {
	p := newProcessor(question.NewInMemoryStore(), nil)
	for name, body := range map[string]string{
		"bank.pdf": "%PDF-1.4",
		"bank.csv": "",
	} {
		res, err := p.Import(context.Background(), name, []byte(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.State != importer.Rejected || res.Report.CSV == nil || res.Report.CSV.Message == "" {
			t.Fatalf("%s: result = %+v", name, res)
		}
	}
}
