package export_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/viva/internal/archive"
	"github.com/mind-engage/viva/internal/export"
	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/question/questiontest"
	"github.com/mind-engage/viva/internal/storage"
)

var planPNG = []byte("\x89PNG plan")

func newExporter(t *testing.T) *export.Exporter {
	t.Helper()
	blobs := storage.NewMemStore()
	if _, err := blobs.Put(context.Background(), "questions/up/plan.png", bytes.NewReader(planPNG), int64(len(planPNG)), "image/png"); err != nil {
		t.Fatal(err)
	}
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }
	return export.New(nil, blobs, nil).WithClock(clock)
}

func TestFormatsListsEveryBackend(t *testing.T) {
	want := []string{"blackboard", "canvas", "csv", "d2l", "md", "moodle", "txt"}
	if got := newExporter(t).Formats(); !reflect.DeepEqual(got, want) {
		t.Fatalf("formats = %v", got)
	}
}

func TestTextResult(t *testing.T) {
	res, err := newExporter(t).Export(context.Background(), questiontest.BankSet(t), "md", export.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsFile || res.MimeType != "text/plain" {
		t.Fatalf("result = %+v", res)
	}
	if res.Filename != "questions-md-2024-03-09T14-05-06.md" {
		t.Fatalf("filename = %q", res.Filename)
	}
	if !strings.HasPrefix(string(res.Data), "## Question Type: Stimulus Case Study\n") {
		t.Fatalf("data = %q", res.Data[:40])
	}
}

func TestArchiveCarriesImages(t *testing.T) {
	for _, format := range []string{"canvas", "d2l", "csv"} {
		res, err := newExporter(t).Export(context.Background(), questiontest.BankSet(t), format, export.Options{})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !res.IsFile || res.MimeType != "application/zip" || !strings.HasSuffix(res.Filename, ".zip") {
			t.Fatalf("%s result = %s %s %v", format, res.Filename, res.MimeType, res.IsFile)
		}
		names, err := archive.Names(res.Data)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, n := range names {
			found = found || n == "images/up/plan.png"
		}
		if !found {
			t.Errorf("%s archive = %v", format, names)
		}
	}
}

func TestStrictRefusesSkips(t *testing.T) {
	e := newExporter(t)
	res, err := e.Export(context.Background(), questiontest.BankSet(t), "blackboard", export.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Skipped) == 0 {
		t.Fatal("expected skipped questions")
	}

	_, err = e.Export(context.Background(), questiontest.BankSet(t), "blackboard", export.Options{Strict: true})
	var uk *formats.UnsupportedKindError
	if !errors.As(err, &uk) {
		t.Fatalf("err = %v", err)
	}
	if uk.QuestionID != "cs" || uk.Kind != question.KindStimulusCaseStudy {
		t.Fatalf("unsupported = %+v", uk)
	}
}

func TestExportErrors(t *testing.T) {
	e := newExporter(t)
	if _, err := e.Export(context.Background(), questiontest.BankSet(t), "pdf", export.Options{}); !errors.Is(err, formats.ErrUnknownFormat) {
		t.Errorf("unknown format err = %v", err)
	}
	empty := questiontest.Set(t, nil, nil)
	if _, err := e.Export(context.Background(), empty, "txt", export.Options{}); !errors.Is(err, export.ErrEmptyPayload) {
		t.Errorf("empty set err = %v", err)
	}
	if _, err := e.Export(context.Background(), nil, "txt", export.Options{}); !errors.Is(err, export.ErrEmptyPayload) {
		t.Errorf("nil set err = %v", err)
	}

	// image referenced but absent from the blob store
	bare := export.New(nil, storage.NewMemStore(), nil)
	if _, err := bare.Export(context.Background(), questiontest.BankSet(t), "moodle", export.Options{}); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("missing blob err = %v", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	res, err := newExporter(t).Export(context.Background(), questiontest.BankSet(t), "csv", export.Options{})
	if err != nil {
		t.Fatal(err)
	}

	store := question.NewInMemoryStore()
	blobs := storage.NewMemStore()
	p := importer.NewProcessor(store, blobs, importer.Options{})
	imp, err := p.Import(context.Background(), res.Filename, res.Data)
	if err != nil {
		t.Fatal(err)
	}
	if imp.State != importer.Committed {
		t.Fatalf("state = %s, report = %+v", imp.State, imp.Report)
	}
	set, err := store.Load(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	orig := questiontest.BankSet(t).Questions()
	back := set.Questions()
	if len(back) != len(orig) {
		t.Fatalf("re-imported %d questions, want %d", len(back), len(orig))
	}
	for i, want := range orig {
		got := back[i]
		if got.Kind != want.Kind || got.Text != want.Text || got.Level != want.Level {
			t.Errorf("%s: got %s %q level %q", want.ID, got.Kind, got.Text, got.Level)
			continue
		}
		if want.Kind == question.KindStimulusCaseStudy {
			continue
		}
		if !reflect.DeepEqual(got.Data, want.Data) {
			t.Errorf("%s data = %#v\nwant %#v", want.ID, got.Data, want.Data)
		}
		if !reflect.DeepEqual(got.Keywords, want.Keywords) {
			t.Errorf("%s keywords = %v", want.ID, got.Keywords)
		}
		if len(got.Images) != len(want.Images) {
			t.Errorf("%s images = %v", want.ID, got.Images)
		}
	}

	var up question.Question
	for _, q := range back {
		if q.Kind == question.KindUpload {
			up = q
		}
	}
	img := up.Images[0]
	if img.Filename != "plan.png" || img.AltText != "Template" {
		t.Fatalf("image = %+v", img)
	}
	data, err := storage.ReadAll(context.Background(), blobs, img.Key)
	if err != nil || !bytes.Equal(data, planPNG) {
		t.Fatalf("blob = %q, %v", data, err)
	}
}

func TestEveryFormatIsDeterministic(t *testing.T) {
	e := newExporter(t)
	for _, format := range e.Formats() {
		first, err := e.Export(context.Background(), questiontest.BankSet(t), format, export.Options{})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		for range 3 {
			again, err := e.Export(context.Background(), questiontest.BankSet(t), format, export.Options{})
			if err != nil {
				t.Fatalf("%s: %v", format, err)
			}
			if !bytes.Equal(first.Data, again.Data) {
				t.Fatalf("%s output differs between runs", format)
			}
		}
	}
}

func TestCSVRoundTripKeepsAwkwardCells(t *testing.T) {
	qs := []question.Question{
		{ID: "cat", Kind: question.KindCategorization, Text: "Sort the places",
			Data: question.CategorizationData{
				{Text: "Cities", Correct: []string{"Washington, D.C.", "Paris"}},
				{Text: `Rivers, "big"`, Correct: []string{"Nile"}},
			}},
		{ID: "ess", Kind: question.KindEssay, Text: "Explain", Data: question.EssayData{HTML: ""}},
		{ID: "up", Kind: question.KindUpload, Text: "Attach, then submit", Data: question.UploadData{HTML: "<p>a, b</p>"}},
	}
	set := questiontest.Set(t, qs, nil)
	res, err := newExporter(t).Export(context.Background(), set, "csv", export.Options{})
	if err != nil {
		t.Fatal(err)
	}

	store := question.NewInMemoryStore()
	imp, err := importer.NewProcessor(store, storage.NewMemStore(), importer.Options{}).Import(context.Background(), res.Filename, res.Data)
	if err != nil {
		t.Fatal(err)
	}
	if imp.State != importer.Committed {
		t.Fatalf("state = %s, report = %+v", imp.State, imp.Report)
	}
	back, err := store.Load(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := back.Questions()
	if len(got) != len(qs) {
		t.Fatalf("re-imported %d questions", len(got))
	}
	for i, want := range qs {
		if got[i].Kind != want.Kind || got[i].Text != want.Text || !reflect.DeepEqual(got[i].Data, want.Data) {
			t.Errorf("%s came back as %s %q %#v", want.ID, got[i].Kind, got[i].Text, got[i].Data)
		}
	}
}
