package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	api "github.com/mind-engage/viva/internal/api/http"
	"github.com/mind-engage/viva/internal/archive"
	auth "github.com/mind-engage/viva/internal/auth/middleware"
	"github.com/mind-engage/viva/internal/export"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
	syncx "github.com/mind-engage/viva/internal/sync"
)

type server struct {
	t     *testing.T
	h     http.Handler
	auth  *auth.AuthService
	store question.Store
	blobs *storage.MemStore
}

func newServer(t *testing.T, maxUpload int64) *server {
	t.Helper()
	return newServerWith(t, maxUpload, nil)
}

// newServerWith lets a test adjust the dependencies before the router is built.
func newServerWith(t *testing.T, maxUpload int64, adjust func(*api.Deps)) *server {
	t.Helper()
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("q%d", n)
	}
	store := question.NewInMemoryStore()
	blobs := storage.NewMemStore()
	svc := auth.NewAuthService("test-secret")
	clock := func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	deps := api.Deps{
		Auth:           svc,
		Store:          store,
		Blobs:          blobs,
		Importer:       importer.NewProcessor(store, blobs, importer.Options{Workers: 2, NewID: ids}),
		Exporter:       export.New(nil, blobs, nil).WithClock(clock),
		MaxUploadBytes: maxUpload,
		NewID:          ids,
	}
	if adjust != nil {
		adjust(&deps)
	}
	h := api.NewRouter(deps)
	return &server{t: t, h: h, auth: svc, store: store, blobs: blobs}
}

func (s *server) do(role, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		tok, err := s.auth.IssueJWT("tester", role)
		if err != nil {
			s.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(role, filename string, data []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		s.t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return s.do(role, http.MethodPost, "/questions/import", buf.Bytes(), mw.FormDataContentType())
}

const bankCSV = "IMPORT_ID,TEXT,TYPE,CORRECT_ANSWERS,ANSWER_1,ANSWER_2,PART_OF,KEYWORDS\n" +
	"1,Ward round,Stimulus Case Study,,,,,\n" +
	"2,First action?,Multiple Choice,1,Oxygen,Discharge,1,triage\n" +
	"3,Q1,Multiple Choice,2,A,B,,\n"

func TestImportListGetDelete(t *testing.T) {
	s := newServer(t, 0)

	rec := s.upload("author", "bank.csv", []byte(bankCSV))
	if rec.Code != http.StatusCreated {
		t.Fatalf("import status %d: %s", rec.Code, rec.Body)
	}
	var imported struct {
		Count int      `json:"count"`
		IDs   []string `json:"ids"`
	}
	json.NewDecoder(rec.Body).Decode(&imported)
	if imported.Count != 3 {
		t.Fatalf("imported = %+v", imported)
	}

	rec = s.do("reviewer", http.MethodGet, "/questions?top_level=1", nil, "")
	var listed []question.Question
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("top-level questions = %d", len(listed))
	}

	rec = s.do("reviewer", http.MethodGet, "/questions/q1", nil, "")
	var cs question.Question
	if err := json.NewDecoder(rec.Body).Decode(&cs); err != nil {
		t.Fatal(err)
	}
	if summaries, _ := cs.Data.(question.CaseStudyData); len(summaries) != 1 || summaries[0].ID != "q2" {
		t.Fatalf("case study data = %#v", cs.Data)
	}

	if rec = s.do("reviewer", http.MethodDelete, "/questions/q1", nil, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("reviewer delete status %d", rec.Code)
	}
	if rec = s.do("author", http.MethodDelete, "/questions/q1", nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body)
	}
	for _, id := range []string{"q1", "q2"} {
		if rec = s.do("author", http.MethodGet, "/questions/"+id, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s after delete: status %d", id, rec.Code)
		}
	}
}

func TestImportRejected(t *testing.T) {
	s := newServer(t, 0)
	csv := "IMPORT_ID,TEXT,TYPE,CORRECT_ANSWERS,ANSWER_1,ANSWER_2\n1,Q,Multiple Choice,\"1,2\",A,B\n"
	rec := s.upload("author", "bank.csv", []byte(csv))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Errors struct {
			Rows []map[string]any `json:"rows"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Errors.Rows) != 1 || body.Errors.Rows[0]["import_id"] != "1" || body.Errors.Rows[0]["data"] == nil {
		t.Fatalf("rows = %v", body.Errors.Rows)
	}
	if list, _ := s.store.List(t.Context(), question.ListOpts{}); len(list) != 0 {
		t.Fatalf("rejected batch stored %d questions", len(list))
	}
}

func TestImportLimitsAndAuth(t *testing.T) {
	s := newServer(t, 16)
	if rec := s.upload("author", "bank.csv", []byte(bankCSV)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status %d", rec.Code)
	}
	if rec := s.upload("reviewer", "bank.csv", []byte("x")); rec.Code != http.StatusForbidden {
		t.Fatalf("reviewer status %d", rec.Code)
	}
	if rec := s.upload("", "bank.csv", []byte("x")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", rec.Code)
	}
}

func TestCreateQuestion(t *testing.T) {
	s := newServer(t, 0)
	post := func(body string) *httptest.ResponseRecorder {
		return s.do("author", http.MethodPost, "/questions", []byte(body), "application/json")
	}

	rec := post(`{"type":"Multiple Choice","text":"Pick one","data":[{"answer":"a","correct":true},{"answer":"b","correct":false}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body)
	}

	rec = post(`{"type":"multiple_choice","text":"Pick one","data":[{"answer":"a","correct":true},{"answer":"b","correct":true}]}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), `"data"`) {
		t.Fatalf("two correct: status %d: %s", rec.Code, rec.Body)
	}

	rec = post(`{"type":"Multiple Choice","text":"x","data":[{"text":"a","correct":true}]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown key: status %d: %s", rec.Code, rec.Body)
	}

	rec = post(`{"type":"Scenario","text":"A patient","part_of":"q1"}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "cannot own questions") {
		t.Fatalf("scenario under MC: status %d: %s", rec.Code, rec.Body)
	}

	if rec = post(`{"type":"Stimulus Case Study","text":"Ward"}`); rec.Code != http.StatusCreated {
		t.Fatalf("case study status %d: %s", rec.Code, rec.Body)
	}
	if rec = post(`{"type":"Scenario","text":"A patient","part_of":"q2"}`); rec.Code != http.StatusCreated {
		t.Fatalf("scenario status %d: %s", rec.Code, rec.Body)
	}
	set, err := s.store.Load(t.Context(), []string{"q2"})
	if err != nil {
		t.Fatal(err)
	}
	if kids := set.Children("q2"); len(kids) != 1 || kids[0].ID != "q3" {
		t.Fatalf("children = %v", kids)
	}

	if rec = post(`{"type":"Essay Plus","text":"x"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown type status %d", rec.Code)
	}
}

func TestTags(t *testing.T) {
	s := newServer(t, 0)
	s.upload("author", "bank.csv", []byte(bankCSV))
	rec := s.do("author", http.MethodPut, "/questions/q3/tags", []byte(`{"keywords":["Cardio"," cardio ","ECG"]}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var q question.Question
	json.NewDecoder(rec.Body).Decode(&q)
	if strings.Join(q.Keywords, ",") != "cardio,ecg" {
		t.Fatalf("keywords = %v", q.Keywords)
	}
	rec = s.do("author", http.MethodGet, "/questions?keyword=ecg", nil, "")
	var listed []question.Question
	json.NewDecoder(rec.Body).Decode(&listed)
	if len(listed) != 1 || listed[0].ID != "q3" {
		t.Fatalf("filtered = %v", listed)
	}
}

func TestExport(t *testing.T) {
	s := newServer(t, 0)
	s.upload("author", "bank.csv", []byte(bankCSV))

	rec := s.do("reviewer", http.MethodGet, "/questions/export?format=txt&ids=q3", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `inline; filename="questions-txt-2024-01-02T03-04-05.txt"` {
		t.Fatalf("disposition = %q", got)
	}
	if want := "Question Type: Multiple Choice\nQuestion: Q1\n[ ] A\n[x] B\n"; rec.Body.String() != want {
		t.Fatalf("body = %q", rec.Body)
	}

	rec = s.do("reviewer", http.MethodGet, "/questions/export?format=blackboard", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Skipped-Questions") != "q1" {
		t.Fatalf("status %d, skipped %q", rec.Code, rec.Header().Get("X-Skipped-Questions"))
	}
	if rec = s.do("reviewer", http.MethodGet, "/questions/export?format=blackboard&strict=1", nil, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("strict status %d", rec.Code)
	}
	if rec = s.do("reviewer", http.MethodGet, "/questions/export?format=pdf", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format status %d", rec.Code)
	}
	if rec = s.do("reviewer", http.MethodGet, "/questions/export?format=txt&ids=nope", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status %d", rec.Code)
	}

	rec = s.do("reviewer", http.MethodGet, "/questions/export?format=d2l", nil, "")
	if rec.Header().Get("Content-Type") != "application/zip" || !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("headers = %v", rec.Header())
	}
	if names, err := archive.Names(rec.Body.Bytes()); err != nil || len(names) != 1 || names[0] != "questions.csv" {
		t.Fatalf("archive = %v, %v", names, err)
	}
}

func TestExportEmptyBank(t *testing.T) {
	s := newServer(t, 0)
	if rec := s.do("reviewer", http.MethodGet, "/questions/export?format=md", nil, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAssets(t *testing.T) {
	s := newServer(t, 0)
	data, err := archive.Zip([]archive.Entry{
		{Name: "questions.csv", Data: []byte("IMPORT_ID,TEXT,TYPE,IMAGE_PATH,ALT_TEXT\n1,Label the heart,Essay,img/heart.png,A heart\n")},
		{Name: "img/heart.png", Data: []byte("\x89PNG fake")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec := s.upload("author", "bank.zip", data); rec.Code != http.StatusCreated {
		t.Fatalf("import status %d: %s", rec.Code, rec.Body)
	}

	rec := s.do("reviewer", http.MethodGet, "/assets/questions/q1/heart.png", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || rec.Body.String() != "\x89PNG fake" {
		t.Fatalf("asset: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec = s.do("reviewer", http.MethodGet, "/assets/questions/q1/lung.png", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing asset status %d", rec.Code)
	}

	if rec = s.do("author", http.MethodDelete, "/questions/q1", nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	if keys := s.blobs.Keys(); len(keys) != 0 {
		t.Fatalf("blobs left = %v", keys)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, 0)
	for _, p := range []string{"/healthz", "/readyz"} {
		if rec := s.do("", http.MethodGet, p, nil, ""); rec.Code != http.StatusOK {
			t.Errorf("%s status %d", p, rec.Code)
		}
	}
}

type brokenLog struct{}

func (brokenLog) Append(context.Context, string, string, any) error {
	return errors.New("event_log: disk full")
}

func TestEventLogFailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := newServerWith(t, 0, func(d *api.Deps) {
		d.Events = brokenLog{}
		d.Log = zap.New(core)
	})

	if rec := s.upload("author", "bank.csv", []byte(bankCSV)); rec.Code != http.StatusCreated {
		t.Fatalf("import status %d: %s", rec.Code, rec.Body)
	}
	if rec := s.do("author", http.MethodPut, "/questions/q3/tags", []byte(`{"keywords":["ecg"]}`), "application/json"); rec.Code != http.StatusOK {
		t.Fatalf("tags status %d: %s", rec.Code, rec.Body)
	}
	if rec := s.do("reviewer", http.MethodGet, "/questions/export?format=txt&ids=q3", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("export status %d: %s", rec.Code, rec.Body)
	}
	if rec := s.do("author", http.MethodDelete, "/questions/q3", nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body)
	}

	failed := logs.FilterMessage("event log append failed").All()
	var types []string
	for _, e := range failed {
		types = append(types, e.ContextMap()["type"].(string))
		if e.ContextMap()["error"] != "event_log: disk full" {
			t.Errorf("error field = %v", e.ContextMap()["error"])
		}
	}
	want := strings.Join([]string{syncx.TypeQuestionsImported, syncx.TypeTagsUpdated, syncx.TypeQuestionsExported, syncx.TypeQuestionDeleted}, ",")
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("logged failures for %s, want %s", got, want)
	}
}
