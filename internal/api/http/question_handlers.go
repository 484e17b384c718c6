package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mind-engage/viva/internal/export"
	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
	syncx "github.com/mind-engage/viva/internal/sync"
)

// POST /questions/import (multipart: file=bank.csv|bank.zip|bank.xlsx)
func ImportQuestionsHandler(p *importer.Processor, ev syncx.Recorder, log *zap.Logger, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// room for the multipart envelope around the file
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "file required")
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if int64(len(data)) > maxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}

		res, err := p.Import(r.Context(), hdr.Filename, data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if res.State != importer.Committed {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: res.Report.Error(), Errors: res.Report})
			return
		}

		ids := make([]string, len(res.Questions))
		for i, q := range res.Questions {
			ids[i] = q.ID
		}
		recordEvent(r, ev, log, syncx.TypeQuestionsImported, hdr.Filename, map[string]any{"ids": ids})
		writeJSON(w, http.StatusCreated, map[string]any{
			"state":    res.State,
			"count":    len(ids),
			"ids":      ids,
			"filename": hdr.Filename,
		})
	}
}

type createRequest struct {
	Type              string          `json:"type"`
	Text              string          `json:"text"`
	Level             string          `json:"level"`
	Keywords          []string        `json:"keywords"`
	Subjects          []string        `json:"subjects"`
	Data              json.RawMessage `json:"data"`
	PartOf            string          `json:"part_of"`
	PresentationOrder int             `json:"presentation_order"`
}

// POST /questions
func CreateQuestionHandler(store question.Store, ev syncx.Recorder, log *zap.Logger, newID func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		kind, ok := question.ParseKind(req.Type)
		if !ok {
			invalid(w, question.ValidationErrors{"type": {question.UnknownKindMessage(req.Type)}})
			return
		}

		errs := question.ValidationErrors{}
		data, err := question.DecodeData(kind, req.Data)
		var derr question.ValidationErrors
		switch {
		case errors.As(err, &derr):
			errs.Merge(derr)
		case err != nil:
			errs.Add("data", err.Error())
		}

		q := question.Question{
			Kind:             kind,
			Text:             req.Text,
			Level:            req.Level,
			Keywords:         req.Keywords,
			Subjects:         req.Subjects,
			ChildOfAggregate: req.PartOf != "",
			Data:             data,
		}
		if len(errs) == 0 {
			errs.Merge(question.Validate(q))
		}

		var edge *question.Edge
		if req.PartOf != "" {
			parent, err := store.Get(r.Context(), req.PartOf)
			switch {
			case errors.Is(err, question.ErrNotFound):
				errs.Add("part_of", "PART_OF "+req.PartOf+" does not exist")
			case err != nil:
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			case !parent.Kind.IsAggregate():
				errs.Add("part_of", req.PartOf+" is a "+parent.Kind.DisplayName()+" and cannot own questions")
			default:
				order := req.PresentationOrder
				if order <= 0 {
					siblings, _ := parent.Data.(question.CaseStudyData)
					order = len(siblings) + 1
				}
				edge = &question.Edge{ParentID: parent.ID, Order: order}
			}
		}
		if len(errs) > 0 {
			invalid(w, errs)
			return
		}

		q.ID = newID()
		var edges []question.Edge
		if edge != nil {
			edge.ChildID = q.ID
			edges = append(edges, *edge)
		}
		if err := store.CommitBatch(r.Context(), []question.Question{q}, edges); err != nil {
			storeError(w, err)
			return
		}
		created, err := store.Get(r.Context(), q.ID)
		if err != nil {
			storeError(w, err)
			return
		}
		recordEvent(r, ev, log, syncx.TypeQuestionCreated, q.ID, created)
		writeJSON(w, http.StatusCreated, created)
	}
}

// GET /questions?type=&keyword=&subject=&top_level=1&limit=&offset=
func ListQuestionsHandler(store question.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := question.ListOpts{
			Keyword:  q.Get("keyword"),
			Subject:  q.Get("subject"),
			TopLevel: q.Get("top_level") == "1" || q.Get("top_level") == "true",
			Limit:    atoiOr(q.Get("limit"), 50),
			Offset:   atoiOr(q.Get("offset"), 0),
		}
		if t := q.Get("type"); t != "" {
			k, ok := question.ParseKind(t)
			if !ok {
				writeError(w, http.StatusBadRequest, question.UnknownKindMessage(t))
				return
			}
			opts.Kind = k
		}
		out, err := store.List(r.Context(), opts)
		if err != nil {
			storeError(w, err)
			return
		}
		if out == nil {
			out = []question.Question{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /questions/{id}
func GetQuestionHandler(store question.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// PUT /questions/{id}/tags {"keywords": [...], "subjects": [...]}
func UpdateTagsHandler(store question.Store, ev syncx.Recorder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Keywords []string `json:"keywords"`
			Subjects []string `json:"subjects"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		id := chi.URLParam(r, "id")
		q, err := store.UpdateTags(r.Context(), id, req.Keywords, req.Subjects)
		if err != nil {
			storeError(w, err)
			return
		}
		recordEvent(r, ev, log, syncx.TypeTagsUpdated, id, req)
		writeJSON(w, http.StatusOK, q)
	}
}

// DELETE /questions/{id}; a case study takes its children with it.
func DeleteQuestionHandler(store question.Store, bs storage.BlobStore, ev syncx.Recorder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		images, err := store.Delete(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
		for _, img := range images {
			if err := bs.Delete(r.Context(), img.Key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
				// the rows are gone; an orphaned blob is only wasted space
				log.Warn("image blob not removed", zap.String("question", id), zap.String("key", img.Key), zap.Error(err))
			}
		}
		recordEvent(r, ev, log, syncx.TypeQuestionDeleted, id, map[string]int{"images": len(images)})
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /questions/export?format=moodle&ids=a,b&strict=1
func ExportQuestionsHandler(store question.Store, exp *export.Exporter, ev syncx.Recorder, log *zap.Logger, strict bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := strings.ToLower(q.Get("format"))
		if format == "" {
			format = "txt"
		}
		var ids []string
		for _, id := range strings.Split(q.Get("ids"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}

		set, err := store.Load(r.Context(), ids)
		if err != nil {
			storeError(w, err)
			return
		}
		opts := export.Options{Strict: strict || q.Get("strict") == "1" || q.Get("strict") == "true"}
		res, err := exp.Export(r.Context(), set, format, opts)
		var unsupported *formats.UnsupportedKindError
		switch {
		case errors.Is(err, formats.ErrUnknownFormat):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Errors: map[string][]string{"format": exp.Formats()}})
			return
		case errors.Is(err, export.ErrEmptyPayload):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case errors.As(err, &unsupported):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if len(res.Skipped) > 0 {
			skipped := make([]string, len(res.Skipped))
			for i, s := range res.Skipped {
				skipped[i] = s.QuestionID
			}
			w.Header().Set("X-Skipped-Questions", strings.Join(skipped, ","))
		}
		disposition := "inline"
		if res.IsFile {
			disposition = "attachment"
		}
		recordEvent(r, ev, log, syncx.TypeQuestionsExported, format, map[string]any{"questions": set.Len(), "skipped": len(res.Skipped)})
		w.Header().Set("Content-Type", res.MimeType)
		w.Header().Set("Content-Disposition", disposition+`; filename="`+res.Filename+`"`)
		http.ServeContent(w, r, res.Filename, time.Time{}, bytes.NewReader(res.Data))
	}
}

// GET /questions/export/formats
func ExportFormatsHandler(exp *export.Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"formats": exp.Formats()})
	}
}

// recordEvent appends to the event log. The request has already succeeded, so
// a failed append is logged rather than returned.
func recordEvent(r *http.Request, ev syncx.Recorder, log *zap.Logger, typ, key string, payload any) {
	if err := ev.Append(r.Context(), typ, key, payload); err != nil {
		log.Warn("event log append failed",
			zap.String("type", typ),
			zap.String("key", key),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
}

func invalid(w http.ResponseWriter, errs question.ValidationErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid question", Errors: errs})
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, question.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, question.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, question.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}
