package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	auth "github.com/mind-engage/viva/internal/auth/middleware"
	"github.com/mind-engage/viva/internal/export"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/rbac"
	"github.com/mind-engage/viva/internal/storage"
	syncx "github.com/mind-engage/viva/internal/sync"
	"github.com/mind-engage/viva/pkg/logger"
	"github.com/mind-engage/viva/pkg/metrics"
)

// Deps is everything the API needs. Zero values fall back to working
// defaults except for Auth, Store, Blobs, Importer and Exporter.
type Deps struct {
	Auth     *auth.AuthService
	Accounts auth.Accounts
	Store    question.Store
	Blobs    storage.BlobStore
	Importer *importer.Processor
	Exporter *export.Exporter
	Events   syncx.Recorder
	Log      *zap.Logger

	MaxUploadBytes int64
	StrictExport   bool
	NewID          func() string
	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error
}

// NewRouter wires the question API. CORS and tracing are left to the caller.
func NewRouter(d Deps) chi.Router {
	if d.Events == nil {
		d.Events = syncx.Discard{}
	}
	d.Log = logger.OrNop(d.Log)
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(d.Log), middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Accounts))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Route("/assets", func(ar chi.Router) {
			ar.Use(rbac.Require(rbac.PermQuestionView))
			MountAssets(ar, d.Blobs)
		})

		pr.Route("/questions", func(qr chi.Router) {
			qr.With(rbac.Require(rbac.PermQuestionImport)).
				Post("/import", ImportQuestionsHandler(d.Importer, d.Events, d.Log, d.MaxUploadBytes))
			qr.With(rbac.Require(rbac.PermQuestionExport)).
				Get("/export", ExportQuestionsHandler(d.Store, d.Exporter, d.Events, d.Log, d.StrictExport))
			qr.With(rbac.Require(rbac.PermQuestionExport)).
				Get("/export/formats", ExportFormatsHandler(d.Exporter))

			qr.With(rbac.Require(rbac.PermQuestionCreate)).
				Post("/", CreateQuestionHandler(d.Store, d.Events, d.Log, d.NewID))
			qr.With(rbac.Require(rbac.PermQuestionView)).
				Get("/", ListQuestionsHandler(d.Store))
			qr.With(rbac.Require(rbac.PermQuestionView)).
				Get("/{id}", GetQuestionHandler(d.Store))
			qr.With(rbac.Require(rbac.PermQuestionTag)).
				Put("/{id}/tags", UpdateTagsHandler(d.Store, d.Events, d.Log))
			qr.With(rbac.Require(rbac.PermQuestionDelete)).
				Delete("/{id}", DeleteQuestionHandler(d.Store, d.Blobs, d.Events, d.Log))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// RequestLogger logs one line per request through zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
