package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	api "github.com/mind-engage/viva/internal/api/http"
	auth "github.com/mind-engage/viva/internal/auth/middleware"
	"github.com/mind-engage/viva/internal/config"
	"github.com/mind-engage/viva/internal/db"
	"github.com/mind-engage/viva/internal/export"
	"github.com/mind-engage/viva/internal/importer"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
	syncx "github.com/mind-engage/viva/internal/sync"
	"github.com/mind-engage/viva/pkg/logger"
	"github.com/mind-engage/viva/pkg/metrics"
	"github.com/mind-engage/viva/pkg/tracing"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New(logger.Options{}).Fatal("config", zap.Error(err))
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer log.Sync()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.Init("viva-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Fatal("tracing init failed", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.Shutdown(sctx, tp)
		}()
	}

	// --- DB ---
	var (
		store  question.Store
		events syncx.Recorder = syncx.Discard{}
		ready  func(context.Context) error
	)
	if cfg.DBDriver == "memory" {
		store = question.NewInMemoryStore()
	} else {
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.Fatal("db open failed", zap.String("driver", cfg.DBDriver), zap.Error(err))
		}
		defer dbh.Close()
		store = question.NewSQLStore(dbh)
		events = syncx.NewEventRepo(dbh, "")
		ready = dbh.PingContext
	}

	// --- Blobs ---
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("blob store", zap.String("driver", cfg.BlobDriver), zap.Error(err))
	}

	accounts := auth.Accounts{cfg.AdminUser: {PassHash: cfg.AdminPassHash, Role: "admin"}}
	router := api.NewRouter(api.Deps{
		Auth:           auth.NewAuthService(cfg.AuthHMACSecret),
		Accounts:       accounts,
		Store:          store,
		Blobs:          blobs,
		Importer:       importer.NewProcessor(store, blobs, importer.Options{Workers: cfg.ImportWorkers, Logger: log}),
		Exporter:       export.New(export.DefaultRegistry(), blobs, log),
		Events:         events,
		Log:            log,
		MaxUploadBytes: cfg.ImportMaxBytes,
		StrictExport:   cfg.ExportStrict,
		Ready:          ready,
	})

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", "X-Skipped-Questions"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.TracingEnabled {
		r.Use(tracing.Middleware)
	}
	r.Use(middleware.Timeout(60 * time.Second))
	r.Mount("/", router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("mode", string(cfg.Mode)),
		zap.String("db", cfg.DBDriver),
		zap.String("blobs", cfg.BlobDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server", zap.Error(err))
	}
}

func openBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.BlobDriver {
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "mem":
		return storage.NewMemStore(), nil
	default:
		return storage.NewFSStore(cfg.BlobBasePath)
	}
}
