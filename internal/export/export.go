// Package export resolves a format backend, feeds it a question set and
// returns a uniform result, packaging archives with their images.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/viva/internal/archive"
	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/formats/blackboard"
	"github.com/mind-engage/viva/internal/formats/canvas"
	"github.com/mind-engage/viva/internal/formats/d2l"
	"github.com/mind-engage/viva/internal/formats/moodle"
	"github.com/mind-engage/viva/internal/formats/plaintext"
	"github.com/mind-engage/viva/internal/formats/vivacsv"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
	"github.com/mind-engage/viva/pkg/logger"
	"github.com/mind-engage/viva/pkg/metrics"
	"github.com/mind-engage/viva/pkg/tracing"
)

var ErrEmptyPayload = errors.New("nothing to export")

// TimestampLayout is the filename timestamp; colons are avoided so the name
// is valid on every filesystem.
const TimestampLayout = "2006-01-02T15-04-05"

// DefaultRegistry holds every built-in backend.
func DefaultRegistry() *formats.Registry {
	return formats.NewRegistry(
		plaintext.Text(),
		plaintext.Markdown(),
		canvas.New(),
		blackboard.New(),
		d2l.New(),
		moodle.New(),
		vivacsv.New(),
	)
}

type Options struct {
	// Strict fails the export when any question had to be skipped.
	Strict bool
}

// Result is the same shape for every format. IsFile means Data is a
// generated archive to be offered as a download.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	IsFile   bool
	Skipped  []formats.Skip
}

type Exporter struct {
	registry *formats.Registry
	blobs    storage.BlobStore
	log      *zap.Logger
	now      func() time.Time
}

func New(registry *formats.Registry, blobs storage.BlobStore, log *zap.Logger) *Exporter {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Exporter{registry: registry, blobs: blobs, log: logger.OrNop(log), now: time.Now}
}

// WithClock replaces the clock used for filenames.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

func (e *Exporter) Formats() []string { return e.registry.Keys() }

func (e *Exporter) Export(ctx context.Context, set *question.Set, format string, opts Options) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "export.Export")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", format))

	res, err := e.export(ctx, set, format, opts)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	metrics.ExportRequests.WithLabelValues(format, outcome).Inc()
	return res, err
}

func (e *Exporter) export(ctx context.Context, set *question.Set, format string, opts Options) (*Result, error) {
	if set == nil || set.Len() == 0 {
		return nil, ErrEmptyPayload
	}
	backend, err := e.registry.Lookup(format)
	if err != nil {
		return nil, err
	}
	info := backend.Info()

	job := &formats.Job{Set: set}
	if info.ProducesArchive || info.EmbedsImages {
		if job.Images, err = e.loadImages(ctx, set); err != nil {
			return nil, err
		}
	}
	out, err := backend.Format(job)
	if err != nil {
		return nil, fmt.Errorf("%s export: %w", info.Key, err)
	}
	if len(out.Skipped) > 0 {
		metrics.ExportSkipped.WithLabelValues(info.Key).Add(float64(len(out.Skipped)))
		if opts.Strict {
			s := out.Skipped[0]
			return nil, &formats.UnsupportedKindError{Format: info.Key, Kind: s.Kind, QuestionID: s.QuestionID}
		}
	}

	res := &Result{
		Data:     out.Body,
		Filename: fmt.Sprintf("questions-%s-%s.%s", info.Key, e.now().UTC().Format(TimestampLayout), info.Extension),
		MimeType: info.MimeType,
		IsFile:   info.ProducesArchive,
		Skipped:  out.Skipped,
	}
	if info.ProducesArchive {
		entries := []archive.Entry{{Name: out.EntryName, Data: out.Body}}
		for _, f := range out.Extra {
			entries = append(entries, archive.Entry{Name: f.Name, Data: f.Data})
		}
		set.Walk(func(q question.Question, _ *question.Question) {
			for _, img := range q.Images {
				entries = append(entries, archive.Entry{Name: formats.ImagePath(q.ID, img.Filename), Data: job.Images[img.Key]})
			}
		})
		if res.Data, err = archive.Zip(entries); err != nil {
			return nil, err
		}
	}
	e.log.Info("export produced",
		zap.String("format", info.Key),
		zap.Int("questions", set.Len()),
		zap.Int("skipped", len(out.Skipped)),
		zap.Int("bytes", len(res.Data)))
	return res, nil
}

// loadImages fetches every referenced image from the blob store.
func (e *Exporter) loadImages(ctx context.Context, set *question.Set) (map[string][]byte, error) {
	var keys []string
	set.Walk(func(q question.Question, _ *question.Question) {
		for _, img := range q.Images {
			keys = append(keys, img.Key)
		}
	})
	images := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return images, nil
	}
	if e.blobs == nil {
		return nil, errors.New("export needs images but no blob store is configured")
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, k := range keys {
		g.Go(func() error {
			b, err := storage.ReadAll(gctx, e.blobs, k)
			if err != nil {
				return fmt.Errorf("load image %s: %w", k, err)
			}
			mu.Lock()
			images[k] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
