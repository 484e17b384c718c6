package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/storage"
	"github.com/mind-engage/viva/pkg/logger"
	"github.com/mind-engage/viva/pkg/metrics"
	"github.com/mind-engage/viva/pkg/tracing"
)

// State is where a batch ended up.
type State string

const (
	AwaitingHeaderCheck State = "awaiting_header_check"
	Scanning            State = "scanning"
	Committing          State = "committing"
	Committed           State = "committed"
	Rejected            State = "rejected"
)

type Options struct {
	// Workers bounds concurrent row mapping; 0 means 4.
	Workers int
	Logger  *zap.Logger
	// NewID mints question ids; defaults to random UUIDs.
	NewID func() string
}

type Processor struct {
	store   question.Store
	blobs   storage.BlobStore
	log     *zap.Logger
	workers int
	newID   func() string
}

func NewProcessor(store question.Store, blobs storage.BlobStore, opts Options) *Processor {
	p := &Processor{
		store:   store,
		blobs:   blobs,
		log:     logger.OrNop(opts.Logger),
		workers: opts.Workers,
		newID:   opts.NewID,
	}
	if p.workers <= 0 {
		p.workers = 4
	}
	if p.newID == nil {
		p.newID = func() string { return uuid.NewString() }
	}
	return p
}

// Result describes a finished batch. Report is set when State is Rejected;
// Questions and Edges are set when it is Committed.
type Result struct {
	State     State
	Questions []question.Question
	Edges     []question.Edge
	Report    *Report
}

type pendingBlob struct {
	key  string
	data []byte
}

// Import parses an upload and processes it.
func (p *Processor) Import(ctx context.Context, name string, data []byte) (*Result, error) {
	src, err := Open(name, data)
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) || errors.Is(err, ErrUnsupportedSource) {
			return p.reject(&Report{CSV: &FileError{Message: err.Error()}}), nil
		}
		return nil, err
	}
	return p.Process(ctx, src)
}

// Process validates every row of src and commits the batch only when all of
// them are valid. Validation problems come back in Result.Report; the error
// return is reserved for storage failures.
func (p *Processor) Process(ctx context.Context, src *Source) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "importer.Process")
	defer span.End()
	span.SetAttributes(attribute.String("import.source", src.Name), attribute.Int("import.rows", len(src.Rows)))

	state := AwaitingHeaderCheck
	if rep := newColumnReport(RequiredHeaders, src.Headers); len(rep.Missing) > 0 {
		return p.reject(&Report{CSV: &FileError{ColumnReport: rep}}), nil
	}
	if len(src.Rows) == 0 {
		return p.reject(&Report{CSV: &FileError{Message: "the file has no data rows"}}), nil
	}

	state = Scanning
	metrics.ImportRows.Add(float64(len(src.Rows)))
	pre := prescan(src.Rows)

	mapped := make([]Mapping, len(src.Rows))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range src.Rows {
		g.Go(func() error {
			mapped[i] = MapRow(src.Rows[i], src.Headers)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	var blobsToWrite []pendingBlob
	for i := range src.Rows {
		m := &mapped[i]
		errs := question.ValidationErrors{}
		errs.Merge(pre[i])
		errs.Merge(m.Errors)
		m.Candidate.Question.Images, blobsToWrite = attachImages(src, &m.Candidate, errs, blobsToWrite)
		if len(errs) > 0 {
			report.Rows = append(report.Rows, RowError{
				ImportID: m.Candidate.ImportID,
				Line:     m.Candidate.Line,
				Errors:   errs,
				Columns:  m.Columns,
			})
		}
	}
	if len(report.Rows) > 0 {
		span.SetAttributes(attribute.Int("import.invalid_rows", len(report.Rows)))
		return p.reject(report), nil
	}

	qs, edges, blobsToWrite := p.assemble(mapped, blobsToWrite)

	state = Committing
	if err := p.commit(ctx, qs, edges, blobsToWrite); err != nil {
		metrics.ImportBatches.WithLabelValues("failed").Inc()
		p.log.Error("import commit failed", zap.String("source", src.Name), zap.String("state", string(state)), zap.Error(err))
		span.RecordError(err)
		return nil, err
	}
	state = Committed
	metrics.ImportBatches.WithLabelValues(string(Committed)).Inc()
	p.log.Info("import committed", zap.String("source", src.Name), zap.Int("questions", len(qs)), zap.Int("images", len(blobsToWrite)))
	return &Result{State: state, Questions: qs, Edges: edges}, nil
}

func (p *Processor) reject(r *Report) *Result {
	metrics.ImportBatches.WithLabelValues(string(Rejected)).Inc()
	fields := []zap.Field{zap.Int("row_errors", len(r.Rows))}
	if r.CSV != nil {
		fields = append(fields, zap.String("file_error", r.Error()))
	}
	p.log.Info("import rejected", fields...)
	return &Result{State: Rejected, Report: r}
}

// prescan is the single-threaded pass: duplicate ids and PART_OF targets
// depend on the rows before each row.
func prescan(rows []Row) []question.ValidationErrors {
	out := make([]question.ValidationErrors, len(rows))
	firstSeen := map[string]int{}
	for i, row := range rows {
		errs := question.ValidationErrors{}
		id := row.Get(ColImportID)
		switch _, dup := firstSeen[id]; {
		case id == "":
			errs.Add("base", ColImportID+" can't be blank")
		case dup:
			errs.Add("data", fmt.Sprintf("duplicate %s %s found on multiple rows", ColImportID, id))
		default:
			firstSeen[id] = i
		}

		if ref := row.Get(ColPartOf); ref != "" {
			pi, ok := firstSeen[ref]
			switch {
			case ref == id:
				errs.Add("part_of", "a question cannot be PART_OF itself")
			case !ok || pi >= i:
				errs.Add("part_of", fmt.Sprintf("PART_OF %s does not match an earlier %s", ref, ColImportID))
			default:
				if k, _ := question.ParseKind(rows[pi].Get(ColType)); !k.IsAggregate() {
					errs.Add("part_of", fmt.Sprintf("PART_OF %s refers to a %s question; only a %s can have children",
						ref, displayOrRaw(k, rows[pi].Get(ColType)), question.KindStimulusCaseStudy.DisplayName()))
				}
			}
		}
		out[i] = errs
	}
	return out
}

func displayOrRaw(k question.Kind, raw string) string {
	if k.Valid() {
		return k.DisplayName()
	}
	return raw
}

// attachImages resolves IMAGE_PATH against the archive. Blob keys are filled
// in by assemble once the question has an id.
func attachImages(src *Source, c *Candidate, errs question.ValidationErrors, acc []pendingBlob) ([]question.Image, []pendingBlob) {
	if len(c.ImagePaths) == 0 {
		if len(c.AltTexts) > 0 {
			errs.Add("images", "ALT_TEXT is set but IMAGE_PATH is empty")
		}
		return nil, acc
	}
	if !src.IsArchive() {
		errs.Add("images", "IMAGE_PATH is set but the upload is a bare table; upload a zip holding the table and its images")
		return nil, acc
	}
	if len(c.AltTexts) > len(c.ImagePaths) {
		errs.Add("images", fmt.Sprintf("ALT_TEXT has %d entries for %d images", len(c.AltTexts), len(c.ImagePaths)))
	}
	var images []question.Image
	names := map[string]bool{}
	for i, p := range c.ImagePaths {
		data, ok := src.File(p)
		if !ok {
			errs.Add("images", fmt.Sprintf("%s was not found in the archive; available entries: %s", p, strings.Join(src.FileNames(), ", ")))
			continue
		}
		name := path.Base(p)
		if names[name] {
			errs.Add("images", fmt.Sprintf("two images are named %s", name))
			continue
		}
		names[name] = true
		img := question.Image{Filename: name}
		if i < len(c.AltTexts) {
			img.AltText = c.AltTexts[i]
		}
		images = append(images, img)
		// key is a placeholder until the id is known
		acc = append(acc, pendingBlob{key: c.ImportID + "\x00" + name, data: data})
	}
	return images, acc
}

// assemble mints ids, builds edges in presentation order and rewrites image
// keys into blob-store keys.
func (p *Processor) assemble(mapped []Mapping, pending []pendingBlob) ([]question.Question, []question.Edge, []pendingBlob) {
	ids := make(map[string]string, len(mapped))
	qs := make([]question.Question, 0, len(mapped))
	var edges []question.Edge
	siblings := map[string]int{}

	for _, m := range mapped {
		c := m.Candidate
		q := c.Question
		q.ID = p.newID()
		ids[c.ImportID] = q.ID
		for i := range q.Images {
			q.Images[i].Key = storage.QuestionKey(q.ID, q.Images[i].Filename)
		}
		if c.PartOf != "" {
			siblings[c.PartOf]++
			order := siblings[c.PartOf]
			if c.HasOrder {
				order = c.Order
			}
			edges = append(edges, question.Edge{ParentID: ids[c.PartOf], ChildID: q.ID, Order: order})
		}
		qs = append(qs, q)
	}

	blobs := make([]pendingBlob, 0, len(pending))
	for _, b := range pending {
		importID, name, _ := strings.Cut(b.key, "\x00")
		blobs = append(blobs, pendingBlob{key: storage.QuestionKey(ids[importID], name), data: b.data})
	}
	return qs, edges, blobs
}

// commit writes blobs first, then the questions in one store transaction. On
// any failure the blobs already written are removed again.
func (p *Processor) commit(ctx context.Context, qs []question.Question, edges []question.Edge, blobs []pendingBlob) error {
	if len(blobs) > 0 && p.blobs == nil {
		return errors.New("import has images but no blob store is configured")
	}
	var written []string
	cleanup := func() {
		for _, k := range written {
			if err := p.blobs.Delete(context.WithoutCancel(ctx), k); err != nil {
				p.log.Warn("removing orphaned image", zap.String("key", k), zap.Error(err))
			}
		}
	}
	for _, b := range blobs {
		k, err := p.blobs.Put(ctx, b.key, bytes.NewReader(b.data), int64(len(b.data)), storage.ContentType(b.key))
		if err != nil {
			cleanup()
			return fmt.Errorf("store image %s: %w", b.key, err)
		}
		written = append(written, k)
	}
	if err := p.store.CommitBatch(ctx, qs, edges); err != nil {
		cleanup()
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
