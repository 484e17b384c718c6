package question

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type ListOpts struct {
	Kind Kind
	// TopLevel hides case-study children.
	TopLevel bool
	Keyword  string
	Subject  string
	Limit    int
	Offset   int
}

// Store persists questions, aggregation edges and the tag/image side-tables.
type Store interface {
	// CommitBatch persists every question and edge or none of them.
	CommitBatch(ctx context.Context, qs []Question, edges []Edge) error
	Get(ctx context.Context, id string) (Question, error)
	List(ctx context.Context, opts ListOpts) ([]Question, error)
	// Load returns the questions named by ids (all when empty) together with
	// the children of any selected case study.
	Load(ctx context.Context, ids []string) (*Set, error)
	UpdateTags(ctx context.Context, id string, keywords, subjects []string) (Question, error)
	// Delete removes id, its edges and, for a case study, its children. The
	// images of every removed question are returned so blobs can be dropped.
	Delete(ctx context.Context, id string) ([]Image, error)
}

type memoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Question
	order []string
	edges map[string]Edge // child id -> edge
	nowFn func() time.Time
}

func NewInMemoryStore() Store {
	return &memoryStore{
		byID:  map[string]Question{},
		edges: map[string]Edge{},
		nowFn: time.Now,
	}
}

func (s *memoryStore) CommitBatch(_ context.Context, qs []Question, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]Question, len(qs))
	for _, q := range qs {
		if _, ok := s.byID[q.ID]; ok {
			return fmt.Errorf("%w: id %s already exists", ErrConflict, q.ID)
		}
		if _, ok := batch[q.ID]; ok {
			return fmt.Errorf("%w: id %s repeated in batch", ErrConflict, q.ID)
		}
		batch[q.ID] = q
	}
	seenChild := map[string]bool{}
	for _, e := range edges {
		parent, ok := batch[e.ParentID]
		if !ok {
			parent, ok = s.byID[e.ParentID]
		}
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrNotFound, e.ParentID)
		}
		if !parent.Kind.IsAggregate() {
			return fmt.Errorf("%w: %s cannot own children", ErrInvalid, e.ParentID)
		}
		if _, ok := batch[e.ChildID]; !ok {
			return fmt.Errorf("%w: child %s is not part of the batch", ErrInvalid, e.ChildID)
		}
		if seenChild[e.ChildID] {
			return fmt.Errorf("%w: question %s has two parents", ErrConflict, e.ChildID)
		}
		seenChild[e.ChildID] = true
	}

	now := s.nowFn().Unix()
	for _, q := range qs {
		q.Keywords = NormalizeTags(q.Keywords)
		q.Subjects = NormalizeTags(q.Subjects)
		if q.Kind.IsAggregate() {
			q.Data = nil
		}
		q.CreatedAt = now
		s.byID[q.ID] = q
		s.order = append(s.order, q.ID)
	}
	for _, e := range edges {
		s.edges[e.ChildID] = e
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	if q.Kind.IsAggregate() {
		q.Data = s.summariesLocked(id)
	}
	return q, nil
}

func (s *memoryStore) childrenLocked(parentID string) []Edge {
	var out []Edge
	for _, e := range s.edges {
		if e.ParentID == parentID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return s.seqLocked(out[i].ChildID) < s.seqLocked(out[j].ChildID)
	})
	return out
}

func (s *memoryStore) seqLocked(id string) int {
	for i, o := range s.order {
		if o == id {
			return i
		}
	}
	return len(s.order)
}

func (s *memoryStore) summariesLocked(parentID string) CaseStudyData {
	out := CaseStudyData{}
	for _, e := range s.childrenLocked(parentID) {
		c := s.byID[e.ChildID]
		out = append(out, ChildSummary{ID: c.ID, Kind: c.Kind, Text: c.Text})
	}
	return out
}

func (s *memoryStore) List(_ context.Context, opts ListOpts) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Question
	skipped := 0
	for _, id := range s.order {
		q := s.byID[id]
		if opts.Kind != "" && q.Kind != opts.Kind {
			continue
		}
		if opts.TopLevel && q.ChildOfAggregate {
			continue
		}
		if opts.Keyword != "" && !contains(q.Keywords, strings.ToLower(opts.Keyword)) {
			continue
		}
		if opts.Subject != "" && !contains(q.Subjects, strings.ToLower(opts.Subject)) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		if q.Kind.IsAggregate() {
			q.Data = s.summariesLocked(id)
		}
		out = append(out, q)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Load(_ context.Context, ids []string) (*Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		ids = s.order
	}
	picked := map[string]bool{}
	var qs []Question
	var edges []Edge
	add := func(id string) error {
		if picked[id] {
			return nil
		}
		q, ok := s.byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		picked[id] = true
		qs = append(qs, q)
		return nil
	}
	for _, id := range ids {
		if err := add(id); err != nil {
			return nil, err
		}
		if s.byID[id].Kind.IsAggregate() {
			for _, e := range s.childrenLocked(id) {
				if err := add(e.ChildID); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, q := range qs {
		if e, ok := s.edges[q.ID]; ok && picked[e.ParentID] {
			edges = append(edges, e)
		}
	}
	return NewSet(qs, edges)
}

func (s *memoryStore) UpdateTags(ctx context.Context, id string, keywords, subjects []string) (Question, error) {
	s.mu.Lock()
	q, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Question{}, ErrNotFound
	}
	q.Keywords = NormalizeTags(keywords)
	q.Subjects = NormalizeTags(subjects)
	s.byID[id] = q
	s.mu.Unlock()
	return s.Get(ctx, id)
}

func (s *memoryStore) Delete(_ context.Context, id string) ([]Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	doomed := []string{id}
	if q.Kind.IsAggregate() {
		for _, e := range s.childrenLocked(id) {
			doomed = append(doomed, e.ChildID)
		}
	}
	var images []Image
	gone := map[string]bool{}
	for _, d := range doomed {
		images = append(images, s.byID[d].Images...)
		delete(s.byID, d)
		delete(s.edges, d)
		gone[d] = true
	}
	kept := s.order[:0]
	for _, o := range s.order {
		if !gone[o] {
			kept = append(kept, o)
		}
	}
	s.order = kept
	return images, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
