package question

import (
	"fmt"
	"sort"
)

// Set is a flat arena of questions plus the ordered parent/child edge list.
// Children are resolved by index lookup, never by pointers between records.
type Set struct {
	byID     map[string]int
	items    []Question
	roots    []int
	edges    []Edge
	children map[string][]int // parent id -> indices into edges
	parent   map[string]string
}

// NewSet indexes qs and edges. Case-study data is rebuilt from the children.
// Questions keep their input order; an edge whose parent is absent makes the
// child a root.
func NewSet(qs []Question, edges []Edge) (*Set, error) {
	s := &Set{
		byID:     make(map[string]int, len(qs)),
		items:    make([]Question, len(qs)),
		children: map[string][]int{},
		parent:   map[string]string{},
	}
	copy(s.items, qs)
	for i, q := range s.items {
		if _, dup := s.byID[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrConflict, q.ID)
		}
		s.byID[q.ID] = i
	}

	s.edges = make([]Edge, 0, len(edges))
	for _, e := range edges {
		ci, ok := s.byID[e.ChildID]
		if !ok {
			continue
		}
		pi, ok := s.byID[e.ParentID]
		if !ok {
			continue
		}
		if prev, taken := s.parent[e.ChildID]; taken {
			return nil, fmt.Errorf("%w: question %s already belongs to %s", ErrConflict, e.ChildID, prev)
		}
		if !s.items[pi].Kind.IsAggregate() {
			return nil, fmt.Errorf("%w: %s question %s cannot own children", ErrInvalid, s.items[pi].Kind.DisplayName(), e.ParentID)
		}
		if s.items[ci].Kind.IsAggregate() {
			return nil, fmt.Errorf("%w: case study %s cannot be nested", ErrInvalid, e.ChildID)
		}
		s.parent[e.ChildID] = e.ParentID
		s.edges = append(s.edges, e)
	}
	sort.SliceStable(s.edges, func(i, j int) bool {
		if s.edges[i].ParentID != s.edges[j].ParentID {
			return s.byID[s.edges[i].ParentID] < s.byID[s.edges[j].ParentID]
		}
		return s.edges[i].Order < s.edges[j].Order
	})
	for i, e := range s.edges {
		s.children[e.ParentID] = append(s.children[e.ParentID], i)
	}

	for i, q := range s.items {
		if _, owned := s.parent[q.ID]; !owned {
			s.roots = append(s.roots, i)
		}
		if q.Kind.IsAggregate() {
			s.items[i].Data = s.summaries(q.ID)
		}
	}
	return s, nil
}

func (s *Set) summaries(parentID string) CaseStudyData {
	out := CaseStudyData{}
	for _, ei := range s.children[parentID] {
		c := s.items[s.byID[s.edges[ei].ChildID]]
		out = append(out, ChildSummary{ID: c.ID, Kind: c.Kind, Text: c.Text})
	}
	return out
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) Get(id string) (Question, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Question{}, false
	}
	return s.items[i], true
}

// Roots returns the top-level questions in input order.
func (s *Set) Roots() []Question {
	out := make([]Question, 0, len(s.roots))
	for _, i := range s.roots {
		out = append(out, s.items[i])
	}
	return out
}

// Children returns the children of parentID ordered by presentation order.
func (s *Set) Children(parentID string) []Question {
	idx := s.children[parentID]
	out := make([]Question, 0, len(idx))
	for _, ei := range idx {
		out = append(out, s.items[s.byID[s.edges[ei].ChildID]])
	}
	return out
}

// Parent returns the id of the case study owning id, if any.
func (s *Set) Parent(id string) (string, bool) {
	p, ok := s.parent[id]
	return p, ok
}

// Edges returns the edge list sorted by parent then presentation order.
func (s *Set) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Walk visits every question depth first: each root, then its children.
func (s *Set) Walk(fn func(q Question, parent *Question)) {
	for _, ri := range s.roots {
		root := s.items[ri]
		fn(root, nil)
		for _, c := range s.Children(root.ID) {
			fn(c, &root)
		}
	}
}

// Questions flattens the set in Walk order.
func (s *Set) Questions() []Question {
	out := make([]Question, 0, len(s.items))
	s.Walk(func(q Question, _ *Question) { out = append(out, q) })
	return out
}
