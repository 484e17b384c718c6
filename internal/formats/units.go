package formats

import (
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/viva/internal/question"
)

// Unit is one top-level question together with its children in presentation
// order. Only case studies have children.
type Unit struct {
	Index    int
	Question question.Question
	Children []question.Question
}

// Units splits a set into top-level units.
func Units(set *question.Set) []Unit {
	roots := set.Roots()
	out := make([]Unit, len(roots))
	for i, q := range roots {
		out[i] = Unit{Index: i, Question: q}
		if q.Kind.IsAggregate() {
			out[i].Children = set.Children(q.ID)
		}
	}
	return out
}

// RenderUnits calls fn for every unit, at most workers at a time, and returns
// the results in unit order. The first error wins.
func RenderUnits[T any](units []Unit, workers int, fn func(Unit) (T, error)) ([]T, error) {
	out := make([]T, len(units))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, u := range units {
		g.Go(func() error {
			v, err := fn(u)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Skipper collects skipped questions in traversal order.
type Skipper struct {
	list []Skip
}

func (s *Skipper) Add(q question.Question) {
	s.list = append(s.list, Skip{QuestionID: q.ID, Kind: q.Kind})
}

func (s *Skipper) List() []Skip { return s.list }
