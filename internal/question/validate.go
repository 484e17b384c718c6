package question

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors collects every violated invariant of a candidate, keyed by
// the attribute it concerns ("base", "type", "text", "level", "data", ...).
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationErrors) Merge(other ValidationErrors) {
	for k, msgs := range other {
		v[k] = append(v[k], msgs...)
	}
}

// Err returns v as an error, or nil when nothing was recorded.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool { return target == ErrInvalid }

// Validate checks q against the invariants of its kind and returns all of the
// violations found. It never touches storage.
func Validate(q Question) ValidationErrors {
	errs := ValidationErrors{}

	if !q.Kind.Valid() {
		errs.Add("type", UnknownKindMessage(string(q.Kind)))
		return errs
	}
	if q.Kind != KindStimulusCaseStudy && strings.TrimSpace(q.Text) == "" {
		errs.Add("text", "can't be blank")
	}
	if !validLevel(q.Level) {
		errs.Add("level", fmt.Sprintf("%q is not one of %s", q.Level, strings.Join(Levels, ", ")))
	}
	for i, img := range q.Images {
		if strings.TrimSpace(img.Filename) == "" {
			errs.Add("images", fmt.Sprintf("image %d has no filename", i+1))
		}
	}

	switch q.Kind {
	case KindScenario:
		if q.Data != nil {
			errs.Add("data", "a scenario carries no answer data")
		}
		if !q.ChildOfAggregate {
			errs.Add("part_of", "a scenario must belong to a stimulus case study")
		}
		return errs
	case KindStimulusCaseStudy:
		if q.ChildOfAggregate {
			errs.Add("part_of", "a stimulus case study cannot be nested")
		}
		if q.Data != nil {
			if _, ok := q.Data.(CaseStudyData); !ok {
				errs.Add("data", "answer data of a case study is derived from its children")
			}
		}
		return errs
	}

	if q.Data == nil {
		errs.Add("data", "is required")
		return errs
	}
	if q.Data.Kind() != q.Kind {
		errs.Add("data", fmt.Sprintf("%s data does not fit a %s question", q.Data.Kind().DisplayName(), q.Kind.DisplayName()))
		return errs
	}

	switch d := q.Data.(type) {
	case MultipleChoiceData:
		validateMultipleChoice(d, errs)
	case SelectAllData:
		validateSelectAll(d, errs)
	case MatchingData:
		validateMatches([]Match(d), false, errs)
	case CategorizationData:
		validateMatches([]Match(d), true, errs)
	case DragAndDropData:
		validateDragAndDrop(q.Text, d, errs)
	case BowTieData:
		validateBowTie(d, errs)
	case EssayData, UploadData:
		// html may be empty
	}
	return errs
}

func validateMultipleChoice(d MultipleChoiceData, errs ValidationErrors) {
	if len(d) == 0 {
		errs.Add("data", "needs at least one answer")
		return
	}
	checkChoiceText(d, "answer", errs)
	if n := countCorrect(d); n != 1 {
		errs.Add("data", fmt.Sprintf("must have exactly one correct answer, found %d", n))
	}
}

func validateSelectAll(d SelectAllData, errs ValidationErrors) {
	if len(d) == 0 {
		errs.Add("data", "needs at least one answer")
		return
	}
	checkChoiceText(d, "answer", errs)
	if countCorrect(d) < 1 {
		errs.Add("data", "must have at least one correct answer")
	}
}

func checkChoiceText(cs []Choice, what string, errs ValidationErrors) {
	for i, c := range cs {
		if strings.TrimSpace(c.Text) == "" {
			errs.Add("data", fmt.Sprintf("%s %d is blank", what, i+1))
		}
	}
}

func countCorrect(cs []Choice) int {
	n := 0
	for _, c := range cs {
		if c.Correct {
			n++
		}
	}
	return n
}

func validateMatches(ms []Match, multi bool, errs ValidationErrors) {
	if len(ms) == 0 {
		errs.Add("data", "needs at least one item")
		return
	}
	for i, m := range ms {
		if strings.TrimSpace(m.Text) == "" {
			errs.Add("data", fmt.Sprintf("item %d is blank", i+1))
		}
		nonBlank := 0
		for _, c := range m.Correct {
			if strings.TrimSpace(c) != "" {
				nonBlank++
			}
		}
		if nonBlank != len(m.Correct) {
			errs.Add("data", fmt.Sprintf("item %d has a blank match", i+1))
		}
		switch {
		case nonBlank == 0:
			errs.Add("data", fmt.Sprintf("item %d needs at least one match", i+1))
		case !multi && len(m.Correct) > 1:
			errs.Add("data", fmt.Sprintf("item %d must have exactly one match", i+1))
		}
	}
}

// validateDragAndDrop compares slot ids as sets: a slot may be filled by
// several answers, and every slot in the prompt must be filled by at least one.
func validateDragAndDrop(text string, d DragAndDropData, errs ValidationErrors) {
	if len(d) == 0 {
		errs.Add("data", "needs at least one answer")
		return
	}
	for i, a := range d {
		if strings.TrimSpace(a.Text) == "" {
			errs.Add("data", fmt.Sprintf("answer %d is blank", i+1))
		}
	}

	slots := ParseSlots(text)
	if len(slots) == 0 {
		trues := 0
		for i, a := range d {
			if a.Correct.IsSlot {
				errs.Add("data", fmt.Sprintf("answer %d names slot %d but the text has no slots", i+1, a.Correct.Slot))
				continue
			}
			if a.Correct.Flag {
				trues++
			}
		}
		if trues == 0 {
			errs.Add("data", "must have at least one correct answer")
		}
		return
	}

	want := make(map[int]bool, len(slots))
	for _, s := range slots {
		want[s] = true
	}
	used := map[int]bool{}
	for i, a := range d {
		switch {
		case a.Correct.IsSlot:
			used[a.Correct.Slot] = true
			if !want[a.Correct.Slot] {
				errs.Add("data", fmt.Sprintf("answer %d names slot %d which does not appear in the text", i+1, a.Correct.Slot))
			}
		case a.Correct.Flag:
			errs.Add("data", fmt.Sprintf("answer %d must name a slot id, not true", i+1))
		}
	}
	for _, s := range uniqueInts(slots) {
		if !used[s] {
			errs.Add("data", fmt.Sprintf("slot %d has no answer", s))
		}
	}
}

func validateBowTie(d BowTieData, errs ValidationErrors) {
	groups := []struct {
		name  string
		g     BowTieGroup
		exact bool
	}{
		{"center", d.Center, true},
		{"left", d.Left, false},
		{"right", d.Right, false},
	}
	for _, gr := range groups {
		if strings.TrimSpace(gr.g.Label) == "" {
			errs.Add("data", gr.name+" label is blank")
		}
		if len(gr.g.Answers) == 0 {
			errs.Add("data", gr.name+" needs at least one answer")
			continue
		}
		checkChoiceText(gr.g.Answers, gr.name+" answer", errs)
		n := countCorrect(gr.g.Answers)
		if gr.exact && n != 1 {
			errs.Add("data", fmt.Sprintf("center must have exactly one correct answer, found %d", n))
		}
		if !gr.exact && n < 1 {
			errs.Add("data", gr.name+" must have at least one correct answer")
		}
	}
}

func uniqueInts(in []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(in))
	for _, n := range in {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
