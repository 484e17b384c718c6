// Package questiontest provides question fixtures for tests.
package questiontest

import (
	"testing"

	"github.com/mind-engage/viva/internal/question"
)

func MultipleChoice(id, text string, answers ...question.Choice) question.Question {
	return question.Question{ID: id, Kind: question.KindMultipleChoice, Text: text, Data: question.MultipleChoiceData(answers)}
}

func Right(s string) question.Choice { return question.Choice{Text: s, Correct: true} }
func Wrong(s string) question.Choice { return question.Choice{Text: s} }

// Bank returns one question of every kind: a case study "cs" whose children
// are the scenario "sc" (order 1) and "cs-mc" (order 2), followed by one
// standalone question per remaining kind.
func Bank() ([]question.Question, []question.Edge) {
	qs := []question.Question{
		{ID: "cs", Kind: question.KindStimulusCaseStudy, Text: "Ward round"},
		{ID: "sc", Kind: question.KindScenario, Text: "A patient arrives short of breath.", ChildOfAggregate: true},
		{
			ID: "cs-mc", Kind: question.KindMultipleChoice, Text: "First action?", ChildOfAggregate: true,
			Data: question.MultipleChoiceData{Right("Oxygen"), Wrong("Discharge")},
		},
		{
			ID: "mc", Kind: question.KindMultipleChoice, Text: "Q1", Level: "2", Keywords: []string{"basics"},
			Data: question.MultipleChoiceData{Right("A"), Wrong("B")},
		},
		{
			ID: "sata", Kind: question.KindSelectAllThatApply, Text: "Pick primes",
			Data: question.SelectAllData{Right("2"), Wrong("4"), Right("5")},
		},
		{
			ID: "mat", Kind: question.KindMatching, Text: "Capitals",
			Data: question.MatchingData{{Text: "France", Correct: []string{"Paris"}}, {Text: "Italy", Correct: []string{"Rome"}}},
		},
		{
			ID: "cat", Kind: question.KindCategorization, Text: "Sort the food",
			Data: question.CategorizationData{{Text: "Fruit", Correct: []string{"apple", "pear"}}, {Text: "Veg", Correct: []string{"leek"}}},
		},
		{
			ID: "dnd", Kind: question.KindDragAndDrop, Text: "The ___1___ pumps blood into the ___2___.",
			Data: question.DragAndDropData{
				{Text: "heart", Correct: question.SlotTarget(1)},
				{Text: "aorta", Correct: question.SlotTarget(2)},
				{Text: "liver", Correct: question.BoolTarget(false)},
			},
		},
		{
			ID: "dnd-bool", Kind: question.KindDragAndDrop, Text: "Drag the organs",
			Data: question.DragAndDropData{
				{Text: "heart", Correct: question.BoolTarget(true)},
				{Text: "rock", Correct: question.BoolTarget(false)},
			},
		},
		{
			ID: "bow", Kind: question.KindBowTie, Text: "Complete the bow tie",
			Data: question.BowTieData{
				Center: question.BowTieGroup{Label: "Condition", Answers: []question.Choice{Right("Sepsis"), Wrong("Flu")}},
				Left:   question.BowTieGroup{Label: "Actions", Answers: []question.Choice{Right("Fluids"), Wrong("Wait")}},
				Right:  question.BowTieGroup{Label: "Monitor", Answers: []question.Choice{Right("Lactate"), Wrong("Hair")}},
			},
		},
		{
			ID: "ess", Kind: question.KindEssay, Text: "Explain shock",
			Data: question.EssayData{HTML: `<p>Explain <a href="https://example.org/shock">shock</a>.</p><ul><li>causes</li><li>signs</li></ul>`},
		},
		{
			ID: "up", Kind: question.KindUpload, Text: "Attach your care plan",
			Data:   question.UploadData{HTML: "<p>Attach your care plan</p>"},
			Images: []question.Image{{Filename: "plan.png", AltText: "Template", Key: "questions/up/plan.png"}},
		},
	}
	edges := []question.Edge{
		{ParentID: "cs", ChildID: "cs-mc", Order: 2},
		{ParentID: "cs", ChildID: "sc", Order: 1},
	}
	return qs, edges
}

// BankSet is Bank indexed as a Set.
func BankSet(t testing.TB) *question.Set {
	t.Helper()
	qs, edges := Bank()
	return Set(t, qs, edges)
}

// Set builds a Set or fails the test.
func Set(t testing.TB, qs []question.Question, edges []question.Edge) *question.Set {
	t.Helper()
	s, err := question.NewSet(qs, edges)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

// Only keeps the questions named by ids.
func Only(qs []question.Question, ids ...string) []question.Question {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []question.Question
	for _, q := range qs {
		if want[q.ID] {
			out = append(out, q)
		}
	}
	return out
}
