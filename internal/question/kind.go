package question

import (
	"strings"
	"unicode"
)

// Kind is the discriminant of a question record.
type Kind string

const (
	KindMultipleChoice     Kind = "multiple_choice"
	KindSelectAllThatApply Kind = "select_all_that_apply"
	KindMatching           Kind = "matching"
	KindCategorization     Kind = "categorization"
	KindDragAndDrop        Kind = "drag_and_drop"
	KindBowTie             Kind = "bow_tie"
	KindEssay              Kind = "essay"
	KindUpload             Kind = "upload"
	KindStimulusCaseStudy  Kind = "stimulus_case_study"
	KindScenario           Kind = "scenario"
)

var kindOrder = []Kind{
	KindMultipleChoice,
	KindSelectAllThatApply,
	KindMatching,
	KindCategorization,
	KindDragAndDrop,
	KindBowTie,
	KindEssay,
	KindUpload,
	KindStimulusCaseStudy,
	KindScenario,
}

var displayNames = map[Kind]string{
	KindMultipleChoice:     "Multiple Choice",
	KindSelectAllThatApply: "Select All That Apply",
	KindMatching:           "Matching",
	KindCategorization:     "Categorization",
	KindDragAndDrop:        "Drag and Drop",
	KindBowTie:             "Bow Tie",
	KindEssay:              "Essay",
	KindUpload:             "Upload",
	KindStimulusCaseStudy:  "Stimulus Case Study",
	KindScenario:           "Scenario",
}

// extra spellings seen in spreadsheets authored by hand
var kindAliases = map[string]Kind{
	"traditional":  KindMultipleChoice,
	"mc":           KindMultipleChoice,
	"sata":         KindSelectAllThatApply,
	"selectall":    KindSelectAllThatApply,
	"dragdrop":     KindDragAndDrop,
	"fileupload":   KindUpload,
	"casestudy":    KindStimulusCaseStudy,
	"stimuluscase": KindStimulusCaseStudy,
}

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// DisplayNames lists the human names of every kind, in Kinds() order.
func DisplayNames() []string {
	out := make([]string, 0, len(kindOrder))
	for _, k := range kindOrder {
		out = append(out, displayNames[k])
	}
	return out
}

func (k Kind) Valid() bool {
	_, ok := displayNames[k]
	return ok
}

func (k Kind) DisplayName() string {
	if n, ok := displayNames[k]; ok {
		return n
	}
	return string(k)
}

// IsAggregate reports whether questions of this kind own child questions.
func (k Kind) IsAggregate() bool { return k == KindStimulusCaseStudy }

// ParseKind resolves a TYPE cell. Matching ignores case, spaces and punctuation,
// so "Multiple Choice", "multiple_choice" and "MultipleChoice" are the same.
func ParseKind(s string) (Kind, bool) {
	norm := squash(s)
	if norm == "" {
		return "", false
	}
	for _, k := range kindOrder {
		if squash(string(k)) == norm || squash(displayNames[k]) == norm {
			return k, true
		}
	}
	if k, ok := kindAliases[norm]; ok {
		return k, true
	}
	return "", false
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Levels is the closed vocabulary for Question.Level.
var Levels = []string{"1", "2", "3", "4", "5", "6"}

func validLevel(l string) bool {
	if l == "" {
		return true
	}
	for _, v := range Levels {
		if v == l {
			return true
		}
	}
	return false
}
