package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AnswerData is the kind-specific payload of a question. The set of
// implementations is closed; switch on the concrete type.
type AnswerData interface {
	Kind() Kind
	answerData()
}

// Choice is one answer of a choice-style question.
type Choice struct {
	Text    string `json:"answer"`
	Correct bool   `json:"correct"`
}

type MultipleChoiceData []Choice

type SelectAllData []Choice

// Match pairs a left item (or category) with its correct right values.
type Match struct {
	Text    string   `json:"answer"`
	Correct []string `json:"correct"`
}

type MatchingData []Match

type CategorizationData []Match

// DropTarget is the correct value of a drag-and-drop answer: a boolean when
// the prompt has no slots, a slot id otherwise. false marks a distractor in
// both modes.
type DropTarget struct {
	Slot   int
	IsSlot bool
	Flag   bool
}

func SlotTarget(n int) DropTarget { return DropTarget{Slot: n, IsSlot: true} }
func BoolTarget(b bool) DropTarget { return DropTarget{Flag: b} }
func (t DropTarget) IsDistractor() bool { return !t.IsSlot && !t.Flag }

func (t DropTarget) MarshalJSON() ([]byte, error) {
	if t.IsSlot {
		return []byte(strconv.Itoa(t.Slot)), nil
	}
	return json.Marshal(t.Flag)
}

func (t *DropTarget) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*t = BoolTarget(true)
		return nil
	case "false":
		*t = BoolTarget(false)
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("correct must be a boolean or an integer slot id, got %s", b)
	}
	*t = SlotTarget(n)
	return nil
}

type DropAnswer struct {
	Text    string     `json:"answer"`
	Correct DropTarget `json:"correct"`
}

type DragAndDropData []DropAnswer

// HasSlots reports whether any answer names a slot id.
func (d DragAndDropData) HasSlots() bool {
	for _, a := range d {
		if a.Correct.IsSlot {
			return true
		}
	}
	return false
}

// BowTieGroup is one of the three labelled columns of a bow tie.
type BowTieGroup struct {
	Label   string   `json:"label"`
	Answers []Choice `json:"answers"`
}

type BowTieData struct {
	Center BowTieGroup `json:"center"`
	Left   BowTieGroup `json:"left"`
	Right  BowTieGroup `json:"right"`
}

type EssayData struct {
	HTML string `json:"html"`
}

type UploadData struct {
	HTML string `json:"html"`
}

// ChildSummary describes one child of a case study.
type ChildSummary struct {
	ID   string `json:"id"`
	Kind Kind   `json:"type"`
	Text string `json:"text"`
}

// CaseStudyData is derived from the ordered children of a case study and is
// never authored directly.
type CaseStudyData []ChildSummary

func (MultipleChoiceData) Kind() Kind { return KindMultipleChoice }
func (SelectAllData) Kind() Kind { return KindSelectAllThatApply }
func (MatchingData) Kind() Kind { return KindMatching }
func (CategorizationData) Kind() Kind { return KindCategorization }
func (DragAndDropData) Kind() Kind { return KindDragAndDrop }
func (BowTieData) Kind() Kind { return KindBowTie }
func (EssayData) Kind() Kind { return KindEssay }
func (UploadData) Kind() Kind { return KindUpload }
func (CaseStudyData) Kind() Kind { return KindStimulusCaseStudy }

func (MultipleChoiceData) answerData() {}
func (SelectAllData) answerData() {}
func (MatchingData) answerData() {}
func (CategorizationData) answerData() {}
func (DragAndDropData) answerData() {}
func (BowTieData) answerData() {}
func (EssayData) answerData() {}
func (UploadData) answerData() {}
func (CaseStudyData) answerData() {}

// DecodeData parses a raw payload for the given kind. It checks the container
// type and key names only; semantic invariants are left to Validate.
func DecodeData(kind Kind, raw json.RawMessage) (AnswerData, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || string(raw) == "null"

	switch kind {
	case KindScenario:
		if !empty {
			return nil, dataError("a scenario carries no answer data")
		}
		return nil, nil
	case KindStimulusCaseStudy:
		if !empty {
			return nil, dataError("answer data of a case study is derived from its children")
		}
		return nil, nil
	}
	if empty {
		return nil, dataError("is required")
	}

	switch kind {
	case KindMultipleChoice:
		var d MultipleChoiceData
		if err := decodeList(raw, &d, "answer", "correct"); err != nil {
			return nil, err
		}
		return d, nil
	case KindSelectAllThatApply:
		var d SelectAllData
		if err := decodeList(raw, &d, "answer", "correct"); err != nil {
			return nil, err
		}
		return d, nil
	case KindMatching:
		var d MatchingData
		if err := decodeList(raw, &d, "answer", "correct"); err != nil {
			return nil, err
		}
		return d, nil
	case KindCategorization:
		var d CategorizationData
		if err := decodeList(raw, &d, "answer", "correct"); err != nil {
			return nil, err
		}
		return d, nil
	case KindDragAndDrop:
		var d DragAndDropData
		if err := decodeList(raw, &d, "answer", "correct"); err != nil {
			return nil, err
		}
		return d, nil
	case KindBowTie:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, dataError("must be an object with center, left and right groups")
		}
		errs := ValidationErrors{}
		for _, dir := range []string{"center", "left", "right"} {
			g, ok := obj[dir]
			if !ok {
				errs.Add("data", "missing "+dir+" group")
				continue
			}
			var gobj map[string]json.RawMessage
			if err := json.Unmarshal(g, &gobj); err != nil {
				errs.Add("data", dir+" must be an object with label and answers")
				continue
			}
			for _, k := range []string{"label", "answers"} {
				if _, ok := gobj[k]; !ok {
					errs.Add("data", dir+" is missing key "+k)
				}
			}
			if a, ok := gobj["answers"]; ok {
				if err := checkListKeys(a, "answer", "correct"); err != nil {
					errs.Add("data", dir+" "+err.Error())
				}
			}
		}
		if len(errs) > 0 {
			return nil, errs
		}
		var d BowTieData
		if err := strictUnmarshal(raw, &d); err != nil {
			return nil, dataError(err.Error())
		}
		return d, nil
	case KindEssay, KindUpload:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, dataError(`must be an object with an "html" key`)
		}
		if _, ok := obj["html"]; !ok {
			return nil, dataError(`must contain the "html" key`)
		}
		var d EssayData
		if err := strictUnmarshal(raw, &d); err != nil {
			return nil, dataError(err.Error())
		}
		if kind == KindUpload {
			return UploadData(d), nil
		}
		return d, nil
	}
	return nil, ValidationErrors{"type": {UnknownKindMessage(string(kind))}}
}

func decodeList(raw json.RawMessage, dst any, keys ...string) error {
	if err := checkListKeys(raw, keys...); err != nil {
		return dataError(err.Error())
	}
	if err := strictUnmarshal(raw, dst); err != nil {
		return dataError(err.Error())
	}
	return nil
}

func checkListKeys(raw json.RawMessage, keys ...string) error {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("must be a list of objects")
	}
	for i, it := range items {
		for _, k := range keys {
			if _, ok := it[k]; !ok {
				return fmt.Errorf("item %d is missing key %q", i+1, k)
			}
		}
	}
	return nil
}

func strictUnmarshal(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func dataError(msg string) ValidationErrors {
	return ValidationErrors{"data": {msg}}
}
