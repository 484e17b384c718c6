package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mind-engage/viva/internal/question"
)

// Column names of the import contract.
const (
	ColImportID          = "IMPORT_ID"
	ColText              = "TEXT"
	ColType              = "TYPE"
	ColLevel             = "LEVEL"
	ColKeywords          = "KEYWORDS"
	ColSubjects          = "SUBJECTS"
	ColPartOf            = "PART_OF"
	ColPresentationOrder = "PRESENTATION_ORDER"
	ColImagePath         = "IMAGE_PATH"
	ColAltText           = "ALT_TEXT"
	ColCorrectAnswers    = "CORRECT_ANSWERS"
	ColHTML              = "HTML"
)

// RequiredHeaders must all be present before any row is read.
var RequiredHeaders = []string{ColImportID, ColText, ColType}

// Candidate is a mapped row waiting for the batch-level checks.
type Candidate struct {
	ImportID   string
	Line       int
	Question   question.Question
	PartOf     string
	Order      int
	HasOrder   bool
	ImagePaths []string
	AltTexts   []string
}

// Mapping is the outcome of MapRow. Errors is empty when the row is valid.
type Mapping struct {
	Candidate Candidate
	Errors    question.ValidationErrors
	Columns   *ColumnReport
}

type cell struct {
	n     int
	col   string
	value string
}

var bowTieCol = regexp.MustCompile(`^(LEFT|CENTER|RIGHT)_(\d+)$`)

// MapRow turns one row into a candidate question and checks it. It reads no
// other rows; duplicate ids and PART_OF targets are the caller's business.
func MapRow(row Row, headers []string) Mapping {
	m := Mapping{Errors: question.ValidationErrors{}}
	c := &m.Candidate
	c.ImportID = row.Get(ColImportID)
	c.Line = row.Line
	c.PartOf = row.Get(ColPartOf)
	c.ImagePaths = splitList(row.Cells[ColImagePath], ";")
	c.AltTexts = splitAligned(row.Cells[ColAltText], ";")

	q := &c.Question
	q.Text = row.Get(ColText)
	q.Level = row.Get(ColLevel)
	q.Keywords = question.SplitTags(row.Cells[ColKeywords])
	q.Subjects = question.SplitTags(row.Cells[ColSubjects])
	q.ChildOfAggregate = c.PartOf != ""

	if v := row.Get(ColPresentationOrder); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			m.Errors.Add("part_of", fmt.Sprintf("PRESENTATION_ORDER %q must be a whole number", v))
		} else {
			c.Order, c.HasOrder = n, true
		}
	}

	kind, ok := question.ParseKind(row.Get(ColType))
	if !ok {
		m.Errors.Add("type", question.UnknownKindMessage(row.Get(ColType)))
		return m
	}
	q.Kind = kind

	x := extractor{row: row, headers: headers, errs: question.ValidationErrors{}}
	switch kind {
	case question.KindMultipleChoice:
		if cs, ok := x.choices(); ok {
			q.Data = question.MultipleChoiceData(cs)
		}
	case question.KindSelectAllThatApply:
		if cs, ok := x.choices(); ok {
			q.Data = question.SelectAllData(cs)
		}
	case question.KindMatching:
		if ms, ok := x.matches(false); ok {
			q.Data = question.MatchingData(ms)
		}
	case question.KindCategorization:
		if ms, ok := x.matches(true); ok {
			q.Data = question.CategorizationData(ms)
		}
	case question.KindDragAndDrop:
		if d, ok := x.dragAndDrop(q.Text); ok {
			q.Data = d
		}
	case question.KindBowTie:
		if d, ok := x.bowTie(); ok {
			q.Data = d
		}
	case question.KindEssay:
		q.Data = question.EssayData{HTML: x.html(q.Text)}
	case question.KindUpload:
		q.Data = question.UploadData{HTML: x.html(q.Text)}
	case question.KindScenario:
		if c.PartOf == "" {
			m.Errors.Add("part_of", "a Scenario needs PART_OF naming its Stimulus Case Study")
		}
	case question.KindStimulusCaseStudy:
		if c.PartOf != "" {
			m.Errors.Add("part_of", "a Stimulus Case Study cannot be PART_OF another question")
		}
	}
	m.Columns = x.columns

	verrs := question.Validate(*q)
	for field, msgs := range verrs {
		// part_of problems were phrased in column terms above
		if field == "part_of" {
			continue
		}
		if field == "data" && len(x.errs) > 0 {
			continue
		}
		m.Errors[field] = append(m.Errors[field], msgs...)
	}
	m.Errors.Merge(x.errs)
	return m
}

type extractor struct {
	row     Row
	headers []string
	errs    question.ValidationErrors
	columns *ColumnReport
}

func (x *extractor) missing(expected ...string) bool {
	rep := newColumnReport(expected, x.headers)
	if len(rep.Missing) == 0 {
		return false
	}
	x.columns = rep
	x.errs.Add("data", "missing columns: "+strings.Join(rep.Missing, ", "))
	return true
}

// numbered collects PREFIXn columns ordered by n.
func (x *extractor) numbered(prefix string) []cell {
	var out []cell
	for _, h := range x.headers {
		rest, ok := strings.CutPrefix(h, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		out = append(out, cell{n: n, col: h, value: x.row.Get(h)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out
}

func (x *extractor) hasFamily(prefix string) bool {
	return len(x.numbered(prefix)) > 0
}

// familyColumn names the first column of a numbered family, or prefix+"1"
// when the family is absent.
func (x *extractor) familyColumn(prefix string) string {
	if x.hasFamily(prefix) {
		return x.numbered(prefix)[0].col
	}
	return prefix + "1"
}

func (x *extractor) indexList(col string) []int {
	var out []int
	for _, part := range splitList(x.row.Cells[col], ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			x.errs.Add("data", fmt.Sprintf("%s entry %q is not an answer number", col, part))
			continue
		}
		out = append(out, n)
	}
	return out
}

func (x *extractor) choices() ([]question.Choice, bool) {
	if x.missing(x.familyColumn("ANSWER_"), ColCorrectAnswers) {
		return nil, false
	}
	answers := x.numbered("ANSWER_")
	if x.row.Get(ColCorrectAnswers) == "" {
		x.errs.Add("data", ColCorrectAnswers+" can't be blank")
	}
	correct := map[int]bool{}
	for _, n := range x.indexList(ColCorrectAnswers) {
		correct[n] = true
	}

	var out []question.Choice
	present := map[int]bool{}
	for _, a := range answers {
		if a.value == "" {
			continue
		}
		present[a.n] = true
		out = append(out, question.Choice{Text: a.value, Correct: correct[a.n]})
	}
	x.checkReferences(correct, present, "ANSWER_")
	if len(out) == 0 {
		x.errs.Add("data", "at least one ANSWER_n cell must be filled in")
	}
	return out, true
}

func (x *extractor) checkReferences(refs, present map[int]bool, prefix string) {
	ns := make([]int, 0, len(refs))
	for n := range refs {
		ns = append(ns, n)
	}
	sort.Ints(ns)
	for _, n := range ns {
		if !present[n] {
			x.errs.Add("data", fmt.Sprintf("%s names answer %d but %s%d is blank", ColCorrectAnswers, n, prefix, n))
		}
	}
}

func (x *extractor) matches(multi bool) ([]question.Match, bool) {
	if x.missing(x.familyColumn("LEFT_"), x.familyColumn("RIGHT_")) {
		return nil, false
	}
	rights := map[int]string{}
	for _, r := range x.numbered("RIGHT_") {
		rights[r.n] = r.value
	}
	lefts := map[int]string{}
	var ns []int
	for _, l := range x.numbered("LEFT_") {
		lefts[l.n] = l.value
		ns = append(ns, l.n)
	}
	for n := range rights {
		if _, ok := lefts[n]; !ok {
			ns = append(ns, n)
		}
	}
	sort.Ints(ns)

	var out []question.Match
	for _, n := range ns {
		left, right := lefts[n], rights[n]
		if left == "" && right == "" {
			continue
		}
		if left == "" {
			x.errs.Add("data", fmt.Sprintf("LEFT_%d is blank but RIGHT_%d is %q", n, n, right))
			continue
		}
		var correct []string
		if multi {
			correct = SplitItems(right)
		} else if right != "" {
			correct = []string{right}
		}
		out = append(out, question.Match{Text: left, Correct: correct})
	}
	if len(out) == 0 {
		x.errs.Add("data", "at least one LEFT_n/RIGHT_n pair must be filled in")
	}
	return out, true
}

func (x *extractor) dragAndDrop(text string) (question.DragAndDropData, bool) {
	if x.missing(x.familyColumn("ANSWER_"), ColCorrectAnswers) {
		return nil, false
	}
	slotted := len(question.ParseSlots(text)) > 0

	slots := map[int]int{}
	flags := map[int]bool{}
	for _, entry := range splitList(x.row.Cells[ColCorrectAnswers], ",") {
		ans, slot, hasSlot := strings.Cut(entry, ":")
		n, err := strconv.Atoi(strings.TrimSpace(ans))
		if err != nil || n < 1 {
			x.errs.Add("data", fmt.Sprintf("%s entry %q is not an answer number", ColCorrectAnswers, entry))
			continue
		}
		switch {
		case slotted && !hasSlot:
			x.errs.Add("data", fmt.Sprintf("%s entry %q must be answer:slot because the text has slots", ColCorrectAnswers, entry))
		case !slotted && hasSlot:
			x.errs.Add("data", fmt.Sprintf("%s entry %q names a slot but the text has no slots", ColCorrectAnswers, entry))
		case hasSlot:
			s, err := strconv.Atoi(strings.TrimSpace(slot))
			if err != nil {
				x.errs.Add("data", fmt.Sprintf("%s entry %q has a bad slot id", ColCorrectAnswers, entry))
				continue
			}
			slots[n] = s
			flags[n] = true
		default:
			flags[n] = true
		}
	}

	var out question.DragAndDropData
	present := map[int]bool{}
	for _, a := range x.numbered("ANSWER_") {
		if a.value == "" {
			continue
		}
		present[a.n] = true
		target := question.BoolTarget(flags[a.n])
		if s, ok := slots[a.n]; ok {
			target = question.SlotTarget(s)
		}
		out = append(out, question.DropAnswer{Text: a.value, Correct: target})
	}
	x.checkReferences(flags, present, "ANSWER_")
	if len(out) == 0 {
		x.errs.Add("data", "at least one ANSWER_n cell must be filled in")
	}
	return out, true
}

var bowTieDirs = []string{"CENTER", "LEFT", "RIGHT"}

func (x *extractor) bowTie() (question.BowTieData, bool) {
	cells := map[string][]cell{}
	for _, h := range x.headers {
		m := bowTieCol.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		cells[m[1]] = append(cells[m[1]], cell{n: n, col: h, value: x.row.Get(h)})
	}
	var expected []string
	for _, dir := range bowTieDirs {
		first := dir + "_1"
		if len(cells[dir]) > 0 {
			sort.Slice(cells[dir], func(i, j int) bool { return cells[dir][i].n < cells[dir][j].n })
			first = cells[dir][0].col
		}
		expected = append(expected, dir+"_LABEL", dir+"_ANSWERS", first)
	}
	if x.missing(expected...) {
		return question.BowTieData{}, false
	}

	group := func(dir string) question.BowTieGroup {
		correct := map[int]bool{}
		for _, n := range x.indexList(dir + "_ANSWERS") {
			correct[n] = true
		}
		g := question.BowTieGroup{Label: x.row.Get(dir + "_LABEL")}
		present := map[int]bool{}
		for _, c := range cells[dir] {
			if c.value == "" {
				continue
			}
			present[c.n] = true
			g.Answers = append(g.Answers, question.Choice{Text: c.value, Correct: correct[c.n]})
		}
		ns := make([]int, 0, len(correct))
		for n := range correct {
			ns = append(ns, n)
		}
		sort.Ints(ns)
		for _, n := range ns {
			if !present[n] {
				x.errs.Add("data", fmt.Sprintf("%s_ANSWERS names answer %d but %s_%d is blank", dir, n, dir, n))
			}
		}
		return g
	}
	return question.BowTieData{
		Center: group("CENTER"),
		Left:   group("LEFT"),
		Right:  group("RIGHT"),
	}, true
}

// html returns the HTML cell when the column exists, blank included, and
// otherwise the prompt with one paragraph per line.
func (x *extractor) html(text string) string {
	if x.row.Has(ColHTML) {
		return x.row.Get(ColHTML)
	}
	return TextToHTML(text)
}

// TextToHTML wraps each non-blank line of s in a paragraph.
func TextToHTML(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}

// SplitItems reads a comma separated item cell. Items holding a comma are
// double-quoted the way a CSV field is, e.g. `"Washington, D.C.",Paris`.
func SplitItems(cell string) []string {
	r := csv.NewReader(strings.NewReader(cell))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if err != nil {
		return splitList(cell, ",")
	}
	var out []string
	for _, item := range rec {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// JoinItems is the inverse of SplitItems.
func JoinItems(items []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(items); err != nil {
		return strings.Join(items, ",")
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitAligned keeps empty entries so ALT_TEXT stays aligned with IMAGE_PATH.
func splitAligned(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
