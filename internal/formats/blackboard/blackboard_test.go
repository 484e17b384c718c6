package blackboard_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mind-engage/viva/internal/formats"
	"github.com/mind-engage/viva/internal/formats/blackboard"
	"github.com/mind-engage/viva/internal/question"
	"github.com/mind-engage/viva/internal/question/questiontest"
)

func TestSingleMultipleChoiceLine(t *testing.T) {
	qs, edges := questiontest.Bank()
	set := questiontest.Set(t, questiontest.Only(qs, "mc"), edges)
	out, err := blackboard.New().Format(&formats.Job{Set: set})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(out.Body), "MC\tQ1\tA\tcorrect\tB\tincorrect\n"; got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestBankLinesAndSkips(t *testing.T) {
	out, err := blackboard.New().Format(&formats.Job{Set: questiontest.BankSet(t)})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(out.Body), "\n"), "\n")
	var codes []string
	for _, l := range lines {
		codes = append(codes, strings.SplitN(l, "\t", 2)[0])
	}
	if want := []string{"MC", "MC", "MA", "MAT", "ESS", "FIL"}; !reflect.DeepEqual(codes, want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	if lines[3] != "MAT\tCapitals\tFrance\tParis\tItaly\tRome" {
		t.Errorf("matching line = %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], "ESS\tExplain shock (https://example.org/shock). - causes - signs") {
		t.Errorf("essay line = %q", lines[4])
	}

	var skipped []string
	for _, s := range out.Skipped {
		skipped = append(skipped, s.QuestionID)
	}
	if want := []string{"cs", "sc", "cat", "dnd", "dnd-bool", "bow"}; !reflect.DeepEqual(skipped, want) {
		t.Fatalf("skipped = %v, want %v", skipped, want)
	}
}

func TestFieldsAreFlattened(t *testing.T) {
	q := questiontest.MultipleChoice("x", "two\nlines\tand tab", questiontest.Right("a\tb"), questiontest.Wrong("c"))
	out, err := blackboard.New().Format(&formats.Job{Set: questiontest.Set(t, []question.Question{q}, nil)})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(out.Body), "\n"); n != 1 {
		t.Fatalf("newlines = %d", n)
	}
	if fields := strings.Split(strings.TrimSuffix(string(out.Body), "\n"), "\t"); len(fields) != 6 {
		t.Fatalf("fields = %q", fields)
	}
}
