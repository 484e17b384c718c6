package question

import (
	"strconv"
	"strings"
)

const minSlotUnderscores = 3

type slotSpan struct {
	start, end int
	id         int
}

// slotSpans finds every ___N___ marker. A closing run may also open the next
// marker, so consecutive spans can overlap on that run.
func slotSpans(text string) []slotSpan {
	var out []slotSpan
	i := 0
	for i < len(text) {
		open := underscoreRun(text, i)
		if open < minSlotUnderscores {
			if open == 0 {
				i++
			} else {
				i += open
			}
			continue
		}
		j := i + open
		k := j
		for k < len(text) && text[k] >= '0' && text[k] <= '9' {
			k++
		}
		if k == j {
			i = j
			continue
		}
		closing := underscoreRun(text, k)
		if closing < minSlotUnderscores {
			i = k
			continue
		}
		if n, err := strconv.Atoi(text[j:k]); err == nil {
			out = append(out, slotSpan{start: i, end: k + closing, id: n})
		}
		i = k
	}
	return out
}

// ParseSlots returns the slot ids of every ___N___ marker in text, in order of
// appearance and with repeats. Runs of fewer than three underscores are
// emphasis markup and never delimit a slot.
func ParseSlots(text string) []int {
	spans := slotSpans(text)
	if len(spans) == 0 {
		return nil
	}
	out := make([]int, len(spans))
	for i, s := range spans {
		out[i] = s.id
	}
	return out
}

func underscoreRun(s string, at int) int {
	n := 0
	for at+n < len(s) && s[at+n] == '_' {
		n++
	}
	return n
}

// SlotMarker renders the marker for slot n.
func SlotMarker(n int) string {
	return "___" + strconv.Itoa(n) + "___"
}

// ReplaceSlots substitutes every marker ParseSlots reports with fn(id).
func ReplaceSlots(text string, fn func(id int) string) string {
	var b strings.Builder
	prev := 0
	for _, s := range slotSpans(text) {
		b.WriteString(text[prev:max(s.start, prev)])
		b.WriteString(fn(s.id))
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
