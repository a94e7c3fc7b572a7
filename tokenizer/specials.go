package tokenizer

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// specialMatcher locates special-token markers in text via a single
// precompiled alternation regex (spec §4.4: "search from the cursor for the
// next occurrence of any special marker via the precompiled alternation").
type specialMatcher struct {
	re *regexp2.Regexp
}

func newSpecialMatcher(specials map[string]Rank) (*specialMatcher, error) {
	if len(specials) == 0 {
		return &specialMatcher{}, nil
	}
	if err := checkNoPrefixOverlap(specials); err != nil {
		return nil, err
	}

	markers := make([]string, 0, len(specials))
	for m := range specials {
		markers = append(markers, m)
	}
	// Longest-first, with ties broken alphabetically, so the alternation is
	// built in a deterministic order. Tables with prefix-overlapping markers
	// are rejected above, so the order never changes which marker matches
	// (spec §9 Open Question (b)).
	sort.Slice(markers, func(i, j int) bool {
		if len(markers[i]) != len(markers[j]) {
			return len(markers[i]) > len(markers[j])
		}
		return markers[i] < markers[j]
	})

	parts := make([]string, len(markers))
	for i, m := range markers {
		parts[i] = quoteMetaRegexp2(m)
	}
	re, err := regexp2.Compile(strings.Join(parts, "|"), regexp2.None)
	if err != nil {
		return nil, &ErrRegex{Message: err.Error()}
	}
	return &specialMatcher{re: re}, nil
}

// nextMatch finds the next marker occurrence at or after byte offset from
// and returns its byte offset in text. It returns a negative index when no
// marker remains in text.
func (sm *specialMatcher) nextMatch(text string, from int) (int, string, error) {
	if sm.re == nil || from > len(text) {
		return -1, "", nil
	}
	m, err := sm.re.FindStringMatchStartingAt(text, from)
	if err != nil {
		return -1, "", &ErrRegex{Message: err.Error()}
	}
	if m == nil {
		return -1, "", nil
	}
	// regexp2 reports m.Index in runes; convert it to a byte offset.
	idx := 0
	for n := 0; n < m.Index; n++ {
		_, size := utf8.DecodeRuneInString(text[idx:])
		idx += size
	}
	return idx, m.String(), nil
}

// checkNoPrefixOverlap reports, as a returned error, whether any marker in
// specials is a strict prefix of another (spec §A "Errors": construction
// errors are returned, never panicked).
func checkNoPrefixOverlap(specials map[string]Rank) error {
	markers := make([]string, 0, len(specials))
	for m := range specials {
		markers = append(markers, m)
	}
	for i, a := range markers {
		for j, b := range markers {
			if i == j || len(a) >= len(b) {
				continue
			}
			if strings.HasPrefix(b, a) {
				return &ErrSpecialTokenOverlap{Short: a, Long: b}
			}
		}
	}
	return nil
}

// quoteMetaRegexp2 escapes a literal string for inclusion in a regexp2
// pattern. Special-token markers contain only `<`, `|`, `>`, letters,
// digits, and underscores, but this escapes the full metacharacter set for
// robustness against future marker shapes.
func quoteMetaRegexp2(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '.', '+', '*', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
