package tokenizer

import (
	"github.com/dlclark/regexp2"
)

// Pretokenizer segments a literal text run into BPE-eligible pieces using an
// encoding-specific Unicode regex (spec §4.3, patterns listed in §6). The
// supplied patterns use a negative lookahead (`(?!\S)`) that RE2-derived
// regexp cannot express, so matching goes through regexp2.
type Pretokenizer struct {
	re *regexp2.Regexp
}

// CompilePretokenizer compiles a pre-tokenizer pattern. A compilation
// failure is a construction-time error (§7 RegexError). regexp2 evaluates
// Unicode property classes and lookahead natively; possessive quantifiers
// are not passed through, the registry's patterns carry their greedy
// equivalents instead.
func CompilePretokenizer(pattern string) (*Pretokenizer, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, &ErrRegex{Message: err.Error()}
	}
	re.MatchTimeout = 0
	return &Pretokenizer{re: re}, nil
}

// ForEachPiece calls fn once per non-overlapping leftmost match in text, in
// order. The pattern is guaranteed by construction to cover every character
// of text, so fn is called until the match cursor reaches the end.
func (p *Pretokenizer) ForEachPiece(text string, fn func(piece string) error) error {
	if text == "" {
		return nil
	}
	m, err := p.re.FindStringMatch(text)
	if err != nil {
		return &ErrRegex{Message: err.Error()}
	}
	for m != nil {
		if err := fn(m.String()); err != nil {
			return err
		}
		m, err = p.re.FindNextMatch(m)
		if err != nil {
			return &ErrRegex{Message: err.Error()}
		}
	}
	return nil
}
