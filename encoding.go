package gotiktoken

import (
	"sort"
	"unicode/utf8"

	"github.com/gotiktoken/gotiktoken/tokenizer"
)

// Encoding is the public facade over a loaded vocabulary: an immutable,
// read-only object safe to share across goroutines (spec §3 "Encoder
// object", §5 "Concurrency model").
type Encoding struct {
	name string
	core *tokenizer.Core
}

func newEncoding(name string, core *tokenizer.Core) *Encoding {
	return &Encoding{name: name, core: core}
}

// Name returns the encoding's registry name.
func (e *Encoding) Name() string { return e.name }

// NVocab returns the total number of distinct token ranks.
func (e *Encoding) NVocab() int { return e.core.NVocab() }

// MaxTokenValue returns the highest rank this encoding assigns.
func (e *Encoding) MaxTokenValue() tokenizer.Rank { return e.core.MaxTokenValue() }

// EOTToken returns the `<|endoftext|>` rank, if defined.
func (e *Encoding) EOTToken() (tokenizer.Rank, bool) { return e.core.EOTToken() }

// IsSpecial reports whether r is a special-token rank.
func (e *Encoding) IsSpecial(r tokenizer.Rank) bool { return e.core.IsSpecialToken(r) }

// TokenByteValues returns the merge table's byte sequences, in
// lexicographic order (the same order SortedKeys exposes internally).
func (e *Encoding) TokenByteValues() [][]byte {
	keys := e.core.SortedKeys()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// EncodeOrdinary encodes text with no special-token handling: markers such
// as `<|endoftext|>` are treated as ordinary text (spec §4.5).
func (e *Encoding) EncodeOrdinary(text string) ([]tokenizer.Rank, error) {
	return e.core.EncodeOrdinary(text)
}

// Encode runs the full pipeline, emitting a rank for any marker in
// allowedSpecial and failing with ErrDisallowedSpecialToken for any other
// marker (spec §4.4, §4.5).
func (e *Encoding) Encode(text string, allowedSpecial map[string]struct{}) ([]tokenizer.Rank, error) {
	toks, _, err := e.core.Encode(text, tokenizer.Policy{Allowed: allowedSpecial})
	return toks, err
}

// EncodeWithAllSpecials encodes text allowing every special marker the
// encoding defines to be emitted directly.
func (e *Encoding) EncodeWithAllSpecials(text string) ([]tokenizer.Rank, error) {
	allowed := make(map[string]struct{})
	for _, k := range e.specialMarkers() {
		allowed[k] = struct{}{}
	}
	toks, _, err := e.core.Encode(text, tokenizer.Policy{Allowed: allowed})
	return toks, err
}

// EncodeWithPolicy exposes the three-way allowed/disallowed/neutral policy
// directly (spec §4.4): a marker not in either set is left for the
// pre-tokenizer to consume as ordinary text.
func (e *Encoding) EncodeWithPolicy(text string, allowed, disallowed map[string]struct{}) ([]tokenizer.Rank, error) {
	toks, _, err := e.core.Encode(text, tokenizer.Policy{
		Allowed:       allowed,
		Disallowed:    disallowed,
		HasDisallowed: true,
	})
	return toks, err
}

func (e *Encoding) specialMarkers() []string { return e.core.SpecialMarkers() }

// EncodeWithUnstable computes the stable token prefix plus a set of token
// sequences that are plausible completions for the unstable tail (spec
// §4.7), useful for streaming callers deciding how much of an encode result
// to commit to before more text arrives.
func (e *Encoding) EncodeWithUnstable(text string, allowedSpecial map[string]struct{}) ([]tokenizer.Rank, [][]tokenizer.Rank, error) {
	return e.core.EncodeWithUnstable(text, tokenizer.Policy{Allowed: allowedSpecial})
}

// EncodeBytes treats b as text when it is valid UTF-8, otherwise falls back
// to a raw-byte BPE merge across the invalid tail (spec §4.5).
func (e *Encoding) EncodeBytes(b []byte) ([]tokenizer.Rank, error) {
	return e.core.EncodeBytes(b)
}

// EncodeSinglePiece BPE-encodes b with no pre-tokenization.
func (e *Encoding) EncodeSinglePiece(b []byte) ([]tokenizer.Rank, error) {
	return e.core.EncodeSinglePiece(b)
}

// EncodeSingleToken returns the single rank that exactly matches b.
func (e *Encoding) EncodeSingleToken(b []byte) (tokenizer.Rank, error) {
	return e.core.EncodeSingleToken(b)
}

// DecodeBytes concatenates the byte runs for tokens.
func (e *Encoding) DecodeBytes(tokens []tokenizer.Rank) ([]byte, error) {
	return e.core.DecodeBytes(tokens)
}

// Decode concatenates and validates tokens as UTF-8 text.
func (e *Encoding) Decode(tokens []tokenizer.Rank) (string, error) {
	b, err := e.core.DecodeBytes(tokens)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &tokenizer.ErrDecode{Message: "decoded token sequence is not valid UTF-8"}
	}
	return string(b), nil
}

// DecodeSingleTokenBytes returns the byte sequence for a single rank.
func (e *Encoding) DecodeSingleTokenBytes(r tokenizer.Rank) ([]byte, error) {
	return e.core.DecodeSingleTokenBytes(r)
}

// DecodeWithOffsets decodes tokens to text and returns, for each token, the
// index of the first Unicode scalar value its bytes begin at (spec §4.6).
func (e *Encoding) DecodeWithOffsets(tokens []tokenizer.Rank) (string, []int, error) {
	perToken := make([][]byte, len(tokens))
	total := 0
	for i, t := range tokens {
		b, err := e.core.DecodeSingleTokenBytes(t)
		if err != nil {
			return "", nil, err
		}
		perToken[i] = b
		total += len(b)
	}
	all := make([]byte, 0, total)
	boundaries := make([]int, len(tokens))
	for i, b := range perToken {
		boundaries[i] = len(all)
		all = append(all, b...)
	}
	if !utf8.Valid(all) {
		return "", nil, &tokenizer.ErrDecode{Message: "decoded token sequence is not valid UTF-8"}
	}

	runeStarts := make([]int, 0, len(all))
	for i := range string(all) {
		runeStarts = append(runeStarts, i)
	}

	offsets := make([]int, len(tokens))
	for i, byteOff := range boundaries {
		offsets[i] = sort.Search(len(runeStarts), func(j int) bool { return runeStarts[j] > byteOff }) - 1
		if offsets[i] < 0 {
			offsets[i] = 0
		}
	}
	return string(all), offsets, nil
}
