package tokenizer

import (
	"strings"
	"testing"
)

// testPattern mirrors the r50k_base pre-tokenizer pattern closely enough to
// exercise leading-space word splitting without pulling in the full
// registry (that lives in the top-level package).
const testPattern = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+$|\s+(?!\S)|\s+`

// buildCore assembles a Core over every single byte plus the given whole
// words and specials, enough to drive Encode/Decode deterministically
// without a downloaded vocabulary.
func buildCore(t *testing.T, words []string, specials map[string]Rank) *Core {
	t.Helper()
	enc := map[string]Rank{}
	var r Rank
	for c := 0; c < 256; c++ {
		enc[string([]byte{byte(c)})] = r
		r++
	}
	for _, w := range words {
		if _, ok := enc[w]; ok {
			continue
		}
		enc[w] = r
		r++
	}
	core, err := NewCore(enc, specials, testPattern)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return core
}

func TestEncodeOrdinaryExactWords(t *testing.T) {
	core := buildCore(t, []string{"hello", " world"}, nil)
	toks, err := core.EncodeOrdinary("hello world")
	if err != nil {
		t.Fatalf("EncodeOrdinary: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %d (%v)", len(toks), toks)
	}
	if toks[0] != core.enc["hello"] || toks[1] != core.enc[" world"] {
		t.Fatalf("unexpected tokens: %v", toks)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	core := buildCore(t, []string{"hello", " world", " there"}, nil)
	for _, text := range []string{"hello world", "hello there", "hello world there"} {
		toks, err := core.EncodeOrdinary(text)
		if err != nil {
			t.Fatalf("EncodeOrdinary(%q): %v", text, err)
		}
		got, err := core.DecodeBytes(toks)
		if err != nil {
			t.Fatalf("DecodeBytes(%q): %v", text, err)
		}
		if string(got) != text {
			t.Fatalf("round trip mismatch: got %q want %q", got, text)
		}
	}
}

func TestEncodeOrdinaryNeverEmitsSpecialRank(t *testing.T) {
	specials := map[string]Rank{"<|endoftext|>": 1000}
	core := buildCore(t, nil, specials)
	toks, err := core.EncodeOrdinary("<|endoftext|>")
	if err != nil {
		t.Fatalf("EncodeOrdinary: %v", err)
	}
	for _, tok := range toks {
		if tok == 1000 {
			t.Fatalf("EncodeOrdinary must never emit the special rank, got %v", toks)
		}
	}
}

func TestEncodeDefaultPolicyDisallowsSpecial(t *testing.T) {
	specials := map[string]Rank{"<|endoftext|>": 1000}
	core := buildCore(t, nil, specials)
	_, _, err := core.Encode("hello <|endoftext|>", Policy{})
	if err == nil {
		t.Fatalf("expected ErrDisallowedSpecialToken under the default policy")
	}
	if _, ok := err.(*ErrDisallowedSpecialToken); !ok {
		t.Fatalf("unexpected error type: %T (%v)", err, err)
	}
}

func TestEncodeAllowedSpecialEmitsRank(t *testing.T) {
	specials := map[string]Rank{"<|endoftext|>": 1000}
	core := buildCore(t, []string{"hi"}, specials)
	toks, _, err := core.Encode("hi<|endoftext|>", Policy{Allowed: map[string]struct{}{"<|endoftext|>": {}}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(toks) == 0 || toks[len(toks)-1] != 1000 {
		t.Fatalf("expected trailing special rank 1000, got %v", toks)
	}
}

func TestEncodeNeutralPolicyTreatsMarkerAsOrdinary(t *testing.T) {
	specials := map[string]Rank{"<|endoftext|>": 1000}
	core := buildCore(t, nil, specials)
	toks, _, err := core.Encode("<|endoftext|>", Policy{Disallowed: map[string]struct{}{}, HasDisallowed: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(toks) == 0 {
		t.Fatalf("expected the marker to be encoded as ordinary text, got no tokens")
	}
	for _, tok := range toks {
		if tok == 1000 {
			t.Fatalf("neutral policy must not emit the special rank directly, got %v", toks)
		}
	}
}

func TestInputTooLarge(t *testing.T) {
	core := buildCore(t, nil, nil)
	text := strings.Repeat("a", maxInputScalars+1)
	_, err := core.EncodeOrdinary(text)
	if err == nil {
		t.Fatalf("expected ErrInputTooLarge")
	}
	if _, ok := err.(*ErrInputTooLarge); !ok {
		t.Fatalf("unexpected error type: %T (%v)", err, err)
	}
}

func TestSplitPieceAdjacentMerges(t *testing.T) {
	core := buildCore(t, []string{"th", "the"}, nil)
	pieces := core.SplitPiece("the")
	if len(pieces) != 1 || pieces[0] != "the" {
		t.Fatalf("expected a single merged piece %q, got %v", "the", pieces)
	}
}

// TestEncodeBytesRoundTripOnInvalidUTF8 exercises EncodeBytes' longest-valid-
// prefix / invalid-tail path (the raw_bytes codec spec.md §8 requires to
// round-trip for arbitrary inputs, including runs of the continuation byte
// 0x80 that never form valid UTF-8 on their own).
func TestEncodeBytesRoundTripOnInvalidUTF8(t *testing.T) {
	core := buildCore(t, nil, nil)
	for k := 0; k <= 10; k++ {
		b := make([]byte, k)
		for i := range b {
			b[i] = 0x80
		}
		toks, err := core.EncodeBytes(b)
		if err != nil {
			t.Fatalf("EncodeBytes([0x80]*%d): %v", k, err)
		}
		got, err := core.DecodeBytes(toks)
		if err != nil {
			t.Fatalf("DecodeBytes([0x80]*%d): %v", k, err)
		}
		if string(got) != string(b) {
			t.Fatalf("round trip mismatch for [0x80]*%d: got %x want %x", k, got, b)
		}
	}
}

// TestEncodeBytesRoundTripValidPrefixPlusInvalidTail checks the case where a
// valid-UTF-8 word precedes an invalid tail, forcing the merge boundary to
// re-form across the split (spec.md §4.5/§8: "a valid text prefix followed
// by invalid trailing bytes", e.g. `[0x20,0xEC,0x8B,0xA4,0xED]`).
func TestEncodeBytesRoundTripValidPrefixPlusInvalidTail(t *testing.T) {
	core := buildCore(t, []string{"hello"}, nil)
	for k := 1; k <= 5; k++ {
		b := append([]byte("hello"), make([]byte, k)...)
		for i := len("hello"); i < len(b); i++ {
			b[i] = 0x80
		}
		toks, err := core.EncodeBytes(b)
		if err != nil {
			t.Fatalf("EncodeBytes(hello + [0x80]*%d): %v", k, err)
		}
		got, err := core.DecodeBytes(toks)
		if err != nil {
			t.Fatalf("DecodeBytes(hello + [0x80]*%d): %v", k, err)
		}
		if string(got) != string(b) {
			t.Fatalf("round trip mismatch for hello + [0x80]*%d: got %x want %x", k, got, b)
		}
	}
}

func TestAdversarialRepeatedByteStable(t *testing.T) {
	core := buildCore(t, []string{"^^", "^^^^"}, nil)
	text := strings.Repeat("^", 10000)
	toks, err := core.EncodeOrdinary(text)
	if err != nil {
		t.Fatalf("EncodeOrdinary: %v", err)
	}
	got, err := core.DecodeBytes(toks)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if string(got) != text {
		t.Fatalf("round trip mismatch on repeated-byte input")
	}
}
