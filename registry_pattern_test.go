package gotiktoken

import (
	"reflect"
	"testing"

	"github.com/gotiktoken/gotiktoken/tokenizer"
)

// pieces runs a pre-tokenizer pattern over text and collects the matched
// pieces in order, for asserting segmentation boundaries directly — the
// published cl100k_base/o200k_base rank tables aren't available in this
// environment, so these tests validate regexp2 compatibility (Unicode
// property classes, the `(?!\S)` lookahead) against the real patCl100k /
// patO200k strings by piece shape rather than by reproducing exact token
// IDs from spec §8's vector table.
func pieces(t *testing.T, pattern, text string) []string {
	t.Helper()
	p, err := tokenizer.CompilePretokenizer(pattern)
	if err != nil {
		t.Fatalf("CompilePretokenizer: %v", err)
	}
	var got []string
	if err := p.ForEachPiece(text, func(piece string) error {
		got = append(got, piece)
		return nil
	}); err != nil {
		t.Fatalf("ForEachPiece: %v", err)
	}
	return got
}

// TestPatCl100kSegmentsSpecVectorsShape exercises patCl100k against the
// inputs from spec.md §8's concrete-vectors table ("rer" -> [38149],
// "'rer" -> [2351, 81], "today\n " -> [31213, 198, 220]) and checks that
// regexp2 splits them into the same number and shape of pieces the
// published token counts imply, without needing the real ~100k-entry
// vocabulary to assert the rank numbers themselves.
func TestPatCl100kSegmentsSpecVectorsShape(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"rer", []string{"rer"}},
		{"'rer", []string{"'re", "r"}},
		{"today\n ", []string{"today", "\n", " "}},
	}
	for _, c := range cases {
		got := pieces(t, patCl100k, c.text)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("pieces(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

// TestPatCl100kThumbsUpIsOnePiece exercises the non-space/non-letter/
// non-digit alternative against a non-ASCII, non-letter scalar (spec.md §8:
// `"👍"` -> `[9468, 239, 235]`), confirming regexp2 treats the emoji as a
// single punctuation-like run rather than splitting on its UTF-8 bytes.
func TestPatCl100kThumbsUpIsOnePiece(t *testing.T) {
	got := pieces(t, patCl100k, "👍")
	if len(got) != 1 || got[0] != "👍" {
		t.Fatalf("pieces(👍) = %v, want a single piece", got)
	}
}

// TestPatO200kUnicodeLetterClasses exercises the \p{Lu}/\p{Lt}/\p{Lm}/
// \p{Lo}/\p{M} branches patO200k adds over patCl100k (spec §4.3/§9):
// a title-cased word and an all-uppercase word must each segment as one
// piece, and the trailing-whitespace lookahead must still split a newline
// from a following space the same way patCl100k does.
func TestPatO200kUnicodeLetterClasses(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Hello", []string{"Hello"}},
		{"HELLO", []string{"HELLO"}},
		{"today\n ", []string{"today", "\n", " "}},
	}
	for _, c := range cases {
		got := pieces(t, patO200k, c.text)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("pieces(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

// TestPatCl100kCoreRoundTrip drives a full tokenizer.Core built over the
// real patCl100k pattern string, with a small honestly-synthetic vocabulary
// (these ranks are not the published cl100k_base ranks, since that
// ~100k-entry table isn't available offline) to prove the pattern wires
// cleanly into NewCore end to end, not just in isolation via
// CompilePretokenizer.
func TestPatCl100kCoreRoundTrip(t *testing.T) {
	enc := map[string]tokenizer.Rank{}
	var r tokenizer.Rank
	for c := 0; c < 256; c++ {
		enc[string([]byte{byte(c)})] = r
		r++
	}
	for _, w := range []string{"rer", "'re", "today", "\n", " "} {
		if _, ok := enc[w]; ok {
			continue
		}
		enc[w] = r
		r++
	}
	core, err := tokenizer.NewCore(enc, nil, patCl100k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	for _, text := range []string{"rer", "'rer", "today\n "} {
		toks, err := core.EncodeOrdinary(text)
		if err != nil {
			t.Fatalf("EncodeOrdinary(%q): %v", text, err)
		}
		got, err := core.DecodeBytes(toks)
		if err != nil {
			t.Fatalf("DecodeBytes(%q): %v", text, err)
		}
		if string(got) != text {
			t.Fatalf("round trip mismatch for %q: got %q", text, got)
		}
	}
}

// TestPatO200kCoreRoundTrip is TestPatCl100kCoreRoundTrip's counterpart for
// patO200k, over inputs that exercise its Unicode-letter-class branches.
func TestPatO200kCoreRoundTrip(t *testing.T) {
	enc := map[string]tokenizer.Rank{}
	var r tokenizer.Rank
	for c := 0; c < 256; c++ {
		enc[string([]byte{byte(c)})] = r
		r++
	}
	for _, w := range []string{"Hello", "HELLO", "today", "\n", " "} {
		if _, ok := enc[w]; ok {
			continue
		}
		enc[w] = r
		r++
	}
	core, err := tokenizer.NewCore(enc, nil, patO200k)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	for _, text := range []string{"Hello", "HELLO", "today\n "} {
		toks, err := core.EncodeOrdinary(text)
		if err != nil {
			t.Fatalf("EncodeOrdinary(%q): %v", text, err)
		}
		got, err := core.DecodeBytes(toks)
		if err != nil {
			t.Fatalf("DecodeBytes(%q): %v", text, err)
		}
		if string(got) != text {
			t.Fatalf("round trip mismatch for %q: got %q", text, got)
		}
	}
}
