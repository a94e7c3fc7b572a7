package tokenizer

import (
	"encoding/base64"
	"strconv"
	"testing"
)

func tiktokenLine(token string, rank int) string {
	return base64.StdEncoding.EncodeToString([]byte(token)) + " " + strconv.Itoa(rank)
}

func TestParseVocabularyBasic(t *testing.T) {
	data := []byte(tiktokenLine("a", 0) + "\n" + tiktokenLine("b", 1) + "\n" + tiktokenLine("ab", 2) + "\n")
	ranks, err := ParseVocabulary(data)
	if err != nil {
		t.Fatalf("ParseVocabulary: %v", err)
	}
	want := map[string]Rank{"a": 0, "b": 1, "ab": 2}
	if len(ranks) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(ranks), len(want), ranks)
	}
	for tok, r := range want {
		if ranks[tok] != r {
			t.Fatalf("ranks[%q] = %d, want %d", tok, ranks[tok], r)
		}
	}
}

func TestParseVocabularySkipsMalformedLines(t *testing.T) {
	data := []byte(tiktokenLine("a", 0) + "\n" + "not a valid line\n" + "\n" + tiktokenLine("b", 1) + "\n")
	ranks, err := ParseVocabulary(data)
	if err != nil {
		t.Fatalf("ParseVocabulary: %v", err)
	}
	if len(ranks) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(ranks), ranks)
	}
}

func TestParseVocabularyRejectsInvalidUTF8(t *testing.T) {
	_, err := ParseVocabulary([]byte{0xff, 0xfe, 0xfd})
	if err == nil {
		t.Fatalf("expected an error for invalid UTF-8 input")
	}
	if _, ok := err.(*ErrDecode); !ok {
		t.Fatalf("unexpected error type: %T", err)
	}
}
