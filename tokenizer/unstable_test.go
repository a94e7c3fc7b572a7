package tokenizer

import "testing"

func TestEncodeWithUnstableCompletions(t *testing.T) {
	core := buildCore(t, []string{"cat", "catalog"}, nil)

	stable, completions, err := core.EncodeWithUnstable("cat", Policy{})
	if err != nil {
		t.Fatalf("EncodeWithUnstable: %v", err)
	}
	if len(stable) != 0 {
		t.Fatalf("expected an empty stable prefix, got %v", stable)
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %d: %v", len(completions), completions)
	}
	want := [][]Rank{{core.enc["cat"]}, {core.enc["catalog"]}}
	for i, c := range completions {
		if len(c) != len(want[i]) || c[0] != want[i][0] {
			t.Fatalf("completion %d = %v, want %v", i, c, want[i])
		}
	}
}

func TestEncodeWithUnstableNoTrailingPiece(t *testing.T) {
	core := buildCore(t, nil, nil)
	stable, completions, err := core.EncodeWithUnstable("", Policy{})
	if err != nil {
		t.Fatalf("EncodeWithUnstable: %v", err)
	}
	if len(stable) != 0 || completions != nil {
		t.Fatalf("expected no tokens and no completions for empty input, got stable=%v completions=%v", stable, completions)
	}
}

func TestKeysWithPrefix(t *testing.T) {
	core := buildCore(t, []string{"cat", "catalog", "dog"}, nil)
	got := core.keysWithPrefix("cat")
	if len(got) != 2 || got[0] != "cat" || got[1] != "catalog" {
		t.Fatalf("keysWithPrefix(\"cat\") = %v, want [cat catalog]", got)
	}
	if got := core.keysWithPrefix("zzz"); len(got) != 0 {
		t.Fatalf("keysWithPrefix(\"zzz\") = %v, want empty", got)
	}
}
