package gotiktoken

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gotiktoken/gotiktoken/tokenizer"
)

// Name identifies one of the supported tiktoken vocabularies.
type Name string

const (
	Cl100kBase   Name = "cl100k_base"
	R50kBase     Name = "r50k_base"
	P50kBase     Name = "p50k_base"
	P50kEdit     Name = "p50k_edit"
	O200kBase    Name = "o200k_base"
	O200kHarmony Name = "o200k_harmony"
	GPT2         Name = "gpt2"
)

// Pre-tokenizer patterns, verbatim from the public tiktoken definitions.
// Possessive quantifiers (`?+`, `++`) are rewritten to their greedy
// equivalents: on these patterns the match sequence is identical either
// way (spec §4.3, §9), and regexp2's possessive-quantifier support cannot
// be relied upon across versions.
const (
	patCl100k = `'(?i:[sdmt]|ll|ve|re)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`
	patR50k   = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+$|\s+(?!\S)|\s+`
	patO200k  = `[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?|[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n/]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

// Harmony-specific marker ranks (spec §6 "o200k_harmony"), grounded on the
// narrower named table the Harmony chat format defines; everything else in
// the harmony reserved span is filled in by the reserved-range loop in
// o200kHarmonySpecials.
const (
	harmonyStartOfText = 199998
	harmonyReturn      = 200002
	harmonyConstrain   = 200003
	harmonyChannel     = 200005
	harmonyStart       = 200006
	harmonyEnd         = 200007
	harmonyMessage     = 200008
	harmonyCall        = 200012

	harmonyReservedStart = 200013
	harmonyReservedEnd   = 201087
)

type def struct {
	pattern     string
	vocabFile   string
	expectedSHA string
	specials    func() map[string]tokenizer.Rank
}

func o200kBaseSpecials() map[string]tokenizer.Rank {
	return map[string]tokenizer.Rank{
		"<|endoftext|>":   199999,
		"<|endofprompt|>": 200018,
	}
}

func o200kHarmonySpecials() map[string]tokenizer.Rank {
	m := o200kBaseSpecials()
	m["<|startoftext|>"] = harmonyStartOfText
	m["<|return|>"] = harmonyReturn
	m["<|constrain|>"] = harmonyConstrain
	m["<|channel|>"] = harmonyChannel
	m["<|start|>"] = harmonyStart
	m["<|end|>"] = harmonyEnd
	m["<|message|>"] = harmonyMessage
	m["<|call|>"] = harmonyCall

	taken := make(map[int]struct{}, len(m))
	for _, r := range m {
		taken[int(r)] = struct{}{}
	}
	for n := harmonyReservedStart; n <= harmonyReservedEnd; n++ {
		if _, ok := taken[n]; ok {
			continue
		}
		m[fmt.Sprintf("<|reserved_%d|>", n)] = tokenizer.Rank(n)
	}
	return m
}

func r50kSpecials() map[string]tokenizer.Rank {
	return map[string]tokenizer.Rank{"<|endoftext|>": 50256}
}

func p50kEditSpecials() map[string]tokenizer.Rank {
	m := r50kSpecials()
	m["<|fim_prefix|>"] = 50281
	m["<|fim_middle|>"] = 50282
	m["<|fim_suffix|>"] = 50283
	return m
}

func cl100kSpecials() map[string]tokenizer.Rank {
	return map[string]tokenizer.Rank{
		"<|endoftext|>":   100257,
		"<|fim_prefix|>":  100258,
		"<|fim_middle|>":  100259,
		"<|fim_suffix|>":  100260,
		"<|endofprompt|>": 100276,
	}
}

var registry = map[Name]def{
	// No SHA-256 is pinned for cl100k_base/r50k_base/p50k_base: the digest is
	// only verified when expectedSHA is non-empty (spec §6 "when available").
	Cl100kBase:   {pattern: patCl100k, vocabFile: "cl100k_base.tiktoken", specials: cl100kSpecials},
	R50kBase:     {pattern: patR50k, vocabFile: "r50k_base.tiktoken", specials: r50kSpecials},
	P50kBase:     {pattern: patR50k, vocabFile: "p50k_base.tiktoken", specials: r50kSpecials},
	P50kEdit:     {pattern: patR50k, vocabFile: "p50k_base.tiktoken", specials: p50kEditSpecials},
	O200kBase:    {pattern: patO200k, vocabFile: "o200k_base.tiktoken", expectedSHA: "446a9538cb6c348e3516120d7c08b09f57c36495e2acfffe59a5bf8b0cfb1a2d", specials: o200kBaseSpecials},
	O200kHarmony: {pattern: patO200k, vocabFile: "o200k_base.tiktoken", expectedSHA: "446a9538cb6c348e3516120d7c08b09f57c36495e2acfffe59a5bf8b0cfb1a2d", specials: o200kHarmonySpecials},
	GPT2:         {pattern: patR50k, vocabFile: "gpt2", specials: r50kSpecials},
}

// exactModels maps a literal model name to its encoding.
var exactModels = map[string]Name{
	"gpt-4o":                 O200kBase,
	"gpt-4o-mini":            O200kBase,
	"gpt-4":                  Cl100kBase,
	"gpt-3.5-turbo":          Cl100kBase,
	"gpt-3.5":                Cl100kBase,
	"text-davinci-003":       P50kBase,
	"text-davinci-002":       P50kBase,
	"text-davinci-001":       R50kBase,
	"text-davinci-edit-001":  P50kEdit,
	"code-davinci-edit-001":  P50kEdit,
	"davinci":                R50kBase,
	"curie":                  R50kBase,
	"babbage":                R50kBase,
	"ada":                    R50kBase,
	"gpt2":                   GPT2,
}

// prefixModels maps a model-name prefix to its encoding, longest prefix
// wins (spec §6 "Model → encoding resolution").
var prefixModels = map[string]Name{
	"gpt-4o-":          O200kBase,
	"gpt-4-":           Cl100kBase,
	"gpt-3.5-turbo-":   Cl100kBase,
	"gpt-35-turbo-":    Cl100kBase,
	"ft:gpt-4o":        O200kBase,
	"ft:gpt-4":         Cl100kBase,
	"ft:gpt-3.5-turbo": Cl100kBase,
	"ft:davinci-002":   R50kBase,
	"ft:babbage-002":   R50kBase,
	"o1-":              O200kBase,
	"o3-":              O200kBase,
}

// ErrUnsupportedEncoding reports a model name that resolves to no known
// encoding.
type ErrUnsupportedEncoding struct {
	Model string
}

func (e *ErrUnsupportedEncoding) Error() string {
	return fmt.Sprintf("gotiktoken: no known encoding for model %q", e.Model)
}

// ForModel resolves a model name to its encoding name via an exact-match
// table, then the longest matching prefix.
func ForModel(model string) (Name, error) {
	if n, ok := exactModels[model]; ok {
		return n, nil
	}
	var best string
	var bestName Name
	for prefix, n := range prefixModels {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, bestName = prefix, n
		}
	}
	if best != "" {
		return bestName, nil
	}
	return "", &ErrUnsupportedEncoding{Model: model}
}

// encodingCache memoizes constructed encoders: the merge table parse and
// regex compilation are the expensive part of GetEncoding, and the result
// is immutable and safe to share (spec §5).
var encodingCache sync.Map // Name -> *Encoding

// GetEncoding returns the named encoding, loading and caching its
// vocabulary with the default Loader on first use.
func GetEncoding(name Name) (*Encoding, error) {
	if v, ok := encodingCache.Load(name); ok {
		return v.(*Encoding), nil
	}
	enc, err := NewLoader().LoadEncoding(name)
	if err != nil {
		return nil, err
	}
	actual, _ := encodingCache.LoadOrStore(name, enc)
	return actual.(*Encoding), nil
}

// EncodingForModel resolves model to an encoding name and loads it.
func EncodingForModel(model string) (*Encoding, error) {
	name, err := ForModel(model)
	if err != nil {
		return nil, err
	}
	return GetEncoding(name)
}

// KnownEncodings lists every registered encoding name, sorted.
func KnownEncodings() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
