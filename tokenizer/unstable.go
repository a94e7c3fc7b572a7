package tokenizer

import "sort"

// EncodeWithUnstable computes the stable token prefix for text plus a set
// of token sequences that are plausible completions for its unstable tail
// (spec §4.7): the final piece of an encode call may end at a regex
// boundary that could shift if more text were appended.
func (c *Core) EncodeWithUnstable(text string, policy Policy) (stable []Rank, completions [][]Rank, err error) {
	tokens, lastPieceLen, err := c.Encode(text, policy)
	if err != nil {
		return nil, nil, err
	}
	if lastPieceLen == 0 {
		return tokens, nil, nil
	}
	lastPieceLen = c.IncreaseLastPieceTokenLen(tokens, lastPieceLen)
	if lastPieceLen > len(tokens) {
		lastPieceLen = len(tokens)
	}
	stable = tokens[:len(tokens)-lastPieceLen]
	unstableToks := tokens[len(tokens)-lastPieceLen:]

	var unstable []byte
	for _, t := range unstableToks {
		if !c.dec.AppendInto(&unstable, t) {
			return nil, nil, &ErrDecodeKey{Rank: t}
		}
	}
	if len(unstable) == 0 {
		return stable, nil, nil
	}

	seen := make(map[string]struct{})
	add := func(seq []Rank) {
		key := string(ranksToBytes(seq))
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		completions = append(completions, seq)
	}

	// Every merge-table key with unstable as a prefix contributes itself.
	for _, key := range c.keysWithPrefix(string(unstable)) {
		add([]Rank{c.enc[key]})
	}

	// For every split point inside unstable, keys continuing the tail
	// re-encode the prefix plus that key ordinarily.
	for i := 1; i < len(unstable); i++ {
		suffix := string(unstable[i:])
		for _, key := range c.keysWithPrefix(suffix) {
			candidate := string(unstable[:i]) + key
			toks, terr := c.EncodeOrdinary(candidate)
			if terr != nil {
				continue
			}
			seq := prefixByByteLength(c, toks, len(unstable))
			if seq != nil {
				add(seq)
			}
		}
	}

	// If the unstable tail ends in whitespace and has more than one byte,
	// split the BPE encoding of the run before the trailing whitespace from
	// the whitespace itself and concatenate.
	if len(unstable) > 1 {
		last := unstable[len(unstable)-1]
		if last == ' ' || last == '\t' || last == '\n' {
			head, herr := c.EncodeSinglePiece(unstable[:len(unstable)-1])
			tail, terr := c.EncodeSinglePiece(unstable[len(unstable)-1:])
			if herr == nil && terr == nil {
				seq := append(append([]Rank(nil), head...), tail...)
				add(seq)
			}
		}
	}

	return stable, completions, nil
}

// prefixByByteLength returns the shortest prefix of toks whose decoded byte
// length is at least minBytes, or nil if toks' total length falls short.
func prefixByByteLength(c *Core, toks []Rank, minBytes int) []Rank {
	total := 0
	for i, t := range toks {
		var b []byte
		if !c.dec.AppendInto(&b, t) {
			return nil
		}
		total += len(b)
		if total >= minBytes {
			return append([]Rank(nil), toks[:i+1]...)
		}
	}
	return nil
}

func ranksToBytes(r []Rank) []byte {
	out := make([]byte, len(r)*4)
	for i, v := range r {
		out[i*4] = byte(v)
		out[i*4+1] = byte(v >> 8)
		out[i*4+2] = byte(v >> 16)
		out[i*4+3] = byte(v >> 24)
	}
	return out
}

// keysWithPrefix returns every merge-table key with the given byte prefix,
// located via binary search over the sorted keys array (spec §4.7 "Prefix
// searches use binary search over the sorted keys array").
func (c *Core) keysWithPrefix(prefix string) []string {
	keys := c.sortedKeys
	lo := sort.Search(len(keys), func(i int) bool { return keys[i] >= prefix })
	hi := lo
	for hi < len(keys) && hasPrefix(keys[hi], prefix) {
		hi++
	}
	return keys[lo:hi]
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
