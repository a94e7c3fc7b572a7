//go:build goexperiment.arenas

package tokenizer

import "arena"

// arenaStore is an arena-backed token store. All storage lives in a single
// dedicated arena so the merge table's byte data doesn't scatter across the
// GC heap. AppendInto copies out of the arena blob so arena-backed slices
// never escape to callers.
type arenaStore struct {
	a    *arena.Arena
	blob []byte
	off  []uint32
}

func newTokenStore(enc map[string]Rank) (tokenStore, error) {
	a := arena.NewArena()
	var maxRank Rank
	for _, r := range enc {
		if r > maxRank {
			maxRank = r
		}
	}
	size := int(maxRank) + 1
	lens := arena.MakeSlice[uint32](a, size, size)
	total := 0
	for tok, r := range enc {
		if lens[int(r)] == 0 {
			lens[int(r)] = uint32(len(tok))
			total += len(tok)
		}
	}
	blob := arena.MakeSlice[byte](a, total, total)
	off := arena.MakeSlice[uint32](a, size+1, size+1)
	byRank := make([]string, size)
	for tok, r := range enc {
		byRank[int(r)] = tok
	}
	pos := 0
	for i := 0; i < size; i++ {
		off[i] = uint32(pos)
		if n := len(byRank[i]); n > 0 {
			copy(blob[pos:pos+n], byRank[i])
			pos += n
		}
	}
	off[size] = uint32(pos)
	return &arenaStore{a: a, blob: blob, off: off}, nil
}

func (s *arenaStore) AppendInto(dst *[]byte, r Rank) bool {
	if int(r) >= len(s.off)-1 {
		return false
	}
	a := s.off[r]
	b := s.off[r+1]
	if a == b {
		return false
	}
	*dst = append(*dst, s.blob[a:b]...)
	return true
}

func (s *arenaStore) Close() { s.a.Free() }
