package tokenizer

// Rank is the priority of a token in the merge table: a lower rank merges
// earlier. It also serves as the token's numeric identity.
type Rank = uint32

// noRank is the sentinel used internally to mean "no merge candidate".
const noRank Rank = ^Rank(0)
