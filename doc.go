// Package gotiktoken converts text to and from the integer token sequences
// used by OpenAI's tiktoken-compatible models. It loads cl100k_base,
// r50k_base, p50k_base, p50k_edit, o200k_base, o200k_harmony, and gpt2
// vocabularies, matching the reference encoder's output bit-for-bit.
//
// The [Encoding] type returned by [GetEncoding] and [EncodingForModel] is
// immutable once constructed and safe to share across goroutines; only the
// batch helpers in this package suspend, the per-call encode and decode
// paths are synchronous and CPU-bound.
package gotiktoken
