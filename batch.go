package gotiktoken

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gotiktoken/gotiktoken/tokenizer"
)

// EncodeBatch runs Encode concurrently over texts, preserving input order
// (spec §4.8). It cancels outstanding work and returns the first error on
// failure.
func (e *Encoding) EncodeBatch(ctx context.Context, texts []string, allowedSpecial map[string]struct{}) ([][]tokenizer.Rank, error) {
	return e.dispatchBatch(ctx, texts, func(s string) ([]tokenizer.Rank, error) {
		return e.Encode(s, allowedSpecial)
	})
}

// EncodeOrdinaryBatch runs EncodeOrdinary concurrently over texts.
func (e *Encoding) EncodeOrdinaryBatch(ctx context.Context, texts []string) ([][]tokenizer.Rank, error) {
	return e.dispatchBatch(ctx, texts, e.EncodeOrdinary)
}

// DecodeBatch runs Decode concurrently over token sequences.
func (e *Encoding) DecodeBatch(ctx context.Context, tokenLists [][]tokenizer.Rank) ([]string, error) {
	out := make([]string, len(tokenLists))
	g, gctx := errgroup.WithContext(ctx)
	for i, toks := range tokenLists {
		i, toks := i, toks
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s, err := e.Decode(toks)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Encoding) dispatchBatch(ctx context.Context, texts []string, fn func(string) ([]tokenizer.Rank, error)) ([][]tokenizer.Rank, error) {
	out := make([][]tokenizer.Rank, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			toks, err := fn(text)
			if err != nil {
				return err
			}
			out[i] = toks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeBatchSync is the synchronous variant of EncodeBatch, for contexts
// without a runtime worth spawning goroutines on (spec §4.8).
func (e *Encoding) EncodeBatchSync(texts []string, allowedSpecial map[string]struct{}) ([][]tokenizer.Rank, error) {
	out := make([][]tokenizer.Rank, len(texts))
	for i, text := range texts {
		toks, err := e.Encode(text, allowedSpecial)
		if err != nil {
			return nil, err
		}
		out[i] = toks
	}
	return out, nil
}

// DecodeBatchSync is the synchronous variant of DecodeBatch.
func (e *Encoding) DecodeBatchSync(tokenLists [][]tokenizer.Rank) ([]string, error) {
	out := make([]string, len(tokenLists))
	for i, toks := range tokenLists {
		s, err := e.Decode(toks)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
