// Package features converts dataset examples into model inputs: token ids, attention mask and
// token-level labels aligned to the sub-word tokens.
package features

import (
	"context"
	"runtime"

	"github.com/gomlx/conll-ner/align"
	"github.com/gomlx/conll-ner/datasets/conll2003"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Feature is the tokenized and aligned version of one example.
type Feature struct {
	InputIDs      []int          `json:"input_ids"`
	AttentionMask []int          `json:"attention_mask"`
	Labels        []int          `json:"labels"`
	WordIDs       []align.WordID `json:"word_ids"`
}

// Len returns the number of tokens.
func (f *Feature) Len() int {
	return len(f.InputIDs)
}

// Options for Build and BuildAll.
type Options struct {
	// MaxLength truncates the tokens, keeping the trailing special tokens. 0 means no truncation.
	MaxLength int

	// Inside rule used for continuation pieces of a word. Defaults to labels.ParityRule.
	Inside labels.InsideRule

	// Workers used by BuildAll. Defaults to runtime.NumCPU().
	Workers int
}

// Build tokenizes the words of the example and aligns its NER tags to the tokens.
func Build(tok api.WordTokenizer, ex *conll2003.Example, opts Options) (Feature, error) {
	enc := tok.EncodeWords(ex.Tokens)
	if opts.MaxLength > 0 {
		enc = api.Truncate(enc, opts.MaxLength)
	}
	inside := opts.Inside
	if inside == nil {
		inside = labels.ParityRule
	}
	tokenLabels, err := align.Align(ex.NERTags, enc.WordIDs, inside)
	if err != nil {
		return Feature{}, errors.WithMessagef(err, "example %q", ex.ID)
	}
	mask := make([]int, enc.Len())
	for ii := range mask {
		mask[ii] = 1
	}
	return Feature{
		InputIDs:      enc.IDs,
		AttentionMask: mask,
		Labels:        align.Encode(tokenLabels),
		WordIDs:       enc.WordIDs,
	}, nil
}

// BuildAll builds the features of all examples in parallel, and returns them in the same order.
// It stops at the first error, or when ctx is cancelled.
//
// The tokenizer must be safe for concurrent use.
func BuildAll(ctx context.Context, tok api.WordTokenizer, examples []conll2003.Example, opts Options) ([]Feature, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	result := make([]Feature, len(examples))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ii := range examples {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			feature, err := Build(tok, &examples[ii], opts)
			if err != nil {
				return err
			}
			result[ii] = feature
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
