// Package api defines the Tokenizer API.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import (
	"github.com/gomlx/conll-ner/align"
)

// Tokenizer interface allows one convert test to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// WordEncoding is the result of tokenizing a sentence already split into words.
//
// All slices have one entry per token, special tokens included.
type WordEncoding struct {
	IDs    []int    // token IDs
	Tokens []string // token strings, as found in the vocabulary

	// WordIDs maps each token to the index of the word it came from, or align.NoWord for
	// special tokens added by the post-processor.
	WordIDs []align.WordID

	// SpecialTokensMask is true for tokens added by the post-processor.
	SpecialTokensMask []bool
}

// Len returns the number of tokens.
func (e WordEncoding) Len() int {
	return len(e.IDs)
}

// WordTokenizer tokenizes sentences given as words ("is_split_into_words" in the Python
// tokenizers), reporting which word each token came from.
//
// This is what's needed to align word-level labels to tokens, see package align.
type WordTokenizer interface {
	Tokenizer

	// EncodeWords tokenizes each word, and adds the special tokens of the model
	// (e.g. [CLS] and [SEP] for BERT).
	EncodeWords(words []string) WordEncoding
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return "SpecialToken(invalid)"
	}
	return specialTokenNames[t]
}
