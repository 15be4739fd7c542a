// Package align maps word-level IOB2 tags onto the sub-word tokens produced by a tokenizer.
//
// A tokenizer splits each word into one or more pieces ("lamb" -> "la", "##mb") and adds
// special tokens ([CLS], [SEP]) that belong to no word. For each token it reports the index
// of the word it came from, or NoWord. Align uses that mapping to produce one label per
// token:
//
//   - Special tokens get an ignored label, excluded from the loss.
//   - The first piece of a word gets the word's tag unchanged.
//   - Later pieces of the same word get the "inside" form of the tag: B-X becomes I-X, while
//     I-X and O stay the same.
//
// Example:
//
//	wordLabels := []int{1, 0} // B-PER, O
//	wordIDs := []align.WordID{align.NoWord, align.Word(0), align.Word(0), align.Word(1), align.NoWord}
//	codes, err := align.Labels(wordLabels, wordIDs)
//	// codes == []int{-100, 1, 2, 0, -100}
package align

import (
	"encoding/json"
	"strconv"

	"github.com/gomlx/conll-ner/labels"
	"github.com/pkg/errors"
)

// WordID is the optional index of the word a token originated from.
// The zero value is NoWord.
type WordID struct {
	index int
	valid bool
}

// NoWord marks tokens that don't originate from any word, like [CLS] or [SEP].
var NoWord = WordID{}

// Word returns the WordID for the word at index.
func Word(index int) WordID {
	return WordID{index: index, valid: true}
}

// Index returns the word index and whether the token originated from a word.
func (w WordID) Index() (int, bool) {
	return w.index, w.valid
}

// IsWord reports whether the token originated from a word.
func (w WordID) IsWord() bool {
	return w.valid
}

// Int returns the word index, or -1 for NoWord.
func (w WordID) Int() int {
	if !w.valid {
		return -1
	}
	return w.index
}

// MarshalJSON implements json.Marshaler: NoWord is encoded as null.
func (w WordID) MarshalJSON() ([]byte, error) {
	if !w.valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(w.index), 10), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *WordID) UnmarshalJSON(data []byte) error {
	var index *int
	if err := json.Unmarshal(data, &index); err != nil {
		return errors.Wrapf(err, "invalid word id %s", data)
	}
	if index == nil || *index < 0 {
		*w = NoWord
	} else {
		*w = Word(*index)
	}
	return nil
}

// WordIDsFromInts converts a slice of word indices to WordIDs, where negative values mean NoWord.
func WordIDsFromInts(indices []int) []WordID {
	ids := make([]WordID, len(indices))
	for ii, index := range indices {
		if index >= 0 {
			ids[ii] = Word(index)
		}
	}
	return ids
}

// WordIDsToInts is the inverse of WordIDsFromInts: NoWord is converted to -1.
func WordIDsToInts(ids []WordID) []int {
	indices := make([]int, len(ids))
	for ii, id := range ids {
		indices[ii] = id.Int()
	}
	return indices
}

// Label is a token-level label: either a tag code or ignored.
// The zero value is an ignored label.
type Label struct {
	code  int
	valid bool
}

// Ignored is the label of tokens excluded from loss and metric computation.
var Ignored = Label{}

// Tag returns the label for the tag code.
func Tag(code int) Label {
	return Label{code: code, valid: true}
}

// Code returns the tag code and whether the label is a tag (as opposed to ignored).
func (l Label) Code() (int, bool) {
	return l.code, l.valid
}

// IsIgnored reports whether the label is excluded from loss computation.
func (l Label) IsIgnored() bool {
	return !l.valid
}

// Int returns the tag code, or labels.IgnoreIndex if the label is ignored.
func (l Label) Int() int {
	if !l.valid {
		return labels.IgnoreIndex
	}
	return l.code
}

// Encode converts labels to integer codes, using labels.IgnoreIndex for ignored labels.
func Encode(tokenLabels []Label) []int {
	codes := make([]int, len(tokenLabels))
	for ii, l := range tokenLabels {
		codes[ii] = l.Int()
	}
	return codes
}

// Align returns one label per entry of wordIDs.
//
// wordLabels holds the tag code of each word, and inside maps a word's tag code to the code
// used for its continuation pieces. Use labels.ParityRule for vocabularies ordered like
// labels.CoNLL2003, or Vocabulary.Rule to pick the right rule for any vocabulary.
//
// It returns an error, and no labels, if wordIDs refers to a word index not in wordLabels.
func Align(wordLabels []int, wordIDs []WordID, inside labels.InsideRule) ([]Label, error) {
	out := make([]Label, len(wordIDs))
	current := NoWord
	for ii, wordID := range wordIDs {
		index, isWord := wordID.Index()
		if !isWord {
			out[ii] = Ignored
			continue
		}
		if index < 0 || index >= len(wordLabels) {
			return nil, errors.Errorf("token %d refers to word %d, but there are only %d word labels",
				ii, index, len(wordLabels))
		}
		code := wordLabels[index]
		if wordID != current {
			current = wordID
			out[ii] = Tag(code)
			continue
		}
		out[ii] = Tag(inside(code))
	}
	return out, nil
}

// Labels aligns wordLabels to wordIDs using labels.ParityRule, and returns the encoded codes,
// with labels.IgnoreIndex for special tokens.
func Labels(wordLabels []int, wordIDs []WordID) ([]int, error) {
	aligned, err := Align(wordLabels, wordIDs, labels.ParityRule)
	if err != nil {
		return nil, err
	}
	return Encode(aligned), nil
}
