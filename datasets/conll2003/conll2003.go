// Package conll2003 loads the CoNLL-2003 named entity recognition dataset.
//
// The dataset is read from the parquet conversion of the HuggingFace Hub dataset
// (see Download), from local parquet files (ReadParquet) or from the original text
// format of the shared task (ReadCoNLL).
//
// Each Example is a sentence already split into words, with one POS tag, one chunk tag and one
// NER tag per word. Tags are integer codes: the NER codes index labels.CoNLL2003(), and the POS
// and chunk codes index POSTags and ChunkTags.
package conll2003

import (
	"slices"

	"github.com/gomlx/conll-ner/labels"
	"github.com/pkg/errors"
)

// Split of the dataset.
type Split string

const (
	Train      Split = "train"
	Validation Split = "validation"
	Test       Split = "test"
)

// Splits lists all splits of the dataset.
var Splits = []Split{Train, Validation, Test}

// ParseSplit validates the split name.
func ParseSplit(name string) (Split, error) {
	split := Split(name)
	if !slices.Contains(Splits, split) {
		return "", errors.Errorf("unknown CoNLL-2003 split %q, valid splits are %v", name, Splits)
	}
	return split, nil
}

// Example is one sentence of the dataset.
//
// The struct tags match the columns of the Hub's parquet conversion.
type Example struct {
	ID        string   `parquet:"id"`
	Tokens    []string `parquet:"tokens,list"`
	POSTags   []int    `parquet:"pos_tags,list"`
	ChunkTags []int    `parquet:"chunk_tags,list"`
	NERTags   []int    `parquet:"ner_tags,list"`
}

// Validate checks that every word has its tags, and that the tags are valid codes.
func (ex *Example) Validate() error {
	n := len(ex.Tokens)
	if len(ex.NERTags) != n {
		return errors.Errorf("example %q has %d tokens and %d NER tags", ex.ID, n, len(ex.NERTags))
	}
	if len(ex.POSTags) != 0 && len(ex.POSTags) != n {
		return errors.Errorf("example %q has %d tokens and %d POS tags", ex.ID, n, len(ex.POSTags))
	}
	if len(ex.ChunkTags) != 0 && len(ex.ChunkTags) != n {
		return errors.Errorf("example %q has %d tokens and %d chunk tags", ex.ID, n, len(ex.ChunkTags))
	}
	for _, column := range []struct {
		name  string
		codes []int
		size  int
	}{
		{"NER", ex.NERTags, labels.CoNLL2003().Len()},
		{"POS", ex.POSTags, len(POSTags)},
		{"chunk", ex.ChunkTags, len(ChunkTags)},
	} {
		for ii, code := range column.codes {
			if code < 0 || code >= column.size {
				return errors.Errorf("example %q: invalid %s tag %d for token %d", ex.ID, column.name, code, ii)
			}
		}
	}
	return nil
}

// POSTags are the part-of-speech tag names, indexed by code.
var POSTags = []string{
	`"`, "''", "#", "$", "(", ")", ",", ".", ":", "``", "CC", "CD", "DT", "EX", "FW", "IN", "JJ",
	"JJR", "JJS", "LS", "MD", "NN", "NNP", "NNPS", "NNS", "NN|SYM", "PDT", "POS", "PRP", "PRP$",
	"RB", "RBR", "RBS", "RP", "SYM", "TO", "UH", "VB", "VBD", "VBG", "VBN", "VBP", "VBZ", "WDT",
	"WP", "WP$", "WRB",
}

// ChunkTags are the syntactic chunk tag names, indexed by code.
var ChunkTags = []string{
	"O", "B-ADJP", "I-ADJP", "B-ADVP", "I-ADVP", "B-CONJP", "I-CONJP", "B-INTJ", "I-INTJ",
	"B-LST", "I-LST", "B-NP", "I-NP", "B-PP", "I-PP", "B-PRT", "I-PRT", "B-SBAR", "I-SBAR",
	"B-UCP", "I-UCP", "B-VP", "I-VP",
}
