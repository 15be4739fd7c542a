// Package labels defines the ordered IOB2 tag vocabulary used for token classification.
//
// A tag's integer code is its position in the vocabulary. The same ordering must be used
// wherever training, evaluation and inference happen: a different ordering silently
// corrupts results. Use WriteConfigJSON / FromConfigJSON to persist it in the
// HuggingFace `config.json` layout (id2label / label2id).
package labels

import (
	"strings"

	"github.com/pkg/errors"
)

// IgnoreIndex is the label value excluded from loss and metric computation.
// It is the value PyTorch's cross entropy ignores by default.
const IgnoreIndex = -100

// Outside is the name of the tag for tokens that are not part of any entity.
const Outside = "O"

// Prefixes of the IOB2 scheme.
const (
	BeginPrefix  = "B-"
	InsidePrefix = "I-"
)

// Vocabulary is an ordered, immutable set of IOB2 tag names.
type Vocabulary struct {
	names  []string
	codes  map[string]int
	inside []int // code -> inside counterpart, derived from the names.
}

// conll2003Names is the ordering of the `ner_tags` feature of the conll2003 dataset.
var conll2003Names = []string{"O", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC", "B-MISC", "I-MISC"}

// CoNLL2003 returns the NER tag vocabulary of the CoNLL-2003 dataset.
func CoNLL2003() *Vocabulary {
	v, err := New(conll2003Names...)
	if err != nil {
		panic(err) // Static list, can't fail.
	}
	return v
}

// New creates a Vocabulary from the ordered tag names.
//
// Each name must be "O", "B-<type>" or "I-<type>", and names must be unique.
func New(names ...string) (*Vocabulary, error) {
	if len(names) == 0 {
		return nil, errors.New("empty tag vocabulary")
	}
	v := &Vocabulary{
		names:  make([]string, len(names)),
		codes:  make(map[string]int, len(names)),
		inside: make([]int, len(names)),
	}
	copy(v.names, names)
	for code, name := range names {
		if name != Outside && entityType(name) == "" {
			return nil, errors.Errorf("tag %q (code %d) is not in IOB2 format", name, code)
		}
		if prev, found := v.codes[name]; found {
			return nil, errors.Errorf("tag %q duplicated at codes %d and %d", name, prev, code)
		}
		v.codes[name] = code
	}
	for code, name := range names {
		v.inside[code] = code
		if strings.HasPrefix(name, BeginPrefix) {
			if insideCode, found := v.codes[InsidePrefix+entityType(name)]; found {
				v.inside[code] = insideCode
			}
		}
	}
	return v, nil
}

// entityType returns the entity type of a "B-X" or "I-X" tag, or "" if it has neither prefix.
func entityType(name string) string {
	if strings.HasPrefix(name, BeginPrefix) || strings.HasPrefix(name, InsidePrefix) {
		return name[2:]
	}
	return ""
}

// Len returns the number of tags.
func (v *Vocabulary) Len() int {
	return len(v.names)
}

// Names returns a copy of the ordered tag names.
func (v *Vocabulary) Names() []string {
	names := make([]string, len(v.names))
	copy(names, v.names)
	return names
}

// Name returns the tag name for code.
func (v *Vocabulary) Name(code int) (string, error) {
	if code < 0 || code >= len(v.names) {
		return "", errors.Errorf("tag code %d out of range [0, %d)", code, len(v.names))
	}
	return v.names[code], nil
}

// Code returns the code for the tag name.
func (v *Vocabulary) Code(name string) (int, error) {
	code, found := v.codes[name]
	if !found {
		return 0, errors.Errorf("tag %q not in vocabulary", name)
	}
	return code, nil
}

// ID2Label returns the code to name mapping, as used by HuggingFace model configs.
func (v *Vocabulary) ID2Label() map[int]string {
	m := make(map[int]string, len(v.names))
	for code, name := range v.names {
		m[code] = name
	}
	return m
}

// Label2ID returns the name to code mapping.
func (v *Vocabulary) Label2ID() map[string]int {
	m := make(map[string]int, len(v.codes))
	for name, code := range v.codes {
		m[name] = code
	}
	return m
}

// Equal reports whether both vocabularies have the same names in the same order.
func (v *Vocabulary) Equal(other *Vocabulary) bool {
	if other == nil || len(v.names) != len(other.names) {
		return false
	}
	for ii, name := range v.names {
		if other.names[ii] != name {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (v *Vocabulary) String() string {
	return "[" + strings.Join(v.names, " ") + "]"
}
