// Package metrics scores token classification predictions at the entity level, the way seqeval
// (and the conlleval script of the CoNLL-2003 shared task) does.
//
// Typical evaluation loop:
//
//	metric := metrics.New()
//	for each batch {
//		predictions, err := metrics.PredictionsFromLogits(logits)
//		preds, refs, err := metrics.PostProcess(predictions, batch.Labels, vocab)
//		err = metric.AddBatch(preds, refs)
//	}
//	result := metric.Compute()
package metrics

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/conll-ner/labels"
	"github.com/pkg/errors"
)

// PostProcess drops the positions labeled with labels.IgnoreIndex (special tokens, continuation
// pieces masked out, padding), and converts the remaining codes of predictions and labels to
// tag names.
func PostProcess(predictions, tokenLabels [][]int, vocab *labels.Vocabulary) (preds, refs [][]string, err error) {
	if len(predictions) != len(tokenLabels) {
		return nil, nil, errors.Errorf("got %d prediction sequences and %d label sequences", len(predictions), len(tokenLabels))
	}
	preds = make([][]string, len(predictions))
	refs = make([][]string, len(predictions))
	for seq := range predictions {
		if len(predictions[seq]) != len(tokenLabels[seq]) {
			return nil, nil, errors.Errorf("sequence %d: got %d predictions and %d labels",
				seq, len(predictions[seq]), len(tokenLabels[seq]))
		}
		preds[seq] = make([]string, 0, len(predictions[seq]))
		refs[seq] = make([]string, 0, len(predictions[seq]))
		for pos, label := range tokenLabels[seq] {
			if label == labels.IgnoreIndex {
				continue
			}
			ref, err := vocab.Name(label)
			if err != nil {
				return nil, nil, errors.WithMessagef(err, "sequence %d, position %d label", seq, pos)
			}
			pred, err := vocab.Name(predictions[seq][pos])
			if err != nil {
				return nil, nil, errors.WithMessagef(err, "sequence %d, position %d prediction", seq, pos)
			}
			preds[seq] = append(preds[seq], pred)
			refs[seq] = append(refs[seq], ref)
		}
	}
	return preds, refs, nil
}

// Score of one entity type, or of all of them.
type Score struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// Number of reference chunks.
	Number int `json:"number"`
}

// Result of Metric.Compute.
type Result struct {
	Overall  Score            `json:"overall"`
	Accuracy float64          `json:"accuracy"`
	PerType  map[string]Score `json:"per_type"`
}

// String returns the scores as a table, one line per entity type.
func (r Result) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%-8s %9s %9s %9s %7s\n", "type", "precision", "recall", "f1", "number")
	for _, entityType := range slices.Sorted(maps.Keys(r.PerType)) {
		s := r.PerType[entityType]
		_, _ = fmt.Fprintf(&sb, "%-8s %9.4f %9.4f %9.4f %7d\n", entityType, s.Precision, s.Recall, s.F1, s.Number)
	}
	_, _ = fmt.Fprintf(&sb, "%-8s %9.4f %9.4f %9.4f %7d\n", "overall", r.Overall.Precision, r.Overall.Recall, r.Overall.F1, r.Overall.Number)
	_, _ = fmt.Fprintf(&sb, "accuracy %.4f\n", r.Accuracy)
	return sb.String()
}

// counts accumulated for one entity type.
type counts struct {
	correct, predicted, reference int
}

// Metric accumulates predictions over batches. The zero value is not usable, use New.
// It is not safe for concurrent use.
type Metric struct {
	perType                    map[string]*counts
	correctTokens, totalTokens int
}

// New returns an empty Metric.
func New() *Metric {
	return &Metric{perType: make(map[string]*counts)}
}

func (m *Metric) typeCounts(entityType string) *counts {
	c, found := m.perType[entityType]
	if !found {
		c = &counts{}
		m.perType[entityType] = c
	}
	return c
}

// AddBatch adds sequences of predicted and reference tag names, usually the output of PostProcess.
func (m *Metric) AddBatch(preds, refs [][]string) error {
	if len(preds) != len(refs) {
		return errors.Errorf("got %d prediction sequences and %d reference sequences", len(preds), len(refs))
	}
	for seq := range preds {
		if len(preds[seq]) != len(refs[seq]) {
			return errors.Errorf("sequence %d: got %d predicted tags and %d reference tags",
				seq, len(preds[seq]), len(refs[seq]))
		}
	}
	for seq := range preds {
		for pos := range preds[seq] {
			if preds[seq][pos] == refs[seq][pos] {
				m.correctTokens++
			}
		}
		m.totalTokens += len(preds[seq])

		refChunks := Chunks(refs[seq])
		predChunks := Chunks(preds[seq])
		refSet := make(map[Chunk]bool, len(refChunks))
		for _, chunk := range refChunks {
			refSet[chunk] = true
			m.typeCounts(chunk.Type).reference++
		}
		for _, chunk := range predChunks {
			c := m.typeCounts(chunk.Type)
			c.predicted++
			if refSet[chunk] {
				c.correct++
			}
		}
	}
	return nil
}

// Compute returns the scores of all sequences added so far. Scores with a zero denominator are 0.
func (m *Metric) Compute() Result {
	result := Result{PerType: make(map[string]Score, len(m.perType))}
	var total counts
	for entityType, c := range m.perType {
		result.PerType[entityType] = score(*c)
		total.correct += c.correct
		total.predicted += c.predicted
		total.reference += c.reference
	}
	result.Overall = score(total)
	result.Accuracy = ratio(m.correctTokens, m.totalTokens)
	return result
}

func score(c counts) Score {
	s := Score{
		Precision: ratio(c.correct, c.predicted),
		Recall:    ratio(c.correct, c.reference),
		Number:    c.reference,
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Evaluate post-processes token-level predictions and labels, and scores them.
func Evaluate(predictions, tokenLabels [][]int, vocab *labels.Vocabulary) (Result, error) {
	preds, refs, err := PostProcess(predictions, tokenLabels, vocab)
	if err != nil {
		return Result{}, err
	}
	m := New()
	if err := m.AddBatch(preds, refs); err != nil {
		return Result{}, err
	}
	return m.Compute(), nil
}
