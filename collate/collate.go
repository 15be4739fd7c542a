// Package collate pads features into rectangular batches, and converts them to GoMLX tensors.
package collate

import (
	"github.com/gomlx/conll-ner/features"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Collator pads the features of a batch to the same length.
//
// Padding is added on the right: input ids with PadID, attention mask with 0 and labels with
// LabelPad, so padded positions are ignored by the loss and the metrics.
type Collator struct {
	PadID int

	// LabelPad is the label of padding tokens, labels.IgnoreIndex by default.
	LabelPad int

	// PadToMultipleOf rounds the batch length up to a multiple of this value, if > 0.
	PadToMultipleOf int
}

// New returns a Collator for the tokenizer's padding token id.
func New(padID int) *Collator {
	return &Collator{PadID: padID, LabelPad: labels.IgnoreIndex}
}

// Batch is a padded batch, with shape [batchSize, Length] for each field.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        [][]int
	Length        int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.InputIDs)
}

// Collate pads the features to the length of the longest one.
func (c *Collator) Collate(batch []features.Feature) Batch {
	length := 0
	for ii := range batch {
		length = max(length, batch[ii].Len())
	}
	if c.PadToMultipleOf > 0 && length%c.PadToMultipleOf != 0 {
		length += c.PadToMultipleOf - length%c.PadToMultipleOf
	}
	result := Batch{
		InputIDs:      make([][]int, len(batch)),
		AttentionMask: make([][]int, len(batch)),
		Labels:        make([][]int, len(batch)),
		Length:        length,
	}
	for ii := range batch {
		f := &batch[ii]
		result.InputIDs[ii] = pad(f.InputIDs, length, c.PadID)
		result.AttentionMask[ii] = pad(f.AttentionMask, length, 0)
		result.Labels[ii] = pad(f.Labels, length, c.LabelPad)
	}
	return result
}

func pad(values []int, length, padValue int) []int {
	padded := make([]int, length)
	n := copy(padded, values)
	for ii := n; ii < length; ii++ {
		padded[ii] = padValue
	}
	return padded
}

// Tensors holds a batch as int64 tensors shaped [batchSize, length].
type Tensors struct {
	InputIDs, AttentionMask, Labels *tensors.Tensor
}

// Tensors converts the batch to GoMLX tensors.
func (b *Batch) Tensors() Tensors {
	return Tensors{
		InputIDs:      toTensor(b.InputIDs, b.Length),
		AttentionMask: toTensor(b.AttentionMask, b.Length),
		Labels:        toTensor(b.Labels, b.Length),
	}
}

func toTensor(rows [][]int, length int) *tensors.Tensor {
	flat := make([]int64, 0, len(rows)*length)
	for _, row := range rows {
		for _, v := range row {
			flat = append(flat, int64(v))
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, len(rows), length)
}
