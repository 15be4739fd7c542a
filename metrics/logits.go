package metrics

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// PredictionsFromLogits returns the predicted tag code of each token: the argmax over the last
// axis of logits shaped [batchSize, sequenceLength, numLabels].
//
// logits must be float32 or float64. Ties go to the lowest code.
func PredictionsFromLogits(logits *tensors.Tensor) ([][]int, error) {
	shape := logits.Shape()
	if shape.Rank() != 3 {
		return nil, errors.Errorf("logits must be shaped [batch, sequence, labels], got shape %s", shape)
	}
	if shape.Dimensions[2] == 0 {
		return nil, errors.Errorf("logits have no labels axis, got shape %s", shape)
	}
	switch logits.DType() {
	case dtypes.Float32:
		value, ok := logits.Value().([][][]float32)
		if !ok {
			return nil, errors.Errorf("unexpected value type %T for logits shaped %s", logits.Value(), shape)
		}
		return argmax(value), nil
	case dtypes.Float64:
		value, ok := logits.Value().([][][]float64)
		if !ok {
			return nil, errors.Errorf("unexpected value type %T for logits shaped %s", logits.Value(), shape)
		}
		return argmax(value), nil
	default:
		return nil, errors.Errorf("logits must be float32 or float64, got %s", logits.DType())
	}
}

func argmax[T float32 | float64](logits [][][]T) [][]int {
	predictions := make([][]int, len(logits))
	for seq, tokens := range logits {
		predictions[seq] = make([]int, len(tokens))
		for pos, scores := range tokens {
			best := 0
			for code, score := range scores {
				if score > scores[best] {
					best = code
				}
			}
			predictions[seq][pos] = best
		}
	}
	return predictions
}
