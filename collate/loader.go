package collate

import (
	"iter"
	"math/rand/v2"

	"github.com/gomlx/conll-ner/features"
)

// Loader iterates over features in padded batches.
type Loader struct {
	Features []features.Feature
	Collator *Collator

	BatchSize int

	// Shuffle the features at every epoch, with a permutation derived from Seed and the epoch.
	Shuffle bool
	Seed    uint64

	// DropLast drops the last batch if it is smaller than BatchSize.
	DropLast bool
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	n, bs := len(l.Features), l.batchSize()
	if l.DropLast {
		return n / bs
	}
	return (n + bs - 1) / bs
}

func (l *Loader) batchSize() int {
	return max(l.BatchSize, 1)
}

// All iterates over the batches of the first epoch.
func (l *Loader) All() iter.Seq[Batch] {
	return l.Epoch(0)
}

// Epoch iterates over the batches of the given epoch. Without Shuffle all epochs are the same.
func (l *Loader) Epoch(epoch int) iter.Seq[Batch] {
	order := make([]int, len(l.Features))
	for ii := range order {
		order[ii] = ii
	}
	if l.Shuffle {
		rng := rand.New(rand.NewPCG(l.Seed, uint64(epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return func(yield func(Batch) bool) {
		bs := l.batchSize()
		for batchIdx := range l.Len() {
			start := batchIdx * bs
			end := min(start+bs, len(order))
			batch := make([]features.Feature, 0, end-start)
			for _, idx := range order[start:end] {
				batch = append(batch, l.Features[idx])
			}
			if !yield(l.Collator.Collate(batch)) {
				return
			}
		}
	}
}
