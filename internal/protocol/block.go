package protocol

import (
	"fmt"
	"math/rand"
)

// GenerateBlock builds the next ordered block of stimuli to present. During
// warm-up (trialNumber below warmup) the block is warmup+1-trialNumber
// repetitions of the stimulus-present entry, which keeps the first trials
// rewarded. Afterwards the catalog is flattened, replicated whole enough
// times to reach at least blockSize entries, and uniformly shuffled with rng.
//
// The caller consumes the returned block from its end and must not call
// GenerateBlock again until the block is empty.
func GenerateBlock(cat *Catalog, trialNumber, blockSize, warmup int, rng *rand.Rand) ([]*Stimulus, error) {
	if warmup > 0 && trialNumber < warmup {
		present := cat.Present()
		if present == nil {
			return nil, fmt.Errorf("warm-up block: %w", ErrEmptyCatalog)
		}
		block := make([]*Stimulus, warmup+1-trialNumber)
		for i := range block {
			block[i] = present
		}
		return block, nil
	}

	all := cat.All()
	if len(all) == 0 {
		return nil, ErrEmptyCatalog
	}

	copies := (blockSize + len(all) - 1) / len(all)
	if copies < 1 {
		copies = 1
	}
	block := make([]*Stimulus, 0, copies*len(all))
	for i := 0; i < copies; i++ {
		block = append(block, all...)
	}

	rng.Shuffle(len(block), func(i, j int) {
		block[i], block[j] = block[j], block[i]
	})
	return block, nil
}
