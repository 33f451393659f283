// Package loss provides the next-token cross-entropy used to validate tokenizer
// translation: the same loss a scoring party computes on standard-vocabulary
// probabilities.
package loss

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// epsilon added before taking logs of probabilities, mirroring the decode side.
const epsilon = 1e-64

// CausalLM computes the mean next-token prediction loss.
//
// logits: [batchSize, sequenceLen, vocabSize] raw (or log-space) scores.
// labels: [batchSize][sequenceLen] target token ids.
//
// Positions are shifted by one: logits at position t predict labels at t+1.
// Labels < 0 mark padding and are skipped.
func CausalLM(logits *tensors.Tensor, labels [][]int) (float64, error) {
	dims := logits.Shape().Dimensions
	if len(dims) != 3 {
		return 0, errors.Errorf("expected rank-3 logits, got shape %s", logits.Shape())
	}
	batchSize, seqLen, vocabSize := dims[0], dims[1], dims[2]
	if len(labels) != batchSize {
		return 0, errors.Errorf("got %d label rows for batchSize=%d", len(labels), batchSize)
	}

	var totalLoss float64
	count := 0
	var lossErr error
	tensors.ConstFlatData(logits, func(flat []float32) {
		for b := 0; b < batchSize; b++ {
			row := labels[b]
			if len(row) != seqLen {
				lossErr = errors.Errorf("label row %d has %d entries, want sequenceLen=%d", b, len(row), seqLen)
				return
			}
			// Shift: logits[t] predict labels[t+1].
			for t := 0; t < seqLen-1; t++ {
				target := row[t+1]
				if target < 0 {
					continue
				}
				if target >= vocabSize {
					lossErr = errors.Errorf("label %d out of range for vocabSize=%d", target, vocabSize)
					return
				}
				offset := (b*seqLen + t) * vocabSize
				totalLoss -= logSoftmaxAt(flat[offset:offset+vocabSize], target)
				count++
			}
		}
	})
	if lossErr != nil {
		return 0, lossErr
	}
	if count == 0 {
		return 0, errors.Errorf("no unpadded positions to compute loss over")
	}
	return totalLoss / float64(count), nil
}

// CausalLMFromProbs computes CausalLM over probabilities instead of logits,
// taking log(p + epsilon) per entry. This is the form used on translated
// standard-vocabulary distributions.
func CausalLMFromProbs(probs *tensors.Tensor, labels [][]int) (float64, error) {
	dims := probs.Shape().Dimensions
	out := make([]float32, probs.Shape().Size())
	tensors.ConstFlatData(probs, func(flat []float32) {
		for i, p := range flat {
			out[i] = float32(math.Log(float64(p) + epsilon))
		}
	})
	return CausalLM(tensors.FromFlatDataAndDimensions(out, dims...), labels)
}

// logSoftmaxAt returns log(softmax(row)[target]) with the stable
// max-subtraction formulation.
func logSoftmaxAt(row []float32, target int) float64 {
	maxVal := float64(row[0])
	for _, v := range row[1:] {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}
	var sumExp float64
	for _, v := range row {
		sumExp += math.Exp(float64(v) - maxVal)
	}
	return float64(row[target]) - maxVal - math.Log(sumExp)
}
