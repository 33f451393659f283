// Package topk implements the compact top-k encoding of per-position probability
// distributions used to ship model responses over the wire.
//
// The wire shape is [batchSize, sequenceLen, 2*k] float32: the first k entries of
// each position are the k largest probabilities in descending order, the last k
// are their vocabulary ids reinterpreted as float32. Decoding reconstructs a full
// distribution by assigning the remaining probability mass uniformly to every id
// not in the top-k.
package topk

import (
	"math"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Epsilon guards log and clamp operations against zero or negative mass caused
// by floating-point drift. Same value on the encoding and decoding side.
const Epsilon = 1e-64

// ErrInvalidK is returned when k is non-positive, exceeds the vocabulary size,
// or does not match the wire tensor's last dimension.
var ErrInvalidK = errors.New("invalid top-k")

// checkDims validates a rank-3 float32 tensor and returns its dimensions.
func checkDims(t *tensors.Tensor) (batchSize, seqLen, lastDim int, err error) {
	dims := t.Shape().Dimensions
	if len(dims) != 3 {
		return 0, 0, 0, errors.Errorf("expected rank-3 tensor [batch, sequence, features], got shape %s", t.Shape())
	}
	return dims[0], dims[1], dims[2], nil
}

// Encode compresses a probability tensor [batchSize, sequenceLen, vocabSize] to
// its top-k representation [batchSize, sequenceLen, 2*k].
//
// Each position is encoded independently; ties between equal probabilities are
// broken by ascending id, so encoding is deterministic.
func Encode(probs *tensors.Tensor, k int) (*tensors.Tensor, error) {
	batchSize, seqLen, vocabSize, err := checkDims(probs)
	if err != nil {
		return nil, err
	}
	if k <= 0 || k > vocabSize {
		return nil, errors.Wrapf(ErrInvalidK, "k=%d with vocabSize=%d", k, vocabSize)
	}

	out := make([]float32, batchSize*seqLen*2*k)
	order := make([]int, vocabSize)
	tensors.ConstFlatData(probs, func(flat []float32) {
		for pos := 0; pos < batchSize*seqLen; pos++ {
			row := flat[pos*vocabSize : (pos+1)*vocabSize]
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(i, j int) bool {
				return row[order[i]] > row[order[j]]
			})
			enc := out[pos*2*k : (pos+1)*2*k]
			for i := 0; i < k; i++ {
				enc[i] = row[order[i]]
				enc[k+i] = float32(order[i])
			}
		}
	})
	return tensors.FromFlatDataAndDimensions(out, batchSize, seqLen, 2*k), nil
}

// EncodeLogits applies a softmax to raw model logits and encodes the resulting
// probabilities. This matches the usual producer side, where the model returns
// unnormalized scores.
func EncodeLogits(logits *tensors.Tensor, k int) (*tensors.Tensor, error) {
	return Encode(Softmax(logits), k)
}

// Decode reconstructs an approximate full probability distribution
// [batchSize, sequenceLen, vocabSize] from a top-k encoded tensor.
//
// The remaining probability mass, clamped to [Epsilon, 1], is spread uniformly
// over the vocabSize-k ids absent from the top-k. The top-k entries themselves
// are reproduced exactly.
func Decode(encoded *tensors.Tensor, vocabSize, k int) (*tensors.Tensor, error) {
	return decode(encoded, vocabSize, k, false)
}

// DecodeLogits is like Decode but returns log-probabilities, suitable for
// direct use in a cross-entropy loss: log(floor) for non-top-k ids and
// log(p + Epsilon) for the top-k entries.
func DecodeLogits(encoded *tensors.Tensor, vocabSize, k int) (*tensors.Tensor, error) {
	return decode(encoded, vocabSize, k, true)
}

func decode(encoded *tensors.Tensor, vocabSize, k int, logSpace bool) (*tensors.Tensor, error) {
	batchSize, seqLen, lastDim, err := checkDims(encoded)
	if err != nil {
		return nil, err
	}
	if k <= 0 || k > vocabSize {
		return nil, errors.Wrapf(ErrInvalidK, "k=%d with vocabSize=%d", k, vocabSize)
	}
	if lastDim != 2*k {
		return nil, errors.Wrapf(ErrInvalidK, "encoded tensor last dimension is %d, want 2*k=%d", lastDim, 2*k)
	}

	out := make([]float32, batchSize*seqLen*vocabSize)
	var decodeErr error
	tensors.ConstFlatData(encoded, func(flat []float32) {
		for pos := 0; pos < batchSize*seqLen; pos++ {
			enc := flat[pos*2*k : (pos+1)*2*k]
			values := enc[:k]
			indices := enc[k:]

			var topkMass float64
			for _, v := range values {
				topkMass += float64(v)
			}
			remainder := clamp(1-topkMass, Epsilon, 1)
			var floor float64
			if vocabSize > k {
				floor = remainder / float64(vocabSize-k)
			}

			row := out[pos*vocabSize : (pos+1)*vocabSize]
			fill := float32(floor)
			if logSpace {
				fill = float32(math.Log(floor + Epsilon))
			}
			for i := range row {
				row[i] = fill
			}
			for i := 0; i < k; i++ {
				id := int(math.Round(float64(indices[i])))
				if id < 0 || id >= vocabSize {
					decodeErr = errors.Errorf("encoded id %d out of range for vocabSize=%d (position %d)", id, vocabSize, pos)
					return
				}
				if logSpace {
					row[id] = float32(math.Log(float64(values[i]) + Epsilon))
				} else {
					row[id] = values[i]
				}
			}
		}
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return tensors.FromFlatDataAndDimensions(out, batchSize, seqLen, vocabSize), nil
}

// Softmax converts raw logits [batchSize, sequenceLen, vocabSize] to
// probabilities, position by position, with the usual max-subtraction for
// numerical stability.
func Softmax(logits *tensors.Tensor) *tensors.Tensor {
	dims := logits.Shape().Dimensions
	vocabSize := dims[len(dims)-1]
	numRows := 1
	for _, d := range dims[:len(dims)-1] {
		numRows *= d
	}

	out := make([]float32, numRows*vocabSize)
	tensors.ConstFlatData(logits, func(flat []float32) {
		for pos := 0; pos < numRows; pos++ {
			row := flat[pos*vocabSize : (pos+1)*vocabSize]
			outRow := out[pos*vocabSize : (pos+1)*vocabSize]

			maxVal := row[0]
			for _, v := range row[1:] {
				if v > maxVal {
					maxVal = v
				}
			}
			var sumExp float64
			for i, v := range row {
				e := math.Exp(float64(v - maxVal))
				outRow[i] = float32(e)
				sumExp += e
			}
			for i := range outRow {
				outRow[i] = float32(float64(outRow[i]) / sumExp)
			}
		}
	})
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
