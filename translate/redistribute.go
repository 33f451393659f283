package translate

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// TranslateToStandard re-projects decoded foreign-vocabulary probabilities onto
// the standard vocabulary.
//
// foreignProbs is [batchSize, foreignSeqLen, foreignVocabSize]; foreignOffsets
// and stdOffsets are the per-element token spans of the two tokenizations,
// already mapped to the same original-text coordinates (see PadOffsets);
// stdTokenIDs are the standard token ids per element, parallel to stdOffsets.
//
// For each standard position, the probability rows of the foreign positions
// overlapping its span are pushed through the translation map and summed,
// weighted by overlap bytes over the standard span's bytes. Overlap
// contributions are summed, not averaged: probabilities of mutually exclusive
// token choices combine additively under marginalization. Rows come out
// summing to ≈1; no renormalization is applied. Standard spans covered by no
// foreign token (regions a special-token rewrite dropped from the foreign
// text) are one-hot on their observed standard id, as are zero-width spans.
//
// When skipEquivalent is set and the pair passes the equivalence check, the
// foreign rows are copied through unchanged.
//
// The returned tensor is [batchSize, maxStdSeqLen, stdVocabSize]. Per-element
// failures (inconsistent offsets, or a map miss under the MissError policy)
// zero that element's rows and are reported in the per-element error slice;
// they never abort the rest of the batch. Only structurally invalid input
// (mismatched batch sizes, wrong rank) is a hard error.
func TranslateToStandard(
	sess *Session,
	foreignProbs *tensors.Tensor,
	foreignOffsets, stdOffsets [][]api.TokenSpan,
	foreignTok, stdTok api.TokenizerWithSpans,
	stdTokenIDs [][]int,
	skipEquivalent bool,
) (*tensors.Tensor, []error, error) {
	dims := foreignProbs.Shape().Dimensions
	if len(dims) != 3 {
		return nil, nil, errors.Errorf("expected rank-3 probabilities, got shape %s", foreignProbs.Shape())
	}
	batchSize, foreignSeqLen, foreignVocabSize := dims[0], dims[1], dims[2]
	if len(foreignOffsets) != batchSize || len(stdOffsets) != batchSize || len(stdTokenIDs) != batchSize {
		return nil, nil, errors.Errorf("batch size mismatch: probs have %d elements, offsets %d/%d, token ids %d",
			batchSize, len(foreignOffsets), len(stdOffsets), len(stdTokenIDs))
	}
	if foreignVocabSize != foreignTok.VocabSize() {
		return nil, nil, errors.Errorf("probabilities have vocab dimension %d, foreign tokenizer has %d",
			foreignVocabSize, foreignTok.VocabSize())
	}

	stdVocabSize := stdTok.VocabSize()
	stdSeqLen := 0
	for _, spans := range stdOffsets {
		stdSeqLen = max(stdSeqLen, len(spans))
	}

	equivalent := skipEquivalent && sess.Equivalent(foreignTok, stdTok)
	var tmap *TranslationMap
	if !equivalent {
		tmap = sess.TranslationMap(foreignTok, stdTok)
	}

	out := make([]float32, batchSize*stdSeqLen*stdVocabSize)
	elemErrs := make([]error, batchSize)
	tensors.ConstFlatData(foreignProbs, func(flat []float32) {
		for b := 0; b < batchSize; b++ {
			elem := out[b*stdSeqLen*stdVocabSize : (b+1)*stdSeqLen*stdVocabSize]
			rows := flat[b*foreignSeqLen*foreignVocabSize : (b+1)*foreignSeqLen*foreignVocabSize]
			err := translateElement(sess, tmap, equivalent,
				rows, foreignSeqLen, foreignVocabSize,
				foreignOffsets[b], stdOffsets[b], stdTokenIDs[b],
				elem, stdVocabSize)
			if err != nil {
				// Isolate the failure: zero this element, keep the batch going.
				clear(elem)
				elemErrs[b] = errors.WithMessagef(err, "batch element %d", b)
			}
		}
	})
	return tensors.FromFlatDataAndDimensions(out, batchSize, stdSeqLen, stdVocabSize), elemErrs, nil
}

func translateElement(
	sess *Session, tmap *TranslationMap, equivalent bool,
	foreignRows []float32, foreignSeqLen, foreignVocabSize int,
	foreignSpans, stdSpans []api.TokenSpan, stdIDs []int,
	elem []float32, stdVocabSize int,
) error {
	if len(stdIDs) != len(stdSpans) {
		return errors.Wrapf(ErrOffsetMisalignment, "%d standard token ids for %d spans", len(stdIDs), len(stdSpans))
	}
	if len(foreignSpans) > foreignSeqLen {
		return errors.Wrapf(ErrOffsetMisalignment, "%d foreign spans exceed sequence length %d", len(foreignSpans), foreignSeqLen)
	}

	if equivalent {
		// Direct copy: same vocabulary, same segmentation.
		n := min(len(stdSpans), foreignSeqLen)
		for j := 0; j < n; j++ {
			copy(elem[j*stdVocabSize:(j+1)*stdVocabSize], foreignRows[j*foreignVocabSize:(j+1)*foreignVocabSize])
		}
		return nil
	}

	var droppedMass float64
	cursor := 0
	for j, stdSpan := range stdSpans {
		row := elem[j*stdVocabSize : (j+1)*stdVocabSize]
		if stdSpan.Len() == 0 {
			// A special token carries no characters to apportion: the observed
			// standard id takes the full mass.
			if stdIDs[j] < 0 || stdIDs[j] >= stdVocabSize {
				return errors.Wrapf(ErrOffsetMisalignment, "standard token id %d out of range", stdIDs[j])
			}
			row[stdIDs[j]] = 1
			continue
		}

		for cursor < len(foreignSpans) && foreignSpans[cursor].End <= stdSpan.Start {
			cursor++
		}
		covered := 0
		var rowMiss float64
		for i := cursor; i < len(foreignSpans) && foreignSpans[i].Start < stdSpan.End; i++ {
			overlap := stdSpan.Overlap(foreignSpans[i])
			if overlap == 0 {
				continue
			}
			covered += overlap
			weight := float32(overlap) / float32(stdSpan.Len())
			foreignRow := foreignRows[i*foreignVocabSize : (i+1)*foreignVocabSize]
			for v, p := range foreignRow {
				if p == 0 {
					continue
				}
				fragments := tmap.Lookup(v)
				if fragments == nil {
					rowMiss += float64(weight * p)
					continue
				}
				for _, frag := range fragments {
					row[frag.ID] += weight * p * frag.Weight
				}
			}
		}

		if covered == 0 {
			// The span's region exists only in the original text: a special
			// token dropped during rewriting leaves it covered by no foreign
			// token. As with zero-width spans, the observed standard id takes
			// the full mass.
			if stdIDs[j] < 0 || stdIDs[j] >= stdVocabSize {
				return errors.Wrapf(ErrOffsetMisalignment, "standard token id %d out of range", stdIDs[j])
			}
			row[stdIDs[j]] = 1
			continue
		}

		if rowMiss > 0 {
			switch sess.MissPolicy() {
			case MissError:
				return errors.Wrapf(ErrTranslationMapMiss, "position %d lost %.3g probability mass", j, rowMiss)
			case MissFloor:
				fill := float32(rowMiss / float64(stdVocabSize))
				for v := range row {
					row[v] += fill
				}
			default: // MissDrop
				droppedMass += rowMiss
			}
		}
	}
	if droppedMass > 0 {
		klog.V(2).Infof("translation dropped %.3g probability mass over %d standard positions", droppedMass, len(stdSpans))
	}
	return nil
}
