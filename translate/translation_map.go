package translate

import (
	"time"

	"github.com/gomlx/tokentranslate/tokenizers/api"
	"k8s.io/klog/v2"
)

// TargetFragment is one entry of a translation map: a target-vocabulary id and
// the share of the source token's probability mass it receives. The weights of
// a source token's fragments sum to 1, proportional to the bytes each fragment
// covers of the decoded source token.
type TargetFragment struct {
	ID     int
	Weight float32
}

// TranslationMap maps every token id of a source vocabulary to the target
// vocabulary fragments that cover the same characters. It depends only on the
// two vocabularies, never on any input batch, and is immutable once built.
// A→B and B→A are distinct maps.
type TranslationMap struct {
	SourceVocabSize int
	TargetVocabSize int

	entries [][]TargetFragment // indexed by source id; nil marks a miss
	misses  int
}

// splitFn tokenizes a short text fragment in the target vocabulary. The
// session supplies a memoizing implementation (the split-map cache); the bare
// builder calls the tokenizer directly.
type splitFn func(text string) api.EncodingResult

// BuildTranslationMap constructs the directed translation map from source to
// target. This is the expensive, cacheable step: every source vocabulary entry
// is decoded and re-tokenized under the target tokenizer.
//
// Prefer Session.TranslationMap, which shares builds between concurrent
// callers and memoizes fragment tokenization.
func BuildTranslationMap(source api.Tokenizer, target api.TokenizerWithSpans) *TranslationMap {
	return buildTranslationMap(source, target, func(text string) api.EncodingResult {
		return target.EncodeWithSpans(text)
	})
}

func buildTranslationMap(source api.Tokenizer, target api.TokenizerWithSpans, split splitFn) *TranslationMap {
	start := time.Now()
	m := &TranslationMap{
		SourceVocabSize: source.VocabSize(),
		TargetVocabSize: target.VocabSize(),
		entries:         make([][]TargetFragment, source.VocabSize()),
	}
	for id := 0; id < m.SourceVocabSize; id++ {
		text := source.Decode([]int{id})
		if text == "" {
			m.misses++
			klog.V(2).Infof("translation map: source id %d decodes to empty text", id)
			continue
		}
		res := split(text)
		if len(res.IDs) == 0 {
			m.misses++
			klog.V(2).Infof("translation map: source id %d (%q) has no target tokenization", id, text)
			continue
		}
		m.entries[id] = fragmentWeights(res)
	}
	klog.V(1).Infof("built translation map %d->%d tokens in %s (%d misses)",
		m.SourceVocabSize, m.TargetVocabSize, time.Since(start), m.misses)
	return m
}

// fragmentWeights distributes one unit of mass over the target tokens of a
// fragment, proportional to covered bytes. Zero-width tokens (special tokens
// the target inserts) get no share; if every span is zero-width the mass is
// split evenly instead.
func fragmentWeights(res api.EncodingResult) []TargetFragment {
	covered := 0
	for _, span := range res.Spans {
		covered += span.Len()
	}
	fragments := make([]TargetFragment, 0, len(res.IDs))
	if covered == 0 {
		w := 1 / float32(len(res.IDs))
		for _, id := range res.IDs {
			fragments = append(fragments, TargetFragment{ID: id, Weight: w})
		}
		return fragments
	}
	for i, id := range res.IDs {
		if res.Spans[i].Len() == 0 {
			continue
		}
		fragments = append(fragments, TargetFragment{
			ID:     id,
			Weight: float32(res.Spans[i].Len()) / float32(covered),
		})
	}
	return fragments
}

// Lookup returns the target fragments for a source id, or nil when the map has
// no entry (a miss).
func (m *TranslationMap) Lookup(sourceID int) []TargetFragment {
	if sourceID < 0 || sourceID >= len(m.entries) {
		return nil
	}
	return m.entries[sourceID]
}

// Misses returns how many source ids have no translation.
func (m *TranslationMap) Misses() int { return m.misses }

// MissedIDs returns the source ids with no translation, in ascending order.
func (m *TranslationMap) MissedIDs() []int {
	ids := make([]int, 0, m.misses)
	for id, e := range m.entries {
		if e == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// MeanFanout returns the average number of target fragments per translated
// source id. A fanout near 1 means the vocabularies segment similarly.
func (m *TranslationMap) MeanFanout() float64 {
	translated, fragments := 0, 0
	for _, e := range m.entries {
		if e == nil {
			continue
		}
		translated++
		fragments += len(e)
	}
	if translated == 0 {
		return 0
	}
	return float64(fragments) / float64(translated)
}
