package translate

import (
	"slices"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// probeTexts is the fixed corpus used to decide tokenizer equivalence. It mixes
// plain prose with the segmentation-sensitive cases where differing vocabularies
// or merge rules show up: whitespace runs, punctuation clusters, digits, casing,
// accents, non-Latin scripts.
var probeTexts = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Die Drei Gesetze der Robotik sind eine Reihe von Regeln.",
	"Hello, world!  Multiple  spaces\tand\ttabs\nand newlines.",
	"2058 A.D., 56th Edition; pp. 1942--1950 (approx.)",
	"naïve café résumé über straße",
	"ロボット工学三原則 机器人三定律",
	"don't can't won't it's o'clock",
	"CamelCase UPPERCASE lowercase MiXeD",
	"x = (a + b) * [c - d] / {e % f};",
	"    leading and trailing    ",
}

// CheckTokenizerEquivalence reports whether two tokenizers are functionally
// identical: same vocabulary size and token-for-token identical output on the
// probe corpus and on each other's special-token text. Equivalent tokenizers
// allow the fast path that skips translation entirely.
//
// Deterministic and side-effect free; no network or model calls.
func CheckTokenizerEquivalence(a, b api.Tokenizer) bool {
	if a == nil || b == nil {
		return false
	}
	if a.VocabSize() != b.VocabSize() {
		return false
	}
	for _, text := range probeTexts {
		if !slices.Equal(a.Encode(text), b.Encode(text)) {
			return false
		}
	}
	// Special tokens must agree in both text form and id.
	for tok := api.SpecialToken(0); tok < api.TokSpecialTokensCount; tok++ {
		aText, aErr := a.SpecialTokenText(tok)
		bText, bErr := b.SpecialTokenText(tok)
		if (aErr == nil) != (bErr == nil) {
			return false
		}
		if aErr == nil && aText != bText {
			return false
		}
		aID, aErr := a.SpecialTokenID(tok)
		bID, bErr := b.SpecialTokenID(tok)
		if (aErr == nil) != (bErr == nil) {
			return false
		}
		if aErr == nil && aID != bID {
			return false
		}
	}
	return true
}
