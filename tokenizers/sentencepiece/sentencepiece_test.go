package sentencepiece

import (
	"testing"

	"github.com/gomlx/tokentranslate/hub"
	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// loadTestTokenizer fetches a small public sentencepiece model, skipping the
// test when it is not reachable.
func loadTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	repo := hub.New("google/flan-t5-small")
	if !repo.HasFile("tokenizer.model") {
		t.Skip("tokenizer.model not found in repo")
	}
	tok, err := New(repo)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tok
}

// TestEncodeWithSpans_MatchesEncode verifies that EncodeWithSpans produces the same IDs as Encode.
func TestEncodeWithSpans_MatchesEncode(t *testing.T) {
	tok := loadTestTokenizer(t)

	inputs := []string{
		"hello",
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"Testing tokenization with offsets.",
		"Multiple  spaces   here",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			ids := tok.Encode(input)
			result := tok.EncodeWithSpans(input)
			if !intSliceEqual(ids, result.IDs) {
				t.Errorf("Encode(%q) = %v, EncodeWithSpans(%q).IDs = %v", input, ids, input, result.IDs)
			}
		})
	}
}

// TestEncodeWithSpans_ValidSpans verifies that spans are within bounds and ordered.
func TestEncodeWithSpans_ValidSpans(t *testing.T) {
	tok := loadTestTokenizer(t)

	inputs := []string{
		"hello world",
		"The quick brown fox.",
		"Testing 123 numbers!",
		"Hello, 世界!",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			result := tok.EncodeWithSpans(input)

			if len(result.Spans) != len(result.IDs) {
				t.Fatalf("len(Spans)=%d != len(IDs)=%d", len(result.Spans), len(result.IDs))
			}

			for i, off := range result.Spans {
				if off.Start < 0 || off.Start > off.End || off.End > len(input) {
					t.Errorf("token %d: invalid span [%d,%d) for input length %d",
						i, off.Start, off.End, len(input))
				}
			}
		})
	}
}

func TestEncodeWithSpans_EmptyString(t *testing.T) {
	tok := loadTestTokenizer(t)

	result := tok.EncodeWithSpans("")
	if len(result.IDs) != 0 {
		t.Errorf("expected empty IDs for empty input, got %v", result.IDs)
	}
	if len(result.Spans) != 0 {
		t.Errorf("expected empty spans for empty input, got %v", result.Spans)
	}
}

func TestVocabSizeAndSpecialTokens(t *testing.T) {
	tok := loadTestTokenizer(t)

	if tok.VocabSize() <= 0 {
		t.Errorf("VocabSize() = %d, want > 0", tok.VocabSize())
	}

	id, err := tok.SpecialTokenID(api.TokEndOfSentence)
	if err != nil {
		t.Fatalf("SpecialTokenID(eos) failed: %v", err)
	}
	if id < 0 || id >= tok.VocabSize() {
		t.Errorf("eos id %d outside vocabulary of %d", id, tok.VocabSize())
	}

	text, err := tok.SpecialTokenText(api.TokEndOfSentence)
	if err != nil || text != "</s>" {
		t.Errorf("SpecialTokenText(eos) = %q, %v, want </s>", text, err)
	}
}

func TestFingerprintStable(t *testing.T) {
	tok1 := loadTestTokenizer(t)
	tok2 := loadTestTokenizer(t)

	if tok1.Fingerprint() == "" {
		t.Fatal("Fingerprint() is empty")
	}
	if tok1.Fingerprint() != tok2.Fingerprint() {
		t.Error("two loads of the same model must share a fingerprint")
	}
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
