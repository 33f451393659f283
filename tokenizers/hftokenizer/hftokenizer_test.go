package hftokenizer

import (
	"testing"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// Test tokenizer.json content for a WordPiece model (BERT-style)
var testWordPieceTokenizerJSON = []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[PAD]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 100, "content": "[UNK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 101, "content": "[CLS]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 102, "content": "[SEP]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 103, "content": "[MASK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": {
    "type": "BertNormalizer",
    "lowercase": true
  },
  "pre_tokenizer": {
    "type": "BertPreTokenizer"
  },
  "post_processor": null,
  "decoder": {
    "type": "WordPiece",
    "prefix": "##"
  },
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "max_input_chars_per_word": 100,
    "vocab": {
      "[PAD]": 0,
      "hello": 1,
      "world": 2,
      "test": 3,
      "##ing": 4,
      "##ed": 5,
      "[UNK]": 100,
      "[CLS]": 101,
      "[SEP]": 102,
      "[MASK]": 103,
      "the": 104,
      "a": 105,
      "is": 106,
      "this": 107
    }
  }
}`)

// Test tokenizer.json content for a byte-level BPE model (GPT-2-style)
var testBPETokenizerJSON = []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 17, "content": "<|endoftext|>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {
    "type": "ByteLevel",
    "add_prefix_space": false
  },
  "post_processor": null,
  "decoder": {
    "type": "ByteLevel"
  },
  "model": {
    "type": "BPE",
    "unk_token": null,
    "vocab": {
      "h": 0,
      "e": 1,
      "l": 2,
      "o": 3,
      "w": 4,
      "r": 5,
      "d": 6,
      "Ġ": 7,
      "he": 8,
      "hel": 9,
      "hell": 10,
      "hello": 11,
      "Ġw": 12,
      "Ġwo": 13,
      "Ġwor": 14,
      "Ġworl": 15,
      "Ġworld": 16
    },
    "merges": [
      "h e",
      "he l",
      "hel l",
      "hell o",
      "Ġ w",
      "Ġw o",
      "Ġwo r",
      "Ġwor l",
      "Ġworl d"
    ]
  }
}`)

// Test tokenizer.json content for a Unigram model with Metaspace (T5-style)
var testUnigramTokenizerJSON = []byte(`{
  "version": "1.0",
  "added_tokens": [
    {"id": 6, "content": "<unk>", "special": true},
    {"id": 7, "content": "</s>", "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {
    "type": "Metaspace",
    "add_prefix_space": true
  },
  "decoder": {
    "type": "Metaspace"
  },
  "model": {
    "type": "Unigram",
    "vocab": {
      "▁hello": 0,
      "▁": 1,
      "hello": 2,
      "▁world": 3,
      "wor": 4,
      "ld": 5,
      "<unk>": 6
    }
  }
}`)

func TestNewFromContent_ModelTypes(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"WordPiece", testWordPieceTokenizerJSON, "WordPiece"},
		{"BPE", testBPETokenizerJSON, "BPE"},
		{"Unigram", testUnigramTokenizerJSON, "Unigram"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewFromContent(nil, tt.content)
			if err != nil {
				t.Fatalf("NewFromContent failed: %v", err)
			}
			if tok.GetTokenizerType() != tt.want {
				t.Errorf("expected type %s, got %s", tt.want, tok.GetTokenizerType())
			}
		})
	}
}

func TestWordPiece_Encode(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{
			name:  "single word in vocab",
			input: "hello",
			want:  []int{1},
		},
		{
			name:  "multiple words",
			input: "hello world",
			want:  []int{1, 2},
		},
		{
			name:  "word with subword",
			input: "testing",
			want:  []int{3, 4}, // test + ##ing
		},
		{
			name:  "lowercased by normalizer",
			input: "Hello WORLD",
			want:  []int{1, 2},
		},
		{
			name:  "unknown word",
			input: "xyzzy",
			want:  []int{100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Encode(tt.input)
			if !intSliceEqual(got, tt.want) {
				t.Errorf("Encode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWordPiece_Decode(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	tests := []struct {
		name  string
		input []int
		want  string
	}{
		{"single word", []int{1}, "hello"},
		{"multiple words", []int{1, 2}, "hello world"},
		{"word with subword", []int{3, 4}, "testing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Decode(tt.input)
			if got != tt.want {
				t.Errorf("Decode(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWordPiece_DecodeToken(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	if got := tok.DecodeToken(3); got != "test" {
		t.Errorf("DecodeToken(3) = %q, want %q", got, "test")
	}
	if got := tok.DecodeToken(4); got != "ing" {
		t.Errorf("DecodeToken(4) = %q, want %q (continuation prefix stripped)", got, "ing")
	}
	if got := tok.DecodeToken(101); got != "[CLS]" {
		t.Errorf("DecodeToken(101) = %q, want %q (added tokens verbatim)", got, "[CLS]")
	}
	if got := tok.DecodeToken(9999); got != "" {
		t.Errorf("DecodeToken(9999) = %q, want empty for unknown id", got)
	}
}

func TestWordPiece_EncodeWithSpans(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	input := "Testing the test"
	res := tok.EncodeWithSpans(input)
	wantIDs := []int{3, 4, 104, 3} // test ##ing the test
	if !intSliceEqual(res.IDs, wantIDs) {
		t.Fatalf("EncodeWithSpans(%q).IDs = %v, want %v", input, res.IDs, wantIDs)
	}
	wantSpans := []api.TokenSpan{
		{Start: 0, End: 4},   // Test
		{Start: 4, End: 7},   // ing
		{Start: 8, End: 11},  // the
		{Start: 12, End: 16}, // test
	}
	for i, want := range wantSpans {
		if res.Spans[i] != want {
			t.Errorf("span %d = %+v, want %+v", i, res.Spans[i], want)
		}
	}
}

func TestWordPiece_SpecialTokenID(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	tests := []struct {
		name    string
		token   api.SpecialToken
		want    int
		wantErr bool
	}{
		{"unknown token", api.TokUnknown, 100, false},
		{"pad token", api.TokPad, 0, false},
		{"mask token", api.TokMask, 103, false},
		{"cls/bos token", api.TokBeginningOfSentence, 101, false}, // falls back to CLS
		{"sep/eos token", api.TokEndOfSentence, 102, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.SpecialTokenID(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("SpecialTokenID(%v) error = %v, wantErr %v", tt.token, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SpecialTokenID(%v) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestWordPiece_VocabSize(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	// All 5 added tokens already appear in the 14-entry vocab.
	if size := tok.VocabSize(); size != 14 {
		t.Errorf("VocabSize() = %d, want 14", size)
	}
}

func TestBPE_EncodeDecode(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	input := "hello world"
	ids := tok.Encode(input)
	want := []int{11, 16} // hello, Ġworld
	if !intSliceEqual(ids, want) {
		t.Fatalf("Encode(%q) = %v, want %v", input, ids, want)
	}

	if got := tok.Decode(ids); got != input {
		t.Errorf("Decode(%v) = %q, want %q", ids, got, input)
	}
}

func TestBPE_EncodeWithSpans(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	input := "hello world"
	res := tok.EncodeWithSpans(input)
	wantSpans := []api.TokenSpan{
		{Start: 0, End: 5},  // hello
		{Start: 6, End: 11}, // world (leading space skipped)
	}
	if len(res.Spans) != len(wantSpans) {
		t.Fatalf("got %d spans, want %d", len(res.Spans), len(wantSpans))
	}
	for i, want := range wantSpans {
		if res.Spans[i] != want {
			t.Errorf("span %d = %+v, want %+v", i, res.Spans[i], want)
		}
	}
}

func TestBPE_EndOfTextServesBothRoles(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	for _, st := range []api.SpecialToken{api.TokBeginningOfSentence, api.TokEndOfSentence} {
		id, err := tok.SpecialTokenID(st)
		if err != nil {
			t.Fatalf("SpecialTokenID(%v) failed: %v", st, err)
		}
		if id != 17 {
			t.Errorf("SpecialTokenID(%v) = %d, want 17", st, id)
		}
		text, err := tok.SpecialTokenText(st)
		if err != nil || text != "<|endoftext|>" {
			t.Errorf("SpecialTokenText(%v) = %q, %v", st, text, err)
		}
	}
}

func TestUnigram_EncodeDecode(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	input := "hello world"
	ids := tok.Encode(input)
	want := []int{0, 3} // ▁hello, ▁world
	if !intSliceEqual(ids, want) {
		t.Fatalf("Encode(%q) = %v, want %v", input, ids, want)
	}

	if got := tok.Decode(ids); got != input {
		t.Errorf("Decode(%v) = %q, want %q", ids, got, input)
	}
}

func TestFingerprint(t *testing.T) {
	tok1, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}
	tok2, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}
	other, err := NewFromContent(nil, testBPETokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	if tok1.Fingerprint() != tok2.Fingerprint() {
		t.Error("same content must produce the same fingerprint")
	}
	if tok1.Fingerprint() == other.Fingerprint() {
		t.Error("different content must produce different fingerprints")
	}
}

func TestTokenToID_IDToToken(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	id, ok := tok.TokenToID("hello")
	if !ok || id != 1 {
		t.Errorf("TokenToID(hello) = %d, %v, want 1, true", id, ok)
	}

	token, ok := tok.IDToToken(1)
	if !ok || token != "hello" {
		t.Errorf("IDToToken(1) = %q, %v, want hello, true", token, ok)
	}

	id, ok = tok.TokenToID("[CLS]")
	if !ok || id != 101 {
		t.Errorf("TokenToID([CLS]) = %d, %v, want 101, true", id, ok)
	}
}

func TestConfigFallback(t *testing.T) {
	// BOS is not marked in the vocab; the config supplies its text form.
	config := &api.Config{BosToken: "hello"}
	tok, err := NewFromContent(config, testWordPieceTokenizerJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	id, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	if err != nil {
		t.Fatalf("SpecialTokenID failed: %v", err)
	}
	if id != 1 {
		t.Errorf("SpecialTokenID(bos) = %d, want 1 (from config)", id)
	}
}

func TestBertPreTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{
			input: "Hello, world!",
			want:  []string{"Hello", ",", "world", "!"},
		},
		{
			input: "It's a test.",
			want:  []string{"It", "'", "s", "a", "test", "."},
		},
		{
			input: "simple text",
			want:  []string{"simple", "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := bertPreTokenize(tt.input)
			if !strSliceEqual(got, tt.want) {
				t.Errorf("bertPreTokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", "hello world"},
		{"hello\tworld", "hello world"},
		{"hello\nworld", "hello world"},
		{"hello\x00world", "helloworld"}, // null char removed
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := cleanText(tt.input)
			if got != tt.want {
				t.Errorf("cleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestByteLevelRoundTrip(t *testing.T) {
	inputs := []string{
		"hello world",
		"tabs\tand\nnewlines",
		"unicode: héllo 世界",
	}
	for _, input := range inputs {
		words := byteLevelPreTokenize(input)
		var joined string
		for _, w := range words {
			joined += w
		}
		if got := byteLevelDecode(joined); got != input {
			t.Errorf("byte-level round trip of %q = %q", input, got)
		}
	}
}

func TestInvalidJSON(t *testing.T) {
	_, err := NewFromContent(nil, []byte("not valid json"))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEmptyVocab(t *testing.T) {
	emptyVocabJSON := []byte(`{
		"model": {
			"type": "WordPiece",
			"vocab": {},
			"unk_token": "[UNK]"
		}
	}`)

	tok, err := NewFromContent(nil, emptyVocabJSON)
	if err != nil {
		t.Fatalf("NewFromContent failed: %v", err)
	}

	// Encoding unknown text returns nothing (no unk token defined in the vocab).
	ids := tok.Encode("hello")
	if len(ids) != 0 {
		t.Errorf("Encode() with empty vocab = %v, want empty", ids)
	}
}

// Helper functions

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

func strSliceEqual(a, b []string) bool {
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
