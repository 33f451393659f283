// Package api defines the Tokenizer capability consumed by the translation core.
// It's kept in its own package to break cyclic dependencies, and to allow users to
// import `tokenizers` and get the default implementations.
package api

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
// Spans are what the cross-tokenizer aligner compares: two tokenizations of the
// same text are reconciled position-by-position through their spans.
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Len returns the number of bytes covered by the span. Zero for special tokens
// that have no text form (e.g. BOS inserted by a post-processor).
func (s TokenSpan) Len() int { return s.End - s.Start }

// Overlap returns the number of bytes shared by the two spans.
func (s TokenSpan) Overlap(o TokenSpan) int {
	start := max(s.Start, o.Start)
	end := min(s.End, o.End)
	if end <= start {
		return 0
	}
	return end - start
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs   []int       // token IDs
	Spans []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)
}

// Tokenizer interface allows one to convert text to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding)
// but that may map to different ids (int) and different text forms for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// VocabSize returns the number of ids in the vocabulary, including added special tokens.
	VocabSize() int

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)

	// SpecialTokenText returns the literal text form of the given special token
	// (e.g. "<|endoftext|>"), or an error if the tokenizer has none.
	SpecialTokenText(token SpecialToken) (string, error)
}

// TokenizerWithSpans extends Tokenizer with span tracking capability.
// The translation core requires spans on both sides of a tokenizer pair: it is
// how probability mass is attributed across differing segmentations.
type TokenizerWithSpans interface {
	Tokenizer
	// EncodeWithSpans returns tokens along with their byte spans in the original text.
	EncodeWithSpans(text string) EncodingResult
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [TokSpecialTokensCount]string{
	"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || t >= TokSpecialTokensCount {
		return "invalid_special_token"
	}
	return specialTokenNames[t]
}

// Config holds tokenizer configuration usually found in tokenizer_config.json:
// the text forms of the special tokens. Implementations use it to resolve
// special token ids when the vocabulary itself doesn't mark them.
type Config struct {
	BosToken  string `json:"bos_token"`
	EosToken  string `json:"eos_token"`
	UnkToken  string `json:"unk_token"`
	PadToken  string `json:"pad_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
	MaskToken string `json:"mask_token"`
}
