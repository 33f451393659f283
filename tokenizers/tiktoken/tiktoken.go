// Package tiktoken implements a tokenizers.Tokenizer based on the OpenAI
// tiktoken BPE encodings (cl100k_base, o200k_base, ...).
package tiktoken

import (
	"strings"

	"github.com/pkg/errors"
	ptiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// encodingInfo carries the per-encoding constants tiktoken does not expose:
// the total id space (base vocabulary plus special tokens) and the
// end-of-text id, which doubles as BOS and EOS.
type encodingInfo struct {
	vocabSize   int
	endOfTextID int
}

var knownEncodings = map[string]encodingInfo{
	"r50k_base":   {vocabSize: 50257, endOfTextID: 50256},
	"p50k_base":   {vocabSize: 50281, endOfTextID: 50256},
	"p50k_edit":   {vocabSize: 50284, endOfTextID: 50256},
	"cl100k_base": {vocabSize: 100277, endOfTextID: 100257},
	"o200k_base":  {vocabSize: 200019, endOfTextID: 199999},
}

// New creates a tokenizer for the given tiktoken encoding name, e.g.
// "cl100k_base".
func New(encodingName string) (*Tokenizer, error) {
	info, ok := knownEncodings[encodingName]
	if !ok {
		return nil, errors.Errorf("unknown tiktoken encoding %q", encodingName)
	}
	enc, err := ptiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "can't load tiktoken encoding %q", encodingName)
	}
	return &Tokenizer{
		encoding: enc,
		name:     encodingName,
		info:     info,
	}, nil
}

// NewForModel creates a tokenizer for the encoding used by the given OpenAI
// model name, e.g. "gpt-4".
func NewForModel(modelName string) (*Tokenizer, error) {
	encodingName, ok := ptiktoken.MODEL_TO_ENCODING[modelName]
	if !ok {
		for prefix, name := range ptiktoken.MODEL_PREFIX_TO_ENCODING {
			if strings.HasPrefix(modelName, prefix) {
				encodingName, ok = name, true
				break
			}
		}
	}
	if !ok {
		return nil, errors.Errorf("no tiktoken encoding for model %q", modelName)
	}
	return New(encodingName)
}

// Tokenizer implements the tokenizers.Tokenizer interface based on the
// tiktoken byte-level BPE encodings.
type Tokenizer struct {
	encoding *ptiktoken.Tiktoken
	name     string
	info     encodingInfo
}

// Compile time assert that tiktoken.Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer          = &Tokenizer{}
	_ api.TokenizerWithSpans = &Tokenizer{}
)

// Encode returns the text encoded into a sequence of ids. Special token
// literals in the text are not treated specially.
func (t *Tokenizer) Encode(text string) []int {
	return t.encoding.EncodeOrdinary(text)
}

// EncodeWithSpans returns the text encoded into a sequence of ids along with
// their byte spans. Tiktoken BPE is lossless over bytes, so each token covers
// exactly the bytes it decodes to and spans are recovered by accumulation.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	ids := t.encoding.EncodeOrdinary(text)
	spans := make([]api.TokenSpan, len(ids))
	pos := 0
	for i, id := range ids {
		n := len(t.encoding.Decode([]int{id}))
		end := pos + n
		if end > len(text) {
			end = len(text)
		}
		spans[i] = api.TokenSpan{Start: pos, End: end}
		pos = end
	}
	return api.EncodingResult{IDs: ids, Spans: spans}
}

// Decode returns the text from a sequence of ids.
func (t *Tokenizer) Decode(ids []int) string {
	return t.encoding.Decode(ids)
}

// VocabSize returns the size of the id space, special tokens included.
func (t *Tokenizer) VocabSize() int {
	return t.info.vocabSize
}

// SpecialTokenID returns the id for the given symbol, or an error if not
// known. Tiktoken encodings only define "<|endoftext|>", which serves as
// beginning-of-sentence, end-of-sentence and pad.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokBeginningOfSentence, api.TokEndOfSentence, api.TokPad:
		return t.info.endOfTextID, nil
	}
	return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
}

// SpecialTokenText returns the text form of the given special token.
func (t *Tokenizer) SpecialTokenText(token api.SpecialToken) (string, error) {
	switch token {
	case api.TokBeginningOfSentence, api.TokEndOfSentence, api.TokPad:
		return "<|endoftext|>", nil
	}
	return "", errors.Errorf("special token %s has no text form", token)
}

// Fingerprint identifies the encoding for caching purposes.
func (t *Tokenizer) Fingerprint() string {
	return "tiktoken:" + t.name
}
