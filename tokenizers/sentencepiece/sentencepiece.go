// Package sentencepiece implements a tokenizers.Tokenizer based on the
// SentencePiece tokenizer.
package sentencepiece

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/gomlx/tokentranslate/hub"
	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// New creates a SentencePiece tokenizer based on the "tokenizer.model" file,
// which must be a SentencePiece Model proto.
func New(repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile("tokenizer.model") {
		return nil, errors.Errorf("\"tokenizer.model\" file not found in repo %q", repo.ID)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.model")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.model file")
	}
	return NewFromFile(tokenizerFile)
}

// NewFromFile creates a SentencePiece tokenizer from a local tokenizer.model path.
func NewFromFile(path string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer")
	}
	var fingerprint string
	if content, err := os.ReadFile(path); err == nil {
		hash := sha256.Sum256(content)
		fingerprint = hex.EncodeToString(hash[:])
	}
	return &Tokenizer{
		Processor:   proc,
		Info:        proc.ModelInfo(),
		fingerprint: fingerprint,
	}, nil
}

// Tokenizer implements the tokenizers.Tokenizer interface based on the
// SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	fingerprint string
}

// Fingerprint identifies the tokenizer model content for caching purposes.
// Empty if the model file could not be re-read when the tokenizer was built.
func (p *Tokenizer) Fingerprint() string {
	if p.fingerprint == "" {
		return ""
	}
	return "sentencepiece:" + p.fingerprint
}

// Compile time assert that sentencepiece.Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer          = &Tokenizer{}
	_ api.TokenizerWithSpans = &Tokenizer{}
)

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) int { return t.ID })
}

// EncodeWithSpans returns the text encoded into a sequence of ids along with their byte spans.
// It implements api.TokenizerWithSpans.
func (p *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	spans := make([]api.TokenSpan, len(tokens))

	// Track position in original text by matching token pieces.
	pos := 0
	for i, tok := range tokens {
		ids[i] = tok.ID
		piece := tok.Text

		// SentencePiece uses U+2581 (lower one eighth block) as the space
		// replacement; strip it before matching back to the original text.
		matchPiece := piece
		hasLeadingSpace := false
		if strings.HasPrefix(matchPiece, "▁") {
			matchPiece = matchPiece[len("▁"):]
			hasLeadingSpace = true
		}

		if hasLeadingSpace {
			for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t' || text[pos] == '\n' || text[pos] == '\r') {
				pos++
			}
		}

		if matchPiece == "" {
			// Token represents just the space (or a control piece).
			spans[i] = api.TokenSpan{Start: pos, End: pos}
			continue
		}

		if foundAt := findSubstring(text, matchPiece, pos); foundAt >= 0 {
			spans[i] = api.TokenSpan{Start: foundAt, End: foundAt + len(matchPiece)}
			pos = foundAt + len(matchPiece)
		} else {
			// Fallback: advance by piece length.
			start := pos
			pos += len(matchPiece)
			if pos > len(text) {
				pos = len(text)
			}
			spans[i] = api.TokenSpan{Start: start, End: pos}
		}
	}

	return api.EncodingResult{IDs: ids, Spans: spans}
}

// findSubstring finds the first occurrence of substr in s starting from position start.
// Returns the byte position of the match, or -1 if not found.
func findSubstring(s, substr string, start int) int {
	if start >= len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// VocabSize returns the size of the SentencePiece vocabulary.
func (p *Tokenizer) VocabSize() int {
	return p.Info.VocabularySize
}

// SpecialTokenID returns the id for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	id := -1
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	}
	if id < 0 {
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	return id, nil
}

// SpecialTokenText returns the conventional SentencePiece text form of the
// given special token, when the model defines it.
func (p *Tokenizer) SpecialTokenText(token api.SpecialToken) (string, error) {
	texts := map[api.SpecialToken]string{
		api.TokUnknown:             "<unk>",
		api.TokPad:                 "<pad>",
		api.TokBeginningOfSentence: "<s>",
		api.TokEndOfSentence:       "</s>",
	}
	text, ok := texts[token]
	if !ok {
		return "", errors.Errorf("special token %s has no text form", token)
	}
	if _, err := p.SpecialTokenID(token); err != nil {
		return "", err
	}
	return text, nil
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
