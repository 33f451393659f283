package hftokenizer

import (
	"strings"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// EncodeWithSpans returns the text encoded into token ids along with their byte
// spans in the original text. It implements api.TokenizerWithSpans.
//
// Spans are recovered by matching each token's decoded fragment back against
// the original text, scanning left to right. Normalization can change the text
// the model actually saw, so recovery is heuristic: unmatched fragments fall
// back to advancing by fragment length, and special tokens that carry no text
// get zero-width spans. Spans are always within bounds and non-decreasing.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	ids := t.Encode(text)
	spans := make([]api.TokenSpan, len(ids))

	matchText := text
	if t.lowercases {
		matchText = strings.ToLower(text)
	}

	pos := 0
	for i, id := range ids {
		frag := t.DecodeToken(id)
		if t.lowercases {
			frag = strings.ToLower(frag)
		}

		hadLeadingSpace := strings.HasPrefix(frag, " ")
		frag = strings.TrimLeft(frag, " ")
		if hadLeadingSpace {
			for pos < len(matchText) && isSpaceByte(matchText[pos]) {
				pos++
			}
		}

		if frag == "" {
			// Token represents only whitespace or carries no text.
			spans[i] = api.TokenSpan{Start: pos, End: pos}
			continue
		}

		if foundAt := indexFrom(matchText, frag, pos); foundAt >= 0 {
			spans[i] = api.TokenSpan{Start: foundAt, End: foundAt + len(frag)}
			pos = foundAt + len(frag)
		} else {
			// Fallback: advance by fragment length.
			end := min(pos+len(frag), len(matchText))
			spans[i] = api.TokenSpan{Start: pos, End: end}
			pos = end
		}
	}

	return api.EncodingResult{IDs: ids, Spans: spans}
}

// indexFrom finds the first occurrence of substr in s starting from position
// start. Returns the byte position of the match, or -1 if not found.
func indexFrom(s, substr string, start int) int {
	if start >= len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
