package translate

import (
	"strings"
	"sync/atomic"

	"github.com/gomlx/tokentranslate/tokenizers/api"
	"github.com/pkg/errors"
)

// toyTokenizer is a greedy longest-prefix-match tokenizer over an explicit
// token list, small enough that tests can predict every id and span by hand.
// Unknown bytes are skipped without emitting a token.
type toyTokenizer struct {
	tokens   []string
	maxLen   int
	specials map[api.SpecialToken]toySpecial

	fingerprint string

	decodeCalls          atomic.Int64
	encodeWithSpansCalls atomic.Int64
}

type toySpecial struct {
	id   int
	text string
}

func newToyTokenizer(tokens []string) *toyTokenizer {
	t := &toyTokenizer{tokens: tokens}
	for _, tok := range tokens {
		if len(tok) > t.maxLen {
			t.maxLen = len(tok)
		}
	}
	return t
}

func (t *toyTokenizer) withSpecial(st api.SpecialToken, id int, text string) *toyTokenizer {
	if t.specials == nil {
		t.specials = make(map[api.SpecialToken]toySpecial)
	}
	t.specials[st] = toySpecial{id: id, text: text}
	return t
}

var (
	_ api.Tokenizer          = &toyTokenizer{}
	_ api.TokenizerWithSpans = &toyTokenizer{}
)

func (t *toyTokenizer) Encode(text string) []int {
	return t.EncodeWithSpans(text).IDs
}

func (t *toyTokenizer) EncodeWithSpans(text string) api.EncodingResult {
	t.encodeWithSpansCalls.Add(1)
	var res api.EncodingResult
	pos := 0
	for pos < len(text) {
		bestID, bestLen := -1, 0
		limit := min(t.maxLen, len(text)-pos)
		for length := limit; length > 0; length-- {
			candidate := text[pos : pos+length]
			for id, tok := range t.tokens {
				if tok == candidate {
					bestID, bestLen = id, length
					break
				}
			}
			if bestID >= 0 {
				break
			}
		}
		if bestID < 0 {
			pos++
			continue
		}
		res.IDs = append(res.IDs, bestID)
		res.Spans = append(res.Spans, api.TokenSpan{Start: pos, End: pos + bestLen})
		pos += bestLen
	}
	return res
}

func (t *toyTokenizer) Decode(ids []int) string {
	t.decodeCalls.Add(1)
	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(t.tokens) {
			b.WriteString(t.tokens[id])
		}
	}
	return b.String()
}

func (t *toyTokenizer) VocabSize() int { return len(t.tokens) }

func (t *toyTokenizer) SpecialTokenID(st api.SpecialToken) (int, error) {
	if s, ok := t.specials[st]; ok {
		return s.id, nil
	}
	return 0, errors.Errorf("unknown special token %s", st)
}

func (t *toyTokenizer) SpecialTokenText(st api.SpecialToken) (string, error) {
	if s, ok := t.specials[st]; ok {
		return s.text, nil
	}
	return "", errors.Errorf("special token %s has no text form", st)
}

func (t *toyTokenizer) Fingerprint() string { return t.fingerprint }

// asciiTokens returns one single-character token per printable ASCII character,
// a vocabulary that can tokenize the equivalence probe corpus.
func asciiTokens() []string {
	tokens := make([]string, 0, 96)
	for c := byte(' '); c <= '~'; c++ {
		tokens = append(tokens, string(c))
	}
	tokens = append(tokens, "\t", "\n")
	return tokens
}
