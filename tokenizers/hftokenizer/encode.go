package hftokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// Encode converts text to a sequence of token IDs.
func (t *Tokenizer) Encode(text string) []int {
	normalized := t.normalize(text)
	words := t.preTokenize(normalized)

	var ids []int
	for _, word := range words {
		ids = append(ids, t.tokenizeWord(word)...)
	}
	return ids
}

// normalize applies the normalizer to the text.
func (t *Tokenizer) normalize(text string) string {
	if t.tokenizer.Normalizer == nil {
		return text
	}
	return applyNormalizer(text, t.tokenizer.Normalizer)
}

func applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		// NFD decomposition then remove combining marks (Mn category).
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		result := cleanText(text)
		if n.Lowercase {
			result = strings.ToLower(result)
		}
		return result
	case "Sequence":
		result := text
		for _, child := range n.Normalizers {
			childCopy := child
			result = applyNormalizer(result, &childCopy)
		}
		return result
	default:
		return text
	}
}

// preTokenize splits text into words using the pre-tokenizer.
func (t *Tokenizer) preTokenize(text string) []string {
	if t.tokenizer.PreTokenizer == nil {
		// Default: split on whitespace.
		return strings.Fields(text)
	}
	return applyPreTokenizer(text, t.tokenizer.PreTokenizer)
}

func applyPreTokenizer(text string, pt *PreTokenizer) []string {
	switch pt.Type {
	case "BertPreTokenizer":
		return bertPreTokenize(text)
	case "Whitespace", "WhitespaceSplit":
		return strings.Fields(text)
	case "ByteLevel":
		// For byte-level BPE models like GPT-2.
		if pt.AddPrefixSpace && len(text) > 0 && text[0] != ' ' {
			text = " " + text
		}
		return byteLevelPreTokenize(text)
	case "Metaspace":
		return metaspacePreTokenize(text, pt.AddPrefixSpace)
	case "Sequence":
		result := []string{text}
		for _, child := range pt.PreTokenizers {
			var newResult []string
			childCopy := child
			for _, s := range result {
				newResult = append(newResult, applyPreTokenizer(s, &childCopy)...)
			}
			result = newResult
		}
		return result
	case "Punctuation":
		return punctuationPreTokenize(text)
	default:
		return strings.Fields(text)
	}
}

// tokenizeWord tokenizes a single word according to the model type.
func (t *Tokenizer) tokenizeWord(word string) []int {
	// Added tokens bypass the model.
	if id, ok := t.isAddedToken(word); ok {
		return []int{id}
	}

	switch t.tokenizer.Model.Type {
	case "WordPiece":
		return t.wordPieceTokenize(word)
	case "BPE":
		return t.bpeTokenize(word)
	case "Unigram":
		return t.unigramTokenize(word)
	default:
		if id, ok := t.tokenizer.Model.Vocab[word]; ok {
			return []int{id}
		}
		return t.unkFallback()
	}
}

// unkFallback returns the unknown-token id as a single-element slice, or nil.
func (t *Tokenizer) unkFallback() []int {
	if id, err := t.SpecialTokenID(api.TokUnknown); err == nil {
		return []int{id}
	}
	return nil
}

// wordPieceTokenize implements WordPiece tokenization (used by BERT): greedy
// longest-prefix matching with a continuation prefix for non-initial pieces.
func (t *Tokenizer) wordPieceTokenize(word string) []int {
	if word == "" {
		return nil
	}

	maxChars := t.tokenizer.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if len(word) > maxChars {
		return t.unkFallback()
	}

	prefix := t.tokenizer.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}

	var tokens []int
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for start < end {
			substr := word[start:end]
			if start > 0 {
				substr = prefix + substr
			}
			if id, ok := t.tokenizer.Model.Vocab[substr]; ok {
				tokens = append(tokens, id)
				found = true
				break
			}
			end--
		}
		if !found {
			// A single unmatchable piece poisons the whole word.
			return t.unkFallback()
		}
		start = end
	}
	return tokens
}

// bpeTokenize implements BPE tokenization (used by GPT-2, RoBERTa): start from
// single-rune symbols and repeatedly apply the lowest-ranked merge.
func (t *Tokenizer) bpeTokenize(word string) []int {
	if word == "" {
		return nil
	}

	symbols := t.initialBPESymbols(word)
	if len(symbols) == 1 {
		if id, ok := t.tokenizer.Model.Vocab[symbols[0]]; ok {
			return []int{id}
		}
	}

	for len(symbols) > 1 {
		bestPair := ""
		bestRank := -1
		bestIdx := -1
		for i := 0; i < len(symbols)-1; i++ {
			pair := symbols[i] + " " + symbols[i+1]
			if rank, ok := t.mergeRanks[pair]; ok {
				if bestRank == -1 || rank < bestRank {
					bestPair = pair
					bestRank = rank
					bestIdx = i
				}
			}
		}
		if bestIdx == -1 {
			break // no more merges possible
		}

		merged := strings.Replace(bestPair, " ", "", 1)
		newSymbols := make([]string, 0, len(symbols)-1)
		newSymbols = append(newSymbols, symbols[:bestIdx]...)
		newSymbols = append(newSymbols, merged)
		newSymbols = append(newSymbols, symbols[bestIdx+2:]...)
		symbols = newSymbols
	}

	var ids []int
	for _, sym := range symbols {
		if id, ok := t.tokenizer.Model.Vocab[sym]; ok {
			ids = append(ids, id)
		} else if unk := t.unkFallback(); unk != nil {
			ids = append(ids, unk...)
		}
	}
	return ids
}

// initialBPESymbols converts a word into initial BPE symbols, one per rune.
func (t *Tokenizer) initialBPESymbols(word string) []string {
	var symbols []string
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	if t.tokenizer.Model.EndOfWordSuffix != "" && len(symbols) > 0 {
		symbols[len(symbols)-1] += t.tokenizer.Model.EndOfWordSuffix
	}
	return symbols
}

// unigramTokenize implements Unigram tokenization with greedy longest-match.
// (Full Unigram uses Viterbi with piece scores; the greedy variant suffices
// for the vocabularies this package targets.)
func (t *Tokenizer) unigramTokenize(word string) []int {
	var ids []int
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			substr := string(runes[start:end])
			if id, ok := t.tokenizer.Model.Vocab[substr]; ok {
				ids = append(ids, id)
				found = true
				start = end
				break
			}
			end--
		}
		if !found {
			// Single character fallback.
			char := string(runes[start])
			if id, ok := t.tokenizer.Model.Vocab[char]; ok {
				ids = append(ids, id)
			} else if unk := t.unkFallback(); unk != nil {
				ids = append(ids, unk...)
			}
			start++
		}
	}
	return ids
}

// Pre-tokenization helpers.

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation first, then the unicode category.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			result.WriteRune(r)
		}
	}
	return result.String()
}

func bertPreTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		switch {
		case isWhitespace(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case isPunctuation(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func punctuationPreTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func metaspacePreTokenize(text string, addPrefixSpace bool) []string {
	// Replace spaces with the metaspace character; each word starts with it.
	if addPrefixSpace && len(text) > 0 && text[0] != ' ' {
		text = " " + text
	}
	text = strings.ReplaceAll(text, " ", "▁")

	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if r == '▁' && current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
