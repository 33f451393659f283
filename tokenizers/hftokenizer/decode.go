package hftokenizer

import "strings"

// Decode converts a sequence of token IDs back to text.
func (t *Tokenizer) Decode(ids []int) string {
	var tokens []string
	for _, id := range ids {
		if token, ok := t.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}
	return t.applyDecoder(tokens)
}

// DecodeToken decodes a single token id to the text fragment it represents,
// including any leading space the token encodes (the GPT-2 "Ġ" byte or the
// metaspace "▁"). Used for span recovery and by the translation map, where
// per-token text matters and joining rules do not.
func (t *Tokenizer) DecodeToken(id int) string {
	token, ok := t.idToToken[id]
	if !ok {
		return ""
	}
	if _, added := t.addedTokens[token]; added {
		return token
	}
	if t.tokenizer.Decoder != nil {
		switch t.tokenizer.Decoder.Type {
		case "ByteLevel":
			return byteLevelDecode(token)
		case "Metaspace":
			return strings.ReplaceAll(token, "▁", " ")
		}
	}
	prefix := t.wordPiecePrefix()
	if strings.HasPrefix(token, prefix) {
		return strings.TrimPrefix(token, prefix)
	}
	return token
}

func (t *Tokenizer) wordPiecePrefix() string {
	if t.tokenizer.Decoder != nil && t.tokenizer.Decoder.Prefix != "" {
		return t.tokenizer.Decoder.Prefix
	}
	if t.tokenizer.Model.ContinuingSubwordPrefix != "" {
		return t.tokenizer.Model.ContinuingSubwordPrefix
	}
	return "##"
}

// applyDecoder applies the decoder to convert tokens back to text.
func (t *Tokenizer) applyDecoder(tokens []string) string {
	if t.tokenizer.Decoder == nil {
		return t.wordPieceDecode(tokens)
	}
	switch t.tokenizer.Decoder.Type {
	case "WordPiece":
		return t.wordPieceDecode(tokens)
	case "ByteLevel":
		return byteLevelDecode(strings.Join(tokens, ""))
	case "Metaspace":
		return metaspaceDecode(tokens)
	case "BPEDecoder":
		return t.bpeDecode(tokens)
	default:
		return t.wordPieceDecode(tokens)
	}
}

// wordPieceDecode joins tokens with spaces, gluing continuation pieces.
func (t *Tokenizer) wordPieceDecode(tokens []string) string {
	prefix := t.wordPiecePrefix()
	var result strings.Builder
	for i, token := range tokens {
		if strings.HasPrefix(token, prefix) {
			result.WriteString(strings.TrimPrefix(token, prefix))
		} else {
			if i > 0 {
				result.WriteString(" ")
			}
			result.WriteString(token)
		}
	}
	return result.String()
}

func metaspaceDecode(tokens []string) string {
	var result strings.Builder
	for _, token := range tokens {
		result.WriteString(strings.ReplaceAll(token, "▁", " "))
	}
	return strings.TrimLeft(result.String(), " ")
}

func (t *Tokenizer) bpeDecode(tokens []string) string {
	suffix := t.tokenizer.Model.EndOfWordSuffix
	var result strings.Builder
	for i, token := range tokens {
		if suffix != "" && strings.HasSuffix(token, suffix) {
			result.WriteString(strings.TrimSuffix(token, suffix))
			if i < len(tokens)-1 {
				result.WriteString(" ")
			}
		} else {
			result.WriteString(token)
		}
	}
	return result.String()
}

// Byte-level BPE encoding/decoding.
// GPT-2 maps every byte to a printable unicode character so BPE can operate on
// "characters" while remaining lossless over arbitrary bytes.
var (
	byteToUnicode map[byte]rune
	unicodeToByte map[rune]byte
)

func init() {
	byteToUnicode = make(map[byte]rune)
	unicodeToByte = make(map[rune]byte)

	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[byte(b)] = rune(b)
			unicodeToByte[rune(b)] = byte(b)
		} else {
			byteToUnicode[byte(b)] = rune(256 + n)
			unicodeToByte[rune(256+n)] = byte(b)
			n++
		}
	}
}

// byteLevelPreTokenize splits text into byte-level BPE words, the whitespace
// delimiter attached to the following word.
func byteLevelPreTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	inWord := false

	for _, r := range text {
		if r == ' ' {
			if inWord {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			current.WriteRune(byteToUnicode[' '])
			inWord = false
		} else {
			inWord = true
			for _, b := range []byte(string(r)) {
				current.WriteRune(byteToUnicode[b])
			}
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func byteLevelDecode(text string) string {
	var result []byte
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			// Fallback for characters not in the mapping.
			result = append(result, []byte(string(r))...)
		}
	}
	return string(result)
}
