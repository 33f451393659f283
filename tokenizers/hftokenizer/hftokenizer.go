// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format.
// This format is used by the HuggingFace Tokenizers library (the "fast" tokenizers)
// and supports WordPiece (BERT), BPE (GPT-2, RoBERTa), and Unigram models.
//
// Beyond encode/decode it tracks byte spans of tokens in the original text
// (EncodeWithSpans), which the translation core relies on to align two
// tokenizations of the same text.
package hftokenizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/gomlx/tokentranslate/hub"
	"github.com/gomlx/tokentranslate/tokenizers/api"
	"github.com/pkg/errors"
)

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version       string          `json:"version"`
	Truncation    json.RawMessage `json:"truncation"`
	Padding       json.RawMessage `json:"padding"`
	AddedTokens   []AddedToken    `json:"added_tokens"`
	Normalizer    *Normalizer     `json:"normalizer"`
	PreTokenizer  *PreTokenizer   `json:"pre_tokenizer"`
	PostProcessor json.RawMessage `json:"post_processor"`
	Decoder       *Decoder        `json:"decoder"`
	Model         Model           `json:"model"`
}

// AddedToken represents a special token added to the vocabulary.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	Normalizers []Normalizer `json:"normalizers"`
}

// Pattern for regex-based operations.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PreTokenizers  []PreTokenizer `json:"pretokenizers"`
	Pattern        *Pattern       `json:"pattern"`
	Behavior       string         `json:"behavior"`
	Invert         bool           `json:"invert"`
}

// Decoder represents the decoder configuration.
type Decoder struct {
	Type     string    `json:"type"`
	Prefix   string    `json:"prefix"`
	Suffix   string    `json:"suffix"`
	Decoders []Decoder `json:"decoders"`
	Pattern  *Pattern  `json:"pattern"`
	Content  string    `json:"content"`
}

// Model represents the tokenizer model (WordPiece, BPE, or Unigram).
type Model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []string       `json:"merges"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	FuseUnk                 bool           `json:"fuse_unk"`
	ByteFallback            bool           `json:"byte_fallback"`
	Dropout                 *float64       `json:"dropout"`
	EndOfWordSuffix         string         `json:"end_of_word_suffix"`
}

// Tokenizer implements the api.TokenizerWithSpans interface for HuggingFace
// tokenizer.json files.
type Tokenizer struct {
	config      *api.Config
	tokenizer   *TokenizerJSON
	idToToken   map[int]string
	mergeRanks  map[string]int // For BPE: maps "token1 token2" to merge priority
	fingerprint string         // sha256 of the tokenizer.json content
	lowercases  bool           // set when the normalizer chain lowercases

	// Special token ids/texts, indexed by api.SpecialToken. -1 / "" when absent.
	specialIDs   [api.TokSpecialTokensCount]int
	specialTexts [api.TokSpecialTokensCount]string

	// Added tokens lookup (content -> id)
	addedTokens map[string]int
}

// Compile time assert that Tokenizer implements the tokenizer interfaces.
var (
	_ api.Tokenizer          = &Tokenizer{}
	_ api.TokenizerWithSpans = &Tokenizer{}
)

// New creates a HuggingFace tokenizer from the tokenizer.json file in the repo.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile("tokenizer.json") {
		return nil, errors.Errorf("\"tokenizer.json\" file not found in repo %q", repo.ID)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.json")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.json file")
	}
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}

	digest := sha256.Sum256(content)
	t := &Tokenizer{
		config:      config,
		tokenizer:   &tj,
		idToToken:   make(map[int]string),
		addedTokens: make(map[string]int),
		fingerprint: hex.EncodeToString(digest[:]),
	}
	for i := range t.specialIDs {
		t.specialIDs[i] = -1
	}

	// Build reverse vocab (id -> token)
	for token, id := range tj.Model.Vocab {
		t.idToToken[id] = token
	}

	// Build added tokens map
	for _, at := range tj.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
	}

	// Build merge ranks for BPE
	if tj.Model.Type == "BPE" {
		t.mergeRanks = make(map[string]int)
		for i, merge := range tj.Model.Merges {
			t.mergeRanks[merge] = i
		}
	}

	t.lowercases = normalizerLowercases(tj.Normalizer)
	t.resolveSpecialTokens()
	return t, nil
}

func normalizerLowercases(n *Normalizer) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case "Lowercase":
		return true
	case "BertNormalizer":
		return n.Lowercase
	case "Sequence":
		for _, child := range n.Normalizers {
			if normalizerLowercases(&child) {
				return true
			}
		}
	}
	return false
}

// resolveSpecialTokens maps special tokens from the vocabulary and config to
// their ids and text forms.
func (t *Tokenizer) resolveSpecialTokens() {
	setSpecial := func(tok api.SpecialToken, text string, id int) {
		if t.specialIDs[tok] == -1 {
			t.specialIDs[tok] = id
			t.specialTexts[tok] = text
		}
	}

	// The model's unk_token comes first.
	if unk := t.tokenizer.Model.UnkToken; unk != "" {
		if id, ok := t.tokenizer.Model.Vocab[unk]; ok {
			setSpecial(api.TokUnknown, unk, id)
		}
	}

	// Then the added tokens marked special, recognized by conventional text forms.
	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			setSpecial(api.TokUnknown, at.Content, at.ID)
		case "[PAD]", "<pad>", "<|padding|>":
			setSpecial(api.TokPad, at.Content, at.ID)
		case "[CLS]":
			setSpecial(api.TokClassification, at.Content, at.ID)
		case "<s>":
			setSpecial(api.TokBeginningOfSentence, at.Content, at.ID)
		case "</s>", "[SEP]":
			// BERT-style models use SEP where others use EOS.
			setSpecial(api.TokEndOfSentence, at.Content, at.ID)
		case "[MASK]", "<mask>":
			setSpecial(api.TokMask, at.Content, at.ID)
		case "<|endoftext|>":
			// GPT-2 family uses a single token for both roles.
			setSpecial(api.TokBeginningOfSentence, at.Content, at.ID)
			setSpecial(api.TokEndOfSentence, at.Content, at.ID)
		}
		if t.config != nil {
			if at.Content == t.config.BosToken {
				setSpecial(api.TokBeginningOfSentence, at.Content, at.ID)
			}
			if at.Content == t.config.EosToken {
				setSpecial(api.TokEndOfSentence, at.Content, at.ID)
			}
		}
	}

	// Fall back to config special tokens found directly in the vocabulary.
	if t.config != nil {
		eosToken := t.config.EosToken
		if eosToken == "" {
			eosToken = t.config.SepToken
		}
		fromConfig := [api.TokSpecialTokensCount]string{
			api.TokBeginningOfSentence: t.config.BosToken,
			api.TokEndOfSentence:       eosToken,
			api.TokUnknown:             t.config.UnkToken,
			api.TokPad:                 t.config.PadToken,
			api.TokMask:                t.config.MaskToken,
			api.TokClassification:      t.config.ClsToken,
		}
		for tok, text := range fromConfig {
			if text == "" {
				continue
			}
			if id, ok := t.TokenToID(text); ok {
				setSpecial(api.SpecialToken(tok), text, id)
			}
		}
	}
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if token >= 0 && token < api.TokSpecialTokensCount && t.specialIDs[token] >= 0 {
		return t.specialIDs[token], nil
	}
	// BERT-style models use CLS/SEP where others use BOS/EOS.
	if token == api.TokBeginningOfSentence && t.specialIDs[api.TokClassification] >= 0 {
		return t.specialIDs[api.TokClassification], nil
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// SpecialTokenText returns the literal text form for a given special token.
func (t *Tokenizer) SpecialTokenText(token api.SpecialToken) (string, error) {
	if token >= 0 && token < api.TokSpecialTokensCount && t.specialTexts[token] != "" {
		return t.specialTexts[token], nil
	}
	return "", errors.Errorf("special token %s has no text form", token)
}

// VocabSize returns the size of the vocabulary including added tokens outside
// the base vocab.
func (t *Tokenizer) VocabSize() int {
	size := len(t.tokenizer.Model.Vocab)
	for _, at := range t.tokenizer.AddedTokens {
		if _, ok := t.tokenizer.Model.Vocab[at.Content]; !ok {
			size++
		}
	}
	return size
}

// GetVocab returns the full vocabulary mapping.
func (t *Tokenizer) GetVocab() map[string]int {
	vocab := make(map[string]int, len(t.tokenizer.Model.Vocab)+len(t.tokenizer.AddedTokens))
	for k, v := range t.tokenizer.Model.Vocab {
		vocab[k] = v
	}
	for _, at := range t.tokenizer.AddedTokens {
		vocab[at.Content] = at.ID
	}
	return vocab
}

// GetTokenizerType returns the model type (WordPiece, BPE, Unigram).
func (t *Tokenizer) GetTokenizerType() string {
	return t.tokenizer.Model.Type
}

// TokenToID converts a token string to its ID.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.tokenizer.Model.Vocab[token]
	return id, ok
}

// IDToToken converts a token ID to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// Fingerprint returns a stable identity for the tokenizer, derived from the
// tokenizer.json content. Two loads of the same file share translation-map
// cache entries through it.
func (t *Tokenizer) Fingerprint() string {
	return "hftokenizer:" + t.fingerprint
}

// isAddedToken reports whether the word is an added (special) token that
// bypasses the model.
func (t *Tokenizer) isAddedToken(word string) (int, bool) {
	id, ok := t.addedTokens[word]
	return id, ok
}
