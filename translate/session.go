package translate

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gomlx/tokentranslate/tokenizers/api"
)

// MissPolicy decides what happens to the probability mass of a foreign token
// that has no entry in the translation map.
type MissPolicy int

const (
	// MissDrop drops the mass and counts it. The default, and the behavior the
	// loss tolerance bounds were calibrated against.
	MissDrop MissPolicy = iota
	// MissFloor spreads the missing mass uniformly over the standard vocabulary.
	MissFloor
	// MissError fails the affected batch element with ErrTranslationMapMiss.
	MissError
)

// DefaultSplitCacheSize bounds the split-map cache. The set of distinct short
// fragments is small in practice, so evictions are rare.
const DefaultSplitCacheSize = 65536

// Session owns the caches shared across translation calls: the per-directed-pair
// translation maps and the split-map cache memoizing fragment tokenization.
// Construct one per calling context (e.g. a validator session) and pass it into
// every translate call; there is no package-level mutable state.
//
// A Session is safe for concurrent use. Building a translation map for a new
// pair is guarded so concurrent callers requesting the same pair share one
// build; steady-state reads take no locks.
type Session struct {
	policy MissPolicy

	maps   sync.Map // pair key (string) -> *TranslationMap
	equivs sync.Map // pair key (string) -> bool
	group  singleflight.Group

	splitCache *lru.Cache[string, api.EncodingResult]
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMissPolicy sets the residual-mass policy for translation-map misses.
func WithMissPolicy(policy MissPolicy) SessionOption {
	return func(s *Session) { s.policy = policy }
}

// WithSplitCacheSize caps the number of memoized fragment tokenizations.
// Sizes below 1 are clamped to 1; the cache is never disabled.
func WithSplitCacheSize(size int) SessionOption {
	return func(s *Session) {
		if size < 1 {
			size = 1
		}
		s.splitCache, _ = lru.New[string, api.EncodingResult](size)
	}
}

// NewSession creates a Session with MissDrop policy and the default split-cache
// size.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{policy: MissDrop}
	s.splitCache, _ = lru.New[string, api.EncodingResult](DefaultSplitCacheSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MissPolicy returns the session's residual-mass policy.
func (s *Session) MissPolicy() MissPolicy { return s.policy }

// Fingerprinter is optionally implemented by tokenizers that can provide a
// stable identity (e.g. a hash of their vocabulary file). Without it, cache
// keys fall back to instance identity, which is correct but means two loads of
// the same tokenizer build separate maps.
type Fingerprinter interface {
	Fingerprint() string
}

func tokenizerKey(t api.Tokenizer) string {
	if f, ok := t.(Fingerprinter); ok {
		if fp := f.Fingerprint(); fp != "" {
			return fp
		}
	}
	return fmt.Sprintf("%p", t)
}

func pairKey(source, target api.Tokenizer) string {
	return tokenizerKey(source) + "\x00" + tokenizerKey(target)
}

// TranslationMap returns the cached map for the directed (source, target) pair,
// building it on first use. Concurrent first callers share a single build.
func (s *Session) TranslationMap(source api.Tokenizer, target api.TokenizerWithSpans) *TranslationMap {
	key := pairKey(source, target)
	if m, ok := s.maps.Load(key); ok {
		return m.(*TranslationMap)
	}
	built, _, _ := s.group.Do(key, func() (any, error) {
		if m, ok := s.maps.Load(key); ok {
			return m, nil
		}
		targetKey := tokenizerKey(target)
		m := buildTranslationMap(source, target, func(text string) api.EncodingResult {
			return s.splitTokenize(target, targetKey, text)
		})
		s.maps.Store(key, m)
		return m, nil
	})
	return built.(*TranslationMap)
}

// Equivalent reports (and caches) whether the pair passes the equivalence
// check, enabling the fast path that skips redistribution.
func (s *Session) Equivalent(a, b api.Tokenizer) bool {
	key := pairKey(a, b)
	if v, ok := s.equivs.Load(key); ok {
		return v.(bool)
	}
	eq := CheckTokenizerEquivalence(a, b)
	s.equivs.Store(key, eq)
	return eq
}

// splitTokenize memoizes tokenizer.EncodeWithSpans for short text fragments.
// Keys carry the tokenizer identity so fragments are never shared across
// vocabularies.
func (s *Session) splitTokenize(tok api.TokenizerWithSpans, tokKey, text string) api.EncodingResult {
	cacheKey := tokKey + "\x00" + text
	if res, ok := s.splitCache.Get(cacheKey); ok {
		return res
	}
	res := tok.EncodeWithSpans(text)
	s.splitCache.Add(cacheKey, res)
	return res
}
