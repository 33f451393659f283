package translate

import (
	"sort"
	"strings"

	"github.com/gomlx/tokentranslate/tokenizers/api"
	"github.com/pkg/errors"
)

// OffsetCorrection records one special-token substitution performed by
// RewriteSpecialTokenText: the byte region the replacement occupies in the
// rewritten text, and the byte region the original special-token text occupied
// in the source text. A full correction table lets offsets computed on the
// rewritten text be mapped back to original-text coordinates with PadOffsets.
type OffsetCorrection struct {
	Start, End         int // replacement region in the rewritten text
	OrigStart, OrigEnd int // substituted region in the original text
}

// RewriteResult pairs a rewritten string with its offset-correction table.
// A string without special tokens has an empty table (identity mapping).
type RewriteResult struct {
	Text        string
	Corrections []OffsetCorrection
}

// RewriteSpecialTokenText rewrites each text so that occurrences of std's
// special-token text are replaced with foreign's equivalent special-token text.
// Special tokens std has and foreign lacks are removed, shifting all subsequent
// offsets left by their length.
//
// Pure function: it returns the rewritten texts together with their correction
// tables and mutates nothing.
func RewriteSpecialTokenText(texts []string, std, foreign api.Tokenizer) []RewriteResult {
	subs := specialTokenSubstitutions(std, foreign)
	results := make([]RewriteResult, len(texts))
	for i, text := range texts {
		results[i] = rewriteOne(text, subs)
	}
	return results
}

// substitution maps one special-token text form to its replacement.
type substitution struct {
	from, to string
}

// specialTokenSubstitutions lists the rewrites needed to present std-tokenized
// text to the foreign tokenizer. Identical text forms need no rewrite. Longer
// matches are tried first so nested token texts cannot shadow each other.
func specialTokenSubstitutions(std, foreign api.Tokenizer) []substitution {
	seen := make(map[string]bool)
	var subs []substitution
	for tok := api.SpecialToken(0); tok < api.TokSpecialTokensCount; tok++ {
		stdText, err := std.SpecialTokenText(tok)
		if err != nil || stdText == "" || seen[stdText] {
			continue
		}
		seen[stdText] = true
		foreignText, err := foreign.SpecialTokenText(tok)
		if err != nil {
			foreignText = "" // no equivalent: drop the span
		}
		if foreignText == stdText {
			continue
		}
		subs = append(subs, substitution{from: stdText, to: foreignText})
	}
	sort.Slice(subs, func(i, j int) bool { return len(subs[i].from) > len(subs[j].from) })
	return subs
}

func rewriteOne(text string, subs []substitution) RewriteResult {
	if len(subs) == 0 {
		return RewriteResult{Text: text}
	}
	var b strings.Builder
	var corrections []OffsetCorrection
	o := 0
	for o < len(text) {
		matched := false
		for _, sub := range subs {
			if strings.HasPrefix(text[o:], sub.from) {
				corrections = append(corrections, OffsetCorrection{
					Start:     b.Len(),
					End:       b.Len() + len(sub.to),
					OrigStart: o,
					OrigEnd:   o + len(sub.from),
				})
				b.WriteString(sub.to)
				o += len(sub.from)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(text[o])
			o++
		}
	}
	return RewriteResult{Text: b.String(), Corrections: corrections}
}

// PadOffsets maps token spans computed on a rewritten text back to
// original-text byte coordinates using the correction table produced by
// RewriteSpecialTokenText. An empty table is the identity.
//
// originalLen is the byte length of the original text; a corrected span falling
// outside it means the table does not belong to these offsets and yields
// ErrOffsetMisalignment.
func PadOffsets(spans []api.TokenSpan, corrections []OffsetCorrection, originalLen int) ([]api.TokenSpan, error) {
	out := make([]api.TokenSpan, len(spans))
	for i, span := range spans {
		start := correctPos(span.Start, corrections, false)
		end := correctPos(span.End, corrections, true)
		if start < 0 || end < start || end > originalLen {
			return nil, errors.Wrapf(ErrOffsetMisalignment,
				"token %d: span [%d,%d) corrected to [%d,%d) outside original text of %d bytes",
				i, span.Start, span.End, start, end, originalLen)
		}
		out[i] = api.TokenSpan{Start: start, End: end}
	}
	return out, nil
}

// correctPos maps a single rewritten-text position to original coordinates.
//
// A position at the boundary of a zero-width replacement (a dropped special
// token) is ambiguous: as a span end it belongs to the text before the dropped
// token, as a span start to the text after it. The isEnd flag resolves this,
// leaving the dropped original region covered by no token, which is exactly
// what the redistribution expects.
func correctPos(p int, corrections []OffsetCorrection, isEnd bool) int {
	delta := 0
	for _, c := range corrections {
		if p < c.Start {
			break
		}
		if p > c.End {
			delta = c.OrigEnd - c.End
			continue
		}
		// p falls on or inside the replacement region.
		if c.Start == c.End {
			if isEnd {
				return c.OrigStart
			}
			return c.OrigEnd
		}
		if p == c.Start && isEnd {
			return c.OrigStart
		}
		if p == c.End {
			if isEnd {
				return c.OrigEnd
			}
			// A span start at the end of a replacement may belong to a
			// zero-width correction at the same position (an adjacent dropped
			// token); keep scanning before settling on this one.
			delta = c.OrigEnd - c.End
			continue
		}
		return min(c.OrigStart+(p-c.Start), c.OrigEnd)
	}
	return p + delta
}
