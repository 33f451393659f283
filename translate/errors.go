package translate

import "github.com/pkg/errors"

// Error taxonomy of the translation core. Per-batch-element failures wrap one
// of these sentinels and never abort the remaining elements; use errors.Is to
// classify.
var (
	// ErrTranslationMapMiss marks a foreign token with no overlapping entry in
	// the translation map, surfaced only under MissError policy. Under the
	// other policies misses degrade the distribution but are not errors.
	ErrTranslationMapMiss = errors.New("translation map miss")

	// ErrOffsetMisalignment marks offsets that are inconsistent with the text
	// they were computed on (or with an offset-correction table). It indicates
	// a bug in the caller's alignment pipeline and is fatal for that batch
	// element.
	ErrOffsetMisalignment = errors.New("offset misalignment")
)
