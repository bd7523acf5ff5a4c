package model

import "errors"

// Validation errors surfaced by Memory.Validate. These are wrapped into
// the errs taxonomy (Internal/Corrupt) by callers rather than returned
// raw to external consumers.
var (
	ErrMissingUserID             = errors.New("model: user_id is required")
	ErrBadEmbeddingLength        = errors.New("model: embedding must have 768 dimensions")
	ErrDecayOutOfRange           = errors.New("model: decay_factor must be in [0,1]")
	ErrImportanceOutOfRange      = errors.New("model: importance_score must be in [0,1]")
	ErrEmotionalWeightOutOfRange = errors.New("model: emotional_weight must be in [0,1]")
)
