package security

import (
	"context"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
)

// MinShareStrength is the minimum relationship strength a requesting
// character must have with a memory's owning character before that
// memory's cross_character_shared flag grants access.
const MinShareStrength = 0.5

// RelationshipLookup is the read surface CheckAccess needs to evaluate
// cross-character sharing. store.Store satisfies it directly through its
// Relationship method.
type RelationshipLookup interface {
	Relationship(ctx context.Context, userID, characterA, characterB string) (*model.Relationship, error)
}

// CheckAccess enforces per-memory access control: a memory is always
// visible to its owning user and character. It is visible to a
// different character for the same user only when the memory is marked
// cross_character_shared AND the two characters have a relationship at
// or above MinShareStrength. A memory with no character_id (not
// attributed to any character) is visible to any character for that
// user, since it was never partitioned in the first place.
func CheckAccess(ctx context.Context, lookup RelationshipLookup, m *model.Memory, requestingUserID, requestingCharacterID string) error {
	if m.UserID != requestingUserID {
		return errs.Forbidden
	}
	if m.CharacterID == nil || *m.CharacterID == requestingCharacterID {
		return nil
	}
	if !m.CrossCharacterShared {
		return errs.Forbidden
	}
	rel, err := lookup.Relationship(ctx, requestingUserID, *m.CharacterID, requestingCharacterID)
	if err != nil {
		return errs.Forbidden
	}
	if rel.Strength < MinShareStrength {
		return errs.Forbidden
	}
	return nil
}
