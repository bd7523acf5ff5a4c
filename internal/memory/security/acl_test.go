package security

import (
	"context"
	"testing"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/stretchr/testify/assert"
)

type fakeRelationshipLookup struct {
	strength float64
	found    bool
}

func (f *fakeRelationshipLookup) Relationship(ctx context.Context, userID, characterA, characterB string) (*model.Relationship, error) {
	if !f.found {
		return nil, errs.NotFound
	}
	return &model.Relationship{UserID: userID, CharacterA: characterA, CharacterB: characterB, Strength: f.strength}, nil
}

func strPtr(s string) *string { return &s }

func TestCheckAccess_DifferentUserIsForbidden(t *testing.T) {
	m := &model.Memory{UserID: "user-1"}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{}, m, "user-2", "char-a")
	assert.ErrorIs(t, err, errs.Forbidden)
}

func TestCheckAccess_UnattributedMemoryIsVisibleToAnyCharacter(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: nil}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{}, m, "user-1", "char-a")
	assert.NoError(t, err)
}

func TestCheckAccess_OwningCharacterAlwaysAllowed(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: strPtr("char-a")}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{}, m, "user-1", "char-a")
	assert.NoError(t, err)
}

func TestCheckAccess_UnsharedMemoryForbiddenToOtherCharacter(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: strPtr("char-a"), CrossCharacterShared: false}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{}, m, "user-1", "char-b")
	assert.ErrorIs(t, err, errs.Forbidden)
}

func TestCheckAccess_SharedMemoryAllowedAboveThreshold(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: strPtr("char-a"), CrossCharacterShared: true}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{strength: 0.8, found: true}, m, "user-1", "char-b")
	assert.NoError(t, err)
}

func TestCheckAccess_SharedMemoryForbiddenBelowThreshold(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: strPtr("char-a"), CrossCharacterShared: true}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{strength: 0.1, found: true}, m, "user-1", "char-b")
	assert.ErrorIs(t, err, errs.Forbidden)
}

func TestCheckAccess_SharedMemoryForbiddenWithNoRelationship(t *testing.T) {
	m := &model.Memory{UserID: "user-1", CharacterID: strPtr("char-a"), CrossCharacterShared: true}
	err := CheckAccess(context.Background(), &fakeRelationshipLookup{found: false}, m, "user-1", "char-b")
	assert.ErrorIs(t, err, errs.Forbidden)
}
