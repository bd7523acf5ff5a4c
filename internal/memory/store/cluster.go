package store

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/jmoiron/sqlx"
)

type clusterRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Centroid      []byte    `db:"centroid"`
	Keywords      []string  `db:"keywords"`
	MemberCount   int64     `db:"member_count"`
	AvgImportance float64   `db:"avg_importance"`
	LastUpdated   time.Time `db:"last_updated"`
}

func (r clusterRow) toModel() (*model.Cluster, error) {
	centroid, err := UnpackVector(r.Centroid)
	if err != nil {
		return nil, err
	}
	return &model.Cluster{
		ID:            r.ID,
		Centroid:      centroid,
		Keywords:      r.Keywords,
		MemberCount:   r.MemberCount,
		AvgImportance: r.AvgImportance,
		LastUpdated:   r.LastUpdated,
	}, nil
}

// ListClusters returns every cluster belonging to userID.
func (s *Store) ListClusters(ctx context.Context, userID string) ([]*model.Cluster, error) {
	var rows []clusterRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, user_id, centroid, keywords, member_count, avg_importance, last_updated
FROM memorycore.clusters WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	out := make([]*model.Cluster, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AllClusterUserIDs returns every user_id with at least one cluster, for
// the decay engine's periodic cluster-optimization sweep.
func (s *Store) AllClusterUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT user_id FROM memorycore.clusters`)
	if err != nil {
		return nil, fmt.Errorf("list cluster user ids: %w", err)
	}
	return ids, nil
}

// CreateCluster inserts a brand-new cluster centered on centroid.
func (s *Store) CreateCluster(ctx context.Context, userID string, centroid []float32, keywords []string) (string, error) {
	packed, err := PackVector(centroid)
	if err != nil {
		return "", err
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
INSERT INTO memorycore.clusters (user_id, centroid, keywords, member_count, avg_importance, last_updated)
VALUES ($1, $2, $3, 1, 0, now()) RETURNING id`, userID, packed, keywords).Scan(&id)
	return id, err
}

// UpdateClusterCentroid rewrites a cluster's centroid/member_count/
// avg_importance after a new memory is assigned to it.
func (s *Store) UpdateClusterCentroid(ctx context.Context, clusterID string, centroid []float32, memberCount int64, avgImportance float64) error {
	packed, err := PackVector(centroid)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE memorycore.clusters SET centroid = $1, member_count = $2, avg_importance = $3, last_updated = now()
WHERE id = $4`, packed, memberCount, avgImportance, clusterID)
	return err
}

// MergeClusters folds source into target (summing member counts,
// averaging importance) and deletes source. Used by the decay engine's
// periodic cluster optimization for centroids that converge ≥0.9 cosine.
func (s *Store) MergeClusters(ctx context.Context, targetID, sourceID string, mergedCentroid []float32, mergedMemberCount int64, mergedAvgImportance float64) error {
	packed, err := PackVector(mergedCentroid)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE memorycore.clusters SET centroid = $1, member_count = $2, avg_importance = $3, last_updated = now()
WHERE id = $4`, packed, mergedMemberCount, mergedAvgImportance, targetID); err != nil {
			return fmt.Errorf("update target cluster: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE memorycore.memories SET semantic_cluster_id = $1 WHERE semantic_cluster_id = $2`, targetID, sourceID); err != nil {
			return fmt.Errorf("reassign members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memorycore.clusters WHERE id = $1`, sourceID); err != nil {
			return fmt.Errorf("delete source cluster: %w", err)
		}
		return nil
	})
}

// Relationship looks up the relationship row between two characters for
// userID, trying both orderings since (character_a, character_b) is
// stored in whichever order it was first upserted.
func (s *Store) Relationship(ctx context.Context, userID, characterA, characterB string) (*model.Relationship, error) {
	var r model.Relationship
	err := s.db.GetContext(ctx, &r, `
SELECT user_id, character_a, character_b, strength, interaction_count, last_interaction
FROM memorycore.relationships
WHERE user_id = $1 AND ((character_a = $2 AND character_b = $3) OR (character_a = $3 AND character_b = $2))`,
		userID, characterA, characterB)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, errs.NotFound
		}
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	return &r, nil
}

// RelationshipUpsert records or strengthens a cross-character
// relationship.
func (s *Store) RelationshipUpsert(ctx context.Context, r model.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memorycore.relationships
	(user_id, character_a, character_b, strength, shared_memory_ids, interaction_count, last_interaction)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (user_id, character_a, character_b) DO UPDATE SET
	strength = EXCLUDED.strength,
	shared_memory_ids = EXCLUDED.shared_memory_ids,
	interaction_count = memorycore.relationships.interaction_count + 1,
	last_interaction = now()`,
		r.UserID, r.CharacterA, r.CharacterB, r.Strength, r.SharedMemoryIDs, r.InteractionCount)
	return err
}

// EmotionalEvolutionInsert appends one point to a (user, character)
// emotional time series.
func (s *Store) EmotionalEvolutionInsert(ctx context.Context, e model.EmotionalEvolution) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memorycore.emotional_evolution (user_id, character_id, valence, arousal, dominance, confidence, delta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		e.UserID, e.CharacterID, e.Valence, e.Arousal, e.Dominance, e.Confidence, e.Delta)
	return err
}
