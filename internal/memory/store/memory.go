package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/jmoiron/sqlx"
)

// ContentHash derives the dedup hash for a user's plaintext content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type memoryRow struct {
	ID                   string     `db:"id"`
	UserID               string     `db:"user_id"`
	CharacterID          *string    `db:"character_id"`
	ConversationID       *string    `db:"conversation_id"`
	Content              []byte     `db:"content"`
	ContentHash          string     `db:"content_hash"`
	Embedding            []byte     `db:"embedding"`
	ImportanceScore      float64    `db:"importance_score"`
	EmotionalWeight      float64    `db:"emotional_weight"`
	DecayFactor          float64    `db:"decay_factor"`
	AccessFrequency      int64      `db:"access_frequency"`
	SemanticClusterID    *string    `db:"semantic_cluster_id"`
	MemoryType           string     `db:"memory_type"`
	CrossCharacterShared bool       `db:"cross_character_shared"`
	EncryptionAlgorithm  *string    `db:"encryption_algorithm"`
	EncryptionIV         []byte     `db:"encryption_iv"`
	EncryptionAuthTag    []byte     `db:"encryption_auth_tag"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
	LastAccessed         time.Time  `db:"last_accessed"`
}

func (r memoryRow) toModel() (*model.Memory, error) {
	vec, err := UnpackVector(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.Corrupt, err)
	}
	m := &model.Memory{
		ID:                   r.ID,
		UserID:               r.UserID,
		CharacterID:          r.CharacterID,
		ConversationID:       r.ConversationID,
		Content:              string(r.Content),
		ContentHash:          r.ContentHash,
		Embedding:            vec,
		ImportanceScore:      r.ImportanceScore,
		EmotionalWeight:      r.EmotionalWeight,
		DecayFactor:          r.DecayFactor,
		AccessFrequency:      r.AccessFrequency,
		SemanticClusterID:    r.SemanticClusterID,
		MemoryType:           model.MemoryType(r.MemoryType),
		CrossCharacterShared: r.CrossCharacterShared,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		LastAccessed:         r.LastAccessed,
	}
	if r.EncryptionAlgorithm != nil {
		m.Encryption = &model.EncryptionMetadata{
			Algorithm: *r.EncryptionAlgorithm,
			IV:        r.EncryptionIV,
			AuthTag:   r.EncryptionAuthTag,
		}
	}
	return m, nil
}

// Insert persists a new memory. Content is passed pre-encrypted (or
// plaintext, per the security layer's policy) by the caller; Insert only
// packs the vector and writes the row. Returns errs.Conflict (never
// surfaced to external callers per spec) if (user_id, content_hash)
// already exists — the ingestion pipeline checks for this first, so this
// path is a defensive backstop against a races between concurrent ingests
// of the same content.
func (s *Store) Insert(ctx context.Context, m *model.Memory, contentBytes []byte) error {
	packed, err := PackVector(m.Embedding)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.Corrupt, err)
	}

	var encAlgo *string
	var encIV, encTag []byte
	if m.Encryption != nil {
		encAlgo = &m.Encryption.Algorithm
		encIV = m.Encryption.IV
		encTag = m.Encryption.AuthTag
	}

	const q = `
INSERT INTO memorycore.memories
	(id, user_id, character_id, conversation_id, content, content_hash, embedding,
	 importance_score, emotional_weight, decay_factor, access_frequency,
	 semantic_cluster_id, memory_type, cross_character_shared,
	 encryption_algorithm, encryption_iv, encryption_auth_tag,
	 created_at, updated_at, last_accessed)
VALUES
	(COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7,
	 $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now(), now())
ON CONFLICT (user_id, content_hash) DO NOTHING
RETURNING id`

	row := s.db.QueryRowContext(ctx, q,
		m.ID, m.UserID, m.CharacterID, m.ConversationID, contentBytes, m.ContentHash, packed,
		m.ImportanceScore, m.EmotionalWeight, m.DecayFactor, m.AccessFrequency,
		m.SemanticClusterID, string(m.MemoryType), m.CrossCharacterShared,
		encAlgo, encIV, encTag,
	)

	var id string
	if err := row.Scan(&id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return errs.Conflict
		}
		return fmt.Errorf("insert memory: %w", err)
	}
	m.ID = id
	return nil
}

// GetByContentHash supports the ingestion pipeline's dedup check.
func (s *Store) GetByContentHash(ctx context.Context, userID, contentHash string) (*model.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row, `
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories WHERE user_id = $1 AND content_hash = $2`, userID, contentHash)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, errs.NotFound
		}
		return nil, fmt.Errorf("get memory by content hash: %w", err)
	}
	return row.toModel()
}

// GetByID fetches a single memory, scoped to userID so a caller can never
// read across users by guessing an id.
func (s *Store) GetByID(ctx context.Context, userID, id string) (*model.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row, `
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, errs.NotFound
		}
		return nil, fmt.Errorf("get memory by id: %w", err)
	}
	return row.toModel()
}

// TouchAccess increments access_frequency and bumps last_accessed,
// matching the retrieval pipeline's read-time side effect.
func (s *Store) TouchAccess(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE memorycore.memories
SET access_frequency = access_frequency + 1, last_accessed = now()
WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}

// UpdateDecay writes a recomputed decay_factor/importance_score pair,
// used by the decay engine's sweep.
func (s *Store) UpdateDecay(ctx context.Context, tx *sqlx.Tx, id string, decayFactor, importance float64) error {
	exec := s.db.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `
UPDATE memorycore.memories SET decay_factor = $1, importance_score = $2, updated_at = now()
WHERE id = $3`, decayFactor, importance, id)
	return err
}

// DeleteByID removes a single memory, scoped to userID.
func (s *Store) DeleteByID(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memorycore.memories WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound
	}
	return nil
}

// DeleteByUser removes every memory for userID, used by the GDPR delete
// operation.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memorycore.memories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetByIDs bulk-fetches memories scoped to userID, used to hydrate ANN
// candidate ids into full records for rescoring. Missing ids are simply
// omitted from the result rather than erroring.
func (s *Store) GetByIDs(ctx context.Context, userID string, ids []string) ([]*model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("build get-by-ids query: %w", err)
	}
	query = s.db.Rebind(query)

	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	out := make([]*model.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CountByUser reports how many memories exist for userID, used to decide
// between ANN search and a linear scan.
func (s *Store) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM memorycore.memories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("count by user: %w", err)
	}
	return n, nil
}

// ListByUser returns up to limit memories for userID, newest first, for the linear-scan
// candidate-generation path used when a user's memory count is at or
// below the ANN threshold.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Memory, error) {
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by user: %w", err)
	}
	out := make([]*model.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// IterateUserVectors walks every stored vector for ANN warm-up.
func (s *Store) IterateUserVectors(ctx context.Context, fn func(userID, memoryID string, vector []float32) error) error {
	rows, err := s.db.QueryxContext(ctx, `SELECT id, user_id, embedding FROM memorycore.memories`)
	if err != nil {
		return fmt.Errorf("iterate vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, userID string
		var packed []byte
		if err := rows.Scan(&id, &userID, &packed); err != nil {
			return fmt.Errorf("scan vector row: %w", err)
		}
		vec, err := UnpackVector(packed)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.Corrupt, err)
		}
		if err := fn(userID, id, vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DecayCandidates returns memories due for a decay recomputation: those
// whose last_accessed is older than cutoff.
func (s *Store) DecayCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Memory, error) {
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories WHERE last_accessed < $1 ORDER BY last_accessed ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("decay candidates: %w", err)
	}
	out := make([]*model.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// RetentionCandidates returns memories eligible for retention-policy
// purge: created before cutoff with importance_score below importanceCeiling.
// RetentionCandidates returns full records (not just ids) so the caller
// can write an encrypted snapshot of each memory before it's purged.
func (s *Store) RetentionCandidates(ctx context.Context, cutoff time.Time, importanceCeiling float64, limit int) ([]*model.Memory, error) {
	var rows []memoryRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, user_id, character_id, conversation_id, content, content_hash, embedding,
       importance_score, emotional_weight, decay_factor, access_frequency,
       semantic_cluster_id, memory_type, cross_character_shared,
       encryption_algorithm, encryption_iv, encryption_auth_tag,
       created_at, updated_at, last_accessed
FROM memorycore.memories
WHERE created_at < $1 AND importance_score < $2
ORDER BY created_at ASC LIMIT $3`, cutoff, importanceCeiling, limit)
	if err != nil {
		return nil, fmt.Errorf("retention candidates: %w", err)
	}
	out := make([]*model.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteDecayed removes memories whose decay_factor has fallen below
// floor and whose updated_at is at least minAge old, the decay engine's
// cleanup sweep. last_accessed is not consulted.
func (s *Store) DeleteDecayed(ctx context.Context, floor float64, minAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-minAge)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM memorycore.memories WHERE decay_factor < $1 AND updated_at <= $2`, floor, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete decayed: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByIDs bulk-deletes memories by id, used by the retention purge.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM memorycore.memories WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build delete-by-ids query: %w", err)
	}
	query = s.db.Rebind(query)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete by ids: %w", err)
	}
	return res.RowsAffected()
}

// InsertDecayLog records one decay recomputation for audit purposes.
func (s *Store) InsertDecayLog(ctx context.Context, tx *sqlx.Tx, entry model.DecayLogEntry) error {
	exec := s.db.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `
INSERT INTO memorycore.decay_log (memory_id, decay_factor_before, decay_factor_after, reason, created_at)
VALUES ($1, $2, $3, $4, now())`, entry.MemoryID, entry.DecayFactorBefore, entry.DecayFactorAfter, entry.Reason)
	return err
}

// DeleteDecayLogOlderThan purges decay-log rows past the retention
// horizon, alongside the retention purge of the memories themselves.
func (s *Store) DeleteDecayLogOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memorycore.decay_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete decay log: %w", err)
	}
	return res.RowsAffected()
}

// InsertAuditLog records a GDPR-relevant action.
func (s *Store) InsertAuditLog(ctx context.Context, userID, action, detail string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memorycore.audit_log (user_id, action, detail, created_at) VALUES ($1, $2, $3, now())`,
		userID, action, detail)
	return err
}
