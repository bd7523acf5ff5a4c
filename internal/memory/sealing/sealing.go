// Package sealing is the single place content is compressed, encrypted,
// and reversed on the way in and out of storage. ingestion.Pipeline
// calls Seal before persisting; every reader of stored content —
// retrieval's composite scoring and keyword fusion, and the data-
// portability export — calls Unseal before touching Memory.Content, so
// no component ever scores or exports ciphertext by mistake.
package sealing

import (
	"fmt"
	"strings"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/security"
)

// Sealer compresses+encrypts on write and reverses both steps on read.
// A nil EncryptionService (encryption disabled for the deployment)
// still compresses and still needs Unseal to inflate on read.
type Sealer struct {
	enc *security.EncryptionService
}

// NewSealer builds a Sealer. enc may be nil when encryption is disabled.
func NewSealer(enc *security.EncryptionService) *Sealer {
	return &Sealer{enc: enc}
}

// Enabled reports whether this Sealer encrypts, as opposed to only
// compressing.
func (s *Sealer) Enabled() bool { return s.enc != nil }

// Seal compresses text when it's large enough to be worth it, then
// encrypts it (or passes it through as plaintext when no encryption
// service is configured). The returned algorithm label records whatever
// combination of compression/encryption was applied — "", "flate",
// "aes-256-gcm", or "aes-256-gcm+flate" — so Unseal knows exactly how to
// reverse it later.
func (s *Sealer) Seal(text, userID string) ([]byte, string, error) {
	raw := []byte(text)
	compressed, wasCompressed, err := maybeCompress(raw)
	if err != nil {
		return nil, "", err
	}

	if s.enc == nil {
		if wasCompressed {
			return compressed, "flate", nil
		}
		return compressed, "", nil
	}

	sealed, err := s.enc.EncryptContent(string(compressed), userID)
	if err != nil {
		return nil, "", err
	}

	algorithm := "aes-256-gcm"
	if wasCompressed {
		algorithm = "aes-256-gcm+flate"
	}
	return sealed, algorithm, nil
}

// Unseal reverses Seal on m in place: decrypt (if the algorithm tag
// carries the "aes-256-gcm" prefix), then inflate (if it carries the
// "flate" suffix). A memory with no Encryption metadata was never
// sealed (e.g. content short enough to skip compression, with
// encryption disabled) and passes through unchanged.
func (s *Sealer) Unseal(m *model.Memory) error {
	if m.Encryption == nil {
		return nil
	}
	raw := []byte(m.Content)
	algorithm := m.Encryption.Algorithm

	var plain []byte
	if strings.HasPrefix(algorithm, "aes-256-gcm") {
		if s.enc == nil {
			return fmt.Errorf("memory is encrypted but no encryption service is configured")
		}
		decrypted, err := s.enc.DecryptContent(raw, m.UserID)
		if err != nil {
			return err
		}
		plain = []byte(decrypted)
	} else {
		plain = raw
	}

	if strings.HasSuffix(algorithm, "flate") {
		inflated, err := decompress(plain)
		if err != nil {
			return err
		}
		plain = inflated
	}

	m.Content = string(plain)
	return nil
}
