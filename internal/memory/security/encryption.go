// Package security provides at-rest encryption, active-session
// authentication, and GDPR data-subject operations for the memory
// engine.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/driftline/memorycore/internal/memory/errs"
	"golang.org/x/crypto/pbkdf2"
)

// MinKeyIterations is the lowest PBKDF2 iteration count this service will
// accept; callers asking for fewer get this floor instead.
const MinKeyIterations = 100000

// EncryptionService provides content encryption using AES-256-GCM with
// per-user key derivation, so that compromise of one user's derived key
// never exposes another user's content.
type EncryptionService struct {
	masterKey []byte
	saltSize  int
	keyIter   int
}

// NewEncryptionService derives the service's root key from masterKey.
// iterations below MinKeyIterations are raised to the floor.
func NewEncryptionService(masterKey string, iterations int) *EncryptionService {
	if iterations < MinKeyIterations {
		iterations = MinKeyIterations
	}
	hash := sha256.Sum256([]byte(masterKey))
	return &EncryptionService{
		masterKey: hash[:],
		saltSize:  32,
		keyIter:   iterations,
	}
}

// EncryptContent encrypts plaintext with a key derived for userID.
func (e *EncryptionService) EncryptContent(plaintext string, userID string) ([]byte, error) {
	salt := make([]byte, e.saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", errs.Internal, err)
	}

	key := e.deriveKey(userID, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", errs.Internal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create gcm: %v", errs.Internal, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", errs.Internal, err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	encrypted := make([]byte, len(salt)+len(nonce)+len(ciphertext))
	copy(encrypted, salt)
	copy(encrypted[len(salt):], nonce)
	copy(encrypted[len(salt)+len(nonce):], ciphertext)

	return encrypted, nil
}

// DecryptContent reverses EncryptContent. A forged or truncated payload,
// or a mismatched userID, surfaces as errs.Corrupt.
func (e *EncryptionService) DecryptContent(encrypted []byte, userID string) (string, error) {
	if len(encrypted) < e.saltSize+12 {
		return "", fmt.Errorf("%w: encrypted payload too short", errs.Corrupt)
	}

	salt := encrypted[:e.saltSize]
	rest := encrypted[e.saltSize:]

	key := e.deriveKey(userID, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: create cipher: %v", errs.Internal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: create gcm: %v", errs.Internal, err)
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return "", fmt.Errorf("%w: missing nonce", errs.Corrupt)
	}
	nonce := rest[:nonceSize]
	ciphertext := rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: auth tag mismatch: %v", errs.Corrupt, err)
	}
	return string(plaintext), nil
}

// deriveKey derives a user-specific encryption key from the service's
// root key, the user id, and a random salt.
func (e *EncryptionService) deriveKey(userID string, salt []byte) []byte {
	info := append(append([]byte{}, e.masterKey...), []byte(userID)...)
	return pbkdf2.Key(info, salt, e.keyIter, 32, sha256.New)
}

// EncryptJSON marshals data and encrypts the result, base64-encoded for
// storage in a text column.
func (e *EncryptionService) EncryptJSON(data interface{}, userID string) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	encrypted, err := e.EncryptContent(string(jsonData), userID)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// DecryptJSON reverses EncryptJSON into target.
func (e *EncryptionService) DecryptJSON(encryptedBase64 string, userID string, target interface{}) error {
	encrypted, err := base64.StdEncoding.DecodeString(encryptedBase64)
	if err != nil {
		return fmt.Errorf("%w: decode base64: %v", errs.Corrupt, err)
	}
	decrypted, err := e.DecryptContent(encrypted, userID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(decrypted), target); err != nil {
		return fmt.Errorf("%w: unmarshal json: %v", errs.Corrupt, err)
	}
	return nil
}

// RotateKey decrypts oldEncrypted with this service's key and
// re-encrypts the plaintext under newMasterKey, for master-key rotation.
func (e *EncryptionService) RotateKey(oldEncrypted []byte, userID string, newMasterKey string) ([]byte, error) {
	plaintext, err := e.DecryptContent(oldEncrypted, userID)
	if err != nil {
		return nil, fmt.Errorf("decrypt with old key: %w", err)
	}
	newService := NewEncryptionService(newMasterKey, e.keyIter)
	return newService.EncryptContent(plaintext, userID)
}

// GenerateSecureToken returns a cryptographically random URL-safe token
// of length bytes before encoding.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: generate random bytes: %v", errs.Internal, err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
