package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// EvidenceSigner signs audit entries for non-repudiation and seals the
// before/after snapshots they carry. Keys are versioned so old entries stay
// verifiable after rotation.
type EvidenceSigner struct {
	keys           map[int][]byte
	currentVersion int
	hmacSecret     []byte
	mu             sync.RWMutex
}

// NewEvidenceSigner creates a signer with versioned AES-256 keys.
func NewEvidenceSigner(keysBase64 []string, currentVersion int, hmacSecretBase64 string) (*EvidenceSigner, error) {
	if len(keysBase64) == 0 {
		return nil, errors.New("at least one encryption key is required")
	}

	keys := make(map[int][]byte)
	for i, keyB64 := range keysBase64 {
		key, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode key %d: %w", i+1, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("key %d must be 32 bytes for AES-256, got %d", i+1, len(key))
		}
		keys[i+1] = key
	}

	if _, exists := keys[currentVersion]; !exists {
		return nil, fmt.Errorf("current version %d not found in keys", currentVersion)
	}

	hmacSecret, err := base64.StdEncoding.DecodeString(hmacSecretBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode HMAC secret: %w", err)
	}

	return &EvidenceSigner{
		keys:           keys,
		currentVersion: currentVersion,
		hmacSecret:     hmacSecret,
	}, nil
}

// CurrentKeyVersion returns the key version new snapshots are sealed with.
func (e *EvidenceSigner) CurrentKeyVersion() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentVersion
}

// Seal encrypts a snapshot payload with AES-256-GCM under the current key.
func (e *EvidenceSigner) Seal(plaintext []byte) ([]byte, int, error) {
	e.mu.RLock()
	key := e.keys[e.currentVersion]
	version := e.currentVersion
	e.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, 0, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), version, nil
}

// Open decrypts a snapshot sealed with the given key version.
func (e *EvidenceSigner) Open(sealed []byte, keyVersion int) ([]byte, error) {
	e.mu.RLock()
	key, exists := e.keys[keyVersion]
	e.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key version %d not found", keyVersion)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("sealed snapshot too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}

	return plaintext, nil
}

// SignEntry produces the HMAC-SHA256 signature over an audit entry's
// critical fields.
func (e *EvidenceSigner) SignEntry(id, actor, operation, resource, timestamp string, success bool) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%t", id, actor, operation, resource, timestamp, success)
	h := hmac.New(sha256.New, e.hmacSecret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyEntry checks an audit entry's signature.
func (e *EvidenceSigner) VerifyEntry(id, actor, operation, resource, timestamp string, success bool, signature string) bool {
	expected := e.SignEntry(id, actor, operation, resource, timestamp, success)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MaskIP masks an IP address for log output, keeping the first octet/hextet.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	for i, c := range ip {
		if c == '.' || c == ':' {
			return ip[:i] + "...xxx"
		}
	}
	return "xxx"
}
