package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"helpdesk-ai/internal/domain"
)

const (
	encPrefix = "enc:"
	saltSize  = 16
	keySize   = 32
)

// SessionCipher encrypts persisted conversation state with AES-256-GCM.
// The key is derived from a passphrase with Argon2id and a salt that is
// stored next to the session files so state survives restarts.
type SessionCipher struct {
	mu  sync.RWMutex
	key []byte
}

// NewSessionCipher derives a key from passphrase and salt.
func NewSessionCipher(passphrase string, salt []byte) (*SessionCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes", saltSize)
	}
	return &SessionCipher{key: deriveKey(passphrase, salt)}, nil
}

// LoadOrCreateSalt reads the salt file at path, creating a random one with
// 0600 permissions on first use.
func LoadOrCreateSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) < saltSize {
			return nil, fmt.Errorf("salt file %s is truncated", path)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create salt dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext into "enc:" + base64(nonce + ciphertext).
func (c *SessionCipher) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.NewDomainError("SessionCipher.Seal", domain.ErrEncryption, err.Error())
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(encPrefix + base64.StdEncoding.EncodeToString(sealed)), nil
}

// Open reverses Seal. Input without the "enc:" prefix is returned as-is so
// sessions written before encryption was enabled stay readable.
func (c *SessionCipher) Open(data []byte) ([]byte, error) {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, encPrefix) {
		return data, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, encPrefix))
	if err != nil {
		return nil, domain.NewDomainError("SessionCipher.Open", domain.ErrDecryption, "invalid base64")
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, domain.NewDomainError("SessionCipher.Open", domain.ErrDecryption, "ciphertext too short")
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, domain.NewDomainError("SessionCipher.Open", domain.ErrDecryption, "authentication failed")
	}
	return plain, nil
}

// Zeroize wipes the key. The cipher is unusable afterwards.
func (c *SessionCipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
	c.key = nil
}

func (c *SessionCipher) gcm() (cipher.AEAD, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if len(key) != keySize {
		return nil, domain.NewDomainError("SessionCipher", domain.ErrEncryption, "key unavailable")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.NewDomainError("SessionCipher", domain.ErrEncryption, err.Error())
	}
	return cipher.NewGCM(block)
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, keySize)
}
