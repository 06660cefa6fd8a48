package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase derived keys. They favour interactive
// CLI use over server throughput.
const (
	kdfIterations  = 1
	kdfMemory      = 64 * 1024
	kdfParallelism = 2
	kdfKeyLength   = 32
	kdfSaltLength  = 16
)

var (
	ErrEmptyPassphrase    = errors.New("cryptox: empty passphrase")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// Sealer encrypts small secrets (access tokens) with AES-256-GCM under a key
// derived from a passphrase. The output format is:
// [16-byte salt][12-byte nonce][encrypted data][16-byte auth tag]
type Sealer struct {
	passphrase []byte
}

// NewSealer returns a Sealer for the passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Sealer{passphrase: []byte(passphrase)}, nil
}

// DeriveKey stretches a passphrase into a 32-byte AES key with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, kdfIterations, kdfMemory, kdfParallelism, kdfKeyLength)
}

func (s *Sealer) gcm(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(s.passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext. Each call uses a fresh salt and nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, kdfSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < kdfSaltLength {
		return nil, ErrCiphertextTooShort
	}
	salt, rest := sealed[:kdfSaltLength], sealed[kdfSaltLength:]

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
