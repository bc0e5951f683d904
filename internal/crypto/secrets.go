// Package crypto protects platform credentials stored in configuration
// files. Values prefixed with "enc:v1:" are AES-256-GCM ciphertexts whose
// key is derived from a user-supplied passphrase; anything else passes
// through unchanged so plaintext configs keep working.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptedPrefix marks encrypted credential values in config files.
	EncryptedPrefix = "enc:v1:"

	pbkdf2Iterations = 100000
	keyLength        = 32 // AES-256
	saltLength       = 16
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// CredentialStore encrypts and decrypts credential strings with a key
// derived from a passphrase.
type CredentialStore struct {
	key []byte
}

// NewCredentialStore derives an AES key from the passphrase and salt.
// The salt is not secret and lives next to the config file.
func NewCredentialStore(passphrase string, salt []byte) *CredentialStore {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
	return &CredentialStore{key: key}
}

// GenerateSalt creates a random salt for key derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Encrypt encrypts a plaintext credential, returning a base64 ciphertext
// with the EncryptedPrefix.
func (s *CredentialStore) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Values without the EncryptedPrefix are
// returned as-is.
func (s *CredentialStore) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsEncrypted(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(value[len(EncryptedPrefix):])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// IsEncrypted checks if a value has the encryption prefix.
func IsEncrypted(value string) bool {
	return len(value) >= len(EncryptedPrefix) && value[:len(EncryptedPrefix)] == EncryptedPrefix
}
