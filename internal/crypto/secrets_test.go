package crypto

import (
	"errors"
	"strings"
	"testing"
)

func newStore(t *testing.T) *CredentialStore {
	t.Helper()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	return NewCredentialStore("test-passphrase", salt)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	store := newStore(t)

	encrypted, err := store.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(encrypted, EncryptedPrefix) {
		t.Errorf("missing prefix: %q", encrypted)
	}
	if strings.Contains(encrypted, "hunter2") {
		t.Error("ciphertext must not contain the plaintext")
	}

	decrypted, err := store.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != "hunter2" {
		t.Errorf("round trip mismatch: %q", decrypted)
	}
}

func TestEncryptIsNondeterministic(t *testing.T) {
	store := newStore(t)

	first, _ := store.Encrypt("same")
	second, _ := store.Encrypt("same")
	if first == second {
		t.Error("each encryption must use a fresh nonce")
	}
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	store := newStore(t)

	got, err := store.Decrypt("plain-password")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "plain-password" {
		t.Errorf("plaintext must pass through untouched, got %q", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	a := NewCredentialStore("passphrase-a", salt)
	b := NewCredentialStore("passphrase-b", salt)

	encrypted, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := b.Decrypt(encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptGarbledCiphertext(t *testing.T) {
	store := newStore(t)

	if _, err := store.Decrypt(EncryptedPrefix + "not-base64!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestIsEncrypted(t *testing.T) {
	if IsEncrypted("password") {
		t.Error("plaintext misdetected")
	}
	if !IsEncrypted(EncryptedPrefix + "abc") {
		t.Error("prefixed value not detected")
	}
}
