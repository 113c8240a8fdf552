package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"photovault/internal/domain"
)

// Cipher names accepted by NewAEADEncryptor.
const (
	CipherAESGCM   = "aes-gcm"
	CipherChaCha20 = "chacha20poly1305"
)

// AEADEncryptor implements domain.Encryptor. Output is the combined form
// nonce ‖ ciphertext ‖ tag in a single opaque buffer with no plaintext
// header. Whole-blob encryption only; there is no streaming mode.
type AEADEncryptor struct {
	aead cipher.AEAD
}

// NewAEADEncryptor builds an encryptor from the key provider's key.
// cipherName selects AES-256-GCM (default when empty) or ChaCha20-Poly1305.
func NewAEADEncryptor(kp domain.KeyProvider, cipherName string) (*AEADEncryptor, error) {
	key, err := kp.GetOrCreate()
	if err != nil {
		return nil, domain.NewVaultError("Encryptor.New", domain.ErrEncryptionFailed, err.Error())
	}

	var aead cipher.AEAD
	switch cipherName {
	case CipherAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, domain.NewVaultError("Encryptor.New", domain.ErrEncryptionFailed, err.Error())
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, domain.NewVaultError("Encryptor.New", domain.ErrEncryptionFailed, err.Error())
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, domain.NewVaultError("Encryptor.New", domain.ErrEncryptionFailed, err.Error())
		}
	default:
		return nil, domain.NewVaultError("Encryptor.New", domain.ErrEncryptionFailed,
			fmt.Sprintf("unknown cipher %q", cipherName))
	}

	return &AEADEncryptor{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce ‖ ciphertext ‖ tag.
// A zero-length plaintext is valid and round-trips to zero bytes.
func (e *AEADEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.NewVaultError("Encryptor.Encrypt", domain.ErrEncryptionFailed, err.Error())
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a combined-form buffer. It fails with ErrDecryptionFailed
// when the buffer is too short to contain a nonce and tag, or when the
// authentication tag does not verify (corruption, tampering, wrong key).
func (e *AEADEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	minLen := e.aead.NonceSize() + e.aead.Overhead()
	if len(ciphertext) < minLen {
		return nil, domain.NewVaultError("Encryptor.Decrypt", domain.ErrDecryptionFailed,
			fmt.Sprintf("ciphertext too short: %d bytes, need at least %d", len(ciphertext), minLen))
	}

	nonce, sealed := ciphertext[:e.aead.NonceSize()], ciphertext[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.NewVaultError("Encryptor.Decrypt", domain.ErrDecryptionFailed, "authentication failed")
	}
	return plaintext, nil
}

// Overhead returns the ciphertext expansion in bytes (nonce + tag).
func (e *AEADEncryptor) Overhead() int {
	return e.aead.NonceSize() + e.aead.Overhead()
}
