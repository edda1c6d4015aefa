// Package crypto implements the sealed payload envelope. It is a pure
// byte transformation with no notion of tenants or entities, so it can be
// tested in isolation from the storage boundary.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32

	// EnvelopeVersion is the current sealed blob format version.
	EnvelopeVersion byte = 0x01

	nonceSize = 12
)

var (
	// ErrDecryptionFailed is returned whenever a blob cannot be opened:
	// wrong key, tampering, truncation or an unknown envelope version.
	// Opening never returns partial plaintext.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKeySize is returned for keys that are not KeySize bytes.
	ErrInvalidKeySize = errors.New("invalid key size")
)

// Seal encrypts plaintext under key into a versioned envelope:
//
//	[1 byte version][12 byte nonce][ciphertext || 16 byte GCM tag]
//
// A fresh random nonce is drawn per call, so sealing the same plaintext
// twice produces distinct blobs.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := make([]byte, 0, 1+nonceSize+len(plaintext)+aead.Overhead())
	blob = append(blob, EnvelopeVersion)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// Open decrypts a sealed envelope. Any parse or tag verification failure
// yields ErrDecryptionFailed, never best-effort plaintext.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < 1+nonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: envelope too short", ErrDecryptionFailed)
	}

	if blob[0] != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrDecryptionFailed, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]

	plaintext, err := aead.Open(nil, nonce, blob[1+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

// Wipe overwrites b with zeroes. This is best-effort risk reduction: the
// runtime may have relocated or copied the buffer, so callers must not
// treat it as a guarantee that no copy survives.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
