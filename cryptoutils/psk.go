package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruteri/device-activation-backend/interfaces"
	"golang.org/x/crypto/hkdf"
)

var pskKeyInfo = []byte("device-activation/psk-codec/v1")

// pskCipher derives an AES-256-GCM instance from the shared secret.
func pskCipher(secret []byte) (cipher.AEAD, error) {
	if len(secret) == 0 {
		return nil, interfaces.ErrSecretMissing
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, pskKeyInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// EncryptPreSharedKey encrypts a short pre-shared key with a key derived from
// secret. The result is base64 of [nonce (12 bytes)][ciphertext].
func EncryptPreSharedKey(secret []byte, plaintext []byte) (string, error) {
	aesGCM, err := pskCipher(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aesGCM.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPreSharedKey reverses EncryptPreSharedKey.
func DecryptPreSharedKey(secret []byte, encoded string) ([]byte, error) {
	aesGCM, err := pskCipher(secret)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	if len(data) < aesGCM.NonceSize()+aesGCM.Overhead() {
		return nil, errors.New("encrypted key too short")
	}

	nonce, ciphertext := data[:aesGCM.NonceSize()], data[aesGCM.NonceSize():]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// MatchPreSharedKeys decrypts the request key and the server-held reference
// key with the same secret and requires the plaintexts to be identical.
// Blank inputs, undecryptable values and differing plaintexts all yield
// interfaces.ErrPreSharedKeyMismatch. An empty secret yields
// interfaces.ErrSecretMissing.
func MatchPreSharedKeys(secret []byte, requestKey, referenceKey string) error {
	if len(secret) == 0 {
		return interfaces.ErrSecretMissing
	}
	if strings.TrimSpace(requestKey) == "" || strings.TrimSpace(referenceKey) == "" {
		return fmt.Errorf("%w: blank key", interfaces.ErrPreSharedKeyMismatch)
	}

	requestPlain, err := DecryptPreSharedKey(secret, requestKey)
	if err != nil {
		return fmt.Errorf("%w: request key: %v", interfaces.ErrPreSharedKeyMismatch, err)
	}

	referencePlain, err := DecryptPreSharedKey(secret, referenceKey)
	if err != nil {
		return fmt.Errorf("%w: reference key: %v", interfaces.ErrPreSharedKeyMismatch, err)
	}

	if len(requestPlain) == 0 || subtle.ConstantTimeCompare(requestPlain, referencePlain) != 1 {
		return interfaces.ErrPreSharedKeyMismatch
	}
	return nil
}
