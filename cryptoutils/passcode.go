package cryptoutils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// PasscodeLength is the number of random bytes in a passcode before encoding.
const PasscodeLength = 24

// GeneratePasscode returns a fresh opaque passcode. The verified qualifier
// seed is mixed into the random bytes, so two calls never share output even
// with the same seed.
func GeneratePasscode(seed interfaces.QualifierSeed) (string, error) {
	random := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, random); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], uint64(seed))

	h := sha256.New()
	h.Write(random)
	h.Write(seedBytes[:])
	digest := h.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(digest[:PasscodeLength]), nil
}
