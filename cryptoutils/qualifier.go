package cryptoutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ruteri/device-activation-backend/interfaces"
)

const (
	// QualifierHMACSHA256 is the default qualifier construction:
	// HMAC-SHA256(secret, VIN "|" serial ["|" aad]).
	QualifierHMACSHA256 = "hmac-sha256/v1"

	// QualifierSHA256Concat is the legacy construction used by older firmware:
	// SHA-256(secret || VIN || serial [|| aad]).
	QualifierSHA256Concat = "sha256-concat/v0"
)

// QualifierInput holds the device-submitted values that take part in
// qualifier verification.
type QualifierInput struct {
	VIN          string
	SerialNumber string
	Qualifier    string
	// AAD is the optional aad flag. When set it must be "yes" or "no" in any case.
	AAD string
}

// QualifierAlgorithm computes the expected qualifier bytes for an input.
// Implementations must be deterministic.
type QualifierAlgorithm interface {
	Name() string
	Compute(secret []byte, in QualifierInput) []byte
}

type hmacSHA256Qualifier struct{}

func (hmacSHA256Qualifier) Name() string { return QualifierHMACSHA256 }

func (hmacSHA256Qualifier) Compute(secret []byte, in QualifierInput) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(in.VIN))
	mac.Write([]byte("|"))
	mac.Write([]byte(in.SerialNumber))
	if in.AAD != "" {
		mac.Write([]byte("|"))
		mac.Write([]byte(strings.ToLower(in.AAD)))
	}
	return mac.Sum(nil)
}

type sha256ConcatQualifier struct{}

func (sha256ConcatQualifier) Name() string { return QualifierSHA256Concat }

func (sha256ConcatQualifier) Compute(secret []byte, in QualifierInput) []byte {
	h := sha256.New()
	h.Write(secret)
	h.Write([]byte(in.VIN))
	h.Write([]byte(in.SerialNumber))
	if in.AAD != "" {
		h.Write([]byte(strings.ToLower(in.AAD)))
	}
	return h.Sum(nil)
}

// QualifierVerifier validates device-submitted qualifiers against a value
// recomputed from a shared secret. Verification never has side effects.
type QualifierVerifier struct {
	mu               sync.RWMutex
	algorithms       map[string]QualifierAlgorithm
	defaultAlgorithm string
}

// NewQualifierVerifier creates a verifier with the built-in algorithms
// registered. An empty defaultAlgorithm selects QualifierHMACSHA256.
func NewQualifierVerifier(defaultAlgorithm string) (*QualifierVerifier, error) {
	if defaultAlgorithm == "" {
		defaultAlgorithm = QualifierHMACSHA256
	}

	v := &QualifierVerifier{
		algorithms:       map[string]QualifierAlgorithm{},
		defaultAlgorithm: defaultAlgorithm,
	}
	v.Register(hmacSHA256Qualifier{})
	v.Register(sha256ConcatQualifier{})

	if _, ok := v.algorithms[defaultAlgorithm]; !ok {
		return nil, fmt.Errorf("unknown qualifier algorithm: %s", defaultAlgorithm)
	}
	return v, nil
}

// Register adds or replaces an algorithm.
func (v *QualifierVerifier) Register(alg QualifierAlgorithm) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.algorithms[alg.Name()] = alg
}

// Algorithms returns the registered algorithm names, sorted.
func (v *QualifierVerifier) Algorithms() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.algorithms))
	for name := range v.algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *QualifierVerifier) algorithm(name string) (QualifierAlgorithm, error) {
	if name == "" {
		name = v.defaultAlgorithm
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	alg, ok := v.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown qualifier algorithm: %s", name)
	}
	return alg, nil
}

// ValidateAAD checks the optional aad flag.
func ValidateAAD(aad string) error {
	if aad == "" {
		return nil
	}
	switch strings.ToLower(aad) {
	case "yes", "no":
		return nil
	default:
		return interfaces.ErrInvalidAAD
	}
}

// Verify checks in.Qualifier against the value computed with secret.
//
// Returns:
//   - A non-negative seed derived from the computed value on success
//   - interfaces.ErrInvalidAAD if the aad flag is malformed (checked first)
//   - interfaces.ErrSecretMissing if secret is empty
//   - interfaces.ErrQualifierMismatch if the qualifier does not match
func (v *QualifierVerifier) Verify(algorithm string, in QualifierInput, secret []byte) (interfaces.QualifierSeed, error) {
	if err := ValidateAAD(in.AAD); err != nil {
		return 0, err
	}

	alg, err := v.algorithm(algorithm)
	if err != nil {
		return 0, err
	}

	if len(secret) == 0 {
		return 0, interfaces.ErrSecretMissing
	}

	submitted, ok := decodeQualifier(in.Qualifier)
	if !ok {
		return 0, fmt.Errorf("%w: undecodable qualifier", interfaces.ErrQualifierMismatch)
	}

	expected := alg.Compute(secret, in)
	if subtle.ConstantTimeCompare(expected, submitted) != 1 {
		return 0, interfaces.ErrQualifierMismatch
	}

	return seedFromDigest(expected), nil
}

// ComputeQualifier returns the base64 qualifier a device would submit. Used
// by device simulators and tests.
func (v *QualifierVerifier) ComputeQualifier(algorithm string, in QualifierInput, secret []byte) (string, error) {
	alg, err := v.algorithm(algorithm)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(alg.Compute(secret, in)), nil
}

func seedFromDigest(digest []byte) interfaces.QualifierSeed {
	return interfaces.QualifierSeed(binary.BigEndian.Uint64(digest[:8]) & math.MaxInt64)
}

// decodeQualifier accepts hex and every common base64 variant.
func decodeQualifier(q string) ([]byte, bool) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, false
	}

	if len(q) == 2*sha256.Size {
		if b, err := hex.DecodeString(q); err == nil {
			return b, true
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(q); err == nil {
			return b, true
		}
	}
	return nil, false
}
