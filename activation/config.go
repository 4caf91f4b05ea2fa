package activation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// DefaultPrefix is used for device identities when type-aware issuance is
// disabled or the device type yields no usable prefix.
const DefaultPrefix = "HA"

// Config carries every feature flag consulted by the Orchestrator. It is
// passed into each call so the decision logic never reads global state.
type Config struct {
	// VINEnabled requires a completed VIN association before any lifecycle rule applies.
	VINEnabled bool

	// DeviceValidationEnabled makes deviceType mandatory and checks it against AllowedDeviceTypes.
	DeviceValidationEnabled bool
	AllowedDeviceTypes      []string

	// TypeAwareIssuance derives the identity prefix from the device type.
	TypeAwareIssuance bool
	DefaultPrefix     string
	TypePrefixes      map[string]string

	// InvalidStateEventTypes lists device types whose rejected activations are published.
	InvalidStateEventTypes []string
	InvalidStateTopic      string

	QualifierAlgorithm    string
	QualifierSecretPrefix string
	DefaultQualifierName  string
	PSKCodecSecret        string
	PSKReferencePrefix    string
}

func DefaultConfig() Config {
	return Config{
		DefaultPrefix:         DefaultPrefix,
		TypePrefixes:          map[string]string{},
		InvalidStateTopic:     "device.activation.rejected",
		QualifierAlgorithm:    cryptoutils.QualifierHMACSHA256,
		QualifierSecretPrefix: "qualifier/",
		DefaultQualifierName:  "default",
		PSKCodecSecret:        "psk/codec",
		PSKReferencePrefix:    "psk/reference/",
	}
}

// Prefix returns the two-letter identity prefix for deviceType.
func (c Config) Prefix(deviceType string) string {
	fallback := c.DefaultPrefix
	if fallback == "" {
		fallback = DefaultPrefix
	}
	if !c.TypeAwareIssuance || deviceType == "" {
		return fallback
	}

	if prefix, ok := c.TypePrefixes[strings.ToLower(deviceType)]; ok {
		return prefix
	}

	letters := make([]rune, 0, 2)
	for _, r := range deviceType {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
		}
		if len(letters) == 2 {
			return string(letters)
		}
	}
	return fallback
}

// DeviceTypeAllowed reports whether deviceType passes the validation profile.
func (c Config) DeviceTypeAllowed(deviceType string) bool {
	if !c.DeviceValidationEnabled {
		return true
	}
	return containsFold(c.AllowedDeviceTypes, deviceType)
}

// PublishesRejections reports whether rejected activations of deviceType are published.
func (c Config) PublishesRejections(deviceType string) bool {
	return c.InvalidStateTopic != "" && containsFold(c.InvalidStateEventTypes, deviceType)
}

// QualifierSecretNames returns the secret names to try, most specific first.
func (c Config) QualifierSecretNames(deviceType string) []string {
	names := make([]string, 0, 2)
	if deviceType != "" && !strings.EqualFold(deviceType, c.DefaultQualifierName) {
		names = append(names, c.QualifierSecretPrefix+strings.ToLower(deviceType))
	}
	return append(names, c.QualifierSecretPrefix+c.DefaultQualifierName)
}

func (c Config) PSKReferenceName(activationID string) string {
	return c.PSKReferencePrefix + activationID
}

// ParseTypePrefixes parses TYPE=XX pairs. Prefixes must be two ASCII letters
// and are stored uppercase, keyed by lowercase type.
func ParseTypePrefixes(pairs []string) (map[string]string, error) {
	prefixes := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		deviceType, prefix, ok := strings.Cut(pair, "=")
		deviceType = strings.TrimSpace(deviceType)
		prefix = strings.ToUpper(strings.TrimSpace(prefix))
		if !ok || deviceType == "" || !validPrefix(prefix) {
			return nil, fmt.Errorf("%w: invalid type prefix %q", interfaces.ErrValidation, pair)
		}
		prefixes[strings.ToLower(deviceType)] = prefix
	}
	return prefixes, nil
}

func validPrefix(prefix string) bool {
	if len(prefix) != 2 {
		return false
	}
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
