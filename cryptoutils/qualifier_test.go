package cryptoutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("qualifier-test-secret")

func TestQualifierVerify(t *testing.T) {
	verifier, err := NewQualifierVerifier("")
	require.NoError(t, err)

	base := QualifierInput{VIN: "WVWZZZ1JZXW000001", SerialNumber: "SN-0001"}

	valid, err := verifier.ComputeQualifier("", base, testSecret)
	require.NoError(t, err)

	withAAD := base
	withAAD.AAD = "Yes"
	validAAD, err := verifier.ComputeQualifier("", withAAD, testSecret)
	require.NoError(t, err)

	testCases := []struct {
		name        string
		input       QualifierInput
		secret      []byte
		expectedErr error
	}{
		{
			name:   "Valid qualifier",
			input:  QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid},
			secret: testSecret,
		},
		{
			name:   "Valid qualifier with aad",
			input:  QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: validAAD, AAD: "yes"},
			secret: testSecret,
		},
		{
			name:        "Qualifier computed without aad does not verify with aad",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid, AAD: "no"},
			secret:      testSecret,
			expectedErr: interfaces.ErrQualifierMismatch,
		},
		{
			name:        "Different serial",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: "SN-0002", Qualifier: valid},
			secret:      testSecret,
			expectedErr: interfaces.ErrQualifierMismatch,
		},
		{
			name:        "Different secret",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid},
			secret:      []byte("another-secret"),
			expectedErr: interfaces.ErrQualifierMismatch,
		},
		{
			name:        "Garbage qualifier",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: "!!not-base64!!"},
			secret:      testSecret,
			expectedErr: interfaces.ErrQualifierMismatch,
		},
		{
			name:        "Invalid aad",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid, AAD: "maybe"},
			secret:      testSecret,
			expectedErr: interfaces.ErrInvalidAAD,
		},
		{
			name:        "Invalid aad wins over missing secret",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid, AAD: "1"},
			secret:      nil,
			expectedErr: interfaces.ErrInvalidAAD,
		},
		{
			name:        "Missing secret",
			input:       QualifierInput{VIN: base.VIN, SerialNumber: base.SerialNumber, Qualifier: valid},
			secret:      nil,
			expectedErr: interfaces.ErrSecretMissing,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seed, err := verifier.Verify("", tc.input, tc.secret)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, int64(seed), int64(0))
		})
	}
}

func TestQualifierSeedIsDeterministic(t *testing.T) {
	verifier, err := NewQualifierVerifier(QualifierHMACSHA256)
	require.NoError(t, err)

	in := QualifierInput{VIN: "VIN123", SerialNumber: "SERIAL123"}
	q, err := verifier.ComputeQualifier("", in, testSecret)
	require.NoError(t, err)
	in.Qualifier = q

	first, err := verifier.Verify("", in, testSecret)
	require.NoError(t, err)
	second, err := verifier.Verify("", in, testSecret)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// A rotated secret invalidates the old qualifier.
	_, err = verifier.Verify("", in, []byte("rotated"))
	require.ErrorIs(t, err, interfaces.ErrQualifierMismatch)
}

func TestQualifierEncodings(t *testing.T) {
	verifier, err := NewQualifierVerifier("")
	require.NoError(t, err)

	in := QualifierInput{VIN: "VIN123", SerialNumber: "SERIAL123"}
	mac := hmac.New(sha256.New, testSecret)
	mac.Write([]byte("VIN123|SERIAL123"))
	raw := mac.Sum(nil)

	for name, encoded := range map[string]string{
		"hex":        hex.EncodeToString(raw),
		"std":        base64.StdEncoding.EncodeToString(raw),
		"raw std":    base64.RawStdEncoding.EncodeToString(raw),
		"url":        base64.URLEncoding.EncodeToString(raw),
		"raw url":    base64.RawURLEncoding.EncodeToString(raw),
		"whitespace": " " + base64.StdEncoding.EncodeToString(raw) + "\n",
	} {
		t.Run(name, func(t *testing.T) {
			in.Qualifier = encoded
			_, err := verifier.Verify("", in, testSecret)
			require.NoError(t, err)
		})
	}
}

func TestQualifierLegacyAlgorithm(t *testing.T) {
	verifier, err := NewQualifierVerifier(QualifierSHA256Concat)
	require.NoError(t, err)
	require.Equal(t, []string{QualifierHMACSHA256, QualifierSHA256Concat}, verifier.Algorithms())

	h := sha256.New()
	h.Write(testSecret)
	h.Write([]byte("VIN123SERIAL123"))

	in := QualifierInput{VIN: "VIN123", SerialNumber: "SERIAL123", Qualifier: hex.EncodeToString(h.Sum(nil))}
	_, err = verifier.Verify("", in, testSecret)
	require.NoError(t, err)

	// The same qualifier does not verify under the HMAC construction.
	_, err = verifier.Verify(QualifierHMACSHA256, in, testSecret)
	require.ErrorIs(t, err, interfaces.ErrQualifierMismatch)

	_, err = NewQualifierVerifier("md5/v-1")
	require.Error(t, err)
}

func TestValidateAAD(t *testing.T) {
	for _, aad := range []string{"", "yes", "no", "YES", "No"} {
		require.NoError(t, ValidateAAD(aad), aad)
	}
	for _, aad := range []string{"y", "true", "yes ", "0"} {
		require.ErrorIs(t, ValidateAAD(aad), interfaces.ErrInvalidAAD, aad)
		require.ErrorIs(t, ValidateAAD(aad), interfaces.ErrValidation, aad)
	}
}
