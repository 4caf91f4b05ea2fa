package cryptoutils

import (
	"testing"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/require"
)

func TestPreSharedKeyRoundTrip(t *testing.T) {
	secret := []byte("psk-codec-secret")

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "Short key", data: []byte("0123456789abcdef")},
		{name: "Binary key", data: []byte{0x00, 0x01, 0xFE, 0xFF}},
		{name: "Long key", data: make([]byte, 256)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := EncryptPreSharedKey(secret, tc.data)
			require.NoError(t, err)

			decrypted, err := DecryptPreSharedKey(secret, encrypted)
			require.NoError(t, err)
			require.Equal(t, tc.data, decrypted)

			_, err = DecryptPreSharedKey([]byte("wrong"), encrypted)
			require.Error(t, err)
		})
	}
}

func TestMatchPreSharedKeys(t *testing.T) {
	secret := []byte("psk-codec-secret")

	// Encryption is randomized, so equal plaintexts produce different ciphertexts.
	requestKey, err := EncryptPreSharedKey(secret, []byte("device-key"))
	require.NoError(t, err)
	referenceKey, err := EncryptPreSharedKey(secret, []byte("device-key"))
	require.NoError(t, err)
	require.NotEqual(t, requestKey, referenceKey)

	otherKey, err := EncryptPreSharedKey(secret, []byte("other-key"))
	require.NoError(t, err)
	emptyKey, err := EncryptPreSharedKey(secret, []byte{})
	require.NoError(t, err)

	testCases := []struct {
		name        string
		secret      []byte
		request     string
		reference   string
		expectedErr error
	}{
		{name: "Equal plaintexts", secret: secret, request: requestKey, reference: referenceKey},
		{name: "Different plaintexts", secret: secret, request: requestKey, reference: otherKey, expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Blank request", secret: secret, request: " ", reference: referenceKey, expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Blank reference", secret: secret, request: requestKey, reference: "", expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Empty plaintexts", secret: secret, request: emptyKey, reference: emptyKey, expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Undecodable request", secret: secret, request: "%%%", reference: referenceKey, expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Wrong secret", secret: []byte("other"), request: requestKey, reference: referenceKey, expectedErr: interfaces.ErrPreSharedKeyMismatch},
		{name: "Missing secret", secret: nil, request: requestKey, reference: referenceKey, expectedErr: interfaces.ErrSecretMissing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := MatchPreSharedKeys(tc.secret, tc.request, tc.reference)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGeneratePasscode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		passcode, err := GeneratePasscode(interfaces.QualifierSeed(42))
		require.NoError(t, err)
		require.Len(t, passcode, 32)
		require.False(t, seen[passcode], "passcode repeated")
		seen[passcode] = true
	}
}
