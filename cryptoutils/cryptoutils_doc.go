// Package cryptoutils provides the cryptographic checks and credential material
// used during device activation.
//
// Devices prove possession of a shared secret by submitting a qualifier
// computed over their VIN and serial number. Devices provisioned through the
// pre-shared-key path instead submit an encrypted key that is compared against
// a server-held reference. Neither check has side effects.
//
// # Key Functions
//
// # QualifierVerifier.Verify - Recomputes and compares a qualifier, returning a seed
//
// # MatchPreSharedKeys - Decrypts two pre-shared keys and compares the plaintexts
//
// # GeneratePasscode - Produces a fresh opaque passcode from a verified seed
//
// # Qualifier Algorithms
//
// The qualifier construction is versioned and pluggable:
//
//   - hmac-sha256/v1 (default): HMAC-SHA256(secret, VIN "|" serial ["|" aad])
//   - sha256-concat/v0: SHA-256(secret || VIN || serial [|| aad])
//
// Qualifiers are accepted as hex or any base64 alphabet, with or without
// padding. Comparison is constant time. The seed returned on success is the
// first 8 bytes of the computed value, big-endian, masked to 63 bits.
//
// The optional aad flag must be "yes" or "no" in any letter case. Any other
// value is rejected with interfaces.ErrInvalidAAD before the secret is used.
//
// # Pre-Shared Key Format
//
// Encrypted keys are base64 (standard alphabet) of:
//
//	[nonce (12 bytes)][ciphertext with GCM tag]
//
// The AES-256 key is derived from the shared secret with HKDF-SHA256.
//
// # Usage Example
//
//	verifier, err := cryptoutils.NewQualifierVerifier("")
//	if err != nil {
//	    return err
//	}
//
//	seed, err := verifier.Verify("", cryptoutils.QualifierInput{
//	    VIN:          "WVWZZZ1JZXW000001",
//	    SerialNumber: "SN-0001",
//	    Qualifier:    qualifier,
//	}, secret)
//	if err != nil {
//	    return err // interfaces.ErrQualifierMismatch, ErrInvalidAAD, ErrSecretMissing
//	}
//
//	passcode, err := cryptoutils.GeneratePasscode(seed)
package cryptoutils
