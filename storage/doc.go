// Package storage provides named secret stores with pluggable backends.
//
// The shared secrets used to verify device qualifiers and to decrypt
// pre-shared keys are addressed by slash separated names:
//
//   - qualifier/<deviceType>, falling back to qualifier/default
//   - psk/codec
//   - psk/reference/<activationId>
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/device-activation/secrets
//   - s3://bucket-name/prefix?region=eu-west-1&endpoint=http://minio:9000
//   - vault://token@vault.internal:8200/secret/device-activation
//
// Vault is accessed through the KV v2 API. Each secret is a single "content"
// key. Set tls=false for plain HTTP development servers.
//
// # Multiple Backends
//
// Several locations can be combined with SecretStoreFactory.CreateMultiBackend.
// Fetch tries each available backend in order and returns
// interfaces.ErrContentNotFound only when every reachable backend reports the
// secret absent. Store writes to every available backend and succeeds when at
// least one write does.
//
// # Usage Example
//
//	factory := storage.NewSecretStoreFactory(log)
//	loc, err := interfaces.NewStorageBackendLocation("file:///var/lib/device-activation/secrets")
//	if err != nil {
//	    return err
//	}
//	store, err := factory.SecretStoreFor(loc)
//	if err != nil {
//	    return err
//	}
//	secret, err := store.Fetch(ctx, "qualifier/default")
package storage
