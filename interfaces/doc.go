// Package interfaces defines core interfaces and types for the device
// activation backend, separating interface definitions from implementations.
//
// # Domain Types
//
//   - FactoryRecord: factory-provisioned inventory entry with lifecycle State
//   - ActivationRecord: issued device identity ("Harman ID") and current passcode
//   - ActivationReadiness: authorization to activate after a user association
//   - Association: VIN to serial number link and its provisioning transaction
//   - ActivationResult: identity/passcode pair or the provisioned-alive marker
//
// # Lifecycle
//
//	PROVISIONED -> READY_TO_ACTIVATE -> ACTIVE -> DEACTIVATED
//
// Side states PROVISIONED_ALIVE, STOLEN and FAULTY block activation.
//
// # Collaborators
//
//   - DeviceStateStore: persistence with a transaction boundary (WithTx)
//   - SecretStore / SecretStoreFactory: shared secrets by name (file, S3, Vault)
//   - RegistrationClient / TokenSource: external credential-registration service
//   - ProfileLookup / SMSSender: first-activation notification
//   - EventPublisher: typed event delivery to a topic
//
// # Error Types
//
// Errors are sentinel values wrapped with %w. KindOf maps any error onto the
// taxonomy used by the HTTP layer: validation failed, resource not found,
// precondition failed, duplicate activation, data integrity and technical.
// PartialFailureError marks errors raised after local state was committed.
package interfaces
